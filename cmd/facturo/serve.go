package main

import (
	"fmt"

	"github.com/artpar/facturo/bootstrap"
	"github.com/spf13/cobra"
)

var hotReload bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the API server",
	Long: `Start the facturo API server.

The server will:
  - Load configuration from facturo.yaml (or --config)
  - Or load configuration from FACTURO_* environment variables
  - Open the database and apply migrations
  - Serve the JSON:API endpoints under /api

Environment variables:
  FACTURO_SERVER_PORT        - Server port (default: 8080)
  FACTURO_DATABASE_DRIVER    - sqlite or memory (default: sqlite)
  FACTURO_DATABASE_DSN       - Database path (default: facturo.db)
  FACTURO_CASING_WIRE        - Casing used by handlers (default: snake)
  FACTURO_LOG_LEVEL          - Log level: debug, info, warn, error

Examples:
  facturo serve
  facturo serve --config /etc/facturo/config.yaml
  FACTURO_DATABASE_DRIVER=memory facturo serve`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().BoolVar(&hotReload, "hot-reload", true, "reload configuration on file change or SIGHUP")
}

func runServe(cmd *cobra.Command, args []string) error {
	path := configPath()
	if path == "" {
		fmt.Fprintln(cmd.OutOrStdout(), "Running with environment variables (no config file)")
	}

	app, err := bootstrap.New(bootstrap.Options{
		ConfigPath: path,
		HotReload:  hotReload,
	})
	if err != nil {
		return fmt.Errorf("error initializing: %w", err)
	}

	// Run (blocks until shutdown)
	return app.Run()
}
