package main

import (
	"fmt"
	"os"

	"github.com/artpar/facturo/config"
	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile string
	envFile string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "facturo",
	Short: "Invoice backend and API client",
	Long: `facturo serves the invoice API used by the facturo web app and
talks to it from the command line.

Server:
  facturo serve      # Start the API server
  facturo validate   # Validate configuration

Client:
  facturo invoices   # List, show and create invoices
  facturo notes      # Add and list invoice notes
  facturo convert    # Convert JSON keys between casings`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := config.LoadEnvFile(envFile); err != nil {
			return fmt.Errorf("load env file: %w", err)
		}
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "facturo.yaml", "config file path")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before the config")
}

// configPath returns the config file to load, or "" when it does not exist
// and settings come from FACTURO_* variables only.
func configPath() string {
	if _, err := os.Stat(cfgFile); err != nil {
		return ""
	}
	return cfgFile
}
