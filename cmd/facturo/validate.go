package main

import (
	"fmt"

	"github.com/artpar/facturo/adapters/sqlite"
	"github.com/artpar/facturo/config"
	"github.com/spf13/cobra"
)

const (
	checkMark = "✓"
	crossMark = "✗"
)

var validateCheckDatabase bool

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration before deployment",
	Long: `Validate the facturo configuration.

Checks:
  - YAML syntax is valid
  - Every field holds an accepted value
  - Database can be opened and migrated (optional)

Examples:
  facturo validate
  facturo validate --config /etc/facturo/config.yaml --check-database`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().BoolVar(&validateCheckDatabase, "check-database", false, "check that the database opens and migrates")
}

func runValidate(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	path := configPath()
	if path == "" {
		fmt.Fprintf(out, "Validating environment configuration...\n\n")
	} else {
		fmt.Fprintf(out, "Validating %s...\n\n", path)
	}

	cfg, err := config.LoadWithFallback(path)
	if err != nil {
		fmt.Fprintf(out, "  %s Config valid\n", crossMark)
		return fmt.Errorf("config error: %w", err)
	}
	fmt.Fprintf(out, "  %s Config valid\n", checkMark)

	fmt.Fprintf(out, "  %s Listen address: %s\n", checkMark, cfg.Server.Addr())
	fmt.Fprintf(out, "  %s Database: %s (%s)\n", checkMark, cfg.Database.DSN, cfg.Database.Driver)
	fmt.Fprintf(out, "  %s Wire casing: %s, default client casing: %s\n", checkMark, cfg.Casing.Wire, cfg.Casing.ClientDefault)
	fmt.Fprintf(out, "  %s Invoice numbers: %s-YYYY-NNNN, VAT %d bp, due in %d days\n",
		checkMark, cfg.Invoice.NumberPrefix, cfg.Invoice.VATRate(), cfg.Invoice.DueDays)

	if validateCheckDatabase && cfg.Database.Driver == "sqlite" {
		if err := checkDatabase(cfg.Database.DSN); err != nil {
			fmt.Fprintf(out, "  %s Database ready\n", crossMark)
			fmt.Fprintf(out, "      Error: %v\n", err)
			return err
		}
		fmt.Fprintf(out, "  %s Database ready\n", checkMark)
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, "Configuration is valid.")
	return nil
}

func checkDatabase(dsn string) error {
	db, err := sqlite.Open(dsn)
	if err != nil {
		return err
	}
	defer db.Close()
	return db.Migrate()
}
