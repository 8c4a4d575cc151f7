package main

import (
	"fmt"

	apihttp "github.com/artpar/facturo/adapters/http"
	"github.com/artpar/facturo/config"
	"github.com/spf13/cobra"
)

var (
	serverURL string
	appCase   string
)

func addClientFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().StringVar(&serverURL, "server", "", "API base URL (default: client.base_url)")
	cmd.PersistentFlags().StringVar(&appCase, "case", "", "key casing of raw JSON output (default: client.app_case)")
}

// newAPIClient builds a client from the client section of the config,
// overridden by --server and --case.
func newAPIClient() (*apihttp.Client, error) {
	cfg, err := config.LoadWithFallback(configPath())
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	ccfg := apihttp.ClientConfig{
		BaseURL:  cfg.Client.BaseURL,
		Timeout:  cfg.Client.Timeout,
		WireCase: cfg.Casing.Wire,
		AppCase:  cfg.Client.AppCase,
		MaxDepth: cfg.Casing.MaxDepth,
	}
	if serverURL != "" {
		ccfg.BaseURL = serverURL
	}
	if appCase != "" {
		ccfg.AppCase = appCase
	}
	return apihttp.NewClient(ccfg)
}
