package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ksefmcp/ksef-mcp/pkg/config"
)

var version = "dev"

func main() {
	root := &cobra.Command{
		Use:          "ksef-mcp",
		Short:        "ksef-mcp — MCP bridge to the Polish KSeF e-invoicing API",
		Version:      version,
		SilenceUsage: true,
	}

	root.AddCommand(
		newServeCmd(),
		newToolsCmd(),
		newAuditCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig applies .env, the optional YAML file and KSEF_* overrides, in
// that order.
func loadConfig(configPath string) (*config.Config, error) {
	if _, err := config.LoadDotEnv(".env"); err != nil {
		return nil, err
	}

	cfg := config.Default()
	if configPath != "" {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
	}
	cfg.ApplyEnv()
	return cfg, nil
}
