package main

import (
	"bufio"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ksefmcp/ksef-mcp/pkg/audit"
	"github.com/ksefmcp/ksef-mcp/pkg/ksef"
	"github.com/ksefmcp/ksef-mcp/pkg/logging"
	"github.com/ksefmcp/ksef-mcp/pkg/mcp"
)

func newServeCmd() *cobra.Command {
	var (
		configPath string
		baseURL    string
		logLevel   string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve MCP over stdin/stdout",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			if baseURL != "" {
				cfg.BaseURL = baseURL
			}
			if logLevel != "" {
				cfg.Log.Level = logLevel
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid config: %w", err)
			}

			logger, err := logging.New(cfg.Log.Level, cfg.Log.Format, os.Stderr)
			if err != nil {
				return err
			}

			client := ksef.NewWithBaseURL(cfg.BaseURL,
				ksef.WithTimeout(cfg.HTTP.Timeout),
				ksef.WithUserAgent(cfg.HTTP.UserAgent+"/"+version),
				ksef.WithLogger(logger),
			)
			if cfg.SessionToken != "" {
				client.SetSessionToken(cfg.SessionToken)
			}

			var recorder mcp.Recorder
			if cfg.Audit.Enabled {
				l, err := audit.New(cfg.Audit)
				if err != nil {
					return fmt.Errorf("init audit: %w", err)
				}
				defer func() { _ = l.Close() }()
				recorder = l
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			// Unblock the pending stdin read on shutdown.
			go func() {
				<-ctx.Done()
				_ = os.Stdin.Close()
			}()

			logger.WithFields(logrus.Fields{
				"base_url":  client.BaseURL(),
				"token_set": client.HasSessionToken(),
				"audit":     cfg.Audit.Enabled,
			}).Info("ksef-mcp: serving on stdio")

			srv := mcp.New(client, recorder, logger, version)
			err = srv.Run(ctx, os.Stdin, bufio.NewWriter(os.Stdout))
			if ctx.Err() != nil {
				logger.Info("ksef-mcp: shutting down")
				return nil
			}
			return err
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to config file")
	cmd.Flags().StringVar(&baseURL, "base-url", "", "KSeF API base URL (overrides config)")
	cmd.Flags().StringVar(&logLevel, "log-level", "", "log level (overrides config)")
	return cmd
}
