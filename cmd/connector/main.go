package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	connect "github.com/hugolhafner/go-connect"
	"github.com/hugolhafner/go-connect/config"
	"github.com/hugolhafner/go-connect/internal/app"
	"github.com/hugolhafner/go-connect/plugins/zaplogger"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "connector",
		Short:         "Kafka to sink connector",
		Long:          "Consumes one Kafka partition and applies it to a transactional sink, tracking progress in a local checkpoint.",
		Version:       connect.Version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	rootCmd.PersistentFlags().StringP("config", "c", "connector.yaml", "Connector descriptor (YAML)")
	rootCmd.PersistentFlags().String("log-level", envDefault("CONNECT_LOG_LEVEL", "info"), "Log level: debug|info|warn|error")
	rootCmd.PersistentFlags().Bool("log-dev", false, "Human readable console logs")

	rootCmd.AddCommand(newRunCmd(), newStateCmd())
	return rootCmd
}

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start the connector and its HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			level, _ := cmd.Flags().GetString("log-level")
			dev, _ := cmd.Flags().GetBool("log-dev")
			l, zl, err := zaplogger.NewAtLevel(level, dev)
			if err != nil {
				return fmt.Errorf("invalid --log-level: %w", err)
			}
			defer func() { _ = zl.Sync() }()

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			return app.Run(ctx, cfg, l)
		},
	}
}

func loadConfig(cmd *cobra.Command) (config.Connector, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return config.Connector{}, err
	}
	if err := cfg.Validate(); err != nil {
		return config.Connector{}, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

func envDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
