package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/grishkovelli/proxyscan"
	"github.com/grishkovelli/proxyscan/pkg/backend"
)

var envFile string

func main() {
	rootCmd := &cobra.Command{
		Use:           "proxyscan",
		Short:         "Proxy scanning node",
		Long:          "proxyscan loads the node configuration from the environment and an optional .env file.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", proxyscan.DefaultEnvFile, "Local definition file, empty to skip")

	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(checkCmd())
	rootCmd.AddCommand(serveCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig loads the configuration; an empty path skips the definition file.
func loadConfig(path string) (proxyscan.Config, error) {
	if path == "" {
		return proxyscan.Load(proxyscan.WithoutEnvFile())
	}
	return proxyscan.Load(proxyscan.WithEnvFile(path))
}

func configCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the loaded configuration with secrets masked",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(envFile)
			if err != nil {
				return err
			}
			return printConfig(cmd.OutOrStdout(), cfg, format)
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "yaml", "Output format (yaml|json)")

	return cmd
}

func printConfig(w io.Writer, cfg proxyscan.Config, format string) error {
	switch format {
	case "yaml":
		return cfg.WriteYAML(w)
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(cfg)
	default:
		return fmt.Errorf("unknown format %q", format)
	}
}

func checkCmd() *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Connect to the configured database and cache",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(envFile)
			if err != nil {
				return err
			}
			log := proxyscan.NewLogger(cfg, cmd.ErrOrStderr()).WithFields(cfg.LogFields())

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			results := backend.Probe(ctx, cfg.DatabaseURL, cfg.CacheURL)
			for _, r := range results {
				entry := log.WithFields(logrus.Fields{"backend": r.Name, "state": r.State})
				if r.Err != nil {
					entry.WithError(r.Err).Error("backend check")
				} else {
					entry.Info("backend check")
				}
			}

			if backend.Failed(results) {
				return errors.New("backend check failed")
			}
			return nil
		},
	}

	cmd.Flags().DurationVarP(&timeout, "timeout", "t", 10*time.Second, "Connection timeout")

	return cmd
}

func serveCmd() *cobra.Command {
	var (
		addr     string
		interval time.Duration
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the node status over HTTP and websocket",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(envFile)
			if err != nil {
				return err
			}
			log := proxyscan.NewLogger(cfg, cmd.ErrOrStderr())
			log.WithFields(cfg.LogFields()).WithFields(logrus.Fields{
				"scan_batch_size": cfg.ScanBatchSize,
				"proxy_timeout":   cfg.ProxyCheckTimeout(),
			}).Info("starting node")

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			srv := proxyscan.NewStatusServer(cfg, log, proxyscan.WithInterval(interval))
			return srv.ListenAndServe(ctx, addr)
		},
	}

	cmd.Flags().StringVarP(&addr, "addr", "a", ":8080", "Listen address")
	cmd.Flags().DurationVar(&interval, "interval", 5*time.Second, "Status push interval")

	return cmd
}
