package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/jwalitptl/cds-engine/config"
	"github.com/jwalitptl/cds-engine/internal/bootstrap"
	"github.com/jwalitptl/cds-engine/internal/worker"
	"github.com/jwalitptl/cds-engine/pkg/logger"
)

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "cds-worker",
		Short: "Retention worker for CDS alert history and audit log",
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "run",
		Short: "Apply the retention policy on the configured interval",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			w, app, err := newWorker(ctx, configPath)
			if err != nil {
				return err
			}
			defer app.Close()
			if err := app.RequireSharedStore(); err != nil {
				return err
			}

			w.Start(ctx)
			app.Logger.Info("worker stopped")
			return nil
		},
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "once",
		Short: "Apply the retention policy once and print the result",
		RunE: func(cmd *cobra.Command, args []string) error {
			w, app, err := newWorker(cmd.Context(), configPath)
			if err != nil {
				return err
			}
			defer app.Close()
			if err := app.RequireSharedStore(); err != nil {
				return err
			}

			result, err := w.RunOnce(cmd.Context())
			if err != nil {
				return err
			}
			return json.NewEncoder(cmd.OutOrStdout()).Encode(result)
		},
	})

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newWorker(ctx context.Context, configPath string) (*worker.RetentionWorker, *bootstrap.App, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, nil, err
	}

	lg := logger.NewLogger(&logger.Config{
		Level:      logger.ParseLevel(cfg.Log.Level),
		TimeFormat: time.RFC3339,
		JSON:       cfg.Log.JSON,
	})
	log.Logger = *lg.Zerolog()

	app, err := bootstrap.New(ctx, cfg, lg, nil)
	if err != nil {
		return nil, nil, err
	}
	return app.RetentionWorker(), app, nil
}
