package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/jwalitptl/cds-engine/config"
	"github.com/jwalitptl/cds-engine/internal/bootstrap"
	"github.com/jwalitptl/cds-engine/internal/middleware"
	"github.com/jwalitptl/cds-engine/internal/model"
	"github.com/jwalitptl/cds-engine/internal/router"
	"github.com/jwalitptl/cds-engine/pkg/logger"
)

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "cds-api",
		Short: "Clinical decision support API",
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file")

	rootCmd.AddCommand(serveCmd(&configPath))
	rootCmd.AddCommand(evaluateCmd(&configPath))
	rootCmd.AddCommand(tokenCmd(&configPath))

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setup(ctx context.Context, configPath string) (*bootstrap.App, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}

	lg := logger.NewLogger(&logger.Config{
		Level:      logger.ParseLevel(cfg.Log.Level),
		TimeFormat: time.RFC3339,
		JSON:       cfg.Log.JSON,
	})
	log.Logger = *lg.Zerolog()

	return bootstrap.New(ctx, cfg, lg, nil)
}

func serveCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(*configPath)
		},
	}
}

func runServer(configPath string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := setup(ctx, configPath)
	if err != nil {
		return err
	}
	defer app.Close()

	r := router.NewRouter(app, router.ConfigFrom(app))
	if app.Config.JWT.Secret == "" {
		app.Logger.Warn("jwt.secret is not set, api is unauthenticated")
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", app.Config.Server.Port),
		Handler:      r.Engine(),
		ReadTimeout:  app.Config.Server.ReadTimeout,
		WriteTimeout: app.Config.Server.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		app.Logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		app.RetentionWorker().Start(gctx)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		app.Logger.Info("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	app.Logger.Info("server exited")
	return nil
}

func evaluateCmd(configPath *string) *cobra.Command {
	var (
		file      string
		patientID string
		persist   bool
	)

	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Evaluate a patient context file and print the alerts",
		RunE: func(cmd *cobra.Command, args []string) error {
			if persist && patientID == "" {
				return errors.New("--patient-id is required with --persist")
			}

			data, err := os.ReadFile(file)
			if err != nil {
				return err
			}
			var pc model.PatientContext
			if err := json.Unmarshal(data, &pc); err != nil {
				return fmt.Errorf("invalid patient context: %w", err)
			}

			ctx := cmd.Context()
			app, err := setup(ctx, *configPath)
			if err != nil {
				return err
			}
			defer app.Close()

			var out interface{}
			alerts := app.Engine.EvaluatePatient(pc)
			out = alerts
			if persist {
				saved, err := app.History.SaveAlerts(ctx, patientID, alerts)
				if err != nil {
					return err
				}
				out = saved
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "patient context JSON file")
	cmd.Flags().StringVar(&patientID, "patient-id", "", "patient to store alerts for")
	cmd.Flags().BoolVar(&persist, "persist", false, "store alerts in the alert history")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func tokenCmd(configPath *string) *cobra.Command {
	var (
		subject string
		ttl     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Sign an API token for a clinician",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(*configPath)
			if err != nil {
				return err
			}
			if cfg.JWT.Secret == "" {
				return errors.New("jwt.secret is not set")
			}

			token, err := middleware.NewAuthMiddleware(cfg.JWT.Secret).IssueToken(subject, ttl)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}

	cmd.Flags().StringVar(&subject, "subject", "", "clinician id to put in the token")
	cmd.Flags().DurationVar(&ttl, "ttl", 12*time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}
