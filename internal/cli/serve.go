package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/keerthanasaravanan18/college/internal/logging"
	"github.com/keerthanasaravanan18/college/internal/server"
)

// errNoCredentials is returned by serve when no API key is configured.
var errNoCredentials = errors.New("cli: no api keys configured (set ai.apiKeys, VIVASAYA_AI__APIKEYS or API_KEY)")

func newServeCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the advisory HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, opts)
		},
	}
}

func runServe(cmd *cobra.Command, opts *globalOptions) error {
	ctx := cmd.Context()
	loader := opts.loader()
	cfg, err := loader.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if len(cfg.AI.Credentials()) == 0 {
		return errNoCredentials
	}

	logger, err := logging.NewWithWriter(cfg.Server.Logging, cmd.OutOrStdout())
	if err != nil {
		return fmt.Errorf("failed to configure logger: %w", err)
	}

	a, err := buildApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	if len(loader.Files()) > 0 {
		watcher, err := loader.WatchCredentials(ctx, cfg.AI.Credentials(), a.pool.Replace, func(err error) {
			if err != nil {
				logger.Error("credentials watcher error", slog.Any("error", err))
			}
		})
		if err != nil {
			logger.Error("credentials watcher setup failed", slog.Any("error", err))
		} else {
			defer watcher.Stop()
		}
	}

	handler := server.NewRouter(server.RouterOptions{
		Advisor:           a.advisor,
		Cache:             a.store,
		Metrics:           a.metrics,
		Logger:            logger,
		CorrelationHeader: cfg.Server.Logging.CorrelationHeader,
		RequestsPerMinute: cfg.Server.RateLimit.RequestsPerMinute,
	})
	srv, err := server.New(cfg, logger, handler)
	if err != nil {
		return fmt.Errorf("unable to construct server: %w", err)
	}

	if err := srv.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("server terminated unexpectedly", slog.Any("error", err))
		return err
	}
	logger.Info("server shutdown complete")
	return nil
}
