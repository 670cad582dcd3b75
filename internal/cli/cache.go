package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/keerthanasaravanan18/college/internal/cache"
	"github.com/keerthanasaravanan18/college/internal/logging"
)

// newCacheCommand groups the maintenance commands. They only make sense for a
// persistent backend (badger or redis); the memory backend starts empty.
func newCacheCommand(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and invalidate cached responses",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Remove every cached entry under the configured namespace",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStore(cmd, opts, func(ctx context.Context, store *cache.Store) (int, error) {
				return store.ClearAll(ctx)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "invalidate PATTERN",
		Short: "Remove cached entries whose key contains PATTERN",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pattern := strings.TrimSpace(args[0])
			if pattern == "" {
				return errors.New("cli: pattern must not be blank")
			}
			return withStore(cmd, opts, func(ctx context.Context, store *cache.Store) (int, error) {
				return store.InvalidateByPattern(ctx, pattern)
			})
		},
	})

	return cmd
}

func withStore(cmd *cobra.Command, opts *globalOptions, fn func(ctx context.Context, store *cache.Store) (int, error)) error {
	ctx := cmd.Context()
	cfg, err := opts.loader().Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	logger, err := logging.NewWithWriter(cfg.Server.Logging, cmd.ErrOrStderr())
	if err != nil {
		return fmt.Errorf("failed to configure logger: %w", err)
	}
	if strings.EqualFold(strings.TrimSpace(cfg.Cache.Backend), "memory") || strings.TrimSpace(cfg.Cache.Backend) == "" {
		logger.Warn("memory cache backend holds nothing between runs")
	}

	kv, store, err := openStore(ctx, cfg, logger, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err := kv.Close(); err != nil {
			logger.Error("cache backend close failed", slog.Any("error", err))
		}
	}()

	removed, err := fn(ctx, store)
	if err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "removed %d entries\n", removed)
	return nil
}
