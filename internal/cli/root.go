// Package cli implements the vivasaya command-line interface.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/keerthanasaravanan18/college/internal/config"
)

// DefaultEnvPrefix is the environment variable prefix read by the config loader.
const DefaultEnvPrefix = "VIVASAYA"

// globalOptions holds the persistent flags shared by every subcommand.
type globalOptions struct {
	configFile string
	envPrefix  string
}

func (o *globalOptions) loader() *config.Loader {
	return config.NewLoader(o.envPrefix, o.configFile)
}

// NewRootCommand builds the command tree. Each call returns an independent tree so
// tests can execute commands in isolation.
func NewRootCommand() *cobra.Command {
	opts := &globalOptions{}
	root := &cobra.Command{
		Use:           "vivasaya",
		Short:         "Crop advisory service backed by a generative model",
		Long:          `vivasaya serves crop recommendations, market boards, soil and weather readings over HTTP, caching every model response in a durable store.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.CompletionOptions.DisableDefaultCmd = true

	root.PersistentFlags().StringVar(&opts.configFile, "config", "", "path to configuration file (yaml, json or toml)")
	root.PersistentFlags().StringVar(&opts.envPrefix, "env-prefix", DefaultEnvPrefix, "environment variable prefix")

	root.AddCommand(newServeCommand(opts))
	root.AddCommand(newCacheCommand(opts))
	root.AddCommand(newRecommendCommand(opts))
	return root
}

// Execute runs the root command until it finishes or the process is interrupted.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := NewRootCommand().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
