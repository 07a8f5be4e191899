// Command app runs the weekly snippets service and its maintenance tasks.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"weekly-snippets/internal/config"
	"weekly-snippets/internal/infra/logging"
)

// set with -ldflags "-X main.version=... -X main.commit=..."
var (
	version = "dev"
	commit  = "none"
)

var (
	cfgPath string
	devMode bool
)

var rootCmd = &cobra.Command{
	Use:           "app",
	Short:         "Weekly snippets service",
	Long:          "Collects weekly work activity and drafts weekly snippets with an AI provider.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "config.yaml", "path to YAML config file")
	rootCmd.PersistentFlags().BoolVar(&devMode, "dev", false, "developer mode (console logs, relaxed defaults)")
}

func main() {
	// .env is optional
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig reads the config and builds the root logger for a command.
func loadConfig() (*config.Config, *zerolog.Logger, error) {
	cfg, err := config.LoadConfig(cfgPath, devMode)
	if err != nil {
		return nil, nil, fmt.Errorf("config: %w", err)
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	return cfg, logger, nil
}
