package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xhad/aba/internal/logger"
	"github.com/xhad/aba/pkg/config"
)

var (
	configPath string
	debug      bool
)

var rootCmd = &cobra.Command{
	Use:           "aba",
	Short:         "Ask questions about PDFs and arXiv papers",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return logger.Init(debug)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config.yaml")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
}

// loadConfig reads and validates the config. Credentials are only checked
// when the command talks to the model or the database.
func loadConfig(needServices bool) (*config.Config, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	if cfg.Log.Debug && !debug {
		if err := logger.Init(true); err != nil {
			return nil, err
		}
	}

	if needServices {
		return cfg, cfg.Check()
	}
	if problems := cfg.Validate(); len(problems) > 0 {
		return nil, problems[0]
	}
	return cfg, nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := finish(rootCmd.ExecuteContext(ctx))
	stop()
	os.Exit(code)
}

// finish logs the outcome, flushes the logger and returns the exit code.
func finish(err error) int {
	if err != nil {
		logger.L().Debug("command failed", zap.Error(err))
	}
	logger.Sync()
	if err != nil {
		color.Red("Error: %v", err)
		return 1
	}
	return 0
}
