package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"legalrag/internal/config"
	"legalrag/internal/logger"
)

type rootFlags struct {
	configPath string
	logLevel   string
	pretty     bool
}

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var flags rootFlags
	root := &cobra.Command{
		Use:           "legalrag",
		Short:         "Question answering over Italian constitutional and parliamentary law",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	addRootFlags(root.PersistentFlags(), &flags)

	root.AddCommand(
		newChatCmd(&flags),
		newAskCmd(&flags),
		newIndexCmd(&flags),
		newServeCmd(&flags),
	)
	return root
}

func addRootFlags(fs *pflag.FlagSet, f *rootFlags) {
	fs.StringVar(&f.configPath, "config", "", "Path to YAML config file (searches ./legalrag.yaml, ./configs, ~/.config/legalrag if not provided)")
	fs.StringVar(&f.logLevel, "log-level", "", "Override log level (debug, info, warn, error)")
	fs.BoolVar(&f.pretty, "pretty", false, "Human-readable log output")
}

// loadConfig reads and validates the configuration named by the root flags.
func loadConfig(f *rootFlags) (*config.AppConfig, error) {
	var (
		cfg *config.AppConfig
		err error
	)
	if f.configPath == "" {
		cfg, _, err = config.LoadDefault()
	} else {
		cfg, err = config.Load(f.configPath)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if f.logLevel != "" {
		cfg.Log.Level = f.logLevel
	}
	if f.pretty {
		cfg.Log.Pretty = true
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func newLogger(cfg *config.AppConfig) logger.Config {
	return logger.Config{
		Level:      cfg.Log.Level,
		Pretty:     cfg.Log.Pretty,
		Output:     os.Stderr,
		WithCaller: cfg.Log.WithCaller,
	}
}
