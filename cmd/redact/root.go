package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewRootCmd creates the root command for the redaction CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "redact",
		Short: "Remove contributor PII from every backing store",
		Long: `redact masks or deletes a contributor's personal data across the
relational database, search indices, the analytics store, object
storage, and the session cache, then reports the outcome per store.

Runs are dry-run by default; pass --execute to mutate.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// A missing .env file is not an error; explicit env wins either way
			_ = godotenv.Load()

			verbose, _ := cmd.Flags().GetBool("verbose")
			logger, err := newLogger(verbose)
			if err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			zap.ReplaceGlobals(logger)
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = zap.L().Sync()
		},
	}

	cmd.PersistentFlags().StringP("config", "c", "", "Path to INI configuration file")
	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable debug logging")

	cmd.AddCommand(NewRunCmd())
	cmd.AddCommand(NewVerifyCmd())

	return cmd
}

// newLogger builds the process logger from LOG_LEVEL and LOG_FORMAT,
// with --verbose forcing debug level.
func newLogger(verbose bool) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if err := level.Set(getenvDefault("LOG_LEVEL", "info")); err != nil {
		return nil, err
	}
	if verbose {
		level = zapcore.DebugLevel
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	if getenvDefault("LOG_FORMAT", "console") == "console" {
		cfg.Encoding = "console"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	}
	return cfg.Build()
}

func getenvDefault(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// Execute runs the root command.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := NewRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
