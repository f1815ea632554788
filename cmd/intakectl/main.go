// Command intakectl runs the validation pipeline stages from a terminal and
// carries the operator tasks of the intake service.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/zatekoja/RadiologyOrderIntake/backend/internal/infrastructure/observability"
	"github.com/zatekoja/RadiologyOrderIntake/backend/pkg/config"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "intakectl",
		Short:        "Radiology order intake operator CLI",
		SilenceUsage: true,
	}

	root.AddCommand(sanitizeCmd())
	root.AddCommand(keywordsCmd())
	root.AddCommand(promptCmd())
	root.AddCommand(validateCmd())
	root.AddCommand(templatesCmd())
	root.AddCommand(watchCmd())
	return root
}

// loadConfig reads the service configuration and routes logs to stderr so
// command output stays machine readable
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	observability.InitLoggerTo(os.Stderr, "intakectl", cfg.Env, cfg.LogLevel)
	return cfg, nil
}
