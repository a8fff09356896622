package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/pagewatch/internal/config"
	"github.com/JakeFAU/pagewatch/internal/id/uuid"
	"github.com/JakeFAU/pagewatch/internal/logging"
	"github.com/JakeFAU/pagewatch/internal/monitor"
)

// newRunCmd creates the 'run' subcommand, which performs one monitor pass.
func newRunCmd(root *rootOptions) *cobra.Command {
	var strict bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Runs one monitoring pass",
		Long: `Renders the target page, compares the watched region with the saved
baseline and publishes a notification when it changed. The execution log is
always sent to the log channel, even when the run aborts.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runMonitor(cmd, root, strict)
		},
	}
	cmd.Flags().BoolVar(&strict, "strict", false, "exit non-zero when the run ends in publish_failed or critical")
	return cmd
}

func runMonitor(cmd *cobra.Command, root *rootOptions, strict bool) error {
	if err := config.LoadDotenv(root.envFile); err != nil {
		return err
	}
	cfg, err := config.Load(root.configFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.New(logging.Config{Development: cfg.Logging.Development, Level: cfg.Logging.Level})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	appInstance, err := newApp(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize application services: %w", err)
	}
	defer func() {
		if cerr := appInstance.Close(context.WithoutCancel(ctx)); cerr != nil {
			logger.Warn("Failed to close application services", zap.Error(cerr))
		}
	}()

	report := appInstance.Run(ctx)
	fmt.Fprintf(cmd.OutOrStdout(), "run %s: %s\n", uuid.Short(report.RunID), report.Outcome)
	if report.FlushErr != nil {
		logger.Warn("Execution log was not delivered", zap.Error(report.FlushErr))
	}

	if strict && (report.Outcome == monitor.OutcomeCritical || report.Outcome == monitor.OutcomePublishFailed) {
		if report.Err != nil {
			return fmt.Errorf("run %s ended %s: %w", report.RunID, report.Outcome, report.Err)
		}
		return fmt.Errorf("run %s ended %s", report.RunID, report.Outcome)
	}
	return nil
}
