// Package cmd defines and implements the CLI commands for the pagewatch
// executable.
package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/pagewatch/internal/app"
	"github.com/JakeFAU/pagewatch/internal/config"
	"github.com/JakeFAU/pagewatch/internal/monitor"
)

// version is overridden at build time with -ldflags "-X".
var version = "dev"

// Runner is the application surface the commands use. Tests replace the
// factory below with a fake.
type Runner interface {
	Run(ctx context.Context) monitor.Report
	Close(ctx context.Context) error
}

var newApp = func(ctx context.Context, cfg config.Config, logger *zap.Logger) (Runner, error) {
	return app.NewApp(ctx, cfg, logger)
}

type rootOptions struct {
	configFile string
	envFile    string
}

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "pagewatch",
		Short: "Watches a web page region and announces changes on Telegram.",
		Long: `pagewatch renders a single page in headless Chrome, extracts the alert
block, fingerprints the region between two text anchors and, when the region
differs from the last saved baseline, posts the alert with a screenshot to a
Telegram channel. Every run reports its execution log to an operator channel.

One invocation is one run; schedule it with cron or CI.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&opts.configFile, "config", "", "config file (YAML); environment variables override it")
	cmd.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "dotenv file loaded before configuration")

	cmd.AddCommand(newRunCmd(opts))
	cmd.AddCommand(newVersionCmd())
	return cmd
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
