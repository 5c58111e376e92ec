// Package cmd defines the taxcrawl command line.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/taxcrawl/internal/app"
	"github.com/JakeFAU/taxcrawl/internal/config"
	"github.com/JakeFAU/taxcrawl/internal/crawler"
	"github.com/JakeFAU/taxcrawl/internal/logging"
)

type appKeyType string

const appKey appKeyType = "app"

// newApp is the application factory. Tests replace it to avoid the logger setup.
var newApp = func(ctx context.Context, cfg config.Config) (*app.App, error) {
	logger, err := logging.New(logging.Config{
		Development: cfg.Logging.Development,
		Level:       cfg.Logging.Level,
	})
	if err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}
	return app.Build(ctx, cfg, logger)
}

// root owns the App built for a single invocation.
type root struct {
	cfgFile string
	app     *app.App
}

func (r *root) close() {
	if r.app == nil {
		return
	}
	logger := r.app.Logger()
	if err := r.app.Close(); err != nil {
		logger.Warn("shutdown failed", zap.Error(err))
	}
	_ = logger.Sync()
	r.app = nil
}

func newRootCmd(r *root) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "taxcrawl",
		Short: "Crawl NYC property tax documents into a resumable queue.",
		Long: `taxcrawl drives the NYC Department of Finance property tax site for
every parcel in a queue table, caches each page and PDF it touches, and
records the facts it extracts back into the queue.`,
		SilenceUsage:  true,
		SilenceErrors: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(r.cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			a, err := newApp(cmd.Context(), cfg)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			r.app = a
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, a))
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&r.cfgFile, "config", "", "config file (YAML); TAXCRAWL_* variables override it")

	cmd.AddCommand(
		newBuildQueueCmd(),
		newCrawlCmd(),
		newClearErrorsCmd(),
		newStatusCmd(),
		newExportCmd(),
		newScrapeCmd(),
		newServeCmd(),
	)
	return cmd
}

func resolveApp(ctx context.Context) (*app.App, error) {
	a, ok := ctx.Value(appKey).(*app.App)
	if !ok || a == nil {
		return nil, errors.New("application services not initialized")
	}
	return a, nil
}

// run executes args and reports the error the way the binary does. It
// returns the process exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	r := &root{}
	defer r.close()

	cmd := newRootCmd(r)
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	err := cmd.ExecuteContext(ctx)
	if err == nil {
		return 0
	}
	if crawler.IsGraceful(err) {
		fmt.Fprintln(stderr, err.Error())
		return 1
	}
	if r.app != nil {
		r.app.Logger().Error("command failed", zap.Error(err))
	}
	fmt.Fprintf(stderr, "Error: %v\n", err)
	return 1
}

// Execute is the main entry point.
func Execute() {
	_ = godotenv.Load()
	os.Exit(run(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}
