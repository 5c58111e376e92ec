package cmd

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newCrawlCmd() *cobra.Command {
	var (
		table       string
		concurrency int
		onlyYear    int
		onlyNOPV    bool
		onlySOA     bool
		noBrowser   bool
	)
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Crawl every unprocessed parcel in a queue table",
		Long: `Runs batches of unprocessed parcels through a pool of browser sessions
until none remain. Per-parcel failures are recorded in the queue; cache and
database failures stop the crawl. Interrupting the crawl leaves the remaining
rows unprocessed so the next run resumes where this one stopped.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			if onlyNOPV && onlySOA {
				return errors.New("--only-nopv and --only-soa are mutually exclusive")
			}

			opts := a.CrawlOptions()
			if table != "" {
				opts.Table = table
			}
			if concurrency > 0 {
				opts.Concurrency = concurrency
			}
			if onlyYear != 0 {
				opts.Filter.OnlyYear = onlyYear
			}
			if onlyNOPV {
				opts.Filter.OnlyNOPV, opts.Filter.OnlySOA = true, false
			}
			if onlySOA {
				opts.Filter.OnlySOA, opts.Filter.OnlyNOPV = true, false
			}
			if noBrowser {
				opts.Browser = false
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if err := a.ValidateConverter(ctx); err != nil {
				return err
			}
			d, err := a.NewDispatcher(opts)
			if err != nil {
				return err
			}
			if err := d.Run(ctx); err != nil {
				if errors.Is(err, context.Canceled) {
					a.Logger().Warn("crawl interrupted", zap.String("run_id", d.RunID()))
					return nil
				}
				return fmt.Errorf("crawl %s: %w", opts.Table, err)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&table, "table", "", "queue table (default crawl.table)")
	cmd.Flags().IntVarP(&concurrency, "concurrency", "c", 0, "number of browser sessions (default crawl.concurrency)")
	cmd.Flags().IntVar(&onlyYear, "only-year", 0, "only fetch documents dated in this year")
	cmd.Flags().BoolVar(&onlyNOPV, "only-nopv", false, "only fetch notices of property value")
	cmd.Flags().BoolVar(&onlySOA, "only-soa", false, "only fetch statements of account")
	cmd.Flags().BoolVar(&noBrowser, "no-browser", false, "serve only cached pages; uncached parcels fail")
	return cmd
}
