package cmd

import (
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/taxcrawl/internal/crawler"
)

// invalidSearchText is shown when the geocoder finds nothing.
const invalidSearchText = "The search text is invalid."

func newScrapeCmd() *cobra.Command {
	var noBrowser bool
	cmd := &cobra.Command{
		Use:   "scrape <address>",
		Short: "Look up a single address and scrape its documents",
		Long: `Resolves a free-text address to a parcel, then scrapes its notices of
property value and statements of account without touching any queue.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			logger := a.Logger()

			result, err := a.Resolver().Resolve(ctx, strings.Join(args, " "))
			if err != nil {
				return fmt.Errorf("resolve address: %w", err)
			}
			if result == nil {
				return crawler.NewGracefulError(invalidSearchText)
			}
			key, err := result.Key()
			if err != nil {
				return fmt.Errorf("resolve address: %w", err)
			}
			logger.Info("resolved address",
				zap.String("name", result.Name),
				zap.String("borough", result.Borough),
				zap.Stringer("parcel", key),
			)

			opts := a.CrawlOptions()
			if err := a.ValidateConverter(ctx); err != nil {
				return err
			}
			scraper := a.NewScraper(a.Launcher(opts.Browser && !noBrowser), crawler.MakeLinkFilter(opts.Filter))
			defer func() {
				if serr := scraper.Shutdown(ctx); serr != nil {
					logger.Warn("session shutdown failed", zap.Error(serr))
				}
			}()

			info, err := scraper.PropertyInfo(ctx, key)
			if err != nil {
				return fmt.Errorf("scrape %s: %w", key, err)
			}
			info.Name, info.Borough = result.Name, result.Borough

			t := table.NewWriter()
			t.SetOutputMirror(cmd.OutOrStdout())
			t.SetStyle(table.StyleLight)
			t.SetTitle(fmt.Sprintf("%s (%s, %s)", info.Name, info.Borough, info.Key))
			t.AppendHeader(table.Row{"Document", "Period", "Date", "Fact"})
			for _, n := range info.NOPV {
				noi := "-"
				if n.NOI != nil {
					noi = "NOI " + *n.NOI
				}
				logger.Info("notice of property value", zap.String("period", n.Period), zap.String("noi", noi))
				t.AppendRow(table.Row{"NOPV", n.Period, n.Date, noi})
			}
			for _, s := range info.SOA {
				units := "-"
				if s.RentStabilizedUnits != nil {
					units = fmt.Sprintf("%d rent stabilized units", *s.RentStabilizedUnits)
				}
				logger.Info("statement of account", zap.String("period", s.Period), zap.String("units", units))
				t.AppendRow(table.Row{"SOA", s.Period, s.Date, units})
			}
			t.Render()
			return nil
		},
	}
	cmd.Flags().BoolVar(&noBrowser, "no-browser", false, "serve only cached pages")
	return cmd
}
