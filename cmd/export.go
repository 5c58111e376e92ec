package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/taxcrawl/internal/export"
)

func newExportCmd() *cobra.Command {
	var (
		table  string
		output string
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the queue as CSV",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) (err error) {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			if table == "" {
				table = a.Config().Crawl.Table
			}

			var w io.Writer = cmd.OutOrStdout()
			if output != "" && output != "-" {
				f, ferr := os.Create(output)
				if ferr != nil {
					return fmt.Errorf("create %s: %w", output, ferr)
				}
				defer func() {
					if cerr := f.Close(); cerr != nil && err == nil {
						err = fmt.Errorf("close %s: %w", output, cerr)
					}
				}()
				w = f
			}
			n, err := export.CSV(cmd.Context(), w, a.Store(), table, a.Documents())
			if err != nil {
				return fmt.Errorf("export %s: %w", table, err)
			}
			a.Logger().Info("export complete", zap.String("table", table), zap.Int("rows", n))
			return nil
		},
	}
	cmd.Flags().StringVar(&table, "table", "", "queue table (default crawl.table)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default stdout)")
	return cmd
}
