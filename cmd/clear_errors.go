package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newClearErrorsCmd() *cobra.Command {
	var table string
	cmd := &cobra.Command{
		Use:   "clear-errors",
		Short: "Reset retryable failures to unprocessed",
		Long: `Marks every failed row as unprocessed again, except parcels the site
reported as nonexistent.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			if table == "" {
				table = a.Config().Crawl.Table
			}
			n, err := a.Store().ClearErrors(cmd.Context(), table)
			if err != nil {
				return fmt.Errorf("clear errors: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "reset %d rows in %s\n", n, table)
			return nil
		},
	}
	cmd.Flags().StringVar(&table, "table", "", "queue table (default crawl.table)")
	return cmd
}
