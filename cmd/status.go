package cmd

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/JakeFAU/taxcrawl/internal/progress"
)

func newStatusCmd() *cobra.Command {
	var tableName string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show queue counts and where the last snapshot was published",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			if tableName == "" {
				tableName = a.Config().Crawl.Table
			}
			st, err := progress.Report(cmd.Context(), a.Store(), a.Snapshots(), tableName)
			if err != nil {
				return fmt.Errorf("report status: %w", err)
			}

			t := table.NewWriter()
			t.SetOutputMirror(cmd.OutOrStdout())
			t.SetStyle(table.StyleLight)
			t.AppendHeader(table.Row{"Table", "Successful", "Unsuccessful", "Remaining", "Total"})
			t.AppendRow(table.Row{st.Table, st.Successful, st.Unsuccessful, st.Remaining, st.Counts().Total()})
			t.Render()
			if st.SnapshotURL != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "snapshot: %s\n", st.SnapshotURL)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&tableName, "table", "", "queue table (default crawl.table)")
	return cmd
}
