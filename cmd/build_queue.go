package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/taxcrawl/internal/queue"
)

func newBuildQueueCmd() *cobra.Command {
	var table string
	cmd := &cobra.Command{
		Use:   "build-queue <keys-file>",
		Short: "Create a queue table from a list of parcel keys",
		Long: `Reads one 10-digit parcel key per line ("-" for stdin) and inserts an
unprocessed row for each key not already in the table. Blank lines and lines
starting with # are ignored.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			if table == "" {
				table = a.Config().Crawl.Table
			}

			var in io.Reader = cmd.InOrStdin()
			if args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return fmt.Errorf("open keys file: %w", err)
				}
				defer func() { _ = f.Close() }()
				in = f
			}
			keys, err := queue.ReadKeys(in)
			if err != nil {
				return fmt.Errorf("read keys: %w", err)
			}
			if err := a.Store().Build(cmd.Context(), table, keys); err != nil {
				return fmt.Errorf("build queue: %w", err)
			}
			a.Logger().Info("queue built", zap.String("table", table), zap.Int("keys", len(keys)))
			fmt.Fprintf(cmd.OutOrStdout(), "queued %d parcels in %s\n", len(keys), table)
			return nil
		},
	}
	cmd.Flags().StringVar(&table, "table", "", "queue table (default crawl.table)")
	return cmd
}
