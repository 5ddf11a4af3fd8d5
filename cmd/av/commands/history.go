package commands

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:       "history [gc|fsck]",
	Short:     "Show recent gc and fsck runs from the journal",
	Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{"gc", "fsck"},
	RunE: runE(func(cmd *cobra.Command, args []string) error {
		if AV == nil {
			return fmt.Errorf("app not initialized")
		}
		if AV.Journal == nil {
			return fmt.Errorf("journal not configured (set journal.dsn)")
		}
		kind := ""
		if len(args) == 1 {
			kind = args[0]
		}

		reports, err := AV.Journal.ListReports(cmd.Context(), kind, historyLimit)
		if err != nil {
			return err
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
		fmt.Fprintf(tw, "ID\tKIND\tSTARTED\tTOOK\tRESULT\n")
		for _, r := range reports {
			result := "ok"
			if r.Error != "" {
				result = "error: " + r.Error
			}
			fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n",
				r.ID, r.Kind,
				r.StartedAt.Local().Format(time.DateTime),
				r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond),
				result)
		}
		return tw.Flush()
	}),
}

func init() {
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "Maximum number of runs to show (0 = all)")
	rootCmd.AddCommand(historyCmd)
}
