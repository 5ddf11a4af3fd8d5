package commands

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"archvault/pkg/gc"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var gcOpts gc.Options

var gcCmd = &cobra.Command{
	Use:   "gc",
	Short: "Delete objects no longer reachable from any entry",
	Args:  cobra.NoArgs,
	RunE: runE(func(cmd *cobra.Command, args []string) error {
		if AV == nil {
			return fmt.Errorf("app not initialized")
		}
		if gcOpts.Workers == 0 {
			gcOpts.Workers = viper.GetInt("gc.workers")
		}
		started := time.Now()
		report, err := AV.Collector.Run(cmd.Context(), gcOpts)
		AV.RecordRun(cmd.Context(), "gc", started, report, err)
		if err != nil {
			return err
		}
		return printGCReport(report, cmd.OutOrStdout())
	}),
}

func init() {
	gcCmd.Flags().BoolVar(&gcOpts.DryRun, "dry-run", false, "Only report what would be deleted")
	gcCmd.Flags().IntVar(&gcOpts.Workers, "workers", 0, "Number of concurrent workers (default: 2 x CPUs)")
	rootCmd.AddCommand(gcCmd)
}

func printGCReport(r *gc.Report, w io.Writer) error {
	verb := "DELETED"
	if r.DryRun {
		verb = "WOULD DELETE"
	}
	tw := tabwriter.NewWriter(w, 0, 0, 3, ' ', 0)
	fmt.Fprintf(tw, "TYPE\tSCANNED\tREACHABLE\t%s\n", verb)
	for _, row := range []struct {
		name string
		s    gc.TypeStats
	}{{"BLOB", r.Blobs}, {"LIST", r.Lists}, {"TREE", r.Trees}} {
		n := row.s.Deleted
		if r.DryRun {
			n = row.s.Scanned - row.s.Reachable
		}
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\n", row.name, row.s.Scanned, row.s.Reachable, n)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(w, "entries: %d, dangling links: %d, took %s\n", r.Entries, r.Dangling, r.Duration.Round(time.Millisecond))
	return nil
}
