package commands

import (
	"errors"
	"fmt"
	"time"

	"archvault/pkg/gc"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var fsckOpts gc.CheckOptions

// errRepoUnhealthy 表示检查本身完成了，但仓库里仍有问题对象
var errRepoUnhealthy = errors.New("repository has damaged objects")

var fsckCmd = &cobra.Command{
	Use:   "fsck",
	Short: "Re-hash stored objects and report (or delete) corrupt ones",
	Args:  cobra.NoArgs,
	RunE: runE(func(cmd *cobra.Command, args []string) error {
		if AV == nil {
			return fmt.Errorf("app not initialized")
		}
		if fsckOpts.Workers == 0 {
			fsckOpts.Workers = viper.GetInt("gc.workers")
		}
		started := time.Now()
		report, err := AV.Checker.Run(cmd.Context(), fsckOpts)
		AV.RecordRun(cmd.Context(), "fsck", started, report, err)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		for _, l := range report.Corrupt {
			fmt.Fprintf(out, "corrupt     %s %s\n", l.Type, l.Hash)
		}
		for _, l := range report.Unreadable {
			fmt.Fprintf(out, "unreadable  %s %s\n", l.Type, l.Hash)
		}
		fmt.Fprintf(out, "scanned: %d, corrupt: %d, unreadable: %d, deleted: %d, took %s\n",
			report.Scanned, len(report.Corrupt), len(report.Unreadable), report.Deleted,
			report.Duration.Round(time.Millisecond))

		// 删除后只剩无法解密的对象时也算失败
		remaining := len(report.Unreadable)
		if !fsckOpts.Delete {
			remaining += len(report.Corrupt)
		}
		if remaining > 0 {
			return fmt.Errorf("%w: %d object(s)", errRepoUnhealthy, remaining)
		}
		return nil
	}),
}

func init() {
	fsckCmd.Flags().BoolVar(&fsckOpts.Delete, "delete", false, "Delete objects whose content does not match their hash")
	fsckCmd.Flags().BoolVar(&fsckOpts.AllTypes, "all", false, "Check LIST and TREE objects too (default: BLOB only)")
	fsckCmd.Flags().IntVar(&fsckOpts.Workers, "workers", 0, "Number of concurrent workers (default: 2 x CPUs)")
	rootCmd.AddCommand(fsckCmd)
}
