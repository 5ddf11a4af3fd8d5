package commands

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
)

var digestName string

var digestCmd = &cobra.Command{
	Use:   "digest PATH...",
	Short: "Archive files or directories and create an entry for each",
	Args:  cobra.MinimumNArgs(1),
	RunE: runE(func(cmd *cobra.Command, args []string) error {
		if AV == nil {
			return fmt.Errorf("app not initialized")
		}
		if digestName != "" && len(args) > 1 {
			return fmt.Errorf("--name can only be used with a single path")
		}

		out := cmd.OutOrStdout()
		for _, path := range args {
			start := time.Now()

			name := digestName
			if name == "" {
				name = filepath.Base(filepath.Clean(path))
			}
			entry, stats, err := AV.Ingester.DigestAs(cmd.Context(), path, name)
			if err != nil {
				return fmt.Errorf("digest %s: %w", path, err)
			}

			fmt.Fprintf(out, "%s -> %s %s\n", entry.Name, entry.Root.Type, entry.Root.Hash)
			fmt.Fprintf(out, "   files: %d, skipped: %d, chunks: %d (%d new), %s, took %s\n",
				stats.Files, stats.Skipped, stats.Chunks, stats.NewChunks,
				humanBytes(stats.Bytes), time.Since(start).Round(time.Millisecond))
		}
		return nil
	}),
}

func init() {
	digestCmd.Flags().StringVar(&digestName, "name", "", "Entry name (default: base name of PATH)")
	rootCmd.AddCommand(digestCmd)
}

func humanBytes(n int64) string {
	switch {
	case n < 1024:
		return fmt.Sprintf("%dB", n)
	case n < 1024*1024:
		return fmt.Sprintf("%.1fKB", float64(n)/1024)
	default:
		return fmt.Sprintf("%.2fMB", float64(n)/1024/1024)
	}
}
