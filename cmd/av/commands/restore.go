package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var restoreCmd = &cobra.Command{
	Use:   "restore ENTRY [DEST]",
	Short: "Restore an archived entry into DEST (default: current directory)",
	Args:  cobra.RangeArgs(1, 2),
	RunE: runE(func(cmd *cobra.Command, args []string) error {
		if AV == nil {
			return fmt.Errorf("app not initialized")
		}
		dest := "."
		if len(args) == 2 {
			dest = args[1]
		}

		entry, err := AV.Engine.GetEntry(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		target, err := AV.Exporter.Restore(cmd.Context(), entry, dest)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Restored %s to %s\n", entry.Name, target)
		return nil
	}),
}

func init() {
	rootCmd.AddCommand(restoreCmd)
}
