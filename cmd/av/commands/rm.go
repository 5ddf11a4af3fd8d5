package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var rmCmd = &cobra.Command{
	Use:   "rm ENTRY...",
	Short: "Remove entries (objects are reclaimed by the next gc)",
	Args:  cobra.MinimumNArgs(1),
	RunE: runE(func(cmd *cobra.Command, args []string) error {
		if AV == nil {
			return fmt.Errorf("app not initialized")
		}
		for _, name := range args {
			if err := AV.Engine.RemoveEntry(cmd.Context(), name); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", name)
		}
		return nil
	}),
}

func init() {
	rootCmd.AddCommand(rmCmd)
}
