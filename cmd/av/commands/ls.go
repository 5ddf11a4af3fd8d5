package commands

import (
	"fmt"
	"slices"
	"strings"

	"archvault/pkg/core"
	"archvault/pkg/exporter"

	"github.com/spf13/cobra"
)

var lsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List archived entries",
	Args:  cobra.NoArgs,
	RunE: runE(func(cmd *cobra.Command, args []string) error {
		if AV == nil {
			return fmt.Errorf("app not initialized")
		}
		var entries []core.Entry
		for e, err := range AV.Engine.ListEntries(cmd.Context()) {
			if err != nil {
				return err
			}
			entries = append(entries, e)
		}
		slices.SortFunc(entries, func(a, b core.Entry) int {
			return strings.Compare(a.Name, b.Name)
		})
		return exporter.PrintEntries(entries, cmd.OutOrStdout())
	}),
}

func init() {
	rootCmd.AddCommand(lsCmd)
}
