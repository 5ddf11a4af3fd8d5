package commands

import (
	"fmt"

	"archvault/pkg/core"
	"archvault/pkg/exporter"
	"archvault/pkg/types"

	"github.com/spf13/cobra"
)

var catRaw bool

var catCmd = &cobra.Command{
	Use:   "cat TYPE HASH",
	Short: "Show an object (HASH may be an unambiguous prefix)",
	Long: `Show an object by type and hash.

TYPE is one of blob, list, tree. With --raw the file content
behind a BLOB or LIST is written to stdout instead.`,
	Args: cobra.ExactArgs(2),
	RunE: runE(func(cmd *cobra.Command, args []string) error {
		if AV == nil {
			return fmt.Errorf("app not initialized")
		}
		ctx := cmd.Context()

		t, err := types.ParseObjectType(args[0])
		if err != nil {
			return err
		}
		h, err := AV.Engine.ExpandHash(ctx, t, args[1])
		if err != nil {
			return err
		}
		link := core.NewLink(h, t, 0)

		if catRaw {
			return AV.Exporter.WriteStream(ctx, link, cmd.OutOrStdout())
		}
		obj, err := AV.Engine.Read(ctx, link)
		if err != nil {
			return err
		}
		return exporter.PrintObject(obj, cmd.OutOrStdout())
	}),
}

func init() {
	catCmd.Flags().BoolVar(&catRaw, "raw", false, "Write file content instead of the object summary")
	rootCmd.AddCommand(catCmd)
}
