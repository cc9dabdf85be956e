package cli

import (
	"fmt"

	"github.com/fmueller/voxnote/internal/platform"
	"github.com/fmueller/voxnote/internal/version"
	"github.com/spf13/cobra"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt := platform.CurrentRuntime()
			fmt.Fprintf(cmd.OutOrStdout(), "voxnote v%s %s/%s\n", version.Resolve(), rt.OS, rt.Arch)
			return nil
		},
	}
}
