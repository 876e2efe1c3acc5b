package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tanq16/rget/internal/output"
	"github.com/tanq16/rget/internal/partfile"
	"github.com/tanq16/rget/internal/state"
)

func newCleanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clean <output>",
		Short: "Remove the part files and saved state of an interrupted download",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target := args[0]
			if strings.HasSuffix(target, state.Suffix) {
				target = state.TargetFor(target)
			}
			removed, err := partfile.Clean(target)
			if err != nil {
				return fmt.Errorf("error cleaning part files: %w", err)
			}
			hadState, err := state.Remove(target)
			if err != nil {
				return err
			}
			if hadState {
				removed++
			}
			if removed == 0 {
				output.PrintInfo(cmd.OutOrStdout(), "Nothing to clean up for "+target)
				return nil
			}
			output.PrintSuccess(cmd.OutOrStdout(), fmt.Sprintf("Removed %d temporary files for %s", removed, target))
			return nil
		},
	}
}
