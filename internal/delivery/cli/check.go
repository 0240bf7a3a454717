package cli

import (
	"github.com/spf13/cobra"
)

func (c *commander) newCheckCmd() *cobra.Command {
	var fix bool

	cmd := &cobra.Command{
		Use:   "check-image-index",
		Short: "Compare the image index with the active catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withServices(cmd.Context(), func(s *Services) error {
				report, err := s.Consistency.Check(cmd.Context(), fix)
				if report != nil {
					if printErr := printJSON(cmd.OutOrStdout(), report); printErr != nil {
						return printErr
					}
					if report.NeedsRepair && !fix {
						c.logger.Warnf("index is out of sync with the catalog, run with --fix to rebuild")
					}
				}
				return err
			})
		},
	}

	cmd.Flags().BoolVar(&fix, "fix", false, "Rebuild the index when drift or invariant violations are found")

	return cmd
}
