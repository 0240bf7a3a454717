package cli

import (
	"fmt"

	"github.com/DRSN-tech/image-search/internal/domain"
	"github.com/DRSN-tech/image-search/internal/usecase"
	"github.com/spf13/cobra"
)

func (c *commander) newPHashCmd() *cobra.Command {
	var (
		compare   []string
		threshold int
	)

	cmd := &cobra.Command{
		Use:   "phash <ref>",
		Short: "Print the perceptual hash of an image or find its duplicates",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withServices(cmd.Context(), func(s *Services) error {
				if len(compare) == 0 {
					fp, err := s.Dedup.Fingerprint(cmd.Context(), args[0])
					if err != nil {
						return err
					}
					fmt.Fprintln(cmd.OutOrStdout(), fp)
					return nil
				}

				res, err := s.Dedup.FindDuplicates(cmd.Context(), usecase.DuplicatesReq{
					QueryRef:      args[0],
					CandidateRefs: compare,
					Threshold:     threshold,
				})
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), res)
			})
		},
	}

	cmd.Flags().StringSliceVar(&compare, "compare", nil, "Candidate image references")
	cmd.Flags().IntVar(&threshold, "threshold", domain.DefaultDuplicateThreshold, "Maximum Hamming distance for the same image")

	return cmd
}
