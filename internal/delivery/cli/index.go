package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/DRSN-tech/image-search/internal/usecase"
	"github.com/spf13/cobra"
)

func (c *commander) newBuildCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "build-image-index",
		Short: "Build the image index from active catalog products",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withServices(cmd.Context(), func(s *Services) error {
				res, err := s.Index.Build(cmd.Context(), usecase.BuildReq{Force: force})
				if err != nil {
					return err
				}
				printBuildRes(cmd.OutOrStdout(), res)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Rebuild even if a non-empty index exists")
	addDeviceFlag(cmd, &c.device)

	return cmd
}

func (c *commander) newRebuildCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rebuild-image-index",
		Short: "Rebuild the image index unconditionally",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withServices(cmd.Context(), func(s *Services) error {
				res, err := s.Index.Rebuild(cmd.Context())
				if err != nil {
					return err
				}
				printBuildRes(cmd.OutOrStdout(), res)
				return nil
			})
		},
	}

	addDeviceFlag(cmd, &c.device)

	return cmd
}

func (c *commander) newUpdateCmd() *cobra.Command {
	var productID int64

	cmd := &cobra.Command{
		Use:   "update-image-index",
		Short: "Re-encode one product and replace its vector",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withServices(cmd.Context(), func(s *Services) error {
				res, err := s.Index.UpdateProduct(cmd.Context(), productID)
				if err != nil {
					return err
				}
				printBuildRes(cmd.OutOrStdout(), res)
				return nil
			})
		},
	}

	cmd.Flags().Int64Var(&productID, "product-id", 0, "Catalog product id")
	_ = cmd.MarkFlagRequired("product-id")
	addDeviceFlag(cmd, &c.device)

	return cmd
}

func (c *commander) newRemoveCmd() *cobra.Command {
	var productID int64

	cmd := &cobra.Command{
		Use:   "remove-from-image-index",
		Short: "Remove one product from the image index",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withServices(cmd.Context(), func(s *Services) error {
				return c.remove(cmd.Context(), cmd.OutOrStdout(), s, productID)
			})
		},
	}

	cmd.Flags().Int64Var(&productID, "product-id", 0, "Catalog product id")
	_ = cmd.MarkFlagRequired("product-id")

	return cmd
}

func (c *commander) remove(ctx context.Context, w io.Writer, s *Services, id int64) error {
	res, err := s.Index.RemoveProduct(ctx, id)
	if err != nil {
		return err
	}

	if res.NoOp {
		c.logger.Warnf("product %d is not in the index", id)
	}
	printBuildRes(w, res)

	return nil
}

func printBuildRes(w io.Writer, res *usecase.BuildRes) {
	if res.NoOp {
		fmt.Fprintf(w, "%s: nothing to do, index size %d\n", res.Operation, res.IndexSize)
		return
	}

	fmt.Fprintf(w, "%s: indexed=%d skipped=%d failed=%d size=%d\n",
		res.Operation, res.Indexed, res.Skipped, res.Failed, res.IndexSize)
	if res.Snapshot != "" {
		fmt.Fprintf(w, "snapshot: %s\n", res.Snapshot)
	}
}
