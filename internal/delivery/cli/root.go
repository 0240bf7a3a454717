// Package cli содержит команды обслуживания индекса изображений.
package cli

import (
	"context"
	"encoding/json"
	"io"

	"github.com/DRSN-tech/image-search/internal/usecase"
	"github.com/DRSN-tech/image-search/pkg/logger"
	"github.com/spf13/cobra"
)

const rootLongDesc string = `indexctl maintains the visual product search index.

Commands:
  indexctl build-image-index          Build the index from active catalog products
  indexctl rebuild-image-index        Rebuild the index unconditionally
  indexctl check-image-index [--fix]  Compare the index with the catalog
  indexctl update-image-index         Re-encode one product
  indexctl remove-from-image-index    Drop one product from the index
  indexctl phash                      Perceptual hash and duplicate scan`

// Services — сценарии, которые вызывают команды.
type Services struct {
	Index       usecase.IndexUC
	Consistency usecase.ConsistencyUC
	Dedup       usecase.DedupUC
}

// Factory собирает сервисы для устройства device (пустое значение берётся из конфигурации).
// Возвращаемая функция освобождает ресурсы.
type Factory func(ctx context.Context, device string) (*Services, func(ctx context.Context) error, error)

type commander struct {
	factory Factory
	logger  logger.Logger
	device  string
}

func NewRootCmd(factory Factory, logger logger.Logger) *cobra.Command {
	c := &commander{factory: factory, logger: logger}

	cmd := &cobra.Command{
		Use:           "indexctl",
		Short:         "Visual product search index maintenance",
		Long:          rootLongDesc,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(
		c.newBuildCmd(),
		c.newRebuildCmd(),
		c.newCheckCmd(),
		c.newUpdateCmd(),
		c.newRemoveCmd(),
		c.newPHashCmd(),
	)

	return cmd
}

// withServices собирает сервисы, выполняет fn и освобождает ресурсы.
func (c *commander) withServices(ctx context.Context, fn func(s *Services) error) error {
	services, release, err := c.factory(ctx, c.device)
	if err != nil {
		return err
	}
	defer func() {
		if err := release(context.Background()); err != nil {
			c.logger.Warnf("%v", err)
		}
	}()

	return fn(services)
}

func addDeviceFlag(cmd *cobra.Command, device *string) {
	cmd.Flags().StringVar(device, "device", "", "Encoder device: cpu, cuda or mps (default from ENCODER_DEVICE)")
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
