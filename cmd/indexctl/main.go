package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/DRSN-tech/image-search/internal/app"
	config "github.com/DRSN-tech/image-search/internal/cfg"
	"github.com/DRSN-tech/image-search/internal/delivery/cli"
	"github.com/DRSN-tech/image-search/pkg/logger"
)

func main() {
	log := logger.NewSlogLogger()

	cfg, err := config.Load(log)
	if err != nil {
		log.Errorf(err, "failed to load config")
		os.Exit(cli.ExitError)
	}

	factory := func(ctx context.Context, device string) (*cli.Services, func(context.Context) error, error) {
		if device != "" {
			cfg.Encoder.Device = device
		}

		container, err := app.NewContainer(ctx, cfg, log)
		if err != nil {
			return nil, nil, err
		}

		return &cli.Services{
			Index:       container.Indexer,
			Consistency: container.Consistency,
			Dedup:       container.Dedup,
		}, container.Close, nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	code := cli.ExitCode(cli.NewRootCmd(factory, log).ExecuteContext(ctx), log)
	stop()
	os.Exit(code)
}
