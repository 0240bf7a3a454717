package main

import (
	"os"

	"github.com/DRSN-tech/image-search/internal/app"
	config "github.com/DRSN-tech/image-search/internal/cfg"
	"github.com/DRSN-tech/image-search/pkg/logger"
)

// Сервер поиска похожих товаров по изображению.
func main() {
	log := logger.NewSlogLogger()

	cfg, err := config.Load(log)
	if err != nil {
		log.Errorf(err, "failed to load config")
		os.Exit(1)
	}
	log.Infof("image search: catalog=%s media=%s encoder=%s device=%s",
		cfg.Catalog.Backend, cfg.Media.Backend, cfg.Encoder.Backend, cfg.Encoder.Device)

	application, err := app.NewApp(cfg, log)
	if err != nil {
		log.Errorf(err, "failed to initialize app")
		os.Exit(1)
	}

	if err := application.Run(); err != nil {
		log.Errorf(err, "image search server stopped with error")
		os.Exit(1)
	}
}
