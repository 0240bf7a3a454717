package app

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	config "github.com/DRSN-tech/image-search/internal/cfg"
	v1Http "github.com/DRSN-tech/image-search/internal/delivery/v1/http"
	"github.com/DRSN-tech/image-search/internal/infrastructure/kafka"
	"github.com/DRSN-tech/image-search/pkg/e"
	"github.com/DRSN-tech/image-search/pkg/logger"
	"github.com/go-chi/chi/v5"
	"github.com/jimlawless/whereami"
)

// App — HTTP-сервер поиска и необязательный слушатель событий индекса.
type App struct {
	container *Container
	httpSrv   *v1Http.Server
	listener  *kafka.ReloadListener
	logger    logger.Logger
}

func NewApp(cfg *config.Config, logger logger.Logger) (*App, error) {
	initCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	container, err := NewContainer(initCtx, cfg, logger)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	r := chi.NewRouter()
	router := v1Http.NewRouter(r, logger)
	router.Init(container.Search, cfg.Search.MaxUploadBytes, cfg.Http.SwaggerURL)

	return &App{
		container: container,
		httpSrv:   v1Http.NewServer(r, cfg.Http),
		listener:  container.NewReloadListener(),
		logger:    logger,
	}, nil
}

// Run блокируется до сигнала остановки или ошибки HTTP-сервера.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Прогрев энкодера: модель грузится один раз, первый запрос не ждёт загрузки
	go func() {
		if err := a.container.Encoder.EnsureReady(ctx); err != nil {
			a.logger.Errorf(err, "image encoder is unavailable, search requests will fail")
			return
		}
		a.logger.Infof("image encoder ready on %s", a.container.Encoder.Device())
	}()

	if a.listener != nil {
		a.listener.Start(ctx)
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Infof("HTTP server started on port %s", a.container.Cfg.Http.Port)
		if err := a.httpSrv.Run(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Errorf(err, "HTTP server failed")
			errCh <- err
		}
	}()

	// === Ожидание сигнала или ошибки ===
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	var appErr error
	select {
	case appErr = <-errCh:
		a.logger.Errorf(appErr, "HTTP server fatal error")
	case <-shutdown:
		a.logger.Infof("Received shutdown signal, stopping gracefully...")
	}

	// === Graceful shutdown ===
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := a.httpSrv.Stop(shutdownCtx); err != nil {
		a.logger.Errorf(err, "HTTP server shutdown error")
	} else {
		a.logger.Infof("HTTP server stopped")
	}

	cancel()
	if a.listener != nil {
		if err := a.listener.Stop(); err != nil {
			a.logger.Warnf("index listener stop error: %v", err)
		}
	}

	if err := a.container.Close(shutdownCtx); err != nil {
		a.logger.Warnf("%v", err)
	}

	a.logger.Infof("Application shutdown complete")

	return appErr
}
