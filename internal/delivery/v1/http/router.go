package http

import (
	_ "github.com/DRSN-tech/image-search/docs" // Импорт сгенерированных файлов
	"github.com/DRSN-tech/image-search/internal/usecase"
	"github.com/DRSN-tech/image-search/pkg/logger"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	httpSwagger "github.com/swaggo/http-swagger/v2"
)

type Router struct {
	router *chi.Mux
	logger logger.Logger
}

func NewRouter(router *chi.Mux, logger logger.Logger) *Router {
	return &Router{router: router, logger: logger}
}

func (r *Router) Init(searchUC usecase.SearchUC, maxUploadBytes int64, swaggerURL string) {
	r.router.Use(middleware.RequestID, middleware.Recoverer)

	r.router.Get("/healthz", healthz)
	r.router.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL(swaggerURL), // ссылка на JSON
	))

	r.router.Route("/api/v1", func(v1 chi.Router) {
		searchHandler := NewSearchHandler(searchUC, maxUploadBytes, r.logger)
		registerSearchRoutes(v1, searchHandler)
	})
}

func registerSearchRoutes(router chi.Router, searchHandler *SearchHandler) {
	router.Route("/search", func(sr chi.Router) {
		sr.Post("/image", searchHandler.searchByImage)
		sr.Get("/index/stats", searchHandler.indexStats)
	})
}
