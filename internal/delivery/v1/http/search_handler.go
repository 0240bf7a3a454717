package http

import (
	"errors"
	"net/http"

	"github.com/DRSN-tech/image-search/internal/usecase"
	"github.com/DRSN-tech/image-search/pkg/e"
	"github.com/DRSN-tech/image-search/pkg/logger"
	"github.com/jimlawless/whereami"
)

// multipartOverhead — запас на заголовки и текстовые поля формы сверх размера изображения.
const multipartOverhead = 1 << 20

type SearchResponse struct {
	Success   bool                 `json:"success"`
	Products  []usecase.ProductHit `json:"products"`
	Message   string               `json:"message,omitempty"`
	DebugInfo *usecase.DebugInfo   `json:"debug_info,omitempty"`
}

type StatsResponse struct {
	Success bool               `json:"success"`
	Index   usecase.IndexStats `json:"index"`
}

type SearchHandler struct {
	searchUsecase  usecase.SearchUC
	maxUploadBytes int64
	logger         logger.Logger
}

func NewSearchHandler(searchUsecase usecase.SearchUC, maxUploadBytes int64, logger logger.Logger) *SearchHandler {
	return &SearchHandler{searchUsecase: searchUsecase, maxUploadBytes: maxUploadBytes, logger: logger}
}

// searchByImage
//
//	@Summary		Поиск похожих товаров по изображению
//	@Description	Возвращает активные товары, визуально похожие на загруженное изображение
//	@Tags			search
//	@Accept			multipart/form-data
//	@Produce		json
//	@Param			image		formData	file	true	"Изображение для поиска"
//	@Param			top_k		formData	int		false	"Количество результатов (1..100)"
//	@Param			threshold	formData	number	false	"Порог сходства [0, 1]"
//	@Success		200			{object}	SearchResponse	"Найденные товары"
//	@Failure		400			{object}	ErrorResponse	"Ошибка запроса"
//	@Failure		500			{object}	ErrorResponse	"Индекс или энкодер недоступны"
//	@Router			/search/image [post]
func (h *SearchHandler) searchByImage(w http.ResponseWriter, r *http.Request) {
	const maxMemory = 32 << 20

	if h.maxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes+multipartOverhead)
	}

	if err := ensureMultipartForm(r, maxMemory); err != nil {
		h.logger.Warnf("%d %s: %v", http.StatusBadRequest, e.ErrStatusBadRequest.Error(), err)
		WriteError(w, err)
		return
	}

	file, fh, err := r.FormFile("image")
	if err != nil {
		if !errors.Is(err, http.ErrMissingFile) {
			h.logger.Warnf("cannot read image part: %v", err)
		}
		WriteError(w, e.Wrap(whereami.WhereAmI(), e.ErrNoImage))
		return
	}
	defer file.Close()

	topK, err := parseTopK(r)
	if err != nil {
		WriteError(w, err)
		return
	}
	threshold, err := parseThreshold(r)
	if err != nil {
		WriteError(w, err)
		return
	}

	image, err := sniffImage(file)
	if err != nil {
		h.logger.Warnf("%d %s: %s: %v", http.StatusBadRequest, e.ErrStatusBadRequest.Error(), fh.Filename, err)
		WriteError(w, err)
		return
	}

	res, err := h.searchUsecase.Search(r.Context(), &usecase.SearchReq{
		Image:     image,
		Filename:  fh.Filename,
		TopK:      topK,
		Threshold: threshold,
	})
	if err != nil {
		if code, _ := ToHTTPResponse(err); code >= http.StatusInternalServerError {
			h.logger.Errorf(err, "image search failed")
		} else {
			h.logger.Warnf("%s", err.Error())
		}
		WriteError(w, err)
		return
	}

	WriteSuccess(w, http.StatusOK, SearchResponse{
		Success:   true,
		Products:  res.Products,
		Message:   res.Message,
		DebugInfo: res.DebugInfo,
	})
}

// indexStats
//
//	@Summary	Состояние индекса
//	@Tags		search
//	@Produce	json
//	@Success	200	{object}	StatsResponse
//	@Router		/search/index/stats [get]
func (h *SearchHandler) indexStats(w http.ResponseWriter, r *http.Request) {
	WriteSuccess(w, http.StatusOK, StatsResponse{
		Success: true,
		Index:   h.searchUsecase.Stats(r.Context()),
	})
}

func healthz(w http.ResponseWriter, _ *http.Request) {
	WriteSuccess(w, http.StatusOK, map[string]string{"status": "ok"})
}
