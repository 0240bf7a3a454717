package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/DRSN-tech/image-search/internal/infrastructure"
	"github.com/DRSN-tech/image-search/pkg/e"
	"github.com/jimlawless/whereami"
)

// sniffLen: сколько байт нужно http.DetectContentType.
const sniffLen = 512

type ErrorResponse struct {
	Error      string `json:"error"`
	Success    bool   `json:"success"`
	StackTrace string `json:"stack_trace,omitempty"`
}

func NewErrorResponse(message string, stackTrace string) *ErrorResponse {
	return &ErrorResponse{
		Error:      message,
		StackTrace: stackTrace,
	}
}

func ToHTTPResponse(err error) (int, string) {
	switch {
	case errors.Is(err, e.ErrExpectedMultipart):
		return http.StatusBadRequest, e.ErrExpectedMultipart.Error()
	case errors.Is(err, e.ErrNoImage):
		return http.StatusBadRequest, e.ErrNoImage.Error()
	case errors.Is(err, e.ErrEmptyUpload):
		return http.StatusBadRequest, e.ErrEmptyUpload.Error()
	case errors.Is(err, e.ErrInvalidImage):
		return http.StatusBadRequest, e.ErrInvalidImage.Error()
	case errors.Is(err, e.ErrUnsupportedMediaType):
		return http.StatusBadRequest, e.ErrUnsupportedMediaType.Error()
	case errors.Is(err, e.ErrFileTooLarge):
		return http.StatusBadRequest, e.ErrFileTooLarge.Error()
	case errors.Is(err, e.ErrInvalidSearchParams):
		return http.StatusBadRequest, e.ErrInvalidSearchParams.Error()
	case errors.Is(err, e.ErrStatusBadRequest):
		return http.StatusBadRequest, e.ErrStatusBadRequest.Error()
	case errors.Is(err, e.ErrEncoderUnavailable):
		return http.StatusInternalServerError, e.ErrEncoderUnavailable.Error()
	case errors.Is(err, e.ErrIndexNotInitialized):
		return http.StatusInternalServerError, e.ErrIndexNotInitialized.Error()
	case errors.Is(err, e.ErrIndexInvariant):
		return http.StatusInternalServerError, e.ErrIndexInvariant.Error()
	default:
		return http.StatusInternalServerError, e.ErrInternalServerError.Error()
	}
}

// WriteError пишет ошибку в формате API. Для 5xx добавляется цепочка ошибки.
func WriteError(w http.ResponseWriter, err error) {
	code, msg := ToHTTPResponse(err)

	var stackTrace string
	if code >= http.StatusInternalServerError {
		stackTrace = err.Error()
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(NewErrorResponse(msg, stackTrace))
}

func WriteSuccess(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func ensureMultipartForm(r *http.Request, maxMemory int64) error {
	if !strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		return e.Wrap(whereami.WhereAmI(), e.ErrExpectedMultipart)
	}

	if err := r.ParseMultipartForm(maxMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return e.Wrap(whereami.WhereAmI(), e.ErrFileTooLarge)
		}
		return e.Wrap(err.Error(), e.ErrStatusBadRequest)
	}

	return nil
}

// sniffImage проверяет тип содержимого по первым байтам и возвращает
// reader, отдающий загрузку целиком. Пустая загрузка пропускается как есть.
func sniffImage(src io.Reader) (io.Reader, error) {
	head := make([]byte, sniffLen)
	n, err := io.ReadFull(src, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}
	head = head[:n]

	if n > 0 {
		if _, err := infrastructure.ImageExtension(http.DetectContentType(head)); err != nil {
			return nil, e.Wrap(whereami.WhereAmI(), err)
		}
	}

	return io.MultiReader(bytes.NewReader(head), src), nil
}

func parseTopK(r *http.Request) (*int, error) {
	raw := strings.TrimSpace(r.FormValue("top_k"))
	if raw == "" {
		return nil, nil
	}

	k, err := strconv.Atoi(raw)
	if err != nil {
		return nil, e.Wrap("top_k: "+raw, e.ErrInvalidSearchParams)
	}

	return &k, nil
}

func parseThreshold(r *http.Request) (*float32, error) {
	raw := strings.TrimSpace(r.FormValue("threshold"))
	if raw == "" {
		return nil, nil
	}

	t, err := strconv.ParseFloat(raw, 32)
	if err != nil {
		return nil, e.Wrap("threshold: "+raw, e.ErrInvalidSearchParams)
	}
	threshold := float32(t)

	return &threshold, nil
}
