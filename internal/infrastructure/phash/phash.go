package phash

import (
	"context"
	"fmt"
	"image"

	"github.com/DRSN-tech/image-search/internal/domain"
	"github.com/DRSN-tech/image-search/internal/usecase"
	"github.com/DRSN-tech/image-search/pkg/e"
	"github.com/DRSN-tech/image-search/pkg/logger"
	"github.com/corona10/goimagehash"
	"github.com/jimlawless/whereami"
)

type imageFetcher interface {
	Fetch(ctx context.Context, ref string) (image.Image, error)
	FetchMany(ctx context.Context, refs []string) []usecase.FetchResult
}

// Hasher считает 64-битный перцептивный DCT-хэш изображений.
type Hasher struct {
	fetcher imageFetcher
	logger  logger.Logger
}

func NewHasher(fetcher imageFetcher, logger logger.Logger) *Hasher {
	return &Hasher{fetcher: fetcher, logger: logger}
}

// FromImage возвращает отпечаток уже декодированного изображения.
func (h *Hasher) FromImage(img image.Image) (domain.Fingerprint, error) {
	hash, err := goimagehash.PerceptionHash(img)
	if err != nil {
		return "", e.Wrap(whereami.WhereAmI(), err)
	}

	return domain.Fingerprint(fmt.Sprintf("%016x", hash.GetHash())), nil
}

// PHash загружает изображение по ссылке и возвращает его отпечаток.
// Любая ошибка даёт ok == false.
func (h *Hasher) PHash(ctx context.Context, ref string) (domain.Fingerprint, bool) {
	img, err := h.fetcher.Fetch(ctx, ref)
	if err != nil {
		h.logger.Debugf("phash: cannot fetch %s: %v", ref, err)
		return "", false
	}

	fp, err := h.FromImage(img)
	if err != nil {
		h.logger.Debugf("phash: cannot hash %s: %v", ref, err)
		return "", false
	}

	return fp, true
}

// PHashMany считает отпечатки параллельно. Для неудачных ссылок отпечаток пустой.
func (h *Hasher) PHashMany(ctx context.Context, refs []string) []domain.Fingerprint {
	fps := make([]domain.Fingerprint, len(refs))
	for i, res := range h.fetcher.FetchMany(ctx, refs) {
		if res.Err != nil {
			h.logger.Debugf("phash: cannot fetch %s: %v", res.Ref, res.Err)
			continue
		}

		fp, err := h.FromImage(res.Image)
		if err != nil {
			h.logger.Debugf("phash: cannot hash %s: %v", res.Ref, err)
			continue
		}
		fps[i] = fp
	}

	return fps
}
