package infrastructure

import (
	"mime"

	"github.com/DRSN-tech/image-search/pkg/e"
)

// ImageExtension возвращает расширение файла для MIME-типа изображения,
// который умеет декодировать fetcher. Параметры типа (charset и т.п.) игнорируются.
func ImageExtension(contentType string) (string, error) {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return "", e.Wrap(contentType, e.ErrUnsupportedMediaType)
	}

	switch mediaType {
	case "image/jpeg", "image/jpg":
		return "jpg", nil
	case "image/png":
		return "png", nil
	case "image/webp":
		return "webp", nil
	case "image/gif":
		return "gif", nil
	case "image/bmp", "image/x-ms-bmp":
		return "bmp", nil
	default:
		return "", e.Wrap(mediaType, e.ErrUnsupportedMediaType)
	}
}
