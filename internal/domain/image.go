package domain

import (
	"path"
	"strings"
)

// PlaceholderImage — имя файла-заглушки, означающей отсутствие изображения.
const PlaceholderImage = "no-image.jpg"

type ImageRefKind int

const (
	ImageRefNone     ImageRefKind = iota
	ImageRefRemote                // http(s)://...
	ImageRefAbsolute              // путь от корня сервера
	ImageRefRelative              // путь относительно медиа-хранилища
)

func (k ImageRefKind) String() string {
	switch k {
	case ImageRefRemote:
		return "remote"
	case ImageRefAbsolute:
		return "absolute"
	case ImageRefRelative:
		return "relative"
	default:
		return "none"
	}
}

// ImageRef описывает ссылку на изображение товара
type ImageRef struct {
	Raw  string
	Kind ImageRefKind
}

func ParseImageRef(raw string) ImageRef {
	raw = strings.TrimSpace(raw)
	switch {
	case raw == "" || IsPlaceholder(raw):
		return ImageRef{Raw: raw, Kind: ImageRefNone}
	case strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://"):
		return ImageRef{Raw: raw, Kind: ImageRefRemote}
	case strings.HasPrefix(raw, "/"):
		return ImageRef{Raw: raw, Kind: ImageRefAbsolute}
	default:
		return ImageRef{Raw: raw, Kind: ImageRefRelative}
	}
}

// IsPlaceholder сообщает, указывает ли ссылка на заглушку no-image.jpg.
func IsPlaceholder(raw string) bool {
	if i := strings.IndexAny(raw, "?#"); i >= 0 {
		raw = raw[:i]
	}

	return path.Base(raw) == PlaceholderImage
}
