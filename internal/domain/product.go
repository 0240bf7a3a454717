package domain

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// ProductRecord — единственная форма товара, которую видят поиск и индексатор.
// ID служит стабильным ключом связи с индексом.
type ProductRecord struct {
	ID       int64          `json:"id"`
	Name     string         `json:"name"`
	Price    string         `json:"price"`
	IsActive bool           `json:"is_active"`
	ImageRef string         `json:"image_ref"`
	Category *Category      `json:"category,omitempty"`
	Extra    map[string]any `json:"extra,omitempty"`
}

// HasImage сообщает, есть ли у товара пригодная ссылка на изображение.
func (p ProductRecord) HasImage() bool {
	return p.ImageRef != ""
}

// RawProduct описывает товар в том виде, в каком его отдаёт источник каталога.
// ID может быть любого числового типа или строкой.
type RawProduct struct {
	ID        any            `json:"id"`
	Name      string         `json:"name"`
	Price     any            `json:"price"`
	IsActive  bool           `json:"is_active"`
	ImageURL  string         `json:"image_url,omitempty"`
	ImageFile string         `json:"image,omitempty"`
	Gallery   []string       `json:"gallery,omitempty"`
	Category  *Category      `json:"category,omitempty"`
	Extra     map[string]any `json:"extra,omitempty"`
}

// NormalizeProduct приводит запись источника к ProductRecord.
// Возвращает false, если идентификатор не приводится к int64.
func NormalizeProduct(raw RawProduct, mediaURL string) (ProductRecord, bool) {
	id, ok := CoerceID(raw.ID)
	if !ok {
		return ProductRecord{}, false
	}

	return ProductRecord{
		ID:       id,
		Name:     raw.Name,
		Price:    NormalizePrice(raw.Price),
		IsActive: raw.IsActive,
		ImageRef: resolveImageRef(raw, mediaURL),
		Category: raw.Category,
		Extra:    raw.Extra,
	}, true
}

// resolveImageRef: явный URL, затем сохранённый файл, затем первое изображение галереи.
// Берётся первое непустое значение; если это заглушка, изображения нет.
func resolveImageRef(raw RawProduct, mediaURL string) string {
	candidates := make([]string, 0, 3)
	candidates = append(candidates, raw.ImageURL)
	if raw.ImageFile != "" {
		candidates = append(candidates, joinMediaURL(mediaURL, raw.ImageFile))
	}
	if len(raw.Gallery) > 0 {
		candidates = append(candidates, raw.Gallery[0])
	}

	for _, c := range candidates {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		if IsPlaceholder(c) {
			return ""
		}
		return c
	}

	return ""
}

func joinMediaURL(mediaURL, file string) string {
	if strings.HasPrefix(file, "http://") || strings.HasPrefix(file, "https://") || strings.HasPrefix(file, "/") {
		return file
	}
	if mediaURL == "" {
		return file
	}

	return strings.TrimRight(mediaURL, "/") + "/" + strings.TrimLeft(file, "/")
}

// NormalizePrice возвращает цену с двумя знаками после запятой.
// Нераспознанное значение возвращается как есть.
func NormalizePrice(v any) string {
	var (
		d   decimal.Decimal
		err error
	)

	switch p := v.(type) {
	case nil:
		return ""
	case string:
		if p == "" {
			return ""
		}
		d, err = decimal.NewFromString(p)
		if err != nil {
			return p
		}
	case json.Number:
		d, err = decimal.NewFromString(p.String())
		if err != nil {
			return p.String()
		}
	case float64:
		d = decimal.NewFromFloat(p)
	case float32:
		d = decimal.NewFromFloat32(p)
	case int:
		d = decimal.NewFromInt(int64(p))
	case int64:
		d = decimal.NewFromInt(p)
	case decimal.Decimal:
		d = p
	default:
		return ""
	}

	return d.StringFixed(2)
}

// CoerceID приводит идентификатор произвольного типа к int64.
func CoerceID(v any) (int64, bool) {
	switch id := v.(type) {
	case int:
		return int64(id), true
	case int8:
		return int64(id), true
	case int16:
		return int64(id), true
	case int32:
		return int64(id), true
	case int64:
		return id, true
	case uint:
		return uintToID(uint64(id))
	case uint8:
		return int64(id), true
	case uint16:
		return int64(id), true
	case uint32:
		return int64(id), true
	case uint64:
		return uintToID(id)
	case float32:
		return floatToID(float64(id))
	case float64:
		return floatToID(id)
	case json.Number:
		if n, err := id.Int64(); err == nil {
			return n, true
		}
		f, err := id.Float64()
		if err != nil {
			return 0, false
		}
		return floatToID(f)
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(id), 10, 64)
		if err != nil {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}

func uintToID(v uint64) (int64, bool) {
	if v > math.MaxInt64 {
		return 0, false
	}

	return int64(v), true
}

func floatToID(f float64) (int64, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, false
	}
	if f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, false
	}

	return int64(f), true
}
