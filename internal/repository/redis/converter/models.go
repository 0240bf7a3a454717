package converter

// ProductRedisModel — карточка товара в кэше.
type ProductRedisModel struct {
	ID           int64          `json:"id"`
	Name         string         `json:"name"`
	Price        string         `json:"price"`
	IsActive     bool           `json:"is_active"`
	ImageRef     string         `json:"image_ref"`
	CategoryID   int64          `json:"category_id,omitempty"`
	CategoryName string         `json:"category_name,omitempty"`
	CategorySlug string         `json:"category_slug,omitempty"`
	Extra        map[string]any `json:"extra,omitempty"`
}
