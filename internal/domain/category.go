package domain

// Category описывает категорию товара в ответах поиска
type Category struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`
}
