package converter

import "time"

// ProductModel представляет строку каталога products с присоединённой категорией.
type ProductModel struct {
	ID           int64    `db:"id"`
	Name         string   `db:"name"`
	Price        *string  `db:"price"`
	IsActive     bool     `db:"is_active"`
	ImageURL     *string  `db:"image_url"`
	Image        *string  `db:"image"`
	Gallery      []string `db:"gallery"`
	CategoryID   *int64   `db:"category_id"`
	CategoryName *string  `db:"category_name"`
	CategorySlug *string  `db:"category_slug"`
	Extra        []byte   `db:"extra"`
}

// FingerprintModel представляет запись таблицы product_image_fingerprints.
type FingerprintModel struct {
	ProductID   int64     `db:"product_id"`
	Fingerprint string    `db:"fingerprint"`
	ImageRef    string    `db:"image_ref"`
	UpdatedAt   time.Time `db:"updated_at"`
}

// IndexRunModel представляет запись таблицы image_index_runs.
type IndexRunModel struct {
	ID         string    `db:"id"`
	Operation  string    `db:"operation"`
	Device     string    `db:"device"`
	Indexed    int       `db:"indexed"`
	Skipped    int       `db:"skipped"`
	Failed     int       `db:"failed"`
	IndexSize  int       `db:"index_size"`
	StartedAt  time.Time `db:"started_at"`
	FinishedAt time.Time `db:"finished_at"`
}
