package domain

import (
	"fmt"
	"math"
	"slices"

	"github.com/DRSN-tech/image-search/pkg/e"
)

const (
	// Dim — размерность эмбеддинга энкодера.
	Dim = 512
	// UnitTolerance — допуск на норму единичного вектора.
	UnitTolerance = 1e-5
)

// Vector — L2-нормированный эмбеддинг изображения.
type Vector []float32

// Norm возвращает L2-норму вектора.
func (v Vector) Norm() float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}

	return math.Sqrt(sum)
}

// Normalize делит вектор на его норму. Нулевой вектор даёт ошибку.
func (v Vector) Normalize() (Vector, error) {
	n := v.Norm()
	if n == 0 || math.IsNaN(n) || math.IsInf(n, 0) {
		return nil, e.ErrVectorEmbeddingEmpty
	}

	out := make(Vector, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / n)
	}

	return out, nil
}

func (v Vector) IsUnit() bool {
	return math.Abs(v.Norm()-1) <= UnitTolerance
}

func (v Vector) Dot(o Vector) float32 {
	var sum float32
	for i := range v {
		sum += v[i] * o[i]
	}

	return sum
}

// Validate проверяет размерность и единичную норму.
func (v Vector) Validate() error {
	if len(v) != Dim {
		return e.ErrDimensionMismatch
	}
	if !v.IsUnit() {
		return e.ErrNotUnitVector
	}

	return nil
}

// IndexEntry — строка индекса: товар и его вектор.
type IndexEntry struct {
	ID     int64
	Vector Vector
}

// SearchHit — результат поиска по индексу.
// Score содержит нормированное сходство (s+1)/2 в диапазоне [0, 1].
type SearchHit struct {
	ProductID int64
	Score     float32
	Rank      int
}

// RowErrors описывает изображения пачки, которые не удалось закодировать.
// Ключ равен номеру изображения в пачке, остальные строки пачки годны.
type RowErrors map[int]error

func (r RowErrors) Error() string {
	return fmt.Sprintf("%d of the batch images could not be encoded", len(r))
}

func (r RowErrors) Unwrap() []error {
	rows := make([]int, 0, len(r))
	for i := range r {
		rows = append(rows, i)
	}
	slices.Sort(rows)

	errs := make([]error, 0, len(rows))
	for _, i := range rows {
		errs = append(errs, r[i])
	}

	return errs
}
