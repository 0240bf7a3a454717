// Package testutil содержит синтетические изображения и детерминированный энкодер для тестов.
package testutil

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"math/rand"
	"os"
	"path/filepath"

	"github.com/DRSN-tech/image-search/internal/domain"
)

var (
	Red    = color.NRGBA{R: 230, G: 20, B: 20, A: 255}
	Green  = color.NRGBA{R: 20, G: 200, B: 40, A: 255}
	Blue   = color.NRGBA{R: 20, G: 40, B: 220, A: 255}
	White  = color.NRGBA{R: 255, G: 255, B: 255, A: 255}
	Black  = color.NRGBA{A: 255}
	Yellow = color.NRGBA{R: 240, G: 220, B: 30, A: 255}
)

// Solid возвращает изображение w×h одного цвета.
func Solid(c color.NRGBA, w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, c)
		}
	}

	return img
}

// IsColor сообщает, что центральный пиксель img имеет цвет c.
func IsColor(img image.Image, c color.NRGBA) bool {
	b := img.Bounds()
	r1, g1, b1, _ := img.At(b.Min.X+b.Dx()/2, b.Min.Y+b.Dy()/2).RGBA()
	r2, g2, b2, _ := c.RGBA()

	return r1 == r2 && g1 == g2 && b1 == b2
}

// Checker возвращает шахматную доску с клеткой cell пикселей.
func Checker(a, b color.NRGBA, cell, w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if (x/cell+y/cell)%2 == 0 {
				img.SetNRGBA(x, y, a)
			} else {
				img.SetNRGBA(x, y, b)
			}
		}
	}

	return img
}

// HalfSplit рисует левую половину цветом a, правую цветом b.
func HalfSplit(a, b color.NRGBA, w, h int) *image.NRGBA {
	img := Solid(a, w, h)
	for y := 0; y < h; y++ {
		for x := w / 2; x < w; x++ {
			img.SetNRGBA(x, y, b)
		}
	}

	return img
}

func PNG(img image.Image) []byte {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		panic(err)
	}

	return buf.Bytes()
}

func JPEG(img image.Image) []byte {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 95}); err != nil {
		panic(err)
	}

	return buf.Bytes()
}

// WriteFile записывает data в dir/name, создавая каталоги.
func WriteFile(dir, name string, data []byte) string {
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		panic(err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		panic(err)
	}

	return path
}

// UnitVector возвращает воспроизводимый случайный единичный вектор.
func UnitVector(seed int64) domain.Vector {
	r := rand.New(rand.NewSource(seed))

	v := make(domain.Vector, domain.Dim)
	for i := range v {
		v[i] = float32(r.NormFloat64())
	}
	n, err := v.Normalize()
	if err != nil {
		panic(err)
	}

	return n
}

// Entries строит записи индекса с id и векторами UnitVector(id).
func Entries(ids ...int64) []domain.IndexEntry {
	entries := make([]domain.IndexEntry, len(ids))
	for i, id := range ids {
		entries[i] = domain.IndexEntry{ID: id, Vector: UnitVector(id)}
	}

	return entries
}
