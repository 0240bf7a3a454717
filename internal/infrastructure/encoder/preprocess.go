package encoder

import (
	"image"

	"golang.org/x/image/draw"
)

// Параметры нормализации CLIP.
var (
	clipMean = [3]float32{0.48145466, 0.4578275, 0.40821073}
	clipStd  = [3]float32{0.26862954, 0.26130258, 0.27577711}
)

// Preprocess приводит изображение к входу CLIP: бикубическое масштабирование
// меньшей стороны до side, центральный кроп side×side, нормализация по каналам.
// Результат пишется в dst в раскладке CHW, len(dst) == 3*side*side.
func Preprocess(img image.Image, side int, dst []float32) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	short := min(w, h)

	crop := image.Rect(
		b.Min.X+(w-short)/2,
		b.Min.Y+(h-short)/2,
		b.Min.X+(w-short)/2+short,
		b.Min.Y+(h-short)/2+short,
	)

	scaled := image.NewRGBA(image.Rect(0, 0, side, side))
	draw.CatmullRom.Scale(scaled, scaled.Bounds(), img, crop, draw.Src, nil)

	plane := side * side
	for y := 0; y < side; y++ {
		for x := 0; x < side; x++ {
			off := scaled.PixOffset(x, y)
			i := y*side + x
			for c := 0; c < 3; c++ {
				v := float32(scaled.Pix[off+c]) / 255
				dst[c*plane+i] = (v - clipMean[c]) / clipStd[c]
			}
		}
	}
}
