package encoder_test

import (
	"github.com/DRSN-tech/image-search/internal/infrastructure/encoder"
	"github.com/DRSN-tech/image-search/internal/testutil"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Preprocess", func() {
	It("normalizes a solid image per channel", func() {
		const side = 8
		dst := make([]float32, 3*side*side)

		encoder.Preprocess(testutil.Solid(testutil.White, 30, 12), side, dst)

		want := []float32{
			(1 - 0.48145466) / 0.26862954,
			(1 - 0.4578275) / 0.26130258,
			(1 - 0.40821073) / 0.27577711,
		}
		for c := 0; c < 3; c++ {
			for i := 0; i < side*side; i++ {
				Expect(dst[c*side*side+i]).To(BeNumerically("~", want[c], 1e-4))
			}
		}
	})

	It("crops a wide image to its center", func() {
		const side = 4
		dst := make([]float32, 3*side*side)

		img := testutil.Solid(testutil.Blue, 30, 10)
		for y := 0; y < 10; y++ {
			for x := 10; x < 20; x++ {
				img.SetNRGBA(x, y, testutil.Red)
			}
		}
		encoder.Preprocess(img, side, dst)

		red := (float32(testutil.Red.R)/255 - 0.48145466) / 0.26862954
		for i := 0; i < side*side; i++ {
			Expect(dst[i]).To(BeNumerically("~", red, 1e-3))
		}
	})
})
