package domain_test

import (
	"encoding/json"

	"github.com/DRSN-tech/image-search/internal/domain"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("NormalizeProduct", func() {
	It("prefers the explicit image URL", func() {
		p, ok := domain.NormalizeProduct(domain.RawProduct{
			ID:        int32(7),
			Name:      "Lamp",
			Price:     "12.5",
			IsActive:  true,
			ImageURL:  "https://cdn.example.com/lamp.jpg",
			ImageFile: "products/lamp.jpg",
		}, "/media/")
		Expect(ok).To(BeTrue())
		Expect(p.ID).To(Equal(int64(7)))
		Expect(p.Price).To(Equal("12.50"))
		Expect(p.ImageRef).To(Equal("https://cdn.example.com/lamp.jpg"))
	})

	It("falls back to the stored file under the media URL", func() {
		p, ok := domain.NormalizeProduct(domain.RawProduct{ID: "11", ImageFile: "products/chair.png"}, "/media/")
		Expect(ok).To(BeTrue())
		Expect(p.ImageRef).To(Equal("/media/products/chair.png"))
	})

	It("falls back to the first gallery image", func() {
		p, _ := domain.NormalizeProduct(domain.RawProduct{ID: 3, Gallery: []string{"gallery/a.jpg", "gallery/b.jpg"}}, "/media/")
		Expect(p.ImageRef).To(Equal("gallery/a.jpg"))
	})

	It("treats the placeholder as no image", func() {
		p, _ := domain.NormalizeProduct(domain.RawProduct{ID: 3, ImageURL: "https://x.test/static/no-image.jpg?v=2"}, "/media/")
		Expect(p.ImageRef).To(BeEmpty())
		Expect(p.HasImage()).To(BeFalse())
	})

	It("does not fall through a placeholder to later fields", func() {
		p, _ := domain.NormalizeProduct(domain.RawProduct{
			ID:        3,
			ImageURL:  "/static/no-image.jpg",
			ImageFile: "products/chair.png",
			Gallery:   []string{"gallery/a.jpg"},
		}, "/media/")
		Expect(p.ImageRef).To(BeEmpty())

		p, _ = domain.NormalizeProduct(domain.RawProduct{ID: 3, ImageFile: "no-image.jpg", Gallery: []string{"gallery/a.jpg"}}, "/media/")
		Expect(p.ImageRef).To(BeEmpty())
	})

	It("rejects ids that cannot be coerced", func() {
		_, ok := domain.NormalizeProduct(domain.RawProduct{ID: "abc"}, "")
		Expect(ok).To(BeFalse())
	})
})

var _ = DescribeTable("CoerceID",
	func(in any, want int64, wantOK bool) {
		got, ok := domain.CoerceID(in)
		Expect(ok).To(Equal(wantOK))
		if wantOK {
			Expect(got).To(Equal(want))
		}
	},
	Entry("int", 5, int64(5), true),
	Entry("uint16", uint16(9), int64(9), true),
	Entry("integral float", 42.0, int64(42), true),
	Entry("fractional float", 42.5, int64(0), false),
	Entry("numeric string", " 17 ", int64(17), true),
	Entry("json number", json.Number("123"), int64(123), true),
	Entry("nil", nil, int64(0), false),
	Entry("bool", true, int64(0), false),
)

var _ = Describe("ParseImageRef", func() {
	It("classifies references", func() {
		Expect(domain.ParseImageRef("https://a.test/x.jpg").Kind).To(Equal(domain.ImageRefRemote))
		Expect(domain.ParseImageRef("/media/x.jpg").Kind).To(Equal(domain.ImageRefAbsolute))
		Expect(domain.ParseImageRef("products/x.jpg").Kind).To(Equal(domain.ImageRefRelative))
		Expect(domain.ParseImageRef("").Kind).To(Equal(domain.ImageRefNone))
		Expect(domain.ParseImageRef("img/no-image.jpg").Kind).To(Equal(domain.ImageRefNone))
	})
})
