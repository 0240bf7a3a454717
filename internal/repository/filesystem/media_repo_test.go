package filesystem_test

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/DRSN-tech/image-search/internal/repository/filesystem"
	"github.com/DRSN-tech/image-search/pkg/e"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("MediaRepo", func() {
	var (
		ctx  context.Context
		base string
		repo *filesystem.MediaRepo
	)

	read := func(key string) (string, error) {
		rc, err := repo.Open(ctx, key)
		if err != nil {
			return "", err
		}
		defer rc.Close()

		data, err := io.ReadAll(rc)
		return string(data), err
	}

	BeforeEach(func() {
		ctx = context.Background()
		base = GinkgoT().TempDir()
		root := filepath.Join(base, "media")

		Expect(os.MkdirAll(filepath.Join(root, "products"), 0o755)).To(Succeed())
		Expect(os.WriteFile(filepath.Join(root, "products", "1.png"), []byte("one"), 0o644)).To(Succeed())
		Expect(os.WriteFile(filepath.Join(base, "secret.txt"), []byte("secret"), 0o644)).To(Succeed())

		repo = filesystem.NewMediaRepo(root)
	})

	It("opens files relative to the root", func() {
		for _, key := range []string{"products/1.png", "/products/1.png", "products/../products/1.png"} {
			data, err := read(key)
			Expect(err).NotTo(HaveOccurred(), key)
			Expect(data).To(Equal("one"))
		}
	})

	It("does not escape the root", func() {
		_, err := read("../secret.txt")
		Expect(err).To(MatchError(e.ErrMediaNotFound))

		_, err = read("products/../../secret.txt")
		Expect(err).To(MatchError(e.ErrMediaNotFound))
	})

	It("reports a missing file", func() {
		_, err := read("products/2.png")
		Expect(err).To(MatchError(e.ErrMediaNotFound))
	})
})
