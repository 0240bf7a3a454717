package vectorindex_test

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"github.com/DRSN-tech/image-search/internal/domain"
	"github.com/DRSN-tech/image-search/internal/repository/vectorindex"
	"github.com/DRSN-tech/image-search/internal/testutil"
	"github.com/DRSN-tech/image-search/pkg/e"
	"github.com/DRSN-tech/image-search/pkg/logger"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func newIndex(dir string) *vectorindex.Index {
	return vectorindex.NewIndex(
		filepath.Join(dir, "product_vectors.index"),
		filepath.Join(dir, "product_ids.npy"),
		logger.NewNopLogger(),
	)
}

func expectInvariants(x *vectorindex.Index) {
	h := x.Health()
	Expect(h.Initialized).To(BeTrue())
	Expect(h.IDs).To(Equal(h.NTotal))
	Expect(h.Dim).To(Equal(domain.Dim))
	for _, id := range x.IDs() {
		v, ok := x.Reconstruct(id)
		Expect(ok).To(BeTrue())
		Expect(v.IsUnit()).To(BeTrue())
	}
}

var _ = Describe("Index", func() {
	var (
		ctx context.Context
		dir string
		idx *vectorindex.Index
	)

	BeforeEach(func() {
		ctx = context.Background()
		dir = GinkgoT().TempDir()
		idx = newIndex(dir)
		Expect(idx.Load(ctx)).To(Succeed())
	})

	Context("without files on disk", func() {
		It("starts empty and initialized", func() {
			Expect(idx.Initialized()).To(BeTrue())
			Expect(idx.Len()).To(Equal(0))

			hits, err := idx.Search(ctx, testutil.UnitVector(1), 10, 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(hits).To(BeEmpty())
		})
	})

	Context("after a rebuild from three products", func() {
		BeforeEach(func() {
			Expect(idx.Rebuild(ctx, testutil.Entries(7, 42, 99))).To(Succeed())
		})

		It("holds every id once", func() {
			Expect(idx.Len()).To(Equal(3))
			Expect(idx.IDs()).To(Equal([]int64{7, 42, 99}))
			expectInvariants(idx)
		})

		It("finds every vector as its own best match", func() {
			for _, id := range idx.IDs() {
				v, _ := idx.Reconstruct(id)
				hits, err := idx.Search(ctx, v, 1, 0)
				Expect(err).NotTo(HaveOccurred())
				Expect(hits).To(HaveLen(1))
				Expect(hits[0].ProductID).To(Equal(id))
				Expect(hits[0].Score).To(BeNumerically(">=", 0.999))
				Expect(hits[0].Rank).To(Equal(1))
			}
		})

		It("returns sorted hits above the threshold", func() {
			hits, err := idx.Search(ctx, testutil.UnitVector(42), 10, 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(hits).To(HaveLen(3))
			for i := 1; i < len(hits); i++ {
				Expect(hits[i-1].Score).To(BeNumerically(">=", hits[i].Score))
				Expect(hits[i].Rank).To(Equal(i + 1))
			}
		})

		It("never adds ids when the threshold grows", func() {
			q := testutil.UnitVector(1000)
			prev, err := idx.Search(ctx, q, 10, 0)
			Expect(err).NotTo(HaveOccurred())

			for _, tau := range []float32{0.3, 0.5, 0.51, 0.7, 0.95} {
				cur, err := idx.Search(ctx, q, 10, tau)
				Expect(err).NotTo(HaveOccurred())

				allowed := map[int64]bool{}
				for _, h := range prev {
					allowed[h.ProductID] = true
				}
				for _, h := range cur {
					Expect(allowed).To(HaveKey(h.ProductID))
					Expect(h.Score).To(BeNumerically(">=", tau))
				}
				prev = cur
			}
		})

		It("rejects a batch with an id already present", func() {
			err := idx.AddBatch(ctx, testutil.Entries(100, 42))
			Expect(err).To(MatchError(e.ErrDuplicateID))
			Expect(idx.IDs()).To(Equal([]int64{7, 42, 99}))
		})

		It("appends new rows", func() {
			Expect(idx.AddBatch(ctx, testutil.Entries(100, 101))).To(Succeed())
			Expect(idx.IDs()).To(Equal([]int64{7, 42, 99, 100, 101}))
			expectInvariants(idx)
		})

		It("rejects vectors that are not unit-normalized", func() {
			v := make(domain.Vector, domain.Dim)
			v[0] = 2
			err := idx.AddBatch(ctx, []domain.IndexEntry{{ID: 5, Vector: v}})
			Expect(err).To(MatchError(e.ErrNotUnitVector))
		})

		It("removes an id and stays idempotent", func() {
			removed, err := idx.Remove(ctx, 42)
			Expect(err).NotTo(HaveOccurred())
			Expect(removed).To(BeTrue())
			after := idx.IDs()

			removed, err = idx.Remove(ctx, 42)
			Expect(err).NotTo(HaveOccurred())
			Expect(removed).To(BeFalse())
			Expect(idx.IDs()).To(Equal(after))
			Expect(after).To(Equal([]int64{7, 99}))

			hits, err := idx.Search(ctx, testutil.UnitVector(42), 10, 0)
			Expect(err).NotTo(HaveOccurred())
			for _, h := range hits {
				Expect(h.ProductID).NotTo(Equal(int64(42)))
			}
			expectInvariants(idx)
		})

		It("replaces a vector on update", func() {
			v := testutil.UnitVector(555)
			Expect(idx.Update(ctx, domain.IndexEntry{ID: 42, Vector: v})).To(Succeed())
			Expect(idx.Len()).To(Equal(3))

			hits, err := idx.Search(ctx, v, 1, 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(hits[0].ProductID).To(Equal(int64(42)))
			Expect(hits[0].Score).To(BeNumerically("~", 1.0, 1e-4))
		})

		It("adds an absent id on update", func() {
			Expect(idx.Update(ctx, domain.IndexEntry{ID: 8, Vector: testutil.UnitVector(8)})).To(Succeed())
			Expect(idx.Contains(8)).To(BeTrue())
			Expect(idx.Len()).To(Equal(4))
		})

		It("refuses an empty rebuild and keeps the files", func() {
			before, err := os.ReadFile(filepath.Join(dir, "product_vectors.index"))
			Expect(err).NotTo(HaveOccurred())

			Expect(idx.Rebuild(ctx, nil)).To(MatchError(e.ErrEmptyRebuild))

			after, err := os.ReadFile(filepath.Join(dir, "product_vectors.index"))
			Expect(err).NotTo(HaveOccurred())
			Expect(after).To(Equal(before))
			Expect(idx.Len()).To(Equal(3))
		})

		It("survives a reload from disk", func() {
			other := newIndex(dir)
			Expect(other.Load(ctx)).To(Succeed())
			Expect(other.IDs()).To(Equal(idx.IDs()))

			for _, id := range idx.IDs() {
				want, _ := idx.Reconstruct(id)
				got, ok := other.Reconstruct(id)
				Expect(ok).To(BeTrue())
				Expect(got).To(Equal(want))
			}
		})

		It("validates search parameters", func() {
			_, err := idx.Search(ctx, testutil.UnitVector(1), 0, 0.2)
			Expect(err).To(MatchError(e.ErrInvalidSearchParams))

			_, err = idx.Search(ctx, testutil.UnitVector(1), 5, 1.5)
			Expect(err).To(MatchError(e.ErrInvalidSearchParams))

			_, err = idx.Search(ctx, make(domain.Vector, 10), 5, 0.2)
			Expect(err).To(MatchError(e.ErrDimensionMismatch))
		})
	})

	Context("with broken files", func() {
		BeforeEach(func() {
			Expect(idx.Rebuild(ctx, testutil.Entries(1, 2, 3))).To(Succeed())
		})

		It("refuses ids that do not match ntotal", func() {
			otherDir := GinkgoT().TempDir()
			other := newIndex(otherDir)
			Expect(other.Load(ctx)).To(Succeed())
			Expect(other.Rebuild(ctx, testutil.Entries(1, 2))).To(Succeed())

			ids, err := os.ReadFile(filepath.Join(otherDir, "product_ids.npy"))
			Expect(err).NotTo(HaveOccurred())
			Expect(os.WriteFile(filepath.Join(dir, "product_ids.npy"), ids, 0o644)).To(Succeed())

			reloaded := newIndex(dir)
			Expect(reloaded.Load(ctx)).To(MatchError(e.ErrIndexInvariant))
			Expect(reloaded.Initialized()).To(BeFalse())
			Expect(reloaded.Health().Violations).NotTo(BeEmpty())

			hits, err := reloaded.Search(ctx, testutil.UnitVector(1), 3, 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(hits).To(BeEmpty())
		})

		It("refuses a pair with one file missing", func() {
			Expect(os.Remove(filepath.Join(dir, "product_ids.npy"))).To(Succeed())

			reloaded := newIndex(dir)
			Expect(reloaded.Load(ctx)).To(MatchError(e.ErrIndexInvariant))
			Expect(reloaded.Initialized()).To(BeFalse())
		})

		It("refuses an unknown index format", func() {
			Expect(os.WriteFile(filepath.Join(dir, "product_vectors.index"), []byte("IxHNgarbage"), 0o644)).To(Succeed())

			reloaded := newIndex(dir)
			Expect(reloaded.Load(ctx)).To(MatchError(e.ErrIndexInvariant))
		})

		It("recovers after a rebuild", func() {
			Expect(os.Remove(filepath.Join(dir, "product_ids.npy"))).To(Succeed())
			reloaded := newIndex(dir)
			Expect(reloaded.Load(ctx)).NotTo(Succeed())

			Expect(reloaded.Rebuild(ctx, testutil.Entries(4, 5))).To(Succeed())
			Expect(reloaded.Initialized()).To(BeTrue())
			Expect(reloaded.Health().Violations).To(BeEmpty())
			expectInvariants(reloaded)
		})
	})

	Context("under concurrent access", func() {
		It("serves searches while writers swap snapshots", func() {
			Expect(idx.Rebuild(ctx, testutil.Entries(1, 2, 3, 4))).To(Succeed())

			var wg sync.WaitGroup
			for r := 0; r < 4; r++ {
				wg.Add(1)
				go func() {
					defer GinkgoRecover()
					defer wg.Done()
					for i := 0; i < 50; i++ {
						hits, err := idx.Search(ctx, testutil.UnitVector(2), 3, 0)
						Expect(err).NotTo(HaveOccurred())
						Expect(len(hits)).To(BeNumerically("<=", 3))
					}
				}()
			}

			for i := int64(10); i < 20; i++ {
				Expect(idx.AddBatch(ctx, testutil.Entries(i))).To(Succeed())
				_, err := idx.Remove(ctx, i)
				Expect(err).NotTo(HaveOccurred())
			}
			wg.Wait()

			Expect(idx.IDs()).To(Equal([]int64{1, 2, 3, 4}))
			expectInvariants(idx)
		})
	})
})
