package usecase_test

import (
	"bytes"
	"context"
	"image"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/DRSN-tech/image-search/internal/domain"
	"github.com/DRSN-tech/image-search/internal/testutil"
	"github.com/DRSN-tech/image-search/internal/usecase"
	"github.com/DRSN-tech/image-search/pkg/e"
	"github.com/DRSN-tech/image-search/pkg/logger"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("IndexUseCase", func() {
	var (
		ctx context.Context
		w   *world
	)

	BeforeEach(func() {
		ctx = context.Background()
		w = newWorld(GinkgoT().TempDir(), usecase.DomainBlacklist{"cdn.blocked.example"})
	})

	Describe("encoder failures", func() {
		var backend *testutil.GridBackend

		BeforeEach(func() {
			backend = &testutil.GridBackend{}
			w.deps.Encoder = testutil.NewGridEncoder(backend, 2)
			w.indexer = usecase.NewIndexUC(w.deps, w.opts, logger.NewNopLogger())

			w.setCatalog(
				product{ID: 7, Image: w.writeImage("7.png", testutil.Solid(testutil.Red, 64, 64))},
				product{ID: 42, Image: w.writeImage("42.png", testutil.Solid(testutil.Green, 64, 64))},
				product{ID: 99, Image: w.writeImage("99.png", testutil.Solid(testutil.Blue, 64, 64))},
				product{ID: 100, Image: w.writeImage("100.png", testutil.Solid(testutil.Black, 64, 64))},
			)
		})

		It("skips an image whose features have zero norm", func() {
			backend.ZeroRow = func(img image.Image) bool { return testutil.IsColor(img, testutil.Black) }

			res, err := w.indexer.Build(ctx, usecase.BuildReq{})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Indexed).To(Equal(3))
			Expect(res.Failed).To(Equal(1))
			Expect(w.index.IDs()).To(Equal([]int64{7, 42, 99}))
		})

		It("skips a batch the model could not encode", func() {
			backend.FailBatch = func(batch []image.Image) bool {
				for _, img := range batch {
					if testutil.IsColor(img, testutil.Green) {
						return true
					}
				}
				return false
			}

			res, err := w.indexer.Build(ctx, usecase.BuildReq{})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Indexed).To(Equal(2))
			Expect(res.Failed).To(Equal(2))
			Expect(w.index.IDs()).To(Equal([]int64{99, 100}))
		})

		It("refuses to rebuild when every batch fails", func() {
			backend.FailBatch = func([]image.Image) bool { return true }

			_, err := w.indexer.Build(ctx, usecase.BuildReq{})
			Expect(err).To(MatchError(e.ErrEmptyRebuild))
			Expect(w.index.Len()).To(BeZero())
		})
	})

	Describe("Build", func() {
		It("indexes every active product with an image", func() {
			w.seedThree()

			res, err := w.indexer.Build(ctx, usecase.BuildReq{})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Operation).To(Equal(domain.OperationBuild))
			Expect(res.Indexed).To(Equal(3))
			Expect(res.Skipped).To(BeZero())
			Expect(res.Failed).To(BeZero())
			Expect(res.IndexSize).To(Equal(3))

			Expect(w.index.Health().NTotal).To(Equal(3))
			Expect(w.index.IDs()).To(Equal([]int64{7, 42, 99}))
			for _, id := range w.index.IDs() {
				v, ok := w.index.Reconstruct(id)
				Expect(ok).To(BeTrue())
				hits, err := w.index.Search(ctx, v, 1, 0)
				Expect(err).NotTo(HaveOccurred())
				Expect(hits[0].ProductID).To(Equal(id))
				Expect(hits[0].Score).To(BeNumerically(">=", 0.999))
			}
		})

		It("records the run and notifies the side channels", func() {
			w.seedThree()

			_, err := w.indexer.Build(ctx, usecase.BuildReq{})
			Expect(err).NotTo(HaveOccurred())

			Expect(w.mirror.IDs()).To(ConsistOf(int64(7), int64(42), int64(99)))
			Expect(w.mirror.resets).To(Equal(1))

			runs := w.runs.Runs()
			Expect(runs).To(HaveLen(1))
			Expect(runs[0].Operation).To(Equal(domain.OperationBuild))
			Expect(runs[0].Device).To(Equal(domain.DeviceCPU))
			Expect(runs[0].Indexed).To(Equal(3))
			Expect(runs[0].FinishedAt).NotTo(BeTemporally("<", runs[0].StartedAt))

			events := w.publisher.Events()
			Expect(events).To(HaveLen(1))
			Expect(events[0].Operation).To(Equal(domain.OperationBuild))
			Expect(events[0].Origin).To(Equal("test-origin"))
			Expect(events[0].IndexSize).To(Equal(3))

			fps, err := w.fps.All(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(fps).To(HaveLen(3))
			Expect(fps[1].ProductID).To(Equal(int64(42)))
			Expect(fps[1].ImageRef).To(Equal("42.png"))
		})

		It("cleans up the job directory", func() {
			w.seedThree()

			_, err := w.indexer.Build(ctx, usecase.BuildReq{})
			Expect(err).NotTo(HaveOccurred())
			Expect(w.tmpEntries()).To(BeEmpty())
		})

		It("counts skipped and failed products", func() {
			testutil.WriteFile(w.media, "6.png", []byte("not an image"))
			w.setCatalog(
				product{ID: 1, Image: w.writeImage("1.png", testutil.Solid(testutil.Red, 32, 32))},
				product{ID: 2},
				product{ID: 3, Image: "https://cdn.blocked.example/3.png"},
				product{ID: 4, Image: "4.png"},
				product{ID: 5, Image: w.writeImage("5.png", testutil.Solid(testutil.Blue, 32, 32)), Inactive: true},
				product{ID: 6, Image: "6.png"},
				product{ID: 8, Image: "no-image.jpg"},
			)

			res, err := w.indexer.Build(ctx, usecase.BuildReq{})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Indexed).To(Equal(1))
			Expect(res.Skipped).To(Equal(3))
			Expect(res.Failed).To(Equal(2))
			Expect(w.index.IDs()).To(Equal([]int64{1}))
		})

		It("leaves an existing index alone without force", func() {
			w.seedThree()
			_, err := w.indexer.Build(ctx, usecase.BuildReq{})
			Expect(err).NotTo(HaveOccurred())

			res, err := w.indexer.Build(ctx, usecase.BuildReq{})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.NoOp).To(BeTrue())
			Expect(res.IndexSize).To(Equal(3))
			Expect(w.runs.Runs()).To(HaveLen(1))

			res, err = w.indexer.Build(ctx, usecase.BuildReq{Force: true})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.NoOp).To(BeFalse())
			Expect(res.Indexed).To(Equal(3))
			Expect(w.runs.Runs()).To(HaveLen(2))
		})

		It("refuses an empty catalog", func() {
			w.setCatalog(product{ID: 1, Image: "1.png", Inactive: true})

			_, err := w.indexer.Build(ctx, usecase.BuildReq{})
			Expect(err).To(MatchError(e.ErrEmptyCatalog))
			Expect(w.index.Len()).To(BeZero())
		})

		It("refuses to run while another job holds the lock", func() {
			w.seedThree()
			unlock, err := w.lock.Acquire(ctx, usecase.IndexJobKey)
			Expect(err).NotTo(HaveOccurred())
			DeferCleanup(func() { _ = unlock(context.Background()) })

			_, err = w.indexer.Build(ctx, usecase.BuildReq{})
			Expect(err).To(MatchError(e.ErrJobLocked))
		})
	})

	Describe("Rebuild", func() {
		BeforeEach(func() {
			w.seedThree()
			_, err := w.indexer.Build(ctx, usecase.BuildReq{})
			Expect(err).NotTo(HaveOccurred())
		})

		It("keeps the previous index when nothing can be encoded", func() {
			before, err := os.ReadFile(w.opts.IndexPath)
			Expect(err).NotTo(HaveOccurred())
			beforeIDs, err := os.ReadFile(w.opts.IDsPath)
			Expect(err).NotTo(HaveOccurred())

			w.setCatalog(product{ID: 1, Image: "gone-1.png"}, product{ID: 2, Image: "gone-2.png"})

			_, err = w.indexer.Rebuild(ctx)
			Expect(err).To(MatchError(e.ErrEmptyRebuild))

			after, err := os.ReadFile(w.opts.IndexPath)
			Expect(err).NotTo(HaveOccurred())
			afterIDs, err := os.ReadFile(w.opts.IDsPath)
			Expect(err).NotTo(HaveOccurred())
			Expect(after).To(Equal(before))
			Expect(afterIDs).To(Equal(beforeIDs))
			Expect(w.index.IDs()).To(Equal([]int64{7, 42, 99}))
		})

		It("follows the catalog", func() {
			w.setCatalog(
				product{ID: 7, Image: "7.png"},
				product{ID: 100, Image: w.writeImage("100.png", testutil.Solid(testutil.Yellow, 64, 64))},
			)

			res, err := w.indexer.Rebuild(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Operation).To(Equal(domain.OperationRebuild))
			Expect(w.index.IDs()).To(Equal([]int64{7, 100}))
			Expect(w.mirror.IDs()).To(ConsistOf(int64(7), int64(100)))
		})
	})

	Describe("remote images", func() {
		var (
			server *httptest.Server
			hits   atomic.Int32
			status atomic.Int32
		)

		BeforeEach(func() {
			hits.Store(0)
			status.Store(http.StatusServiceUnavailable)
			server = httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
				if hits.Add(1) == 1 {
					rw.WriteHeader(int(status.Load()))
					return
				}
				_, _ = rw.Write(testutil.PNG(testutil.Solid(testutil.Yellow, 16, 16)))
			}))
			DeferCleanup(server.Close)

			w.setCatalog(product{ID: 1, Image: server.URL + "/1.png"})
		})

		It("retries temporary failures", func() {
			opts := w.opts
			opts.FetchRetries = 2
			indexer := usecase.NewIndexUC(w.deps, opts, logger.NewNopLogger())

			res, err := indexer.Build(ctx, usecase.BuildReq{})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Indexed).To(Equal(1))
			Expect(hits.Load()).To(Equal(int32(2)))
		})

		It("does not retry permanent failures", func() {
			status.Store(http.StatusNotFound)
			opts := w.opts
			opts.FetchRetries = 2
			indexer := usecase.NewIndexUC(w.deps, opts, logger.NewNopLogger())

			_, err := indexer.Build(ctx, usecase.BuildReq{})
			Expect(err).To(MatchError(e.ErrEmptyRebuild))
			Expect(hits.Load()).To(Equal(int32(1)))
		})
	})

	Describe("UpdateProduct", func() {
		BeforeEach(func() {
			w.seedThree()
			_, err := w.indexer.Build(ctx, usecase.BuildReq{})
			Expect(err).NotTo(HaveOccurred())
		})

		It("replaces the vector of a changed image", func() {
			w.writeImage("42.png", testutil.Solid(testutil.Yellow, 64, 64))

			res, err := w.indexer.UpdateProduct(ctx, 42)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Operation).To(Equal(domain.OperationUpdate))
			Expect(res.Indexed).To(Equal(1))
			Expect(res.IndexSize).To(Equal(3))

			got, err := w.search.Search(ctx, &usecase.SearchReq{
				Image:     bytes.NewReader(w.imageBytes("42.png")),
				TopK:      ptr(1),
				Threshold: ptr(float32(0)),
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Products[0].ID).To(Equal(int64(42)))
			Expect(got.Products[0].Similarity).To(BeNumerically(">=", 0.999))

			events := w.publisher.Events()
			Expect(events[len(events)-1].ProductIDs).To(Equal([]int64{42}))
			Expect(events[len(events)-1].Operation).To(Equal(domain.OperationUpdate))
		})

		It("adds a product that is not indexed yet", func() {
			w.setCatalog(
				product{ID: 7, Image: "7.png"},
				product{ID: 42, Image: "42.png"},
				product{ID: 99, Image: "99.png"},
				product{ID: 100, Image: w.writeImage("100.png", testutil.Solid(testutil.White, 16, 16))},
			)

			_, err := w.indexer.UpdateProduct(ctx, 100)
			Expect(err).NotTo(HaveOccurred())
			Expect(w.index.Contains(100)).To(BeTrue())
			Expect(w.index.Len()).To(Equal(4))
			Expect(w.mirror.IDs()).To(ContainElement(int64(100)))
		})

		It("rejects unknown and inactive products", func() {
			_, err := w.indexer.UpdateProduct(ctx, 1000)
			Expect(err).To(MatchError(e.ErrProductUnavailable))

			w.setCatalog(product{ID: 42, Image: "42.png", Inactive: true})
			_, err = w.indexer.UpdateProduct(ctx, 42)
			Expect(err).To(MatchError(e.ErrProductUnavailable))
		})

		It("rejects a product without an image", func() {
			w.setCatalog(product{ID: 42})

			_, err := w.indexer.UpdateProduct(ctx, 42)
			Expect(err).To(MatchError(e.ErrNoImage))
			Expect(w.index.Contains(42)).To(BeTrue())
		})
	})

	Describe("RemoveProduct", func() {
		BeforeEach(func() {
			w.seedThree()
			_, err := w.indexer.Build(ctx, usecase.BuildReq{})
			Expect(err).NotTo(HaveOccurred())
		})

		It("drops the product from search results", func() {
			query := w.imageBytes("42.png")

			res, err := w.indexer.RemoveProduct(ctx, 42)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Operation).To(Equal(domain.OperationRemove))
			Expect(res.IndexSize).To(Equal(2))
			Expect(w.index.Health().NTotal).To(Equal(2))

			got, err := w.search.Search(ctx, &usecase.SearchReq{
				Image:     bytes.NewReader(query),
				Threshold: ptr(float32(0)),
			})
			Expect(err).NotTo(HaveOccurred())
			for _, p := range got.Products {
				Expect(p.ID).NotTo(Equal(int64(42)))
			}

			Expect(w.mirror.deleted).To(Equal([]int64{42}))
			fps, err := w.fps.All(ctx)
			Expect(err).NotTo(HaveOccurred())
			for _, fp := range fps {
				Expect(fp.ProductID).NotTo(Equal(int64(42)))
			}
		})

		It("is a no-op for an absent product", func() {
			_, err := w.indexer.RemoveProduct(ctx, 42)
			Expect(err).NotTo(HaveOccurred())

			res, err := w.indexer.RemoveProduct(ctx, 42)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.NoOp).To(BeTrue())
			Expect(res.IndexSize).To(Equal(2))
		})
	})

	It("writes index files next to each other", func() {
		w.seedThree()
		_, err := w.indexer.Build(ctx, usecase.BuildReq{})
		Expect(err).NotTo(HaveOccurred())

		Expect(filepath.Dir(w.opts.IndexPath)).To(Equal(filepath.Dir(w.opts.IDsPath)))
		Expect(w.opts.IndexPath).To(BeAnExistingFile())
		Expect(w.opts.IDsPath).To(BeAnExistingFile())
	})
})
