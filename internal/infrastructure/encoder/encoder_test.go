package encoder_test

import (
	"context"
	"errors"
	"image"

	"github.com/DRSN-tech/image-search/internal/domain"
	"github.com/DRSN-tech/image-search/internal/infrastructure/encoder"
	"github.com/DRSN-tech/image-search/internal/testutil"
	"github.com/DRSN-tech/image-search/pkg/e"
	"github.com/DRSN-tech/image-search/pkg/logger"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Encoder", func() {
	var ctx context.Context

	BeforeEach(func() {
		ctx = context.Background()
	})

	Describe("EnsureReady", func() {
		It("loads on the requested device", func() {
			loader := testutil.NewLoader()
			enc := encoder.NewEncoder(loader.Load, domain.DeviceCPU, 0, logger.NewNopLogger())

			Expect(enc.Device()).To(BeEmpty())
			Expect(enc.EnsureReady(ctx)).To(Succeed())
			Expect(enc.Device()).To(Equal(domain.DeviceCPU))
			Expect(loader.Attempts()).To(Equal([]domain.Device{domain.DeviceCPU}))
		})

		It("falls back to cpu exactly once", func() {
			loader := testutil.NewLoader(domain.DeviceCUDA)
			enc := encoder.NewEncoder(loader.Load, domain.DeviceCUDA, 0, logger.NewNopLogger())

			Expect(enc.EnsureReady(ctx)).To(Succeed())
			Expect(enc.Device()).To(Equal(domain.DeviceCPU))
			Expect(loader.Attempts()).To(Equal([]domain.Device{domain.DeviceCUDA, domain.DeviceCPU}))
		})

		It("remembers the failure when cpu is broken too", func() {
			loader := testutil.NewLoader(domain.DeviceMPS, domain.DeviceCPU)
			enc := encoder.NewEncoder(loader.Load, domain.DeviceMPS, 0, logger.NewNopLogger())

			Expect(enc.EnsureReady(ctx)).To(MatchError(e.ErrEncoderUnavailable))
			Expect(enc.EnsureReady(ctx)).To(MatchError(e.ErrEncoderUnavailable))
			Expect(loader.Attempts()).To(HaveLen(2))
			Expect(enc.Device()).To(BeEmpty())

			_, err := enc.EncodeOne(ctx, testutil.Solid(testutil.Red, 16, 16))
			Expect(err).To(MatchError(e.ErrEncoderUnavailable))
		})

		It("does not retry cpu on cpu", func() {
			loader := testutil.NewLoader(domain.DeviceCPU)
			enc := encoder.NewEncoder(loader.Load, domain.DeviceCPU, 0, logger.NewNopLogger())

			Expect(enc.EnsureReady(ctx)).NotTo(Succeed())
			Expect(loader.Attempts()).To(Equal([]domain.Device{domain.DeviceCPU}))
		})

		It("loads once for concurrent callers", func() {
			loader := testutil.NewLoader()
			enc := encoder.NewEncoder(loader.Load, domain.DeviceCPU, 0, logger.NewNopLogger())

			done := make(chan struct{})
			for i := 0; i < 8; i++ {
				go func() {
					defer GinkgoRecover()
					Expect(enc.EnsureReady(ctx)).To(Succeed())
					done <- struct{}{}
				}()
			}
			for i := 0; i < 8; i++ {
				Eventually(done).Should(Receive())
			}
			Expect(loader.Attempts()).To(HaveLen(1))
		})
	})

	Describe("batch size", func() {
		It("defaults and caps", func() {
			load := testutil.NewLoader().Load
			Expect(encoder.NewEncoder(load, domain.DeviceCPU, 0, logger.NewNopLogger()).BatchSize()).
				To(Equal(encoder.DefaultBatchSize))
			Expect(encoder.NewEncoder(load, domain.DeviceCPU, 100, logger.NewNopLogger()).BatchSize()).
				To(Equal(encoder.MaxBatchSize))
			Expect(encoder.NewEncoder(load, domain.DeviceCPU, 4, logger.NewNopLogger()).BatchSize()).
				To(Equal(4))
		})

		It("splits input into portions", func() {
			loader := testutil.NewLoader()
			enc := encoder.NewEncoder(loader.Load, domain.DeviceCPU, 4, logger.NewNopLogger())

			imgs := make([]image.Image, 10)
			for i := range imgs {
				imgs[i] = testutil.Solid(testutil.Green, 8, 8)
			}

			vectors, err := enc.EncodeBatch(ctx, imgs)
			Expect(err).NotTo(HaveOccurred())
			Expect(vectors).To(HaveLen(10))
			Expect(loader.Backend.Calls()).To(Equal(3))
		})
	})

	Describe("EncodeBatch", func() {
		var enc *encoder.Encoder

		BeforeEach(func() {
			enc = testutil.NewEncoder(0)
		})

		It("returns unit vectors of the model dimension", func() {
			vectors, err := enc.EncodeBatch(ctx, []image.Image{
				testutil.Solid(testutil.Red, 32, 32),
				testutil.Checker(testutil.Black, testutil.White, 4, 32, 32),
			})
			Expect(err).NotTo(HaveOccurred())
			for _, v := range vectors {
				Expect(v).To(HaveLen(domain.Dim))
				Expect(v.IsUnit()).To(BeTrue())
			}
		})

		It("is deterministic", func() {
			img := testutil.HalfSplit(testutil.Blue, testutil.Yellow, 40, 20)

			a, err := enc.EncodeOne(ctx, img)
			Expect(err).NotTo(HaveOccurred())
			b, err := enc.EncodeOne(ctx, img)
			Expect(err).NotTo(HaveOccurred())
			Expect(a).To(Equal(b))
			Expect(a.Dot(b)).To(BeNumerically("~", 1, 1e-5))
		})

		It("rejects an empty batch", func() {
			_, err := enc.EncodeBatch(ctx, nil)
			Expect(err).To(MatchError(e.ErrEmptyVectors))
		})

		It("stops between portions when the context is cancelled", func() {
			Expect(enc.EnsureReady(ctx)).To(Succeed())
			cancelled, cancel := context.WithCancel(ctx)
			cancel()

			_, err := enc.EncodeOne(cancelled, testutil.Solid(testutil.Red, 8, 8))
			Expect(err).To(MatchError(context.Canceled))
		})

		It("rejects only the rows with zero-norm features", func() {
			backend := &testutil.GridBackend{ZeroRow: func(img image.Image) bool {
				return testutil.IsColor(img, testutil.Black)
			}}
			zeroing := testutil.NewGridEncoder(backend, 2)

			vectors, err := zeroing.EncodeBatch(ctx, []image.Image{
				testutil.Solid(testutil.Red, 8, 8),
				testutil.Solid(testutil.Black, 8, 8),
				testutil.Solid(testutil.Blue, 8, 8),
			})
			Expect(err).To(MatchError(e.ErrVectorEmbeddingEmpty))

			var rows domain.RowErrors
			Expect(errors.As(err, &rows)).To(BeTrue())
			Expect(rows).To(HaveLen(1))
			Expect(rows).To(HaveKey(1))

			Expect(vectors).To(HaveLen(3))
			Expect(vectors[1]).To(BeNil())
			Expect(vectors[0].Norm()).To(BeNumerically("~", 1, domain.UnitTolerance))
			Expect(vectors[2].Norm()).To(BeNumerically("~", 1, domain.UnitTolerance))

			_, err = zeroing.EncodeOne(ctx, testutil.Solid(testutil.Black, 8, 8))
			Expect(err).To(MatchError(e.ErrVectorEmbeddingEmpty))
		})

		It("fails the whole call when the forward pass fails", func() {
			backend := &testutil.GridBackend{FailBatch: func([]image.Image) bool { return true }}

			_, err := testutil.NewGridEncoder(backend, 2).EncodeBatch(ctx, []image.Image{testutil.Solid(testutil.Red, 8, 8)})
			Expect(err).To(MatchError(testutil.ErrBatchFailed))
		})
	})

	It("closes the backend only after loading", func() {
		loader := testutil.NewLoader()
		enc := encoder.NewEncoder(loader.Load, domain.DeviceCPU, 0, logger.NewNopLogger())

		Expect(enc.Close()).To(Succeed())
		Expect(loader.Backend.Closed()).To(BeFalse())

		Expect(enc.EnsureReady(ctx)).To(Succeed())
		Expect(enc.Close()).To(Succeed())
		Expect(loader.Backend.Closed()).To(BeTrue())
	})
})
