package ml_service_test

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"sync"
	"time"

	"github.com/DRSN-tech/image-search/internal/domain"
	ml_service "github.com/DRSN-tech/image-search/internal/infrastructure/ml-service"
	"github.com/DRSN-tech/image-search/internal/testutil"
	"github.com/DRSN-tech/image-search/pkg/e"
	"github.com/DRSN-tech/image-search/pkg/logger"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// fakeConn отвечает вектором из признаков сетки декодированного PNG.
type fakeConn struct {
	mu      sync.Mutex
	calls   int
	devices []string
	err     error
	empty   bool
}

func (c *fakeConn) Invoke(ctx context.Context, method string, args, reply any, _ ...grpc.CallOption) error {
	defer GinkgoRecover()

	c.mu.Lock()
	c.calls++
	if md, ok := metadata.FromOutgoingContext(ctx); ok {
		c.devices = append(c.devices, md.Get("x-encoder-device")...)
	}
	c.mu.Unlock()

	Expect(method).To(Equal(ml_service.EncodeMethod))
	if c.err != nil {
		return c.err
	}

	img, err := png.Decode(bytes.NewReader(args.(*wrapperspb.BytesValue).GetValue()))
	Expect(err).NotTo(HaveOccurred())

	values := []any{}
	if !c.empty {
		for _, f := range testutil.GridFeatures(img) {
			values = append(values, float64(f))
		}
	}
	res, err := structpb.NewStruct(map[string]any{"vector": values, "model_version": "test"})
	Expect(err).NotTo(HaveOccurred())

	reply.(*structpb.Struct).Fields = res.Fields
	return nil
}

func (c *fakeConn) NewStream(context.Context, *grpc.StreamDesc, string, ...grpc.CallOption) (grpc.ClientStream, error) {
	return nil, status.Error(codes.Unimplemented, "streams are not used")
}

func (c *fakeConn) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

var _ = Describe("MLService", func() {
	var (
		ctx  context.Context
		conn *fakeConn
	)

	BeforeEach(func() {
		ctx = context.Background()
		conn = &fakeConn{}
	})

	It("encodes a batch keeping the order of images", func() {
		svc := ml_service.NewMLService(conn, domain.DeviceCUDA, 2, 3, time.Second, logger.NewNopLogger())
		batch := []image.Image{
			testutil.Solid(testutil.Red, 16, 16),
			testutil.Solid(testutil.Blue, 16, 16),
			testutil.Checker(testutil.Black, testutil.White, 2, 16, 16),
		}

		rows, err := svc.Encode(ctx, batch)
		Expect(err).NotTo(HaveOccurred())
		Expect(rows).To(HaveLen(3))
		for i, img := range batch {
			want := testutil.GridFeatures(img)
			Expect(rows[i]).To(HaveLen(domain.Dim))
			for j := range want {
				Expect(rows[i][j]).To(BeNumerically("~", want[j], 1e-6))
			}
		}
		Expect(conn.Calls()).To(Equal(3))
		Expect(conn.devices).To(ConsistOf("cuda", "cuda", "cuda"))
	})

	It("does not retry a rejected request", func() {
		conn.err = status.Error(codes.InvalidArgument, "bad image")
		svc := ml_service.NewMLService(conn, domain.DeviceAuto, 1, 3, time.Second, logger.NewNopLogger())

		_, err := svc.Encode(ctx, []image.Image{testutil.Solid(testutil.Red, 4, 4)})
		Expect(err).To(HaveOccurred())
		Expect(status.Code(err)).To(Equal(codes.InvalidArgument))
		Expect(conn.Calls()).To(Equal(1))
		Expect(conn.devices).To(BeEmpty())
	})

	It("reports an empty embedding", func() {
		conn.empty = true
		svc := ml_service.NewMLService(conn, domain.DeviceCPU, 1, 1, time.Second, logger.NewNopLogger())

		_, err := svc.Encode(ctx, []image.Image{testutil.Solid(testutil.Red, 4, 4)})
		Expect(err).To(MatchError(e.ErrVectorEmbeddingEmpty))
	})
})
