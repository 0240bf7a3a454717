package ml_service

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"sync"
	"time"

	"github.com/DRSN-tech/image-search/internal/domain"
	"github.com/DRSN-tech/image-search/internal/infrastructure/encoder"
	"github.com/DRSN-tech/image-search/pkg/e"
	"github.com/DRSN-tech/image-search/pkg/jitter"
	"github.com/DRSN-tech/image-search/pkg/logger"
	"github.com/jimlawless/whereami"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// EncodeMethod задаёт полное имя метода ML-сервиса. Запрос: PNG в BytesValue,
// ответ: Struct с полями vector и model_version.
const EncodeMethod = "/ml.ImageEncoder/EncodeImage"

// MLService клиент для взаимодействия с внешним ML-сервисом
type MLService struct {
	conn          grpc.ClientConnInterface
	device        domain.Device
	maxConcurrent int
	maxRetries    int
	timeout       time.Duration
	logger        logger.Logger
}

func NewMLService(conn grpc.ClientConnInterface, device domain.Device, maxConcurrent int, maxRetries int, timeout time.Duration, logger logger.Logger) *MLService {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	if maxRetries <= 0 {
		maxRetries = 1
	}

	return &MLService{
		conn:          conn,
		device:        device,
		maxConcurrent: maxConcurrent,
		maxRetries:    maxRetries,
		timeout:       timeout,
		logger:        logger,
	}
}

// NewLoader возвращает encoder.Loader, который подключается к ML-сервису по addr.
// Устройство выбирает сам ML-сервис, значение передаётся только в метаданные.
func NewLoader(addr string, maxConcurrent, maxRetries int, timeout time.Duration, logger logger.Logger) encoder.Loader {
	return func(_ context.Context, device domain.Device) (encoder.Backend, error) {
		conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
		if err != nil {
			return nil, e.Wrap(whereami.WhereAmI(), err)
		}

		return &remoteBackend{
			MLService: NewMLService(conn, device, maxConcurrent, maxRetries, timeout, logger),
			conn:      conn,
		}, nil
	}
}

type remoteBackend struct {
	*MLService
	conn *grpc.ClientConn
}

func (b *remoteBackend) Close() error {
	return b.conn.Close()
}

// Encode выполняет векторизацию изображений с retry-логикой и экспоненциальной задержкой
func (m *MLService) Encode(ctx context.Context, batch []image.Image) ([][]float32, error) {
	const (
		op         = "MLService.Encode"
		baseJitter = 1 * time.Second
		maxJitter  = 30 * time.Second
	)

	payloads := make([][]byte, len(batch))
	for i, img := range batch {
		var buf bytes.Buffer
		if err := png.Encode(&buf, img); err != nil {
			return nil, e.Wrap(op, err)
		}
		payloads[i] = buf.Bytes()
	}

	var lastErr error
	for attempt := 0; attempt < m.maxRetries; attempt++ {
		vectors, err := m.encodeBatch(ctx, payloads)
		if err == nil {
			return vectors, nil
		}
		lastErr = err

		if !retryable(err) || attempt == m.maxRetries-1 {
			break
		}

		sleepTime := jitter.ExponentialBackoff(baseJitter, maxJitter, attempt, jitter.DefaultJitter)
		m.logger.Warnf("vectorization failed, retrying in %v (attempt %d)", sleepTime, attempt+1)
		if err := jitter.Sleep(ctx, sleepTime); err != nil {
			return nil, e.Wrap(op, err)
		}
	}

	return nil, e.Wrap(op, fmt.Errorf("all attempts failed: %w", lastErr))
}

// encodeBatch отправляет изображения параллельно с ограничением конкурентности.
// Порядок строк результата совпадает с порядком изображений.
func (m *MLService) encodeBatch(ctx context.Context, payloads [][]byte) ([][]float32, error) {
	const op = "MLService.encodeBatch"

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	vectors := make([][]float32, len(payloads))
	errCh := make(chan error, len(payloads))
	sem := make(chan struct{}, m.maxConcurrent)

	var wg sync.WaitGroup
	for i, data := range payloads {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			vec, err := m.encodeOne(ctx, data)
			if err != nil {
				errCh <- err
				cancel()
				return
			}
			vectors[i] = vec
		}()
	}

	wg.Wait()
	close(errCh)

	if err, ok := <-errCh; ok {
		return nil, e.Wrap(op, err)
	}

	return vectors, nil
}

func (m *MLService) encodeOne(ctx context.Context, data []byte) ([]float32, error) {
	if m.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}

	if m.device != "" && m.device != domain.DeviceAuto {
		ctx = metadata.AppendToOutgoingContext(ctx, "x-encoder-device", string(m.device))
	}

	res := &structpb.Struct{}
	if err := m.conn.Invoke(ctx, EncodeMethod, wrapperspb.Bytes(data), res); err != nil {
		return nil, err
	}

	raw, ok := res.GetFields()["vector"]
	if !ok {
		return nil, e.ErrVectorEmbeddingEmpty
	}
	values := raw.GetListValue().GetValues()
	if len(values) == 0 {
		return nil, e.ErrVectorEmbeddingEmpty
	}

	vec := make([]float32, len(values))
	for i, v := range values {
		vec[i] = float32(v.GetNumberValue())
	}

	if version := res.GetFields()["model_version"].GetStringValue(); version != "" {
		m.logger.Debugf("encoded image with model %s", version)
	}

	return vec, nil
}

func retryable(err error) bool {
	switch status.Code(err) {
	case codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted, codes.Aborted:
		return true
	default:
		return false
	}
}
