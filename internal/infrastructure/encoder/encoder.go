package encoder

import (
	"context"
	"fmt"
	"image"
	"sync"
	"sync/atomic"

	"github.com/DRSN-tech/image-search/internal/domain"
	"github.com/DRSN-tech/image-search/pkg/e"
	"github.com/DRSN-tech/image-search/pkg/logger"
	"github.com/jimlawless/whereami"
)

const (
	DefaultBatchSize = 16
	MaxBatchSize     = 32
)

// Backend выполняет прямой проход модели и возвращает сырые признаки по строке на изображение.
type Backend interface {
	Encode(ctx context.Context, batch []image.Image) ([][]float32, error)
	Close() error
}

// Loader загружает модель на указанном устройстве.
type Loader func(ctx context.Context, device domain.Device) (Backend, error)

// Encoder загружает модель один раз на процесс и кодирует изображения.
// Модель поднимается лениво при первом обращении и разделяется между горутинами.
type Encoder struct {
	load      Loader
	preferred domain.Device
	batchSize int
	logger    logger.Logger

	once    sync.Once
	ready   atomic.Bool
	backend Backend
	device  domain.Device
	err     error
}

func NewEncoder(load Loader, device domain.Device, batchSize int, logger logger.Logger) *Encoder {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if batchSize > MaxBatchSize {
		batchSize = MaxBatchSize
	}
	if device == "" {
		device = domain.DeviceAuto
	}

	return &Encoder{
		load:      load,
		preferred: device,
		batchSize: batchSize,
		logger:    logger,
	}
}

// EnsureReady загружает модель. Если предпочтительное устройство не поднялось,
// выполняется ровно одна повторная попытка на CPU. Ошибка запоминается навсегда.
func (enc *Encoder) EnsureReady(ctx context.Context) error {
	enc.once.Do(func() {
		device := enc.preferred
		if device == domain.DeviceAuto {
			device = DetectDevice()
		}

		backend, err := enc.load(ctx, device)
		if err != nil && device != domain.DeviceCPU {
			enc.logger.Warnf("failed to load encoder on %s, falling back to cpu: %v", device, err)
			device = domain.DeviceCPU
			backend, err = enc.load(ctx, device)
		}
		if err != nil {
			enc.logger.Errorf(err, "image encoder is unavailable")
			enc.err = fmt.Errorf("%w: %v", e.ErrEncoderUnavailable, err)
			return
		}

		enc.backend = backend
		enc.device = device
		enc.ready.Store(true)
		enc.logger.Infof("image encoder loaded on %s", device)
	})

	if enc.err != nil {
		return e.Wrap(whereami.WhereAmI(), enc.err)
	}

	return nil
}

// Device возвращает устройство, на котором загружена модель.
// До EnsureReady возвращает пустое значение.
func (enc *Encoder) Device() domain.Device {
	if !enc.ready.Load() {
		return ""
	}

	return enc.device
}

func (enc *Encoder) BatchSize() int {
	return enc.batchSize
}

// EncodeOne кодирует одно изображение в единичный вектор.
func (enc *Encoder) EncodeOne(ctx context.Context, img image.Image) (domain.Vector, error) {
	vectors, err := enc.EncodeBatch(ctx, []image.Image{img})
	if err != nil {
		return nil, err
	}

	return vectors[0], nil
}

// EncodeBatch кодирует изображения порциями по batchSize.
// Контекст проверяется между порциями, внутри порции вычисление не прерывается.
// Строки с нулевой нормой или чужой размерностью не прерывают пачку: на их месте nil,
// а ошибка имеет тип domain.RowErrors.
func (enc *Encoder) EncodeBatch(ctx context.Context, imgs []image.Image) ([]domain.Vector, error) {
	if err := enc.EnsureReady(ctx); err != nil {
		return nil, err
	}
	if len(imgs) == 0 {
		return nil, e.Wrap(whereami.WhereAmI(), e.ErrEmptyVectors)
	}

	out := make([]domain.Vector, len(imgs))
	bad := make(domain.RowErrors)
	for start := 0; start < len(imgs); start += enc.batchSize {
		if err := ctx.Err(); err != nil {
			return nil, e.Wrap(whereami.WhereAmI(), err)
		}

		end := min(start+enc.batchSize, len(imgs))
		rows, err := enc.backend.Encode(ctx, imgs[start:end])
		if err != nil {
			return nil, e.Wrap(whereami.WhereAmI(), err)
		}
		if len(rows) != end-start {
			return nil, e.Wrap(whereami.WhereAmI(), e.ErrImageVectorMismatch)
		}

		for i, row := range rows {
			if len(row) != domain.Dim {
				bad[start+i] = fmt.Errorf("image %d: %w: got %d", start+i, e.ErrDimensionMismatch, len(row))
				continue
			}
			v, err := domain.Vector(row).Normalize()
			if err != nil {
				bad[start+i] = fmt.Errorf("image %d has zero-norm features: %w", start+i, err)
				continue
			}
			out[start+i] = v
		}
	}

	if len(bad) > 0 {
		return out, bad
	}

	return out, nil
}

func (enc *Encoder) Close() error {
	if !enc.ready.Load() {
		return nil
	}

	return enc.backend.Close()
}
