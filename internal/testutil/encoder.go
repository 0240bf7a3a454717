package testutil

import (
	"context"
	"errors"
	"image"
	"slices"
	"sync"

	"github.com/DRSN-tech/image-search/internal/domain"
	"github.com/DRSN-tech/image-search/internal/infrastructure/encoder"
	"github.com/DRSN-tech/image-search/pkg/logger"
)

// gridSide: сторона сетки усреднения цветов.
const gridSide = 8

// ErrDeviceUnavailable возвращает загрузчик на «сломанных» устройствах.
var ErrDeviceUnavailable = errors.New("device unavailable")

// GridBackend — детерминированный энкодер: средние цвета ячеек сетки 8×8,
// смещённые на -0.5, и постоянный признак в последней координате.
// ZeroRow и FailBatch задаются до первого Encode.
type GridBackend struct {
	// ZeroRow отмечает изображения, для которых возвращается нулевая строка.
	ZeroRow func(img image.Image) bool
	// FailBatch отмечает пачки, на которых прямой проход падает целиком.
	FailBatch func(batch []image.Image) bool

	mu     sync.Mutex
	calls  int
	closed bool
}

// ErrBatchFailed возвращает GridBackend на пачках, отмеченных FailBatch.
var ErrBatchFailed = errors.New("forward pass failed")

func (g *GridBackend) Encode(ctx context.Context, batch []image.Image) ([][]float32, error) {
	g.mu.Lock()
	g.calls++
	g.mu.Unlock()

	if g.FailBatch != nil && g.FailBatch(batch) {
		return nil, ErrBatchFailed
	}

	rows := make([][]float32, len(batch))
	for i, img := range batch {
		if g.ZeroRow != nil && g.ZeroRow(img) {
			rows[i] = make([]float32, domain.Dim)
			continue
		}
		rows[i] = GridFeatures(img)
	}

	return rows, nil
}

func (g *GridBackend) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.closed = true
	return nil
}

// Calls возвращает число вызовов Encode.
func (g *GridBackend) Calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

func (g *GridBackend) Closed() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.closed
}

// GridFeatures возвращает сырые (ненормированные) признаки изображения.
func GridFeatures(img image.Image) []float32 {
	b := img.Bounds()
	v := make([]float32, domain.Dim)

	for gy := 0; gy < gridSide; gy++ {
		for gx := 0; gx < gridSide; gx++ {
			x0 := b.Min.X + gx*b.Dx()/gridSide
			x1 := b.Min.X + (gx+1)*b.Dx()/gridSide
			y0 := b.Min.Y + gy*b.Dy()/gridSide
			y1 := b.Min.Y + (gy+1)*b.Dy()/gridSide

			var r, g, bl, n float64
			for y := y0; y < max(y1, y0+1); y++ {
				for x := x0; x < max(x1, x0+1); x++ {
					cr, cg, cb, _ := img.At(x, y).RGBA()
					r += float64(cr) / 0xffff
					g += float64(cg) / 0xffff
					bl += float64(cb) / 0xffff
					n++
				}
			}

			base := (gy*gridSide + gx) * 3
			v[base] = float32(r/n - 0.5)
			v[base+1] = float32(g/n - 0.5)
			v[base+2] = float32(bl/n - 0.5)
		}
	}
	v[domain.Dim-1] = 0.1

	return v
}

// Loader — управляемый загрузчик для тестов энкодера.
type Loader struct {
	mu      sync.Mutex
	broken  []domain.Device
	devices []domain.Device
	Backend *GridBackend
}

// NewLoader возвращает загрузчик, который падает на перечисленных устройствах.
func NewLoader(broken ...domain.Device) *Loader {
	return &Loader{broken: broken, Backend: &GridBackend{}}
}

func (l *Loader) Load(_ context.Context, device domain.Device) (encoder.Backend, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.devices = append(l.devices, device)
	if slices.Contains(l.broken, device) {
		return nil, ErrDeviceUnavailable
	}

	return l.Backend, nil
}

// Attempts возвращает устройства в порядке попыток загрузки.
func (l *Loader) Attempts() []domain.Device {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Clone(l.devices)
}

// NewGridEncoder возвращает энкодер на CPU поверх заданного backend.
func NewGridEncoder(backend *GridBackend, batchSize int) *encoder.Encoder {
	load := func(context.Context, domain.Device) (encoder.Backend, error) { return backend, nil }
	return encoder.NewEncoder(load, domain.DeviceCPU, batchSize, logger.NewNopLogger())
}

// NewEncoder возвращает энкодер на CPU поверх GridBackend.
func NewEncoder(batchSize int) *encoder.Encoder {
	return encoder.NewEncoder(NewLoader().Load, domain.DeviceCPU, batchSize, logger.NewNopLogger())
}
