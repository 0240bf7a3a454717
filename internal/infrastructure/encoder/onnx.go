package encoder

import (
	"context"
	"fmt"
	"image"
	"sync"

	"github.com/DRSN-tech/image-search/internal/domain"
	"github.com/DRSN-tech/image-search/pkg/e"
	"github.com/jimlawless/whereami"
	ort "github.com/yalue/onnxruntime_go"
)

// ONNXConfig описывает экспортированную визуальную часть CLIP.
type ONNXConfig struct {
	ModelPath    string
	LibraryPath  string
	InputName    string
	OutputName   string
	ImageSide    int
	IntraThreads int
}

var envOnce sync.Once

// initEnvironment инициализирует ONNX Runtime один раз на процесс.
func initEnvironment(libraryPath string) error {
	var err error
	envOnce.Do(func() {
		if libraryPath != "" {
			ort.SetSharedLibraryPath(libraryPath)
		}
		err = ort.InitializeEnvironment()
	})
	if err == nil && !ort.IsInitialized() {
		err = fmt.Errorf("onnxruntime environment is not initialized")
	}

	return err
}

// ONNXBackend выполняет модель через ONNX Runtime с динамическим размером батча.
type ONNXBackend struct {
	cfg     ONNXConfig
	session *ort.DynamicAdvancedSession
	// ONNX Runtime допускает параллельные Run, но буферы препроцессинга общие.
	mu sync.Mutex
}

// NewONNXLoader возвращает Loader, создающий сессию на нужном execution provider.
func NewONNXLoader(cfg ONNXConfig) Loader {
	return func(_ context.Context, device domain.Device) (Backend, error) {
		if err := initEnvironment(cfg.LibraryPath); err != nil {
			return nil, e.Wrap(whereami.WhereAmI(), err)
		}

		opts, err := ort.NewSessionOptions()
		if err != nil {
			return nil, e.Wrap(whereami.WhereAmI(), err)
		}
		defer opts.Destroy()

		if cfg.IntraThreads > 0 {
			if err := opts.SetIntraOpNumThreads(cfg.IntraThreads); err != nil {
				return nil, e.Wrap(whereami.WhereAmI(), err)
			}
		}

		switch device {
		case domain.DeviceCUDA:
			cudaOpts, err := ort.NewCUDAProviderOptions()
			if err != nil {
				return nil, e.Wrap(whereami.WhereAmI(), err)
			}
			defer cudaOpts.Destroy()
			if err := opts.AppendExecutionProviderCUDA(cudaOpts); err != nil {
				return nil, e.Wrap(whereami.WhereAmI(), err)
			}
		case domain.DeviceMPS:
			if err := opts.AppendExecutionProviderCoreML(0); err != nil {
				return nil, e.Wrap(whereami.WhereAmI(), err)
			}
		case domain.DeviceCPU:
		default:
			return nil, e.Wrap(string(device), e.ErrUnknownDevice)
		}

		session, err := ort.NewDynamicAdvancedSession(
			cfg.ModelPath,
			[]string{cfg.InputName},
			[]string{cfg.OutputName},
			opts,
		)
		if err != nil {
			return nil, e.Wrap(whereami.WhereAmI(), err)
		}

		return &ONNXBackend{cfg: cfg, session: session}, nil
	}
}

func (b *ONNXBackend) Encode(_ context.Context, batch []image.Image) ([][]float32, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := len(batch)
	side := b.cfg.ImageSide
	per := 3 * side * side

	pixels := make([]float32, n*per)
	for i, img := range batch {
		Preprocess(img, side, pixels[i*per:(i+1)*per])
	}

	input, err := ort.NewTensor(ort.NewShape(int64(n), 3, int64(side), int64(side)), pixels)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}
	defer input.Destroy()

	output, err := ort.NewEmptyTensor[float32](ort.NewShape(int64(n), domain.Dim))
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}
	defer output.Destroy()

	if err := b.session.Run([]ort.Value{input}, []ort.Value{output}); err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	data := output.GetData()
	rows := make([][]float32, n)
	for i := range rows {
		row := make([]float32, domain.Dim)
		copy(row, data[i*domain.Dim:(i+1)*domain.Dim])
		rows[i] = row
	}

	return rows, nil
}

func (b *ONNXBackend) Close() error {
	return b.session.Destroy()
}
