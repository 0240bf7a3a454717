package fetcher

import (
	"context"
	"errors"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"io/fs"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/DRSN-tech/image-search/internal/domain"
	"github.com/DRSN-tech/image-search/internal/usecase"
	"github.com/DRSN-tech/image-search/pkg/e"
	"github.com/DRSN-tech/image-search/pkg/logger"
	"github.com/jimlawless/whereami"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
	"golang.org/x/sync/errgroup"
)

type Config struct {
	Timeout     time.Duration
	UserAgent   string
	Referer     string
	MediaURL    string // Префикс URL медиа-файлов, например /media/
	Concurrency int    // Для FetchMany
}

// Fetcher загружает изображения товаров по ссылкам трёх видов:
// http(s), абсолютный путь на сервере и путь относительно медиа-хранилища.
type Fetcher struct {
	client *http.Client
	media  usecase.MediaStore
	cfg    Config
	logger logger.Logger
}

func NewFetcher(cfg Config, media usecase.MediaStore, logger logger.Logger) *Fetcher {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}

	return &Fetcher{
		client: &http.Client{Timeout: cfg.Timeout},
		media:  media,
		cfg:    cfg,
		logger: logger,
	}
}

// Open возвращает поток байтов изображения. Вызывающий закрывает поток.
func (f *Fetcher) Open(ctx context.Context, ref string) (io.ReadCloser, error) {
	r := domain.ParseImageRef(ref)

	switch r.Kind {
	case domain.ImageRefRemote:
		return f.openRemote(ctx, r.Raw)
	case domain.ImageRefAbsolute:
		return f.openAbsolute(ctx, r.Raw)
	case domain.ImageRefRelative:
		return f.openMedia(ctx, r.Raw, r.Raw)
	default:
		return nil, newFetchError(ErrLocalMissing, ref, errors.New("empty image reference"))
	}
}

func (f *Fetcher) openRemote(ctx context.Context, ref string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
	if err != nil {
		return nil, newFetchError(ErrUnreachable, ref, err)
	}
	req.Header.Set("User-Agent", f.cfg.UserAgent)
	req.Header.Set("Referer", f.cfg.Referer)
	req.Header.Set("Accept", "image/avif,image/webp,image/apng,image/*,*/*;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, newFetchError(ErrUnreachable, ref, err)
	}

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		resp.Body.Close()
		return nil, &FetchError{Kind: ErrBadStatus, Ref: ref, Status: resp.StatusCode}
	}

	return resp.Body, nil
}

func (f *Fetcher) openAbsolute(ctx context.Context, ref string) (io.ReadCloser, error) {
	file, err := os.Open(ref)
	if err == nil {
		return file, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, newFetchError(ErrLocalMissing, ref, err)
	}

	// /media/... хранится в медиа-хранилище, а не в корне файловой системы
	if f.cfg.MediaURL != "" && strings.HasPrefix(ref, f.cfg.MediaURL) {
		return f.openMedia(ctx, ref, strings.TrimPrefix(ref, f.cfg.MediaURL))
	}

	return nil, newFetchError(ErrLocalMissing, ref, err)
}

func (f *Fetcher) openMedia(ctx context.Context, ref, key string) (io.ReadCloser, error) {
	if f.media == nil {
		return nil, newFetchError(ErrLocalMissing, ref, errors.New("media store is not configured"))
	}

	rc, err := f.media.Open(ctx, key)
	if err != nil {
		if errors.Is(err, e.ErrMediaNotFound) {
			return nil, newFetchError(ErrLocalMissing, ref, err)
		}
		return nil, newFetchError(ErrUnreachable, ref, err)
	}

	return rc, nil
}

// Fetch загружает и декодирует изображение, приводя его к 8-битному RGB.
func (f *Fetcher) Fetch(ctx context.Context, ref string) (image.Image, error) {
	rc, err := f.Open(ctx, ref)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	return decode(rc, ref)
}

// DownloadTo сохраняет байты изображения в файл path.
func (f *Fetcher) DownloadTo(ctx context.Context, ref string, path string) error {
	rc, err := f.Open(ctx, ref)
	if err != nil {
		return err
	}
	defer rc.Close()

	out, err := os.Create(path)
	if err != nil {
		return e.Wrap(whereami.WhereAmI(), err)
	}

	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		return newFetchError(ErrUnreachable, ref, err)
	}

	if err := out.Close(); err != nil {
		return e.Wrap(whereami.WhereAmI(), err)
	}

	return nil
}

// DecodeFile декодирует изображение из локального файла.
func (f *Fetcher) DecodeFile(path string) (image.Image, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, newFetchError(ErrLocalMissing, path, err)
	}
	defer file.Close()

	return decode(file, path)
}

// FetchMany загружает изображения параллельно. Результаты идут в порядке refs.
func (f *Fetcher) FetchMany(ctx context.Context, refs []string) []usecase.FetchResult {
	results := make([]usecase.FetchResult, len(refs))

	var g errgroup.Group
	g.SetLimit(f.cfg.Concurrency)
	for i, ref := range refs {
		g.Go(func() error {
			img, err := f.Fetch(ctx, ref)
			results[i] = usecase.NewFetchResult(ref, img, err)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

func decode(r io.Reader, ref string) (image.Image, error) {
	img, _, err := image.Decode(r)
	if err != nil {
		return nil, newFetchError(ErrDecodeFailed, ref, err)
	}

	return ToRGB(img), nil
}

// ToRGB копирует изображение в непрозрачный NRGBA с началом координат в (0,0).
// Альфа-канал отбрасывается без смешивания с фоном.
func ToRGB(img image.Image) *image.NRGBA {
	b := img.Bounds()
	out := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(out, out.Bounds(), img, b.Min, draw.Src)

	for i := 3; i < len(out.Pix); i += 4 {
		out.Pix[i] = 0xff
	}

	return out
}
