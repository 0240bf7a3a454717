package usecase

import (
	"context"
	"image"
	"io"

	"github.com/DRSN-tech/image-search/internal/domain"
)

// MediaStore открывает сохранённые файлы изображений по относительному пути.
// Для отсутствующего объекта возвращается e.ErrMediaNotFound.
type MediaStore interface {
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

type ImageFetcher interface {
	Fetch(ctx context.Context, ref string) (image.Image, error)
	DownloadTo(ctx context.Context, ref string, path string) error
	DecodeFile(path string) (image.Image, error)
}

type Encoder interface {
	EnsureReady(ctx context.Context) error
	EncodeOne(ctx context.Context, img image.Image) (domain.Vector, error)
	EncodeBatch(ctx context.Context, imgs []image.Image) ([]domain.Vector, error)
	Device() domain.Device
	BatchSize() int
}

type Fingerprinter interface {
	FromImage(img image.Image) (domain.Fingerprint, error)
	PHash(ctx context.Context, ref string) (domain.Fingerprint, bool)
	// PHashMany возвращает отпечатки в порядке refs; пустой означает, что посчитать не удалось.
	PHashMany(ctx context.Context, refs []string) []domain.Fingerprint
}

// EventPublisher публикует события жизненного цикла индекса.
type EventPublisher interface {
	Publish(ctx context.Context, event domain.IndexEvent) error
}

// SnapshotStore хранит копии пары файлов индекса во внешнем хранилище.
type SnapshotStore interface {
	UploadSnapshot(ctx context.Context, indexPath, idsPath string) (string, error)
}
