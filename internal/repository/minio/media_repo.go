package minio

import (
	"context"
	"io"
	"strings"

	"github.com/DRSN-tech/image-search/internal/domain"
	"github.com/DRSN-tech/image-search/pkg/e"
	"github.com/jimlawless/whereami"
	"github.com/minio/minio-go/v7"
)

// MediaRepo реализует хранилище изображений и снапшотов поверх MinIO.
type MediaRepo struct {
	mc     *minio.Client
	bucket string
}

func NewMediaRepo(mc *minio.Client, bucket string) *MediaRepo {
	return &MediaRepo{
		mc:     mc,
		bucket: bucket,
	}
}

func (m *MediaRepo) Bucket() string {
	return m.bucket
}

// Open возвращает поток объекта. Для отсутствующего ключа возвращает e.ErrMediaNotFound.
func (m *MediaRepo) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	key = strings.TrimLeft(key, "/")

	obj, err := m.mc.GetObject(ctx, m.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	// GetObject ленивый: ошибка отсутствия ключа приходит только при Stat или чтении
	if _, err := obj.Stat(); err != nil {
		obj.Close()
		if isNotFound(err) {
			return nil, e.Wrap(key, e.ErrMediaNotFound)
		}
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	return obj, nil
}

// Upload загружает объект в MinIO и возвращает его ключ.
func (m *MediaRepo) Upload(ctx context.Context, object *domain.MediaObject, r io.Reader) (string, error) {
	info, err := m.mc.PutObject(ctx, object.Bucket, object.ObjectKey, r, object.Size, minio.PutObjectOptions{
		ContentType: object.ContentType,
	})
	if err != nil {
		return "", e.Wrap(whereami.WhereAmI(), err)
	}

	return info.Key, nil
}

// Delete удаляет объект из MinIO по указанному ключу.
func (m *MediaRepo) Delete(ctx context.Context, key string) error {
	if err := m.mc.RemoveObject(ctx, m.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return e.Wrap(whereami.WhereAmI(), err)
	}

	return nil
}

func isNotFound(err error) bool {
	code := minio.ToErrorResponse(err).Code
	return code == "NoSuchKey" || code == "NoSuchBucket"
}
