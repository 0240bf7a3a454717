package domain

// MediaObject описывает объект, который хранится в S3
type MediaObject struct {
	Bucket      string
	ObjectKey   string
	Size        int64 // -1, если размер потока неизвестен
	ContentType string
}

func NewMediaObject(bucket, objectKey string, size int64, contentType string) *MediaObject {
	return &MediaObject{
		Bucket:      bucket,
		ObjectKey:   objectKey,
		Size:        size,
		ContentType: contentType,
	}
}
