package e

import "fmt"

var (
	// Конфигурация и инициализация
	ErrIncorrectEnvVariable = fmt.Errorf("incorrect environment variable")
	ErrEncoderUnavailable   = fmt.Errorf("image encoder is not initialized")
	ErrUnknownDevice        = fmt.Errorf("unknown encoder device")
	ErrUnknownBackend       = fmt.Errorf("unknown backend")

	// Внутренние ошибки с транзакциями
	ErrTransactionNotFound = fmt.Errorf("transaction not found")

	// Внутренние ошибки с векторами и индексом
	ErrEmptyVectors         = fmt.Errorf("empty vectors")
	ErrVectorEmbeddingEmpty = fmt.Errorf("vector embedding is empty")
	ErrImageVectorMismatch  = fmt.Errorf("image vector mismatch")
	ErrDimensionMismatch    = fmt.Errorf("vector dimension mismatch")
	ErrNotUnitVector        = fmt.Errorf("vector is not unit-normalized")
	ErrDuplicateID          = fmt.Errorf("product id already present in index")
	ErrEmptyRebuild         = fmt.Errorf("refusing to rebuild index from zero vectors")
	ErrIndexNotInitialized  = fmt.Errorf("index not initialized")
	ErrIndexInvariant       = fmt.Errorf("index invariant violated, rebuild required")
	ErrIndexFormat          = fmt.Errorf("unsupported index file format")
	ErrJobLocked            = fmt.Errorf("another index job is already running")

	// Каталог
	ErrProductUnavailable = fmt.Errorf("product not found or inactive")
	ErrEmptyCatalog       = fmt.Errorf("catalog has no active products")
	ErrCatalogUnavailable = fmt.Errorf("catalog is not available")
	ErrInvalidProductID   = fmt.Errorf("invalid product id")
	ErrCacheMismatch      = fmt.Errorf("cached product does not match its key")

	// Загрузка изображений
	ErrFetchUnreachable  = fmt.Errorf("image source unreachable")
	ErrFetchBadStatus    = fmt.Errorf("image source returned bad status")
	ErrFetchDecode       = fmt.Errorf("image decode failed")
	ErrFetchLocalMissing = fmt.Errorf("local image file missing")
	ErrMediaNotFound     = fmt.Errorf("media object not found")

	// Перцептивный хэш
	ErrFingerprintLength = fmt.Errorf("fingerprints have different length")
	ErrFingerprintFormat = fmt.Errorf("fingerprint is not a hex string")

	// 400 Bad Request
	ErrStatusBadRequest     = fmt.Errorf("bad request")
	ErrExpectedMultipart    = fmt.Errorf("expected multipart/form-data")
	ErrNoImage              = fmt.Errorf("no image provided")
	ErrEmptyUpload          = fmt.Errorf("uploaded image is empty")
	ErrInvalidImage         = fmt.Errorf("uploaded file is not a valid image")
	ErrFileTooLarge         = fmt.Errorf("file is too large")
	ErrUnsupportedMediaType = fmt.Errorf("unsupported media type")
	ErrInvalidSearchParams  = fmt.Errorf("invalid search parameters")

	// 500 Internal Server Error
	ErrInternalServerError = fmt.Errorf("internal server error")
)

// Wrap оборачивает ошибку
func Wrap(msg string, err error) error {
	return fmt.Errorf("%s: %w", msg, err)
}
