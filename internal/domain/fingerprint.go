package domain

import (
	"math/bits"

	"github.com/DRSN-tech/image-search/pkg/e"
)

// DefaultDuplicateThreshold — порог расстояния Хэмминга для «того же изображения».
const DefaultDuplicateThreshold = 5

// Fingerprint — 64-битный перцептивный хэш в виде 16 hex-символов.
type Fingerprint string

// ProductFingerprint связывает товар с отпечатком его изображения.
type ProductFingerprint struct {
	ProductID   int64
	Fingerprint Fingerprint
	ImageRef    string
}

// Hamming считает число различающихся бит двух hex-строк одинаковой длины.
func Hamming(a, b Fingerprint) (int, error) {
	if len(a) != len(b) {
		return 0, e.ErrFingerprintLength
	}

	dist := 0
	for i := 0; i < len(a); i++ {
		x, ok := hexNibble(a[i])
		if !ok {
			return 0, e.ErrFingerprintFormat
		}
		y, ok := hexNibble(b[i])
		if !ok {
			return 0, e.ErrFingerprintFormat
		}
		dist += bits.OnesCount8(x ^ y)
	}

	return dist, nil
}

// Same сообщает, что два отпечатка относятся к одному изображению.
func Same(a, b Fingerprint, threshold int) bool {
	d, err := Hamming(a, b)
	if err != nil {
		return false
	}

	return d <= threshold
}

func hexNibble(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	default:
		return 0, false
	}
}
