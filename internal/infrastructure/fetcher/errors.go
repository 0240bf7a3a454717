package fetcher

import (
	"fmt"
	"net/http"

	"github.com/DRSN-tech/image-search/pkg/e"
)

// Виды ошибок загрузки. Сравниваются через errors.Is.
var (
	ErrUnreachable  = e.ErrFetchUnreachable
	ErrBadStatus    = e.ErrFetchBadStatus
	ErrDecodeFailed = e.ErrFetchDecode
	ErrLocalMissing = e.ErrFetchLocalMissing
)

// FetchError описывает неудачную загрузку одного изображения
type FetchError struct {
	Kind   error
	Ref    string
	Status int // HTTP-статус для ErrBadStatus
	Err    error
}

func (f *FetchError) Error() string {
	switch {
	case f.Status != 0:
		return fmt.Sprintf("%v: %s: status %d", f.Kind, f.Ref, f.Status)
	case f.Err != nil:
		return fmt.Sprintf("%v: %s: %v", f.Kind, f.Ref, f.Err)
	default:
		return fmt.Sprintf("%v: %s", f.Kind, f.Ref)
	}
}

func (f *FetchError) Is(target error) bool {
	return target == f.Kind
}

func (f *FetchError) Unwrap() error {
	return f.Err
}

// Temporary сообщает, имеет ли смысл повторить загрузку.
func (f *FetchError) Temporary() bool {
	switch f.Kind {
	case ErrUnreachable:
		return true
	case ErrBadStatus:
		return f.Status >= http.StatusInternalServerError || f.Status == http.StatusTooManyRequests
	default:
		return false
	}
}

func newFetchError(kind error, ref string, err error) *FetchError {
	return &FetchError{Kind: kind, Ref: ref, Err: err}
}
