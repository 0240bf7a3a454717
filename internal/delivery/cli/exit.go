package cli

import (
	"errors"

	"github.com/DRSN-tech/image-search/pkg/e"
	"github.com/DRSN-tech/image-search/pkg/logger"
)

const (
	ExitOK    = 0
	ExitError = 1
)

// ExitCode переводит ошибку команды в код выхода процесса.
// Пустой или недоступный каталог не считается ошибкой.
func ExitCode(err error, logger logger.Logger) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, e.ErrEmptyCatalog), errors.Is(err, e.ErrCatalogUnavailable):
		logger.Warnf("%v", err)
		return ExitOK
	default:
		logger.Errorf(err, "command failed")
		return ExitError
	}
}
