package filesystem

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/DRSN-tech/image-search/internal/usecase"
	"github.com/DRSN-tech/image-search/pkg/e"
	"github.com/DRSN-tech/image-search/pkg/logger"
	"github.com/jimlawless/whereami"
)

// LockRepo блокирует задачи индексации эксклюзивным созданием файла.
// Используется, когда Redis не настроен.
type LockRepo struct {
	path   string
	logger logger.Logger
}

func NewLockRepo(path string, logger logger.Logger) *LockRepo {
	return &LockRepo{path: path, logger: logger}
}

func (l *LockRepo) Acquire(_ context.Context, key string) (usecase.Unlock, error) {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			owner, _ := os.ReadFile(l.path)
			l.logger.Warnf("index lock %s is held: %s", l.path, owner)
			return nil, e.Wrap(key, e.ErrJobLocked)
		}
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	_, _ = fmt.Fprintf(f, "pid=%d job=%s since=%s\n", os.Getpid(), key, time.Now().UTC().Format(time.RFC3339))
	if err := f.Close(); err != nil {
		_ = os.Remove(l.path)
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	return func(context.Context) error {
		if err := os.Remove(l.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return e.Wrap(whereami.WhereAmI(), err)
		}
		return nil
	}, nil
}
