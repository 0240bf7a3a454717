package filesystem

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/DRSN-tech/image-search/pkg/e"
	"github.com/jimlawless/whereami"
)

// MediaRepo открывает файлы изображений из локального медиа-каталога.
type MediaRepo struct {
	root string
}

func NewMediaRepo(root string) *MediaRepo {
	return &MediaRepo{root: root}
}

// Open открывает файл key относительно корня. Выход за пределы корня запрещён.
func (m *MediaRepo) Open(_ context.Context, key string) (io.ReadCloser, error) {
	clean := filepath.Clean("/" + strings.TrimLeft(key, "/"))
	path := filepath.Join(m.root, clean)

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, e.Wrap(key, e.ErrMediaNotFound)
		}
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	return f, nil
}
