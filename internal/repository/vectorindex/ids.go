package vectorindex

import (
	"io"

	"github.com/sbinet/npyio"
)

// Идентификаторы хранятся одномерным массивом <i8 в формате NumPy.
func writeIDs(w io.Writer, ids []int64) error {
	if ids == nil {
		ids = []int64{}
	}

	return npyio.Write(w, ids)
}

func readIDs(r io.Reader) ([]int64, error) {
	var ids []int64
	if err := npyio.Read(r, &ids); err != nil {
		return nil, err
	}

	return ids, nil
}
