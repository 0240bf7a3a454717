package vectorindex

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/DRSN-tech/image-search/pkg/e"
)

// Заголовок плоского индекса скалярного произведения в формате FAISS (IndexFlatIP).
const (
	fourccFlatIP    = "IxFI"
	metricInnerProd = int32(0)
	headerDummy     = int64(1 << 20)
)

var le = binary.LittleEndian

// writeFlatIP записывает матрицу ntotal×dim в формате, который читает faiss.read_index.
func writeFlatIP(w io.Writer, dim int, flat []float32) error {
	bw := bufio.NewWriter(w)
	ntotal := int64(0)
	if dim > 0 {
		ntotal = int64(len(flat) / dim)
	}

	header := []any{
		[]byte(fourccFlatIP),
		int32(dim),
		ntotal,
		headerDummy,
		headerDummy,
		uint8(1), // is_trained
		metricInnerProd,
		uint64(len(flat)),
	}
	for _, v := range header {
		if err := binary.Write(bw, le, v); err != nil {
			return err
		}
	}

	if err := binary.Write(bw, le, flat); err != nil {
		return err
	}

	return bw.Flush()
}

// readFlatIP читает индекс, записанный writeFlatIP или FAISS.
func readFlatIP(r io.Reader) (int, []float32, error) {
	br := bufio.NewReader(r)

	fourcc := make([]byte, 4)
	if _, err := io.ReadFull(br, fourcc); err != nil {
		return 0, nil, e.Wrap("read fourcc", err)
	}
	if string(fourcc) != fourccFlatIP {
		return 0, nil, fmt.Errorf("%w: fourcc %q", e.ErrIndexFormat, fourcc)
	}

	var (
		dim       int32
		ntotal    int64
		dummy1    int64
		dummy2    int64
		isTrained uint8
		metric    int32
		size      uint64
	)
	for _, v := range []any{&dim, &ntotal, &dummy1, &dummy2, &isTrained, &metric} {
		if err := binary.Read(br, le, v); err != nil {
			return 0, nil, e.Wrap("read header", err)
		}
	}
	if metric != metricInnerProd {
		return 0, nil, fmt.Errorf("%w: metric %d", e.ErrIndexFormat, metric)
	}
	if err := binary.Read(br, le, &size); err != nil {
		return 0, nil, e.Wrap("read payload size", err)
	}
	if dim <= 0 || ntotal < 0 || size != uint64(ntotal)*uint64(dim) {
		return 0, nil, fmt.Errorf("%w: d=%d ntotal=%d floats=%d", e.ErrIndexFormat, dim, ntotal, size)
	}

	flat := make([]float32, size)
	if err := binary.Read(br, le, flat); err != nil {
		return 0, nil, e.Wrap("read payload", err)
	}

	return int(dim), flat, nil
}
