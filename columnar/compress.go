package columnar

import (
	"bytes"
	"io"

	"github.com/pierrec/lz4/v4"
)

// compress LZ4-frames data; every per-column value and bitmap index is
// stored through it, so all of them are LZ4-compressed (there is no flag
// byte and no uncompressed mode).
func compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := lz4.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		w.Close()
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decompress(data []byte) ([]byte, error) {
	r := lz4.NewReader(bytes.NewReader(data))
	return io.ReadAll(r)
}
