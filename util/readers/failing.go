package readers

import (
	"io"
)

// FailAfter reads up to n bytes from r, then fails every read with err
func FailAfter(r io.Reader, n int64, err error) io.Reader {
	return &failingReader{
		r:   io.LimitReader(r, n),
		err: err,
	}
}

type failingReader struct {
	r   io.Reader
	err error
}

func (f *failingReader) Read(p []byte) (int, error) {
	n, err := f.r.Read(p)

	if err == io.EOF {
		if n > 0 {
			return n, nil
		}
		return 0, f.err
	}

	return n, err
}

// Flipped returns a copy of data with the byte at offset inverted
func Flipped(data []byte, offset int) []byte {
	result := make([]byte, len(data))
	copy(result, data)
	result[offset] = ^result[offset]
	return result
}
