package readers

import (
	"io"
)

// nonRepeatingReader is a xorshift64* generator. It *should* produce a sequence of bytes without
// repeated blocks in a deterministic fashion, so that every block of an index is distinct.
// use io.LimitReader to limit it to a specific length
type nonRepeatingReader struct {
	state uint64
}

func NewNonRepeatingSequence(seed int) io.Reader {
	// xorshift never leaves the zero state
	return &nonRepeatingReader{state: uint64(seed)*0x9E3779B97F4A7C15 + 1}
}

func NewSizedNonRepeatingSequence(seed int, s int64) io.Reader {
	return io.LimitReader(NewNonRepeatingSequence(seed), s)
}

// NonRepeatingBytes is a convenience for tests that need the sequence in memory
func NonRepeatingBytes(seed int, length int) []byte {
	b := make([]byte, length)
	io.ReadFull(NewNonRepeatingSequence(seed), b)
	return b
}

func (r *nonRepeatingReader) Read(p []byte) (n int, err error) {
	for i := range p {
		r.state ^= r.state >> 12
		r.state ^= r.state << 25
		r.state ^= r.state >> 27
		p[i] = byte((r.state * 2685821657736338717) >> 56)
	}
	return len(p), nil
}
