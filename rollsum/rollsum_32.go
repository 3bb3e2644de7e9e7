/*
Package rollsum provides the weak checksum: a rolling checksum that is efficient to advance a byte
at a time. It follows the rsync rollsum (a = sum of bytes, b = sum of a's), with 32bit internal values
truncated to 16 bits each in the output.

Rollsum32 couples the checksum with its window storage, so that sliding the window by one
byte costs a single Roll, and shrinking it from the head at the end of a stream costs a single
RemoveByte. The window is always available contiguously for the strong checksum.
*/
package rollsum

import (
	"github.com/Redundancy/go-rdiff/circularbuffer"
)

func NewRollsum32(blocksize uint) *Rollsum32 {
	return &Rollsum32{
		window: circularbuffer.NewWindow(int(blocksize)),
	}
}

// Rollsum32 is a rolling checksum over a window of at most blocksize bytes.
// Create one using NewRollsum32. It cannot be used concurrently.
type Rollsum32 struct {
	Rollsum32Base
	window *circularbuffer.Window
}

// Write rolls every byte of p into the window. Only the last BlockSize() bytes
// are kept, so very long writes skip straight to SetBlock.
func (r *Rollsum32) Write(p []byte) (n int, err error) {
	if len(p) >= r.window.Cap() {
		r.SetBlock(p[len(p)-r.window.Cap():])
		return len(p), nil
	}

	for _, c := range p {
		r.RollIn(c)
	}

	return len(p), nil
}

// SetBlock replaces the window with block and recomputes the sum from scratch
func (r *Rollsum32) SetBlock(block []byte) {
	r.window.Fill(block)
	r.Rollsum32Base.SetBlock(r.window.Bytes())
}

// RollIn adds c at the tail. On a full window the head byte is evicted,
// so the window slides by one.
func (r *Rollsum32) RollIn(c byte) {
	if out, evicted := r.window.Push(c); evicted {
		r.Roll(out, c)
	} else {
		r.AddByte(c)
	}
}

// DropHead shrinks the window by removing its oldest byte.
// Returns false if the window was already empty.
func (r *Rollsum32) DropHead() bool {
	c, ok := r.window.PopFront()
	if ok {
		r.RemoveByte(c)
	}
	return ok
}

// The most efficient byte length to call Write with
func (r *Rollsum32) BlockSize() int {
	return r.window.Cap()
}

// the number of bytes
func (r *Rollsum32) Size() int {
	return 4
}

func (r *Rollsum32) Reset() {
	r.Rollsum32Base.Reset()
	r.window.Reset()
}

// Sum appends the current hash to b and returns the resulting slice.
// It does not change the underlying hash state.
func (r *Rollsum32) Sum(b []byte) []byte {
	result := [4]byte{}
	r.GetSum(result[:])
	return append(b, result[:]...)
}

// GetLastBlock is the current window, oldest to newest.
// Only valid until the next modification.
func (r *Rollsum32) GetLastBlock() []byte {
	return r.window.Bytes()
}
