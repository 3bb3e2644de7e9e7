package rollsum

import (
	"encoding/binary"
)

const FULL_BYTES_16 = (1 << 16) - 1

// Weak computes the weak checksum of p in one pass.
// It is equal to the Sum32 of a Rollsum32Base that has had exactly p added.
func Weak(p []byte) uint32 {
	var r Rollsum32Base
	r.AddBytes(p)
	return r.Sum32()
}

// NewRollsum32Base creates an empty rolling checksum
func NewRollsum32Base() *Rollsum32Base {
	return &Rollsum32Base{}
}

// Rollsum32Base decouples the rollsum algorithm from the storage of the window.
// It tracks the number of bytes currently summed so that the oldest byte can be
// removed in O(1) without the caller passing the window length around.
type Rollsum32Base struct {
	a, b   uint32
	length uint32
}

// Add a single byte at the end of the window
func (r *Rollsum32Base) AddByte(c byte) {
	r.a += uint32(c)
	r.b += r.a
	r.length++
}

func (r *Rollsum32Base) AddBytes(bs []byte) {
	for _, c := range bs {
		r.a += uint32(c)
		r.b += r.a
	}
	r.length += uint32(len(bs))
}

// Remove the oldest byte (the head) of the window
func (r *Rollsum32Base) RemoveByte(c byte) {
	r.a -= uint32(c)
	r.b -= r.length * uint32(c)
	r.length--
}

// Roll slides the window by one byte: out leaves at the head, in enters at the tail.
// The window length is unchanged.
func (r *Rollsum32Base) Roll(out, in byte) {
	r.a += uint32(in) - uint32(out)
	r.b += r.a - r.length*uint32(out)
}

// Set a whole block
func (r *Rollsum32Base) SetBlock(block []byte) {
	r.Reset()
	r.AddBytes(block)
}

// Reset the hash to the initial state
func (r *Rollsum32Base) Reset() {
	r.a, r.b, r.length = 0, 0, 0
}

// Len is the number of bytes the sum currently covers
func (r *Rollsum32Base) Len() int {
	return int(r.length)
}

// size of the hash in bytes
func (r *Rollsum32Base) Size() int {
	return 4
}

// Sum32 returns the current weak checksum
func (r *Rollsum32Base) Sum32() uint32 {
	return (r.a & FULL_BYTES_16) + ((r.b & FULL_BYTES_16) << 16)
}

// Puts the sum into b. Avoids allocation. b must have length >= 4
func (r *Rollsum32Base) GetSum(b []byte) {
	binary.LittleEndian.PutUint32(b, r.Sum32())
}
