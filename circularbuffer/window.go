/*
Package circularbuffer provides the sliding window storage used while scanning a file.

Window keeps every byte twice, at position i and at i+size, so that the current
contents are always available as a single contiguous slice without copying. This
costs 2x the window size in memory, but means that sliding by a byte is O(1) and
handing the window to a strong hash never allocates.
*/
package circularbuffer

// Window is a fixed capacity ring of bytes, oldest to newest.
// It is not safe for concurrent use.
type Window struct {
	size  int
	start int
	n     int
	// mirrored storage, len == 2*size
	buffer []byte
}

// NewWindow creates a window that holds at most size bytes.
// size must be > 0
func NewWindow(size int) *Window {
	if size <= 0 {
		panic("circularbuffer: window size must be positive")
	}

	return &Window{
		size:   size,
		buffer: make([]byte, size*2),
	}
}

// Reset empties the window without releasing storage
func (w *Window) Reset() {
	w.start = 0
	w.n = 0
}

// Len is the number of bytes currently held
func (w *Window) Len() int {
	return w.n
}

// Cap is the maximum number of bytes the window can hold
func (w *Window) Cap() int {
	return w.size
}

// IsFull is true once a further Push will evict the oldest byte
func (w *Window) IsFull() bool {
	return w.n == w.size
}

// Fill replaces the contents of the window with block.
// If block is longer than the window, only the last Cap() bytes are kept.
func (w *Window) Fill(block []byte) {
	if len(block) > w.size {
		block = block[len(block)-w.size:]
	}

	copy(w.buffer, block)
	copy(w.buffer[w.size:], block)
	w.start = 0
	w.n = len(block)
}

// Push appends a byte as the newest in the window. If the window was already
// full, the oldest byte is evicted and returned with evicted == true.
func (w *Window) Push(c byte) (out byte, evicted bool) {
	if w.n < w.size {
		w.set((w.start+w.n)%w.size, c)
		w.n++
		return 0, false
	}

	out = w.buffer[w.start]
	w.set(w.start, c)
	w.start = (w.start + 1) % w.size

	return out, true
}

// PopFront removes and returns the oldest byte. ok is false if the window was empty.
func (w *Window) PopFront() (c byte, ok bool) {
	if w.n == 0 {
		return 0, false
	}

	c = w.buffer[w.start]
	w.start = (w.start + 1) % w.size
	w.n--

	return c, true
}

// Bytes returns the window contents, oldest to newest.
// The slice aliases internal storage and is only valid until the next modification.
func (w *Window) Bytes() []byte {
	return w.buffer[w.start : w.start+w.n]
}

func (w *Window) set(i int, c byte) {
	w.buffer[i] = c
	w.buffer[i+w.size] = c
}
