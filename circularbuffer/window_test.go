package circularbuffer

import (
	"bytes"
	"testing"
)

const BLOCK_SIZE = 10

var incrementBlock = make([]byte, BLOCK_SIZE)
var incrementBlock2 = make([]byte, BLOCK_SIZE)

func init() {
	for i := range incrementBlock {
		incrementBlock[i] = byte(i)
		incrementBlock2[i] = byte(i + BLOCK_SIZE)
	}
}

func TestFillBlock(t *testing.T) {
	w := NewWindow(BLOCK_SIZE)
	w.Fill(incrementBlock)

	if !bytes.Equal(w.Bytes(), incrementBlock) {
		t.Errorf("Window did not return the filled block: %v", w.Bytes())
	}

	if !w.IsFull() {
		t.Error("Window should be full after filling a whole block")
	}
}

func TestFillLongerThanWindowKeepsTail(t *testing.T) {
	w := NewWindow(4)
	w.Fill([]byte{1, 2, 3, 4, 5, 6})

	if !bytes.Equal(w.Bytes(), []byte{3, 4, 5, 6}) {
		t.Errorf("Unexpected window contents: %v", w.Bytes())
	}
}

func TestPushUntilFullEvictsNothing(t *testing.T) {
	w := NewWindow(BLOCK_SIZE)

	for _, b := range incrementBlock {
		if _, evicted := w.Push(b); evicted {
			t.Fatalf("Byte %v evicted before the window was full", b)
		}
	}

	if !bytes.Equal(w.Bytes(), incrementBlock) {
		t.Errorf("Unexpected window contents: %v", w.Bytes())
	}
}

func TestPushEvictsOldestByte(t *testing.T) {
	w := NewWindow(BLOCK_SIZE)
	w.Fill(incrementBlock)

	for i, b := range incrementBlock2 {
		out, evicted := w.Push(b)

		if !evicted {
			t.Fatal("Expected an eviction on a full window")
		}

		if out != incrementBlock[i] {
			t.Errorf("Evicted %v, expected %v", out, incrementBlock[i])
		}
	}

	if !bytes.Equal(w.Bytes(), incrementBlock2) {
		t.Errorf("Window should be contiguous after wrapping: %v", w.Bytes())
	}
}

func TestWindowIsContiguousAtEveryOffset(t *testing.T) {
	w := NewWindow(4)
	stream := []byte("abcdefghijklmnop")
	w.Fill(stream[:4])

	for i := 4; i < len(stream); i++ {
		w.Push(stream[i])
		expected := stream[i-3 : i+1]

		if !bytes.Equal(w.Bytes(), expected) {
			t.Fatalf("At %v expected %q got %q", i, expected, w.Bytes())
		}
	}
}

func TestPopFrontShrinksWindow(t *testing.T) {
	w := NewWindow(4)
	w.Fill([]byte("wxyz"))
	w.Push('!')

	c, ok := w.PopFront()

	if !ok || c != 'x' {
		t.Fatalf("Expected to pop 'x', got %q (%v)", c, ok)
	}

	if string(w.Bytes()) != "yz!" {
		t.Errorf("Unexpected contents after pop: %q", w.Bytes())
	}

	w.Push('?')
	if string(w.Bytes()) != "yz!?" {
		t.Errorf("Push after pop should refill the window: %q", w.Bytes())
	}
}

func TestPopFrontOnEmptyWindow(t *testing.T) {
	w := NewWindow(2)

	if _, ok := w.PopFront(); ok {
		t.Error("Popping an empty window should fail")
	}
}

func TestReset(t *testing.T) {
	w := NewWindow(BLOCK_SIZE)
	w.Fill(incrementBlock)
	w.Reset()

	if w.Len() != 0 || len(w.Bytes()) != 0 {
		t.Errorf("Window was not empty after reset: %v", w.Bytes())
	}
}

func BenchmarkSlideByte(b *testing.B) {
	w := NewWindow(8192)
	w.Fill(make([]byte, 8192))
	b.ReportAllocs()
	b.SetBytes(1)

	for i := 0; i < b.N; i++ {
		w.Push(byte(i))
	}
}
