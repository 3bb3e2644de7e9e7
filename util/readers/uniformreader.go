package readers

import (
	"bytes"
	"io"
)

// Uniform reads length bytes that all have the same value
func Uniform(value byte, length int) io.Reader {
	return bytes.NewReader(bytes.Repeat([]byte{value}, length))
}

func ZeroReader(length int) io.Reader {
	return Uniform(0, length)
}

func OneReader(length int) io.Reader {
	return Uniform(1, length)
}
