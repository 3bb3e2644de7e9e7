package rdiff_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Redundancy/go-rdiff"
	"github.com/Redundancy/go-rdiff/comparer"
)

func Example() {
	// due to short example strings, use a very small block size
	// using one this small in practice would make the index larger than the file!
	const BLOCK_SIZE = 4

	// This is the file as the source has it
	const SOURCE = "The quick brown fox jumped over the lazy dog"

	// This is what the destination has. Not too far off, but not correct.
	const DESTINATION = "The qwik brown fox jumped 0v3r the lazy"

	dir, err := os.MkdirTemp("", "rdiff-example")
	if err != nil {
		fmt.Println(err)
		return
	}
	defer os.RemoveAll(dir)

	sourcePath := filepath.Join(dir, "source.txt")
	destPath := filepath.Join(dir, "destination.txt")
	os.WriteFile(sourcePath, []byte(SOURCE), 0644)
	os.WriteFile(destPath, []byte(DESTINATION), 0644)

	differ, err := rdiff.New(rdiff.Options{BlockSize: BLOCK_SIZE})
	if err != nil {
		fmt.Println(err)
		return
	}

	result, err := differ.DiffFile(context.Background(), "fox.txt", sourcePath, destPath)
	if err != nil {
		fmt.Println(err)
		return
	}

	matches, _ := comparer.MatchListFromCommons(result.Commons)

	for _, span := range matches.Spans() {
		fmt.Printf(
			"destination %v-%v is source %v-%v: %q\n",
			span.DestBegin, span.DestEnd(),
			span.SourceBegin, span.SourceEnd(),
			DESTINATION[span.DestBegin:span.DestEnd()],
		)
	}

	fmt.Println("Bytes to send:", result.MissingBytes())

	// Output:
	// destination 0-4 is source 0-4: "The "
	// destination 7-23 is source 8-24: "k brown fox jump"
	// destination 31-39 is source 32-40: "the lazy"
	// Bytes to send: 16
}
