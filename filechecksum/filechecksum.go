/*
Package filechecksum provides the ChecksumGenerator, whose main responsibility is to read a file
and generate both weak and strong checksums for every block, along with a strong checksum of the
whole file. It also owns the choice of strong hash, which the matcher must share with the indexer.
*/
package filechecksum

import (
	"context"
	"hash"
	"io"

	"github.com/pkg/errors"

	"github.com/Redundancy/go-rdiff/chunks"
	"github.com/Redundancy/go-rdiff/rollsum"
)

var ErrInvalidBlockSize = errors.New("block size must be greater than zero")

// NewFileChecksumGenerator uses the rollsum for weak checksums and the given strong hash
func NewFileChecksumGenerator(blocksize uint, strong StrongHash) *FileChecksumGenerator {
	return &FileChecksumGenerator{
		BlockSize:        blocksize,
		Strong:           strong,
		WeakRollingHash:  rollsum.NewRollsum32Base(),
		StrongHash:       strong.New(),
		FileChecksumHash: strong.New(),
	}
}

/*
FileChecksumGenerator provides a description of what hashing functions to use to
evaluate a file. Since the hashes store state, it is NOT safe to use a generator concurrently
for different things.
*/
type FileChecksumGenerator struct {
	WeakRollingHash  *rollsum.Rollsum32Base
	StrongHash       hash.Hash
	FileChecksumHash hash.Hash
	Strong           StrongHash
	BlockSize        uint
}

// Reset all hashes to initial state
func (check *FileChecksumGenerator) Reset() {
	check.WeakRollingHash.Reset()
	check.StrongHash.Reset()
	check.FileChecksumHash.Reset()
}

func (check *FileChecksumGenerator) GetChecksumSizes() (int, int) {
	return check.WeakRollingHash.Size(), check.StrongHash.Size()
}

type ChecksumResults struct {
	// Return multiple chunks at once for performance
	Checksums []chunks.ChunkChecksum
	// only used for the last item
	Filechecksum []byte
	// total bytes read, only used for the last item
	Size int64
	Err  error
}

// GenerateChecksums reads every block of inputFile and returns the block checksums in file order,
// the strong checksum of the whole file and its length.
func (check *FileChecksumGenerator) GenerateChecksums(ctx context.Context, inputFile io.Reader) (
	checksums []chunks.ChunkChecksum,
	fileChecksum []byte,
	size int64,
	err error,
) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	for result := range check.StartChecksumGeneration(ctx, inputFile, 64) {
		switch {
		case result.Err != nil:
			return nil, nil, 0, result.Err
		case result.Filechecksum != nil:
			return checksums, result.Filechecksum, result.Size, nil
		}

		checksums = append(checksums, result.Checksums...)
	}

	return nil, nil, 0, errors.Wrap(ctx.Err(), "checksum generation stopped")
}

// StartChecksumGeneration reads inputFile on a separate goroutine and streams the checksums back,
// blocksPerResult at a time. The final item carries the file checksum, or an error.
// Cancelling ctx stops the generation.
func (check *FileChecksumGenerator) StartChecksumGeneration(
	ctx context.Context,
	inputFile io.Reader,
	blocksPerResult uint,
) <-chan ChecksumResults {
	resultChan := make(chan ChecksumResults)
	go check.generate(ctx, resultChan, blocksPerResult, inputFile)
	return resultChan
}

func (check *FileChecksumGenerator) generate(
	ctx context.Context,
	resultChan chan<- ChecksumResults,
	blocksPerResult uint,
	inputFile io.Reader,
) {
	defer close(resultChan)

	send := func(r ChecksumResults) bool {
		select {
		case resultChan <- r:
			return true
		case <-ctx.Done():
			return false
		}
	}

	if check.BlockSize == 0 {
		send(ChecksumResults{Err: ErrInvalidBlockSize})
		return
	}

	if blocksPerResult == 0 {
		blocksPerResult = 1
	}

	// We reset the hashes when done so we can reuse the generator
	check.Reset()
	defer check.Reset()

	buffer := make([]byte, check.BlockSize)
	results := make([]chunks.ChunkChecksum, 0, blocksPerResult)
	offset := int64(0)

	for {
		n, err := io.ReadFull(inputFile, buffer)

		// a short read that isn't the end of the stream is a real failure
		if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
			send(ChecksumResults{Err: errors.Wrapf(err, "reading block at offset %v", offset)})
			return
		}

		if n == 0 {
			break
		}

		section := buffer[:n]

		// As hashes, the assumption is that they never error
		check.FileChecksumHash.Write(section)
		check.WeakRollingHash.SetBlock(section)
		check.StrongHash.Reset()
		check.StrongHash.Write(section)

		results = append(
			results,
			chunks.ChunkChecksum{
				BlockDescriptor: chunks.BlockDescriptor{
					SourceOffset: offset,
					Size:         int64(n),
				},
				WeakChecksum:   check.WeakRollingHash.Sum32(),
				StrongChecksum: check.StrongHash.Sum(nil),
			},
		)

		offset += int64(n)

		if len(results) == cap(results) {
			if !send(ChecksumResults{Checksums: results}) {
				return
			}
			results = make([]chunks.ChunkChecksum, 0, blocksPerResult)
		}

		// the only short block is the last one
		if n != len(buffer) {
			break
		}
	}

	if len(results) > 0 {
		if !send(ChecksumResults{Checksums: results}) {
			return
		}
	}

	send(ChecksumResults{
		Filechecksum: check.FileChecksumHash.Sum(nil),
		Size:         offset,
	})
}
