/*
Package indexbuilder is the sender side of the algorithm: it splits a source into fixed-size,
non-overlapping blocks, generates their checksums and builds a frozen index from them.
*/
package indexbuilder

import (
	"bytes"
	"context"
	"io"
	"os"

	"github.com/pkg/errors"

	"github.com/Redundancy/go-rdiff/chunks"
	"github.com/Redundancy/go-rdiff/filechecksum"
	"github.com/Redundancy/go-rdiff/index"
)

// Summary is everything learned about a source while indexing it
type Summary struct {
	Index *index.ChecksumIndex
	// strong checksum of the whole source
	FileChecksum []byte
	FileSize     int64
	Strong       filechecksum.StrongHash
}

// Header describes the summary for the index file and wire formats
func (s *Summary) Header() chunks.Header {
	return chunks.Header{
		BlockSize: uint32(s.Index.BlockSize()),
		HashID:    uint8(s.Strong),
		FileSize:  uint64(s.FileSize),
	}
}

// BuildChecksumIndex reads r to the end, building an index with the generator's block size and hashes.
// The last block may be short; an empty reader produces an empty index.
func BuildChecksumIndex(ctx context.Context, generator *filechecksum.FileChecksumGenerator, r io.Reader) (*Summary, error) {
	builder := index.NewBuilder(generator.BlockSize)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	for result := range generator.StartChecksumGeneration(ctx, r, 64) {
		if result.Err != nil {
			return nil, result.Err
		}

		if result.Filechecksum != nil {
			return &Summary{
				Index:        builder.Freeze(),
				FileChecksum: result.Filechecksum,
				FileSize:     result.Size,
				Strong:       generator.Strong,
			}, nil
		}

		for _, chunk := range result.Checksums {
			if err := builder.Add(chunk); err != nil {
				return nil, err
			}
		}
	}

	return nil, errors.Wrap(ctx.Err(), "indexing stopped")
}

// BuildIndexFromFile indexes the file at path
func BuildIndexFromFile(ctx context.Context, path string, blockSize uint, strong filechecksum.StrongHash) (*Summary, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return BuildChecksumIndex(
		ctx,
		filechecksum.NewFileChecksumGenerator(blockSize, strong),
		f,
	)
}

// BuildIndexFromString is a shortcut for tests that need an index but don't want to construct one by hand
func BuildIndexFromString(generator *filechecksum.FileChecksumGenerator, reference string) (*Summary, error) {
	return BuildChecksumIndex(context.Background(), generator, bytes.NewBufferString(reference))
}

// WriteSummary writes the header and the block checksums in the index file format
func WriteSummary(w io.Writer, s *Summary) error {
	if err := chunks.WriteHeader(w, s.Header()); err != nil {
		return err
	}
	return chunks.WriteChecksums(w, s.Index.Checksums())
}

// ReadSummary reads a summary written by WriteSummary, validating that it describes a whole file.
// The file checksum is not part of the format.
func ReadSummary(r io.Reader) (*Summary, error) {
	header, err := chunks.ReadHeader(r)
	if err != nil {
		return nil, err
	}

	strong := filechecksum.StrongHash(header.HashID)
	if !strong.Valid() {
		return nil, errors.Wrapf(filechecksum.ErrUnknownHash, "hash id %v", header.HashID)
	}

	if header.BlockSize == 0 {
		return nil, filechecksum.ErrInvalidBlockSize
	}

	checksums, err := chunks.LoadChecksumsFromReader(r, strong.Size())
	if err != nil {
		return nil, err
	}

	i, err := index.MakeChecksumIndex(uint(header.BlockSize), checksums)
	if err != nil {
		return nil, err
	}

	if err = i.Validate(); err != nil {
		return nil, err
	}

	if i.FileSize() != int64(header.FileSize) {
		return nil, errors.Wrapf(
			index.ErrNotTiled,
			"blocks cover %v bytes, header says %v",
			i.FileSize(), header.FileSize,
		)
	}

	return &Summary{
		Index:    i,
		FileSize: int64(header.FileSize),
		Strong:   strong,
	}, nil
}
