/*
Package comparer is the receiver side of the algorithm: it moves a window through a file, comparing
it to a frozen index, and produces the ordered list of regions (Commons) that are present in both.

The window is always either aligned (filled with a fresh block after a match) or rolling (slid by a
single byte after a mismatch). Sliding uses the O(1) rollsum update; the strong checksum is only
computed when the weak checksum is found in the index.
*/
package comparer

import (
	"bufio"
	"context"
	"hash"
	"io"
	"sync/atomic"

	"github.com/pkg/errors"

	"github.com/Redundancy/go-rdiff/chunks"
	"github.com/Redundancy/go-rdiff/filechecksum"
	"github.com/Redundancy/go-rdiff/index"
	"github.com/Redundancy/go-rdiff/rollsum"
)

const readBufferSize = 256 * 1024

var ErrBlockSizeMismatch = errors.New("block size differs from the block size of the index")

type BlockMatchResult struct {
	// In case of error
	Err error

	chunks.Common
}

// Comparer keeps statistics across any number of comparisons.
// The counters are updated atomically, so a Comparer may be shared between goroutines.
type Comparer struct {
	// windows looked up in the index
	Comparisons int64
	// windows whose weak checksum was in the index
	WeakHashHits int64
	// weak hits confirmed by the strong checksum
	StrongHashHits int64
}

// FalsePositives is the number of weak hits rejected by the strong checksum
func (c *Comparer) FalsePositives() int64 {
	return atomic.LoadInt64(&c.WeakHashHits) - atomic.LoadInt64(&c.StrongHashHits)
}

/*
FindMatchingBlocks scans comparison to the end and returns every region that matches a block of
reference. The generator must have the block size and strong hash that the index was built with.
*/
func (c *Comparer) FindMatchingBlocks(
	comparison io.Reader,
	generator *filechecksum.FileChecksumGenerator,
	reference *index.ChecksumIndex,
) (*MatchList, error) {
	matches := NewMatchList()
	var addErr error

	err := c.findMatchingBlocks(comparison, generator, reference, func(m chunks.Common) bool {
		addErr = matches.Add(m)
		return addErr == nil
	})

	if err == nil {
		err = addErr
	}

	if err != nil {
		return nil, err
	}

	return matches, nil
}

/*
StartFindMatchingBlocks runs the comparison on a separate goroutine and emits each match on
the returned channel, in ascending comparison offset. Callers should check for .Err != nil
on the results, in which case reading will end immediately. Cancelling ctx abandons the comparison.
*/
func (c *Comparer) StartFindMatchingBlocks(
	ctx context.Context,
	comparison io.Reader,
	generator *filechecksum.FileChecksumGenerator,
	reference *index.ChecksumIndex,
) <-chan BlockMatchResult {
	resultStream := make(chan BlockMatchResult)

	go func() {
		defer close(resultStream)

		send := func(r BlockMatchResult) bool {
			select {
			case resultStream <- r:
				return true
			case <-ctx.Done():
				return false
			}
		}

		err := c.findMatchingBlocks(comparison, generator, reference, func(m chunks.Common) bool {
			return send(BlockMatchResult{Common: m})
		})

		if err != nil {
			send(BlockMatchResult{Err: err})
		}
	}()

	return resultStream
}

// emit returns false to stop the comparison
func (c *Comparer) findMatchingBlocks(
	comparison io.Reader,
	generator *filechecksum.FileChecksumGenerator,
	reference *index.ChecksumIndex,
	emit func(chunks.Common) bool,
) error {
	if generator.BlockSize == 0 {
		return filechecksum.ErrInvalidBlockSize
	}

	if generator.BlockSize != reference.BlockSize() {
		return errors.Wrapf(
			ErrBlockSizeMismatch,
			"comparing with %v, index built with %v",
			generator.BlockSize, reference.BlockSize(),
		)
	}

	// nothing can match, every byte is missing
	if reference.BlockCount() == 0 {
		return nil
	}

	reader, ok := comparison.(*bufio.Reader)
	if !ok {
		reader = bufio.NewReaderSize(comparison, readBufferSize)
	}

	blockSize := int64(generator.BlockSize)
	tailSize := reference.TailSize()

	weak := rollsum.NewRollsum32(generator.BlockSize)
	strong := generator.Strong.New()
	strongSum := make([]byte, 0, strong.Size())
	block := make([]byte, blockSize)

	// the offset of the start of the window
	offset := int64(0)
	exhausted := false

	fill := func() error {
		n, err := io.ReadFull(reader, block)

		switch err {
		case nil:
		case io.EOF, io.ErrUnexpectedEOF:
			exhausted = true
		default:
			return errors.Wrapf(err, "reading block at offset %v", offset)
		}

		weak.SetBlock(block[:n])
		return nil
	}

	if err := fill(); err != nil {
		return err
	}

	for weak.Len() > 0 {
		windowSize := int64(weak.Len())

		// the window only shrinks, and no block is this short
		if windowSize < tailSize {
			break
		}

		if windowSize == blockSize || windowSize == tailSize {
			if match, found := c.lookup(weak, strong, &strongSum, reference, offset); found {
				if !emit(chunks.Common{
					SourceBegin: match.SourceOffset,
					DestBegin:   offset,
					Size:        windowSize,
				}) {
					return nil
				}

				// No point looking for a match that overlaps this block
				offset += windowSize

				if exhausted {
					break
				}

				if err := fill(); err != nil {
					return err
				}

				continue
			}
		}

		// mismatch, slide by a single byte
		if !exhausted {
			b, err := reader.ReadByte()

			if err == nil {
				weak.RollIn(b)
				offset++
				continue
			} else if err != io.EOF {
				return errors.Wrapf(err, "reading byte at offset %v", offset+windowSize)
			}

			exhausted = true
		}

		// at the end of the stream the window shrinks from the front
		weak.DropHead()
		offset++
	}

	return nil
}

// lookup checks the current window against the index
func (c *Comparer) lookup(
	weak *rollsum.Rollsum32,
	strong hash.Hash,
	strongSum *[]byte,
	reference *index.ChecksumIndex,
	offset int64,
) (chunks.BlockDescriptor, bool) {
	atomic.AddInt64(&c.Comparisons, 1)

	weakMatchList := reference.FindWeakChecksumInIndex(weak.Sum32())
	if weakMatchList == nil {
		return chunks.BlockDescriptor{}, false
	}

	atomic.AddInt64(&c.WeakHashHits, 1)

	window := weak.GetLastBlock()
	strong.Reset()
	strong.Write(window)
	*strongSum = strong.Sum((*strongSum)[:0])

	match, found := pickCandidate(
		weakMatchList.FindStrongChecksum(*strongSum),
		int64(len(window)),
		offset,
	)

	if found {
		atomic.AddInt64(&c.StrongHashHits, 1)
	}

	return match, found
}

// pickCandidate chooses between blocks with identical checksums. Sizes must agree exactly.
// A block at the same offset as the window is preferred, so that an unchanged file maps onto
// itself; otherwise the earliest block in the source wins.
func pickCandidate(candidates []chunks.ChunkChecksum, size int64, offset int64) (chunks.BlockDescriptor, bool) {
	var result chunks.BlockDescriptor
	found := false

	for _, candidate := range candidates {
		if candidate.Size != size {
			continue
		}

		if candidate.SourceOffset == offset {
			return candidate.BlockDescriptor, true
		}

		if !found {
			result = candidate.BlockDescriptor
			found = true
		}
	}

	return result, found
}
