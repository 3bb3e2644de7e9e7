/*
Package index describes a reference file in terms of the weak and strong checksums of its blocks,
in such a way that you can check if a weak checksum is present, then check if there is a strong
checksum that matches.

An index is built by a single Builder and then frozen. Only a frozen ChecksumIndex can be queried,
and it is never modified again, so any number of matchers may read it concurrently.

Blocks that share both their weak and strong checksum are all kept, in source order. This is usually
repeated content (eg. runs of zeros), but could in theory be a genuine collision between different
content; the index cannot tell the difference and does not try to.
*/
package index

import (
	"bytes"
	"sort"

	"github.com/pkg/errors"

	"github.com/Redundancy/go-rdiff/chunks"
)

var (
	ErrFrozen            = errors.New("index has been frozen and cannot be modified")
	ErrInvalidDescriptor = errors.New("block descriptor does not fit the block size")
	ErrNotTiled          = errors.New("index blocks do not tile the source file")
)

// Builder accumulates block checksums. It is not safe for concurrent use.
type Builder struct {
	blockSize uint
	blocks    []chunks.ChunkChecksum
	frozen    *ChecksumIndex
}

func NewBuilder(blockSize uint) *Builder {
	return &Builder{blockSize: blockSize}
}

// Add a block. Blocks may be added in any order.
func (b *Builder) Add(chunk chunks.ChunkChecksum) error {
	if b.frozen != nil {
		return ErrFrozen
	}

	if chunk.Size <= 0 || chunk.Size > int64(b.blockSize) || chunk.SourceOffset < 0 {
		return errors.Wrapf(
			ErrInvalidDescriptor,
			"block at %v of size %v with block size %v",
			chunk.SourceOffset, chunk.Size, b.blockSize,
		)
	}

	b.blocks = append(b.blocks, chunk)
	return nil
}

// Freeze builds the lookup tables. The Builder cannot be added to afterwards,
// and further calls return the same index.
func (b *Builder) Freeze() *ChecksumIndex {
	if b.frozen != nil {
		return b.frozen
	}

	sort.Slice(b.blocks, func(i, j int) bool {
		return b.blocks[i].SourceOffset < b.blocks[j].SourceOffset
	})

	n := &ChecksumIndex{
		blockSize:          b.blockSize,
		blocks:             b.blocks,
		weakChecksumLookup: make(map[uint32]StrongChecksumList, len(b.blocks)),
	}

	for _, chunk := range b.blocks {
		n.weakChecksumLookup[chunk.WeakChecksum] = append(
			n.weakChecksumLookup[chunk.WeakChecksum],
			chunk,
		)
	}

	for _, c := range n.weakChecksumLookup {
		// stable, so equal strong checksums stay in source order
		sort.Stable(c)
	}

	b.frozen = n
	return n
}

// MakeChecksumIndex builds and freezes an index in one step
func MakeChecksumIndex(blockSize uint, checksums []chunks.ChunkChecksum) (*ChecksumIndex, error) {
	b := NewBuilder(blockSize)

	for _, c := range checksums {
		if err := b.Add(c); err != nil {
			return nil, err
		}
	}

	return b.Freeze(), nil
}

// ChecksumIndex is a frozen, read only index
type ChecksumIndex struct {
	blockSize uint
	// in source order
	blocks             []chunks.ChunkChecksum
	weakChecksumLookup map[uint32]StrongChecksumList
}

// BlockSize is the block size the index was built with
func (index *ChecksumIndex) BlockSize() uint {
	return index.blockSize
}

func (index *ChecksumIndex) BlockCount() int {
	return len(index.blocks)
}

func (index *ChecksumIndex) WeakCount() int {
	return len(index.weakChecksumLookup)
}

// FileSize is the end of the last block
func (index *ChecksumIndex) FileSize() int64 {
	if len(index.blocks) == 0 {
		return 0
	}
	return index.blocks[len(index.blocks)-1].End()
}

// TailSize is the size of the final block, which is the only one that may be shorter
// than the block size. It is 0 for an empty index.
func (index *ChecksumIndex) TailSize() int64 {
	if len(index.blocks) == 0 {
		return 0
	}
	return index.blocks[len(index.blocks)-1].Size
}

// Duplicates counts the blocks that share both weak and strong checksums with an earlier block
func (index *ChecksumIndex) Duplicates() int {
	d := 0

	for _, list := range index.weakChecksumLookup {
		for i := 1; i < len(list); i++ {
			if bytes.Equal(list[i-1].StrongChecksum, list[i].StrongChecksum) {
				d++
			}
		}
	}

	return d
}

// Checksums returns the blocks in source order. The slice must not be modified.
func (index *ChecksumIndex) Checksums() []chunks.ChunkChecksum {
	return index.blocks
}

// Validate checks that the blocks tile the file: block i starts at i*BlockSize(),
// and only the last one may be short. Indexes received from elsewhere should be validated
// before matching against them.
func (index *ChecksumIndex) Validate() error {
	size := int64(index.blockSize)

	for i, b := range index.blocks {
		last := i == len(index.blocks)-1

		if b.SourceOffset != int64(i)*size || (!last && b.Size != size) {
			return errors.Wrapf(
				ErrNotTiled,
				"block %v at offset %v with size %v",
				i, b.SourceOffset, b.Size,
			)
		}
	}

	return nil
}

func (index *ChecksumIndex) FindWeakChecksumInIndex(weak uint32) StrongChecksumList {
	return index.weakChecksumLookup[weak]
}

// StrongChecksumList is sorted by strong checksum, then source offset
type StrongChecksumList []chunks.ChunkChecksum

// Sortable interface
func (s StrongChecksumList) Len() int {
	return len(s)
}

// Sortable interface
func (s StrongChecksumList) Swap(i, j int) {
	s[i], s[j] = s[j], s[i]
}

// Sortable interface
func (s StrongChecksumList) Less(i, j int) bool {
	return bytes.Compare(s[i].StrongChecksum, s[j].StrongChecksum) == -1
}

// FindStrongChecksum returns every block with the strong checksum, in source order
func (s StrongChecksumList) FindStrongChecksum(strong []byte) (result []chunks.ChunkChecksum) {
	n := len(s)

	// average length is 1, so fast path comparison
	if n == 1 {
		if bytes.Equal(s[0].StrongChecksum, strong) {
			return s
		}
		return nil
	}

	// find the first possible occurrence
	first := sort.Search(
		n,
		func(i int) bool {
			return bytes.Compare(s[i].StrongChecksum, strong) >= 0
		},
	)

	if first == n || !bytes.Equal(s[first].StrongChecksum, strong) {
		return nil
	}

	end := first + 1
	for end < n && bytes.Equal(s[end].StrongChecksum, strong) {
		end++
	}

	return s[first:end]
}
