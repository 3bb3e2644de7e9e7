/*
Package chunks provides the basic structures shared by the indexer, the matcher and the wire format:
the descriptor of a source block, its pair of weak and strong checksums, and a matched (Common) region.
Since these are widely used, splitting them out breaks a number of possible circular dependencies.
*/
package chunks

import (
	"bytes"
)

// BlockDescriptor identifies one block of the source file.
// Size is in (0, blocksize]; only the final block of a file may be short.
type BlockDescriptor struct {
	SourceOffset int64
	Size         int64
}

// End is the source offset just past the block
func (d BlockDescriptor) End() int64 {
	return d.SourceOffset + d.Size
}

// For a given block, the weak & strong checksums and its descriptor.
// The strong checksum is only computed for the source side; the matcher
// computes it for a window only after a weak hit.
type ChunkChecksum struct {
	BlockDescriptor
	WeakChecksum   uint32
	StrongChecksum []byte
}

// compares a checksum to another based on the checksums, not the offset
func (chunk ChunkChecksum) Match(other ChunkChecksum) bool {
	return chunk.WeakChecksum == other.WeakChecksum &&
		bytes.Equal(chunk.StrongChecksum, other.StrongChecksum)
}

// Common is a byte range present verbatim in both the source and the destination
type Common struct {
	SourceBegin int64
	DestBegin   int64
	Size        int64
}

// DestEnd is the destination offset just past the region
func (c Common) DestEnd() int64 {
	return c.DestBegin + c.Size
}

// SourceEnd is the source offset just past the region
func (c Common) SourceEnd() int64 {
	return c.SourceBegin + c.Size
}

// Overlaps is true if the destination ranges of c and other intersect
func (c Common) Overlaps(other Common) bool {
	return c.DestBegin < other.DestEnd() && other.DestBegin < c.DestEnd()
}
