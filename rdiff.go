/*
Package rdiff finds the content that a destination file shares with a source file, without
needing both files in one place: the source is summarised as an index of block checksums,
and the destination is scanned against that index.

Like rsync, the source is cut into fixed size blocks and every offset of the destination is
considered as the start of a block, so content that has moved by any number of bytes is still
found. The result for a file is an ordered list of Commons: ranges of the destination that
are identical to a block of the source.

The core packages know nothing about where the data lives. A Differ applies them to local files
and trees, or sends the index through a transport.Client to a Service that owns the destination.
*/
package rdiff

import (
	"runtime"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/Redundancy/go-rdiff/chunks"
	"github.com/Redundancy/go-rdiff/comparer"
	"github.com/Redundancy/go-rdiff/filechecksum"
)

const DefaultBlockSize = 8192

var (
	// DefaultConcurrency is the number of files diffed at once by default
	DefaultConcurrency = runtime.NumCPU()
)

// Options configures a Differ. The zero value is usable.
type Options struct {
	// Size of the source blocks, DefaultBlockSize if 0
	BlockSize uint
	Strong    filechecksum.StrongHash
	// Files diffed at once in a tree, DefaultConcurrency if <= 0
	Concurrency int
	// Globs of relative paths to leave out of tree diffs
	Excludes []string

	// Defaults to a logger that discards everything
	Logger *zerolog.Logger
	// Metrics are registered here if set
	Registerer prometheus.Registerer
}

func (o Options) withDefaults() Options {
	if o.BlockSize == 0 {
		o.BlockSize = DefaultBlockSize
	}

	if o.Concurrency <= 0 {
		o.Concurrency = DefaultConcurrency
	}

	if o.Logger == nil {
		nop := zerolog.Nop()
		o.Logger = &nop
	}

	return o
}

// FileDiffResult is what one source file shares with its destination
type FileDiffResult struct {
	// slash separated, the same in both trees
	RelativePath string

	SourceSize int64
	// strong checksum of the whole source file
	SourceChecksum []byte
	DestSize       int64
	// false when the destination did not exist, and so all of the source is new
	DestExists bool

	// Ascending destination order, never overlapping
	Commons []chunks.Common
	// destination bytes covered by Commons
	MatchedBytes int64
	// source blocks that duplicate an earlier block, and so are ambiguous as a match
	DuplicateBlocks int

	Stats comparer.Comparer

	// Set on failure, in which case the result is otherwise incomplete
	Err error
}

// ReusedBytes is the amount of the source that was found at the destination.
// A source block matched more than once is only counted once.
func (r *FileDiffResult) ReusedBytes() int64 {
	seen := make(map[int64]struct{}, len(r.Commons))
	reused := int64(0)

	for _, c := range r.Commons {
		if _, found := seen[c.SourceBegin]; !found {
			seen[c.SourceBegin] = struct{}{}
			reused += c.Size
		}
	}

	return reused
}

// MissingBytes is the amount of the source that is not at the destination, and would have to be sent
func (r *FileDiffResult) MissingBytes() int64 {
	return r.SourceSize - r.ReusedBytes()
}
