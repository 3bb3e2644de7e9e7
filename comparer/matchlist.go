package comparer

import (
	"github.com/petar/GoLLRB/llrb"
	"github.com/pkg/errors"

	"github.com/Redundancy/go-rdiff/chunks"
)

var (
	ErrOverlap    = errors.New("match overlaps an existing match in the destination")
	ErrEmptyMatch = errors.New("match must have a positive size")
)

// The MatchList stores the Commons for a file ordered by destination offset,
// and rejects any that would overlap. It is not safe for concurrent use.
type MatchList struct {
	tree    *llrb.LLRB
	matched int64
}

type commonItem chunks.Common

func (a commonItem) Less(than llrb.Item) bool {
	return a.DestBegin < than.(commonItem).DestBegin
}

func NewMatchList() *MatchList {
	return &MatchList{tree: llrb.New()}
}

// MatchListFromCommons builds a list from Commons in any order, eg. received over the wire
func MatchListFromCommons(commons []chunks.Common) (*MatchList, error) {
	l := NewMatchList()

	for _, c := range commons {
		if err := l.Add(c); err != nil {
			return nil, err
		}
	}

	return l, nil
}

// Add a match. Matches may be added in any order.
func (l *MatchList) Add(c chunks.Common) error {
	if c.Size <= 0 {
		return ErrEmptyMatch
	}

	item := commonItem(c)
	var conflict *chunks.Common

	// the closest match starting at or before c, then the closest starting after it
	l.tree.DescendLessOrEqual(item, func(i llrb.Item) bool {
		if previous := chunks.Common(i.(commonItem)); previous.Overlaps(c) {
			conflict = &previous
		}
		return false
	})

	if conflict == nil {
		l.tree.AscendGreaterOrEqual(item, func(i llrb.Item) bool {
			if next := chunks.Common(i.(commonItem)); next.Overlaps(c) {
				conflict = &next
			}
			return false
		})
	}

	if conflict != nil {
		return errors.Wrapf(
			ErrOverlap,
			"[%v, %v) and [%v, %v)",
			c.DestBegin, c.DestEnd(), conflict.DestBegin, conflict.DestEnd(),
		)
	}

	l.tree.InsertNoReplace(item)
	l.matched += c.Size
	return nil
}

func (l *MatchList) Len() int {
	return l.tree.Len()
}

// MatchedBytes is the total size of all matches
func (l *MatchList) MatchedBytes() int64 {
	return l.matched
}

// Commons in ascending destination order
func (l *MatchList) Commons() []chunks.Common {
	result := make([]chunks.Common, 0, l.tree.Len())

	l.tree.AscendGreaterOrEqual(l.tree.Min(), func(i llrb.Item) bool {
		result = append(result, chunks.Common(i.(commonItem)))
		return true
	})

	return result
}

// Gap is a range of the destination that did not match, and would have to be transferred
type Gap struct {
	DestBegin int64
	Size      int64
}

// Gaps lists the unmatched ranges of a destination of destSize bytes
func (l *MatchList) Gaps(destSize int64) []Gap {
	var gaps []Gap
	position := int64(0)

	for _, c := range l.Commons() {
		if c.DestBegin > position {
			gaps = append(gaps, Gap{DestBegin: position, Size: c.DestBegin - position})
		}
		position = c.DestEnd()
	}

	if destSize > position {
		gaps = append(gaps, Gap{DestBegin: position, Size: destSize - position})
	}

	return gaps
}

// a span of consecutive matches that are contiguous in both source and destination
type BlockSpan struct {
	chunks.Common
	// the number of matches merged into the span
	Count int
}

// Spans merges neighbouring matches where the destination continues the source,
// so that a long unchanged run is reported as one span.
func (l *MatchList) Spans() []BlockSpan {
	var spans []BlockSpan

	for _, c := range l.Commons() {
		if n := len(spans); n > 0 {
			last := &spans[n-1]

			if last.DestEnd() == c.DestBegin && last.SourceEnd() == c.SourceBegin {
				last.Size += c.Size
				last.Count++
				continue
			}
		}

		spans = append(spans, BlockSpan{Common: c, Count: 1})
	}

	return spans
}
