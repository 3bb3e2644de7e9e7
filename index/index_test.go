package index

import (
	"testing"

	"github.com/Redundancy/go-rdiff/chunks"
)

func chunk(offset int64, size int64, weak uint32, strong string) chunks.ChunkChecksum {
	return chunks.ChunkChecksum{
		BlockDescriptor: chunks.BlockDescriptor{SourceOffset: offset, Size: size},
		WeakChecksum:    weak,
		StrongChecksum:  []byte(strong),
	}
}

func TestMakeIndex(t *testing.T) {
	i, err := MakeChecksumIndex(
		4,
		[]chunks.ChunkChecksum{
			chunk(0, 4, 1, "b"),
			chunk(4, 4, 2, "c"),
		},
	)

	if err != nil {
		t.Fatal(err)
	}

	if i.WeakCount() != 2 {
		t.Errorf("size of lookup was not expected %v", i.WeakCount())
	}

	if i.BlockCount() != 2 || i.FileSize() != 8 || i.TailSize() != 4 {
		t.Errorf("Unexpected index shape: %v blocks, %v bytes, tail %v", i.BlockCount(), i.FileSize(), i.TailSize())
	}
}

func TestEmptyIndex(t *testing.T) {
	i := NewBuilder(4).Freeze()

	if i.BlockCount() != 0 || i.FileSize() != 0 || i.TailSize() != 0 {
		t.Error("An empty index should have no blocks")
	}

	if i.FindWeakChecksumInIndex(0) != nil {
		t.Error("Nothing should be found in an empty index")
	}
}

func TestFindWeakInIndex(t *testing.T) {
	i, _ := MakeChecksumIndex(
		4,
		[]chunks.ChunkChecksum{
			chunk(0, 4, 1, "b"),
			chunk(4, 4, 2, "c"),
			chunk(8, 4, 2, "d"),
		},
	)

	result := i.FindWeakChecksumInIndex(2)

	if result == nil {
		t.Error("Did not find lookfor in the index")
	} else if len(result) != 2 {
		t.Errorf("Wrong number of possible matches found: %v", len(result))
	} else if result[0].SourceOffset != 4 {
		t.Errorf("Found chunk had offset %v expected 4", result[0].SourceOffset)
	}
}

func TestFindStrongInIndex(t *testing.T) {
	i, _ := MakeChecksumIndex(
		4,
		[]chunks.ChunkChecksum{
			chunk(0, 4, 1, "b"),
			chunk(4, 4, 2, "c"),
			chunk(8, 4, 2, "d"),
		},
	)

	// builds upon TestFindWeakInIndex
	result := i.FindWeakChecksumInIndex(2)
	strongs := result.FindStrongChecksum([]byte("c"))

	if len(strongs) != 1 {
		t.Errorf("Incorrect number of strong checksums found: %v", len(strongs))
	} else if strongs[0].SourceOffset != 4 {
		t.Errorf("Wrong chunk found, had offset %v", strongs[0].SourceOffset)
	}

	if result.FindStrongChecksum([]byte("z")) != nil {
		t.Error("A weak hit with an unknown strong checksum should find nothing")
	}
}

func TestFindDuplicatedBlocksInIndex(t *testing.T) {
	i, _ := MakeChecksumIndex(
		4,
		[]chunks.ChunkChecksum{
			chunk(0, 4, 1, "b"),
			chunk(12, 4, 2, "c"),
			chunk(4, 4, 2, "c"),
			chunk(8, 4, 2, "d"),
		},
	)

	result := i.FindWeakChecksumInIndex(2)
	strongs := result.FindStrongChecksum([]byte("c"))

	if len(strongs) != 2 {
		t.Fatalf("Incorrect number of strong checksums found: %v", strongs)
	}

	// source order, regardless of the order they were added in
	if strongs[0].SourceOffset != 4 {
		t.Errorf("Wrong chunk found, had offset %v", strongs[0].SourceOffset)
	}
	if strongs[1].SourceOffset != 12 {
		t.Errorf("Wrong chunk found, had offset %v", strongs[1].SourceOffset)
	}

	if i.Duplicates() != 1 {
		t.Errorf("Expected one duplicate, got %v", i.Duplicates())
	}
}

func TestFrozenIndexRejectsAdd(t *testing.T) {
	b := NewBuilder(4)
	b.Add(chunk(0, 4, 1, "a"))
	frozen := b.Freeze()

	if err := b.Add(chunk(4, 4, 2, "b")); err != ErrFrozen {
		t.Errorf("Expected ErrFrozen, got %v", err)
	}

	if b.Freeze() != frozen {
		t.Error("Freezing twice should return the same index")
	}

	if frozen.BlockCount() != 1 {
		t.Errorf("Frozen index changed: %v blocks", frozen.BlockCount())
	}
}

func TestAddRejectsOversizedBlock(t *testing.T) {
	b := NewBuilder(4)

	for _, c := range []chunks.ChunkChecksum{
		chunk(0, 5, 1, "a"),
		chunk(0, 0, 1, "a"),
		chunk(-4, 4, 1, "a"),
	} {
		if err := b.Add(c); err == nil {
			t.Errorf("Expected %#v to be rejected", c.BlockDescriptor)
		}
	}
}

func TestValidate(t *testing.T) {
	good, _ := MakeChecksumIndex(4, []chunks.ChunkChecksum{
		chunk(0, 4, 1, "a"),
		chunk(4, 4, 2, "b"),
		chunk(8, 1, 3, "c"),
	})

	if err := good.Validate(); err != nil {
		t.Errorf("Expected a tiled index to validate: %v", err)
	}

	gap, _ := MakeChecksumIndex(4, []chunks.ChunkChecksum{
		chunk(0, 4, 1, "a"),
		chunk(8, 4, 2, "b"),
	})

	if err := gap.Validate(); err == nil {
		t.Error("Expected an index with a gap to fail validation")
	}

	shortMiddle, _ := MakeChecksumIndex(4, []chunks.ChunkChecksum{
		chunk(0, 2, 1, "a"),
		chunk(4, 4, 2, "b"),
	})

	if err := shortMiddle.Validate(); err == nil {
		t.Error("Expected a short block before the end to fail validation")
	}
}
