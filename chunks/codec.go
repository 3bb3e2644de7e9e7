package chunks

import (
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

const (
	magicString = "RDIF"

	MajorVersion uint16 = 1
	MinorVersion uint16 = 0
)

var (
	ErrBadHeader       = errors.New("header does not match magic string, not a valid rdiff stream")
	ErrVersion         = errors.New("unsupported rdiff stream version")
	ErrPartialChecksum = errors.New("reader ended part way through a checksum list")
)

// Header precedes an index on disk or on the wire
type Header struct {
	Major, Minor uint16
	BlockSize    uint32
	// identifies the strong hash, see filechecksum.StrongHash
	HashID   uint8
	FileSize uint64
}

type wireHeader struct {
	Magic     [4]byte
	Major     uint16
	Minor     uint16
	BlockSize uint32
	HashID    uint8
	FileSize  uint64
}

type wireChecksum struct {
	Offset uint64
	Size   uint32
	Weak   uint32
}

type wireCommon struct {
	Source uint64
	Dest   uint64
	Size   uint64
}

// WriteHeader writes the magic string, the current version and the header fields
func WriteHeader(w io.Writer, h Header) error {
	wh := wireHeader{
		Major:     MajorVersion,
		Minor:     MinorVersion,
		BlockSize: h.BlockSize,
		HashID:    h.HashID,
		FileSize:  h.FileSize,
	}
	copy(wh.Magic[:], magicString)

	return errors.Wrap(binary.Write(w, binary.LittleEndian, &wh), "writing header")
}

// ReadHeader reads the header and checks the magic string and the major version
func ReadHeader(r io.Reader) (h Header, err error) {
	var wh wireHeader

	if err = binary.Read(r, binary.LittleEndian, &wh); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return h, ErrBadHeader
		}
		return h, errors.Wrap(err, "reading header")
	}

	if string(wh.Magic[:]) != magicString {
		return h, ErrBadHeader
	}

	if wh.Major != MajorVersion {
		return h, errors.Wrapf(
			ErrVersion,
			"stream is version %v.%v, this build reads %v.x",
			wh.Major, wh.Minor, MajorVersion,
		)
	}

	return Header{
		Major:     wh.Major,
		Minor:     wh.Minor,
		BlockSize: wh.BlockSize,
		HashID:    wh.HashID,
		FileSize:  wh.FileSize,
	}, nil
}

// WriteChecksums writes the number of checksums, then each descriptor with its weak and strong checksum.
// All strong checksums must have the same length.
func WriteChecksums(w io.Writer, checksums []ChunkChecksum) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(len(checksums))); err != nil {
		return errors.Wrap(err, "writing checksum count")
	}

	for _, c := range checksums {
		record := wireChecksum{
			Offset: uint64(c.SourceOffset),
			Size:   uint32(c.Size),
			Weak:   c.WeakChecksum,
		}

		if err := binary.Write(w, binary.LittleEndian, &record); err != nil {
			return errors.Wrap(err, "writing checksum")
		}

		if _, err := w.Write(c.StrongChecksum); err != nil {
			return errors.Wrap(err, "writing strong checksum")
		}
	}

	return nil
}

// LoadChecksumsFromReader reads a list written by WriteChecksums
func LoadChecksumsFromReader(r io.Reader, strongHashSize int) ([]ChunkChecksum, error) {
	var count uint32

	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return nil, partial(err)
	}

	result := make([]ChunkChecksum, 0, capacityHint(count))

	for i := uint32(0); i < count; i++ {
		var record wireChecksum

		if err := binary.Read(r, binary.LittleEndian, &record); err != nil {
			return nil, partial(err)
		}

		strong := make([]byte, strongHashSize)
		if _, err := io.ReadFull(r, strong); err != nil {
			return nil, partial(err)
		}

		result = append(result, ChunkChecksum{
			BlockDescriptor: BlockDescriptor{
				SourceOffset: int64(record.Offset),
				Size:         int64(record.Size),
			},
			WeakChecksum:   record.Weak,
			StrongChecksum: strong,
		})
	}

	return result, nil
}

// WriteCommons writes a match list. exists records whether the destination was present at all.
func WriteCommons(w io.Writer, exists bool, commons []Common) error {
	var flag uint8
	if exists {
		flag = 1
	}

	if err := binary.Write(w, binary.LittleEndian, flag); err != nil {
		return errors.Wrap(err, "writing match list")
	}

	if err := binary.Write(w, binary.LittleEndian, uint32(len(commons))); err != nil {
		return errors.Wrap(err, "writing match count")
	}

	for _, c := range commons {
		record := wireCommon{
			Source: uint64(c.SourceBegin),
			Dest:   uint64(c.DestBegin),
			Size:   uint64(c.Size),
		}

		if err := binary.Write(w, binary.LittleEndian, &record); err != nil {
			return errors.Wrap(err, "writing match")
		}
	}

	return nil
}

// ReadCommons reads a match list written by WriteCommons
func ReadCommons(r io.Reader) (exists bool, commons []Common, err error) {
	var flag uint8
	var count uint32

	if err = binary.Read(r, binary.LittleEndian, &flag); err != nil {
		return false, nil, partial(err)
	}

	if err = binary.Read(r, binary.LittleEndian, &count); err != nil {
		return false, nil, partial(err)
	}

	commons = make([]Common, 0, capacityHint(count))

	for i := uint32(0); i < count; i++ {
		var record wireCommon

		if err = binary.Read(r, binary.LittleEndian, &record); err != nil {
			return false, nil, partial(err)
		}

		commons = append(commons, Common{
			SourceBegin: int64(record.Source),
			DestBegin:   int64(record.Dest),
			Size:        int64(record.Size),
		})
	}

	return flag == 1, commons, nil
}

func partial(err error) error {
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return ErrPartialChecksum
	}
	return err
}

// counts come from the stream, so don't trust them for allocation
func capacityHint(count uint32) int {
	const maxHint = 1 << 16
	if count > maxHint {
		return maxHint
	}
	return int(count)
}
