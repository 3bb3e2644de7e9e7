package rdiff

import (
	"bytes"
	"context"
	"encoding/binary"
	"io"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/Redundancy/go-rdiff/chunks"
	"github.com/Redundancy/go-rdiff/comparer"
	"github.com/Redundancy/go-rdiff/filetree"
	"github.com/Redundancy/go-rdiff/indexbuilder"
	"github.com/Redundancy/go-rdiff/transport"
)

/*
A remote diff sends the index of a source file to a Service that owns the destination tree,
and gets back the match list:

	request:  path length uint16, path, index (header and checksums)
	response: destination size uint64, match list
*/

const maxPathLength = 1<<16 - 1

func encodeRequest(relPath string, summary *indexbuilder.Summary) ([]byte, error) {
	if len(relPath) > maxPathLength {
		return nil, errors.Errorf("path of %v bytes is too long", len(relPath))
	}

	b := &bytes.Buffer{}
	binary.Write(b, binary.LittleEndian, uint16(len(relPath)))
	b.WriteString(relPath)

	if err := indexbuilder.WriteSummary(b, summary); err != nil {
		return nil, err
	}

	return b.Bytes(), nil
}

func decodeRequest(request []byte) (string, *indexbuilder.Summary, error) {
	r := bytes.NewReader(request)

	var length uint16
	if err := binary.Read(r, binary.LittleEndian, &length); err != nil {
		return "", nil, errors.Wrap(err, "reading path")
	}

	path := make([]byte, length)
	if _, err := io.ReadFull(r, path); err != nil {
		return "", nil, errors.Wrap(err, "reading path")
	}

	summary, err := indexbuilder.ReadSummary(r)
	if err != nil {
		return "", nil, err
	}

	return string(path), summary, nil
}

func encodeResponse(destSize int64, exists bool, commons []chunks.Common) ([]byte, error) {
	b := &bytes.Buffer{}
	binary.Write(b, binary.LittleEndian, uint64(destSize))

	if err := chunks.WriteCommons(b, exists, commons); err != nil {
		return nil, err
	}

	return b.Bytes(), nil
}

func decodeResponse(response []byte) (destSize int64, exists bool, commons []chunks.Common, err error) {
	r := bytes.NewReader(response)

	var size uint64
	if err = binary.Read(r, binary.LittleEndian, &size); err != nil {
		return 0, false, nil, errors.Wrap(ErrInvalidResponse, "missing destination size")
	}

	exists, commons, err = chunks.ReadCommons(r)
	if err != nil {
		return 0, false, nil, errors.Wrap(ErrInvalidResponse, err.Error())
	}

	return int64(size), exists, commons, nil
}

// checkCommons verifies that a remote match list describes blocks of the index inside the destination
func checkCommons(commons []chunks.Common, summary *indexbuilder.Summary, destSize int64) (*comparer.MatchList, error) {
	blockSize := int64(summary.Index.BlockSize())
	blocks := summary.Index.Checksums()

	for _, c := range commons {
		i := c.SourceBegin / blockSize

		if c.SourceBegin < 0 || c.SourceBegin%blockSize != 0 || i >= int64(len(blocks)) || blocks[i].Size != c.Size {
			return nil, errors.Wrapf(ErrInvalidResponse, "match of source %v+%v is not a block", c.SourceBegin, c.Size)
		}

		if c.DestBegin < 0 || c.DestEnd() > destSize {
			return nil, errors.Wrapf(ErrInvalidResponse, "match at %v+%v is outside the destination", c.DestBegin, c.Size)
		}
	}

	matches, err := comparer.MatchListFromCommons(commons)
	if err != nil {
		return nil, errors.Wrap(ErrInvalidResponse, err.Error())
	}

	return matches, nil
}

// Service answers remote diffs against the destination tree below root
type Service struct {
	root   string
	differ *Differ
}

// NewService uses differ for logging and metrics; the block size and hash come from each request
func NewService(root string, differ *Differ) *Service {
	return &Service{root: root, differ: differ}
}

// Handle is a transport.Handler
func (s *Service) Handle(ctx context.Context, request []byte) ([]byte, error) {
	start := time.Now()

	relPath, summary, err := decodeRequest(request)
	if err != nil {
		return nil, err
	}

	destPath, err := filetree.Join(s.root, relPath)
	if err != nil {
		return nil, err
	}

	result := FileDiffResult{RelativePath: relPath}

	response, err := s.handle(ctx, &result, summary, destPath)
	result.Err = err

	s.differ.metrics.observe(&result, time.Since(start))
	logResult(s.differ.logger, &result, time.Since(start))

	return response, err
}

func (s *Service) handle(ctx context.Context, result *FileDiffResult, summary *indexbuilder.Summary, destPath string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := matchFile(result, summary, destPath); err != nil {
		return nil, err
	}

	return encodeResponse(result.DestSize, result.DestExists, result.Commons)
}

// RemoteDiffFile indexes sourcePath and has the service behind client match its copy of relPath.
// Transport and remote failures are returned, and recorded in the result.
func (d *Differ) RemoteDiffFile(ctx context.Context, client transport.Client, relPath, sourcePath string) (FileDiffResult, error) {
	return d.remoteDiffFileLogged(ctx, d.logger, client, relPath, sourcePath)
}

func (d *Differ) remoteDiffFileLogged(
	ctx context.Context,
	logger zerolog.Logger,
	client transport.Client,
	relPath, sourcePath string,
) (FileDiffResult, error) {
	start := time.Now()
	result := FileDiffResult{RelativePath: relPath}

	err := d.remoteDiffFile(ctx, client, &result, sourcePath)
	result.Err = err

	d.metrics.observe(&result, time.Since(start))
	logResult(logger, &result, time.Since(start))

	return result, err
}

func (d *Differ) remoteDiffFile(ctx context.Context, client transport.Client, result *FileDiffResult, sourcePath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	summary, err := d.Index(ctx, sourcePath)
	if err != nil {
		return err
	}

	result.SourceSize = summary.FileSize
	result.SourceChecksum = summary.FileChecksum
	result.DuplicateBlocks = summary.Index.Duplicates()

	request, err := encodeRequest(result.RelativePath, summary)
	if err != nil {
		return err
	}

	response, err := client.SendReceive(ctx, request)
	if err != nil {
		return errors.Wrapf(err, "remote diff of %v", result.RelativePath)
	}

	destSize, exists, commons, err := decodeResponse(response)
	if err != nil {
		return err
	}

	matches, err := checkCommons(commons, summary, destSize)
	if err != nil {
		return err
	}

	result.DestExists = exists
	result.DestSize = destSize
	result.Commons = matches.Commons()
	result.MatchedBytes = matches.MatchedBytes()
	return nil
}

// RemoteDiffTree diffs every file below sourceRoot with the service behind client,
// in the same way as DiffTree
func (d *Differ) RemoteDiffTree(ctx context.Context, client transport.Client, sourceRoot string) (*Report, error) {
	return d.diffTree(ctx, sourceRoot, func(ctx context.Context, logger zerolog.Logger, e filetree.Entry) FileDiffResult {
		result, _ := d.remoteDiffFileLogged(ctx, logger, client, e.RelativePath, e.Path)
		return result
	})
}
