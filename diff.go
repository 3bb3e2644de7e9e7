package rdiff

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/Redundancy/go-rdiff/comparer"
	"github.com/Redundancy/go-rdiff/filechecksum"
	"github.com/Redundancy/go-rdiff/filetree"
	"github.com/Redundancy/go-rdiff/indexbuilder"
)

var ErrIsDirectory = errors.New("is a directory")

// Differ diffs files and trees. It holds no state between calls other than metrics,
// and is safe for concurrent use.
type Differ struct {
	options Options
	logger  zerolog.Logger
	metrics *metrics
}

func New(options Options) (*Differ, error) {
	options = options.withDefaults()

	if !options.Strong.Valid() {
		return nil, errors.Wrapf(filechecksum.ErrUnknownHash, "hash id %v", uint8(options.Strong))
	}

	m, err := newMetrics(options.Registerer)
	if err != nil {
		return nil, err
	}

	return &Differ{
		options: options,
		logger:  *options.Logger,
		metrics: m,
	}, nil
}

// Options in effect, with defaults filled in
func (d *Differ) Options() Options {
	return d.options
}

// Index builds the index of a source file with the Differ's block size and strong hash
func (d *Differ) Index(ctx context.Context, sourcePath string) (*indexbuilder.Summary, error) {
	summary, err := indexbuilder.BuildIndexFromFile(ctx, sourcePath, d.options.BlockSize, d.options.Strong)
	if err != nil {
		return nil, &FileError{Op: "index", Path: sourcePath, Err: err}
	}

	return summary, nil
}

// match scans r against the index, with the block size and hash the index was built with
func match(r io.Reader, summary *indexbuilder.Summary) (*comparer.MatchList, comparer.Comparer, error) {
	var stats comparer.Comparer

	generator := filechecksum.NewFileChecksumGenerator(summary.Index.BlockSize(), summary.Strong)
	matches, err := stats.FindMatchingBlocks(r, generator, summary.Index)

	return matches, stats, err
}

// DiffFile indexes sourcePath and matches destPath against it.
// A missing destination is not an error: the result has DestExists == false and no Commons.
// Failures to read either file are returned as a *FileError.
func (d *Differ) DiffFile(ctx context.Context, relPath, sourcePath, destPath string) (FileDiffResult, error) {
	return d.diffFileLogged(ctx, d.logger, relPath, sourcePath, destPath)
}

func (d *Differ) diffFileLogged(
	ctx context.Context,
	logger zerolog.Logger,
	relPath, sourcePath, destPath string,
) (FileDiffResult, error) {
	start := time.Now()
	result := FileDiffResult{RelativePath: relPath}

	err := d.diffFile(ctx, &result, sourcePath, destPath)
	result.Err = err

	d.metrics.observe(&result, time.Since(start))
	logResult(logger, &result, time.Since(start))

	return result, err
}

func (d *Differ) diffFile(ctx context.Context, result *FileDiffResult, sourcePath, destPath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	summary, err := d.Index(ctx, sourcePath)
	if err != nil {
		return err
	}

	return matchFile(result, summary, destPath)
}

// DiffIndex matches destPath against an index that was built elsewhere, eg. read from an index file
func (d *Differ) DiffIndex(ctx context.Context, relPath string, summary *indexbuilder.Summary, destPath string) (FileDiffResult, error) {
	start := time.Now()
	result := FileDiffResult{RelativePath: relPath}

	err := ctx.Err()
	if err == nil {
		err = matchFile(&result, summary, destPath)
	}
	result.Err = err

	d.metrics.observe(&result, time.Since(start))
	logResult(d.logger, &result, time.Since(start))

	return result, err
}

func matchFile(result *FileDiffResult, summary *indexbuilder.Summary, destPath string) error {
	result.SourceSize = summary.FileSize
	result.SourceChecksum = summary.FileChecksum
	result.DuplicateBlocks = summary.Index.Duplicates()

	f, err := os.Open(destPath)
	switch {
	case os.IsNotExist(err):
		return nil
	case err != nil:
		return &FileError{Op: "open", Path: destPath, Err: err}
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return &FileError{Op: "stat", Path: destPath, Err: err}
	}

	if info.IsDir() {
		return &FileError{Op: "open", Path: destPath, Err: ErrIsDirectory}
	}

	result.DestExists = true
	result.DestSize = info.Size()

	matches, stats, err := match(f, summary)
	result.Stats = stats

	if err != nil {
		if errors.Cause(err) == comparer.ErrBlockSizeMismatch {
			return err
		}
		return &FileError{Op: "match", Path: destPath, Err: err}
	}

	result.Commons = matches.Commons()
	result.MatchedBytes = matches.MatchedBytes()
	return nil
}

func logResult(logger zerolog.Logger, r *FileDiffResult, elapsed time.Duration) {
	if r.Err != nil {
		logger.Warn().Err(r.Err).Str("path", r.RelativePath).Msg("unable to diff file")
		return
	}

	logger.Debug().
		Str("path", r.RelativePath).
		Int64("source_bytes", r.SourceSize).
		Int64("dest_bytes", r.DestSize).
		Bool("dest_exists", r.DestExists).
		Int("commons", len(r.Commons)).
		Int64("matched_bytes", r.MatchedBytes).
		Int("duplicate_blocks", r.DuplicateBlocks).
		Int64("false_positives", r.Stats.FalsePositives()).
		Dur("elapsed", elapsed).
		Msg("diffed file")
}

// DiffTree diffs every file below sourceRoot with the file at the same relative path below destRoot.
// Files are diffed concurrently, failures are recorded against their file, and the results are
// sorted by relative path. Cancelling ctx skips the files that have not started, and the partial
// report is returned with the context's error.
func (d *Differ) DiffTree(ctx context.Context, sourceRoot, destRoot string) (*Report, error) {
	return d.diffTree(ctx, sourceRoot, func(ctx context.Context, logger zerolog.Logger, e filetree.Entry) FileDiffResult {
		destPath, err := filetree.Join(destRoot, e.RelativePath)
		if err != nil {
			return FileDiffResult{RelativePath: e.RelativePath, Err: err}
		}

		result, _ := d.diffFileLogged(ctx, logger, e.RelativePath, e.Path, destPath)
		return result
	})
}

// fileDiffFunc diffs one file of a tree, recording any failure in the result
type fileDiffFunc func(ctx context.Context, logger zerolog.Logger, e filetree.Entry) FileDiffResult

func (d *Differ) diffTree(ctx context.Context, sourceRoot string, diff fileDiffFunc) (*Report, error) {
	report := NewReport()
	logger := d.logger.With().Str("run", report.RunID).Logger()

	walker, err := filetree.NewWalker(sourceRoot, d.options.Excludes...)
	if err != nil {
		return nil, &FileError{Op: "walk", Path: sourceRoot, Err: err}
	}

	entries, failures := walker.Collect()
	logger.Info().
		Str("source", sourceRoot).
		Int("files", len(entries)).
		Int("unreadable", len(failures)).
		Msg("diffing tree")

	results := make([]FileDiffResult, len(entries), len(entries)+len(failures))

	g := new(errgroup.Group)
	g.SetLimit(d.options.Concurrency)

	for i, e := range entries {
		if err := ctx.Err(); err != nil {
			results[i] = FileDiffResult{RelativePath: e.RelativePath, Err: errors.Wrap(err, "skipped")}
			continue
		}

		i, e := i, e
		g.Go(func() error {
			// each worker only writes its own slot
			results[i] = diff(ctx, logger, e)
			return nil
		})
	}

	g.Wait()

	for _, f := range failures {
		rel, err := filetree.Rel(sourceRoot, f.Path)
		if err != nil {
			rel = filepath.ToSlash(f.Path)
		}

		logger.Warn().Err(f.Err).Str("path", rel).Msg("unable to read")
		results = append(results, FileDiffResult{
			RelativePath: rel,
			Err:          &FileError{Op: "walk", Path: f.Path, Err: f.Err},
		})
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].RelativePath < results[j].RelativePath
	})

	for _, r := range results {
		report.Add(r)
	}

	report.Done()
	logger.Info().
		Int("files", report.Files).
		Int("failures", report.Failures).
		Int64("matched_bytes", report.MatchedBytes).
		Dur("elapsed", report.Elapsed).
		Msg("diffed tree")

	return report, ctx.Err()
}

// Diff diffs two trees if source is a directory, otherwise two files.
// A single file is reported under its base name.
func (d *Differ) Diff(ctx context.Context, source, dest string) (*Report, error) {
	info, err := os.Stat(source)
	if err != nil {
		return nil, &FileError{Op: "stat", Path: source, Err: err}
	}

	if info.IsDir() {
		return d.DiffTree(ctx, source, dest)
	}

	report := NewReport()
	result, err := d.DiffFile(ctx, filepath.Base(source), source, dest)
	report.Add(result)
	report.Done()

	return report, err
}
