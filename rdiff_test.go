package rdiff

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"

	"github.com/Redundancy/go-rdiff/chunks"
	"github.com/Redundancy/go-rdiff/comparer"
	"github.com/Redundancy/go-rdiff/filechecksum"
	"github.com/Redundancy/go-rdiff/util/readers"
)

const BLOCK_SIZE = 1024

func writeFiles(t *testing.T, root string, files map[string][]byte) {
	for rel, content := range files {
		p := filepath.Join(root, filepath.FromSlash(rel))

		if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
			t.Fatal(err)
		}

		if err := os.WriteFile(p, content, 0644); err != nil {
			t.Fatal(err)
		}
	}
}

func newDiffer(t *testing.T, options Options) *Differ {
	if options.BlockSize == 0 {
		options.BlockSize = BLOCK_SIZE
	}

	d, err := New(options)
	if err != nil {
		t.Fatal(err)
	}

	return d
}

// a source/destination pair of trees with one file of each kind
func makeTrees(t *testing.T) (sourceRoot, destRoot string) {
	sourceRoot = t.TempDir()
	destRoot = t.TempDir()

	same := readers.NonRepeatingBytes(1, 10*BLOCK_SIZE)
	changed := readers.NonRepeatingBytes(2, 8*BLOCK_SIZE)

	writeFiles(t, sourceRoot, map[string][]byte{
		"same.bin":       same,
		"dir/changed":    changed,
		"dir/new.txt":    []byte("only in the source"),
		"empty":          {},
		"ignored/x.tmp":  []byte("excluded"),
		"dir/zz/deep.go": []byte("package deep"),
	})

	writeFiles(t, destRoot, map[string][]byte{
		"same.bin":       same,
		"dir/changed":    readers.Flipped(changed, 3*BLOCK_SIZE+10),
		"empty":          {},
		"dir/zz/deep.go": []byte("package deep"),
	})

	return sourceRoot, destRoot
}

func TestDiffIdenticalFile(t *testing.T) {
	dir := t.TempDir()
	content := readers.NonRepeatingBytes(0, 10*BLOCK_SIZE+100)
	writeFiles(t, dir, map[string][]byte{"a": content, "b": content})

	result, err := newDiffer(t, Options{}).DiffFile(
		context.Background(),
		"a",
		filepath.Join(dir, "a"),
		filepath.Join(dir, "b"),
	)

	if err != nil {
		t.Fatal(err)
	}

	if !result.DestExists || len(result.Commons) != 11 {
		t.Fatalf("Expected 11 matches, got %v", len(result.Commons))
	}

	for i, c := range result.Commons {
		if c.SourceBegin != c.DestBegin || c.DestBegin != int64(i*BLOCK_SIZE) {
			t.Errorf("Match %v is not in place: %#v", i, c)
		}
	}

	if result.MatchedBytes != int64(len(content)) || result.MissingBytes() != 0 {
		t.Errorf("Expected everything to match: %v matched, %v missing", result.MatchedBytes, result.MissingBytes())
	}
}

func TestMissingDestinationIsNotAnError(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string][]byte{"a": []byte("some content")})

	result, err := newDiffer(t, Options{}).DiffFile(
		context.Background(),
		"a",
		filepath.Join(dir, "a"),
		filepath.Join(dir, "missing"),
	)

	if err != nil {
		t.Fatal(err)
	}

	if result.DestExists || len(result.Commons) != 0 || result.MissingBytes() != 12 {
		t.Errorf("Expected the whole source to be new: %#v", result)
	}
}

func TestMissingSourceIsAFileError(t *testing.T) {
	dir := t.TempDir()

	result, err := newDiffer(t, Options{}).DiffFile(
		context.Background(),
		"a",
		filepath.Join(dir, "a"),
		filepath.Join(dir, "b"),
	)

	if !IsFileError(err) || !os.IsNotExist(errors.Cause(err)) {
		t.Errorf("Expected a not exist FileError, got %v", err)
	}

	if result.Err != err {
		t.Errorf("Expected the error to be recorded in the result")
	}
}

func TestDestinationDirectoryIsAFileError(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string][]byte{"a": []byte("x"), "b/c": []byte("y")})

	_, err := newDiffer(t, Options{}).DiffFile(
		context.Background(),
		"a",
		filepath.Join(dir, "a"),
		filepath.Join(dir, "b"),
	)

	if errors.Cause(err) != ErrIsDirectory {
		t.Errorf("Expected ErrIsDirectory, got %v", err)
	}
}

func TestUnknownHashIsRejected(t *testing.T) {
	if _, err := New(Options{Strong: filechecksum.StrongHash(99)}); errors.Cause(err) != filechecksum.ErrUnknownHash {
		t.Errorf("Expected ErrUnknownHash, got %v", err)
	}
}

func TestDefaults(t *testing.T) {
	defaults := Options{}.withDefaults()

	if defaults.BlockSize != DefaultBlockSize || defaults.Concurrency != DefaultConcurrency || defaults.Logger == nil {
		t.Errorf("Unexpected defaults: %#v", defaults)
	}

	if defaults.Strong != filechecksum.MD5 {
		t.Errorf("Expected MD5 by default")
	}

	if o := newDiffer(t, Options{Concurrency: 2}).Options(); o.Concurrency != 2 || o.BlockSize != BLOCK_SIZE {
		t.Errorf("Explicit options were replaced: %#v", o)
	}
}

func TestDiffTree(t *testing.T) {
	sourceRoot, destRoot := makeTrees(t)
	d := newDiffer(t, Options{Excludes: []string{"**/*.tmp"}, Concurrency: 3})

	report, err := d.DiffTree(context.Background(), sourceRoot, destRoot)
	if err != nil {
		t.Fatal(err)
	}

	var paths []string
	results := map[string]FileDiffResult{}
	for _, r := range report.Results {
		paths = append(paths, r.RelativePath)
		results[r.RelativePath] = r
	}

	const expected = "dir/changed,dir/new.txt,dir/zz/deep.go,empty,same.bin"
	if got := strings.Join(paths, ","); got != expected {
		t.Fatalf("Expected %v, got %v", expected, got)
	}

	if report.Failures != 0 || report.NewFiles != 1 || report.Files != 5 {
		t.Errorf("Unexpected totals: %v", report)
	}

	if r := results["same.bin"]; len(r.Commons) != 10 || r.MissingBytes() != 0 {
		t.Errorf("Expected same.bin to match entirely: %v matches", len(r.Commons))
	}

	if r := results["dir/changed"]; len(r.Commons) != 7 || r.MissingBytes() != BLOCK_SIZE {
		t.Errorf("Expected one block of dir/changed to differ: %v matches", len(r.Commons))
	}

	if r := results["dir/new.txt"]; r.DestExists || r.Err != nil {
		t.Errorf("Expected dir/new.txt to be new: %#v", r)
	}

	if r := results["empty"]; !r.DestExists || len(r.Commons) != 0 {
		t.Errorf("Expected empty to exist without matches: %#v", r)
	}

	if report.Coverage() >= 1 || report.Coverage() < 0.9 {
		t.Errorf("Unexpected coverage: %v", report.Coverage())
	}

	if !strings.Contains(report.String(), "Files: 5 (1 new, 0 failed)") {
		t.Errorf("Unexpected report:\n%v", report)
	}
}

func TestDiffTreeIsDeterministic(t *testing.T) {
	sourceRoot, destRoot := makeTrees(t)

	first, err := newDiffer(t, Options{Concurrency: 1}).DiffTree(context.Background(), sourceRoot, destRoot)
	if err != nil {
		t.Fatal(err)
	}

	second, err := newDiffer(t, Options{Concurrency: 8}).DiffTree(context.Background(), sourceRoot, destRoot)
	if err != nil {
		t.Fatal(err)
	}

	if len(first.Results) != len(second.Results) {
		t.Fatalf("Result counts differ")
	}

	for i := range first.Results {
		a, b := first.Results[i], second.Results[i]

		if a.RelativePath != b.RelativePath || !reflect.DeepEqual(a.Commons, b.Commons) {
			t.Errorf("Results for %v differ", a.RelativePath)
		}
	}
}

func TestDiffTreeIsolatesFailures(t *testing.T) {
	sourceRoot, destRoot := makeTrees(t)

	if err := os.Symlink(filepath.Join(sourceRoot, "nowhere"), filepath.Join(sourceRoot, "broken")); err != nil {
		t.Skip("symlinks unavailable:", err)
	}

	report, err := newDiffer(t, Options{}).DiffTree(context.Background(), sourceRoot, destRoot)
	if err != nil {
		t.Fatal(err)
	}

	failed := report.Failed()
	if len(failed) != 1 || failed[0].RelativePath != "broken" || !IsFileError(failed[0].Err) {
		t.Fatalf("Expected the broken link to fail alone: %v", failed)
	}

	if report.Files != 7 || report.Failures != 1 {
		t.Errorf("Expected the other files to be diffed: %v files, %v failures", report.Files, report.Failures)
	}
}

func TestCancelledDiffTree(t *testing.T) {
	sourceRoot, destRoot := makeTrees(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := newDiffer(t, Options{}).DiffTree(ctx, sourceRoot, destRoot)
	if err != context.Canceled {
		t.Fatalf("Expected context.Canceled, got %v", err)
	}

	if report.Failures != report.Files {
		t.Errorf("Expected every file to be skipped: %v", report)
	}
}

func TestDiffDispatches(t *testing.T) {
	sourceRoot, destRoot := makeTrees(t)
	d := newDiffer(t, Options{})

	report, err := d.Diff(
		context.Background(),
		filepath.Join(sourceRoot, "same.bin"),
		filepath.Join(destRoot, "same.bin"),
	)

	if err != nil {
		t.Fatal(err)
	}

	if report.Files != 1 || report.Results[0].RelativePath != "same.bin" {
		t.Errorf("Expected a single file report: %v", report)
	}

	report, err = d.Diff(context.Background(), sourceRoot, destRoot)
	if err != nil {
		t.Fatal(err)
	}

	if report.Files != 6 {
		t.Errorf("Expected a tree report, got %v files", report.Files)
	}

	if _, err := d.Diff(context.Background(), filepath.Join(sourceRoot, "missing"), destRoot); !IsFileError(err) {
		t.Errorf("Expected a FileError, got %v", err)
	}
}

func TestMetrics(t *testing.T) {
	sourceRoot, destRoot := makeTrees(t)
	registry := prometheus.NewRegistry()

	d := newDiffer(t, Options{Registerer: registry, Excludes: []string{"**/*.tmp"}})
	if _, err := d.DiffTree(context.Background(), sourceRoot, destRoot); err != nil {
		t.Fatal(err)
	}

	if n := testutil.ToFloat64(d.metrics.files.WithLabelValues("new")); n != 1 {
		t.Errorf("Expected 1 new file, got %v", n)
	}

	if n := testutil.ToFloat64(d.metrics.files.WithLabelValues("matched")); n != 4 {
		t.Errorf("Expected 4 matched files, got %v", n)
	}

	// a second Differ shares the registered metrics
	other := newDiffer(t, Options{Registerer: registry})
	if other.metrics.files != d.metrics.files {
		t.Error("Expected the metrics to be shared")
	}
}

func TestLogsCarryRunID(t *testing.T) {
	sourceRoot, destRoot := makeTrees(t)
	output := &bytes.Buffer{}
	logger := zerolog.New(output).Level(zerolog.DebugLevel)

	report, err := newDiffer(t, Options{Logger: &logger, Concurrency: 1}).DiffTree(
		context.Background(),
		sourceRoot,
		destRoot,
	)

	if err != nil {
		t.Fatal(err)
	}

	lines := strings.Split(strings.TrimSpace(output.String()), "\n")
	if len(lines) < report.Files {
		t.Fatalf("Expected a line per file, got %v", len(lines))
	}

	for _, line := range lines {
		if !strings.Contains(line, report.RunID) {
			t.Errorf("Line without the run id: %v", line)
		}
	}
}

func TestReusedBytesCountsSourceBlocksOnce(t *testing.T) {
	dir := t.TempDir()
	block := readers.NonRepeatingBytes(4, BLOCK_SIZE)
	writeFiles(t, dir, map[string][]byte{
		"source": block,
		"dest":   bytes.Repeat(block, 3),
	})

	result, err := newDiffer(t, Options{}).DiffFile(
		context.Background(),
		"x",
		filepath.Join(dir, "source"),
		filepath.Join(dir, "dest"),
	)

	if err != nil {
		t.Fatal(err)
	}

	if result.MatchedBytes != 3*BLOCK_SIZE || result.ReusedBytes() != BLOCK_SIZE {
		t.Errorf("Unexpected sizes: %v matched, %v reused", result.MatchedBytes, result.ReusedBytes())
	}

	matches, err := comparer.MatchListFromCommons(result.Commons)
	if err != nil || len(matches.Spans()) != 3 {
		t.Errorf("Expected 3 separate spans of the same block")
	}
}

func TestReportTotals(t *testing.T) {
	report := NewReport()

	if report.Coverage() != 1 {
		t.Errorf("An empty report should be fully covered, got %v", report.Coverage())
	}

	report.Add(FileDiffResult{
		RelativePath: "a",
		SourceSize:   100,
		DestSize:     80,
		DestExists:   true,
		Commons:      []chunks.Common{{SourceBegin: 0, DestBegin: 0, Size: 50}},
		MatchedBytes: 50,
	})
	report.Add(FileDiffResult{RelativePath: "b", SourceSize: 20})
	report.Add(FileDiffResult{RelativePath: "c", Err: errors.New("unreadable")})
	report.Done()

	if report.Files != 3 || report.NewFiles != 1 || report.Failures != 1 {
		t.Errorf("Unexpected counts: %v files, %v new, %v failed", report.Files, report.NewFiles, report.Failures)
	}

	if report.SourceBytes != 120 || report.ReusedBytes != 50 {
		t.Errorf("Unexpected totals: %v source, %v reused", report.SourceBytes, report.ReusedBytes)
	}

	if !strings.Contains(report.String(), "To transfer: 70 B") {
		t.Errorf("Unexpected report:\n%v", report)
	}
}
