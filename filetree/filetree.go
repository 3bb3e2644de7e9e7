/*
Package filetree enumerates the regular files below a root directory, in a stable order, so that
a source and a destination tree can be paired by relative path.

Walking is lazy: directories are only listed when the walk reaches them. Symbolic links to regular
files are followed, symbolic links to directories are not.
*/
package filetree

import (
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/pkg/errors"
)

var (
	ErrNotDirectory = errors.New("walk root is not a directory")
	ErrOutsideRoot  = errors.New("path is not below the root")
)

// Entry is a regular file found by the walk
type Entry struct {
	// Path as it can be opened
	Path string
	// RelativePath is slash separated and identifies the file across trees
	RelativePath string
	Size         int64
}

// WalkError reports a single file or directory that could not be read.
// The walk continues after it.
type WalkError struct {
	Path string
	Err  error
}

func (e *WalkError) Error() string {
	return "walking " + e.Path + ": " + e.Err.Error()
}

func (e *WalkError) Cause() error {
	return e.Err
}

func (e *WalkError) Unwrap() error {
	return e.Err
}

type frame struct {
	dir      string
	rel      string
	entries  []os.DirEntry
	position int
}

// Walker produces the files of a tree depth first, in name order.
// A Walker is used once; walk again by creating a new one.
type Walker struct {
	root     string
	excludes []string
	stack    []*frame
}

// NewWalker lists root and prepares the walk. Files and directories whose relative path
// matches one of the exclude globs are skipped, directories with their whole contents.
func NewWalker(root string, excludes ...string) (*Walker, error) {
	for _, pattern := range excludes {
		if _, err := doublestar.Match(pattern, "a"); err != nil {
			return nil, errors.Wrapf(err, "exclude pattern %q", pattern)
		}
	}

	info, err := os.Stat(root)
	if err != nil {
		return nil, err
	}

	if !info.IsDir() {
		return nil, errors.Wrap(ErrNotDirectory, root)
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, err
	}

	return &Walker{
		root:     root,
		excludes: excludes,
		stack:    []*frame{{dir: root, entries: entries}},
	}, nil
}

// Next returns the next file, or io.EOF once the walk is complete.
// A *WalkError may be returned for an entry that could not be read, after which
// Next can be called again to continue.
func (w *Walker) Next() (Entry, error) {
	for len(w.stack) > 0 {
		top := w.stack[len(w.stack)-1]

		if top.position >= len(top.entries) {
			w.stack = w.stack[:len(w.stack)-1]
			continue
		}

		e := top.entries[top.position]
		top.position++

		rel := path.Join(top.rel, e.Name())
		full := filepath.Join(top.dir, e.Name())

		if w.excluded(rel) {
			continue
		}

		if e.IsDir() {
			entries, err := os.ReadDir(full)
			if err != nil {
				return Entry{}, &WalkError{Path: full, Err: err}
			}

			w.stack = append(w.stack, &frame{dir: full, rel: rel, entries: entries})
			continue
		}

		// Stat rather than the DirEntry, so that links are resolved
		info, err := os.Stat(full)
		if err != nil {
			return Entry{}, &WalkError{Path: full, Err: err}
		}

		if !info.Mode().IsRegular() {
			continue
		}

		return Entry{
			Path:         full,
			RelativePath: rel,
			Size:         info.Size(),
		}, nil
	}

	return Entry{}, io.EOF
}

func (w *Walker) excluded(rel string) bool {
	for _, pattern := range w.excludes {
		// patterns were validated in NewWalker
		if match, _ := doublestar.Match(pattern, rel); match {
			return true
		}
	}
	return false
}

// Collect walks the whole tree. Entries that could not be read are returned
// separately rather than stopping the walk.
func (w *Walker) Collect() (entries []Entry, failures []*WalkError) {
	for {
		e, err := w.Next()

		if err == io.EOF {
			return entries, failures
		}

		if err != nil {
			failures = append(failures, err.(*WalkError))
			continue
		}

		entries = append(entries, e)
	}
}

// Rel is the slash separated path of target relative to root
func Rel(root, target string) (string, error) {
	rel, err := filepath.Rel(root, target)
	if err != nil {
		return "", err
	}

	rel = filepath.ToSlash(rel)
	if rel == ".." || strings.HasPrefix(rel, "../") {
		return "", errors.Wrap(ErrOutsideRoot, target)
	}

	return rel, nil
}

// Join maps a relative path from Rel or Entry.RelativePath back onto a root,
// refusing paths that would escape it
func Join(root, rel string) (string, error) {
	clean := path.Clean("/" + rel)[1:]

	if clean == "" || clean != rel {
		return "", errors.Wrap(ErrOutsideRoot, rel)
	}

	return filepath.Join(root, filepath.FromSlash(clean)), nil
}
