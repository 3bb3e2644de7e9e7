package rdiff

import (
	"github.com/pkg/errors"
)

var ErrInvalidResponse = errors.New("invalid response from remote service")

// FileError is a failure to read or open one file. In a tree diff it is recorded
// against the file and the other files are still diffed.
type FileError struct {
	Op   string
	Path string
	Err  error
}

func (e *FileError) Error() string {
	return e.Op + " " + e.Path + ": " + e.Err.Error()
}

func (e *FileError) Cause() error {
	return e.Err
}

func (e *FileError) Unwrap() error {
	return e.Err
}

// IsFileError reports whether err was caused by a file that could not be read
func IsFileError(err error) bool {
	var fe *FileError
	return errors.As(err, &fe)
}
