package readers

import (
	"io"
)

// InjectedReader reads offsetFromStart bytes of base, all of inject, then the rest of base
func InjectedReader(
	offsetFromStart int64,
	base io.Reader,
	inject io.Reader,
) io.Reader {
	return io.MultiReader(
		io.LimitReader(base, offsetFromStart),
		inject,
		base,
	)
}
