package filechecksum

import (
	"crypto/md5"
	"crypto/sha256"
	"hash"
	"strings"

	"github.com/pkg/errors"
	"github.com/zeebo/blake3"
)

// StrongHash identifies the collision resistant hash used to confirm weak matches.
// The zero value is MD5, which rsync swapped to after protocol version 30.
type StrongHash uint8

const (
	MD5 StrongHash = iota
	BLAKE3
	SHA256
)

var ErrUnknownHash = errors.New("unknown strong hash")

var strongHashNames = map[StrongHash]string{
	MD5:    "md5",
	BLAKE3: "blake3",
	SHA256: "sha256",
}

// ParseStrongHash parses a name as printed by String
func ParseStrongHash(name string) (StrongHash, error) {
	for h, n := range strongHashNames {
		if strings.EqualFold(n, name) {
			return h, nil
		}
	}
	return MD5, errors.Wrapf(ErrUnknownHash, "%q", name)
}

func (h StrongHash) String() string {
	if n, ok := strongHashNames[h]; ok {
		return n
	}
	return "unknown"
}

// Valid is false for values that do not name a known hash (eg. read from a corrupt header)
func (h StrongHash) Valid() bool {
	_, ok := strongHashNames[h]
	return ok
}

// New is a factory, because we don't want to share hash state
func (h StrongHash) New() hash.Hash {
	switch h {
	case BLAKE3:
		return blake3.New()
	case SHA256:
		return sha256.New()
	default:
		return md5.New()
	}
}

// Size of the digest in bytes
func (h StrongHash) Size() int {
	switch h {
	case BLAKE3:
		return 32
	case SHA256:
		return sha256.Size
	default:
		return md5.Size
	}
}

// Strong computes the strong checksum of p
func Strong(h StrongHash, p []byte) []byte {
	switch h {
	case BLAKE3:
		sum := blake3.Sum256(p)
		return sum[:]
	case SHA256:
		sum := sha256.Sum256(p)
		return sum[:]
	default:
		sum := md5.Sum(p)
		return sum[:]
	}
}
