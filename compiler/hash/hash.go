package hash

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"github.com/chazu/kryon/compiler"
	"github.com/chazu/kryon/vm"
)

// Digest is a SHA-256 content hash.
type Digest [32]byte

// String returns the digest as lowercase hex.
func (d Digest) String() string {
	return hex.EncodeToString(d[:])
}

// Short returns the first 12 hex digits, for log lines.
func (d Digest) Short() string {
	return hex.EncodeToString(d[:6])
}

// IsZero reports whether d is the zero digest.
func (d Digest) IsZero() bool {
	return d == Digest{}
}

// ParseDigest decodes the hex form produced by String.
func ParseDigest(s string) (Digest, error) {
	var d Digest
	if hex.DecodedLen(len(s)) != len(d) {
		return d, fmt.Errorf("digest %q: want %d hex digits", s, 2*len(d))
	}
	if _, err := hex.Decode(d[:], []byte(s)); err != nil {
		return d, fmt.Errorf("digest %q: %w", s, err)
	}
	return d, nil
}

// HashFunction computes the content hash of a function. Functions that
// differ only in parameter names hash equally.
func HashFunction(fn *compiler.Function) Digest {
	return sha256.Sum256(Serialize(NormalizeFunction(fn)))
}

// HashProgram computes the content hash of a whole program, including its
// UI blob.
func HashProgram(p *compiler.Program) Digest {
	return sha256.Sum256(Serialize(NormalizeProgram(p)))
}

// HashSource fingerprints a raw KIR document together with the hashing
// format and module format versions. It is the compile cache key: a new
// module format never reuses an old entry.
func HashSource(data []byte) Digest {
	h := sha256.New()
	var prefix [6]byte
	prefix[0] = HashVersion
	prefix[1] = TagSource
	binary.BigEndian.PutUint16(prefix[2:], vm.VersionMajor)
	binary.BigEndian.PutUint16(prefix[4:], vm.VersionMinor)
	h.Write(prefix[:])
	h.Write(data)

	var d Digest
	h.Sum(d[:0])
	return d
}
