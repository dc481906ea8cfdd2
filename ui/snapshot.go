package ui

import (
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// SnapshotVersion is written into every snapshot.
const SnapshotVersion uint16 = 1

// ErrSnapshotVersion reports a snapshot written by a newer serializer.
var ErrSnapshotVersion = errors.New("unsupported snapshot version")

// cborEncMode uses canonical mode so equal trees encode to equal bytes.
var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("ui: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

type snapshot struct {
	Version uint16     `cbor:"1,keyasint"`
	Root    *Component `cbor:"2,keyasint,omitempty"`
}

// MarshalSnapshot serializes the attached tree. Detached components are
// not written.
func (t *Tree) MarshalSnapshot() ([]byte, error) {
	return cborEncMode.Marshal(&snapshot{Version: SnapshotVersion, Root: t.root})
}

// UnmarshalSnapshot rebuilds a tree from MarshalSnapshot output. Empty
// input gives an empty tree.
func UnmarshalSnapshot(data []byte) (*Tree, error) {
	if len(data) == 0 {
		return NewTree(nil)
	}
	var s snapshot
	if err := cbor.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("ui: unmarshal snapshot: %w", err)
	}
	if s.Version > SnapshotVersion {
		return nil, fmt.Errorf("%w: %d", ErrSnapshotVersion, s.Version)
	}
	return NewTree(s.Root)
}
