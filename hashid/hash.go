// Package hashid implements the engine's content-addressing identity: a
// 32-byte SHA-256 digest with hex codec and lexicographic ordering.
package hashid

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"sort"

	"github.com/pkg/errors"
)

// Size is the byte length of a Hash32.
const Size = 32

// Hash32 is a 32-byte SHA-256 digest used as the content-address of every
// canonical sequence, chunk, and manifest in the store.
type Hash32 [Size]byte

// Empty is the zero hash, used as a sentinel (e.g. an unset previous-version
// pointer, or the root of an empty chunk set).
var Empty = Hash32{}

// Of computes the content hash of b. It never inspects any out-of-band
// metadata: hashing the same bytes twice always yields the same Hash32.
func Of(b []byte) Hash32 {
	return Hash32(sha256.Sum256(b))
}

// ErrMalformedHash is returned by Parse when the input is not 64 hex
// characters.
var ErrMalformedHash = errors.New("hashid: malformed hash string")

// Parse decodes a hex-encoded Hash32 produced by String.
func Parse(s string) (Hash32, error) {
	var h Hash32
	if len(s) != Size*2 {
		return h, errors.Wrapf(ErrMalformedHash, "want %d hex chars, got %d", Size*2, len(s))
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return h, errors.Wrap(ErrMalformedHash, err.Error())
	}
	copy(h[:], b)
	return h, nil
}

// MustParse is Parse but panics on error; intended for constants in tests.
func MustParse(s string) Hash32 {
	h, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return h
}

// String renders the hash as lowercase hex.
func (h Hash32) String() string {
	return hex.EncodeToString(h[:])
}

// Bytes returns a fresh copy of the hash's raw bytes.
func (h Hash32) Bytes() []byte {
	out := make([]byte, Size)
	copy(out, h[:])
	return out
}

// IsEmpty reports whether h is the all-zero sentinel.
func (h Hash32) IsEmpty() bool {
	return h == Empty
}

// Compare returns -1, 0, or 1 per bytes.Compare semantics over the raw
// digest, giving Hash32 a total lexicographic order.
func Compare(a, b Hash32) int {
	return bytes.Compare(a[:], b[:])
}

// Less reports whether a sorts before b.
func Less(a, b Hash32) bool {
	return Compare(a, b) < 0
}

// Slice is a sortable list of hashes, used anywhere the spec requires a
// "lexicographically sorted sequence of hashes" (Merkle root derivation,
// manifest chunk indices).
type Slice []Hash32

func (s Slice) Len() int           { return len(s) }
func (s Slice) Less(i, j int) bool { return Less(s[i], s[j]) }
func (s Slice) Swap(i, j int)      { s[i], s[j] = s[j], s[i] }

// Sorted returns a sorted copy of hashes, leaving the input untouched.
func Sorted(hashes []Hash32) []Hash32 {
	out := make([]Hash32, len(hashes))
	copy(out, hashes)
	sort.Sort(Slice(out))
	return out
}
