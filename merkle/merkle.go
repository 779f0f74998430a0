// Package merkle builds and verifies the binary Merkle DAG used to derive
// TemporalManifest.sequence_root and ReductionManifest.reduction_merkle_root
// (component C6). Grounded on get_sequence_root in
// original_source/talaria-sequoia/src/storage/core.rs.
package merkle

import (
	"github.com/pkg/errors"

	"github.com/talaria-db/sequoia/hashid"
)

// Tree is an immutable binary Merkle tree built from a lexicographically
// sorted sequence of leaf hashes. Each internal node is
// Hash32.of(left.Bytes() || right.Bytes()); when a level has an odd count,
// its last node is duplicated to pair with itself.
type Tree struct {
	levels [][]hashid.Hash32 // levels[0] = leaves, levels[len-1] = [root]
}

// DefaultRoot is the Merkle root of an empty item set.
var DefaultRoot = hashid.Of(nil)

// BuildFromItems builds a tree over items, which are sorted lexicographically
// before leaves are laid down (the spec requires the root to be
// insertion-order independent).
func BuildFromItems(items []hashid.Hash32) *Tree {
	if len(items) == 0 {
		return &Tree{levels: [][]hashid.Hash32{{DefaultRoot}}}
	}
	leaves := hashid.Sorted(items)
	levels := [][]hashid.Hash32{leaves}
	cur := leaves
	for len(cur) > 1 {
		next := make([]hashid.Hash32, 0, (len(cur)+1)/2)
		for i := 0; i < len(cur); i += 2 {
			left := cur[i]
			right := left
			if i+1 < len(cur) {
				right = cur[i+1]
			}
			next = append(next, parentHash(left, right))
		}
		levels = append(levels, next)
		cur = next
	}
	return &Tree{levels: levels}
}

func parentHash(left, right hashid.Hash32) hashid.Hash32 {
	buf := make([]byte, 0, hashid.Size*2)
	buf = append(buf, left[:]...)
	buf = append(buf, right[:]...)
	return hashid.Of(buf)
}

// RootHash returns the tree's root.
func (t *Tree) RootHash() hashid.Hash32 {
	top := t.levels[len(t.levels)-1]
	return top[0]
}

// Step is one sibling hash encountered walking from a leaf to the root.
type Step struct {
	Sibling hashid.Hash32
	// SiblingOnRight is true when Sibling is the right-hand operand of the
	// parent hash (i.e. the proven node was the left operand).
	SiblingOnRight bool
}

// Path is an authentication path from a leaf to the tree's root.
type Path []Step

// ErrIndexOutOfRange is returned by ProofFor for an out-of-bounds leaf index.
var ErrIndexOutOfRange = errors.New("merkle: leaf index out of range")

// ProofFor returns the authentication path for the leaf at index (position
// in the sorted leaf order BuildFromItems used).
func (t *Tree) ProofFor(index int) (Path, error) {
	leaves := t.levels[0]
	if index < 0 || index >= len(leaves) {
		return nil, errors.Wrapf(ErrIndexOutOfRange, "index %d, %d leaves", index, len(leaves))
	}
	var path Path
	idx := index
	for level := 0; level < len(t.levels)-1; level++ {
		nodes := t.levels[level]
		isRight := idx%2 == 1
		var siblingIdx int
		if isRight {
			siblingIdx = idx - 1
		} else {
			siblingIdx = idx + 1
			if siblingIdx >= len(nodes) {
				siblingIdx = idx // duplicated-last-leaf case
			}
		}
		path = append(path, Step{
			Sibling:        nodes[siblingIdx],
			SiblingOnRight: !isRight,
		})
		idx /= 2
	}
	return path, nil
}

// Verify recomputes the root from item and path and checks it matches root.
func Verify(item hashid.Hash32, path Path, root hashid.Hash32) bool {
	cur := item
	for _, step := range path {
		if step.SiblingOnRight {
			cur = parentHash(cur, step.Sibling)
		} else {
			cur = parentHash(step.Sibling, cur)
		}
	}
	return cur == root
}
