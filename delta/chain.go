package delta

import "github.com/talaria-db/sequoia/hashid"

// ChainDepth walks parentOf (child -> its immediate delta reference) from
// child up to a root (a hash with no entry in parentOf) and returns the
// number of hops. A direct child of a root reference has depth 1.
func ChainDepth(child hashid.Hash32, parentOf map[hashid.Hash32]hashid.Hash32) int {
	depth := 0
	cur := child
	for {
		parent, ok := parentOf[cur]
		if !ok {
			return depth
		}
		depth++
		cur = parent
	}
}

// RootOf returns the hash at the top of child's delta chain.
func RootOf(child hashid.Hash32, parentOf map[hashid.Hash32]hashid.Hash32) hashid.Hash32 {
	cur := child
	for {
		parent, ok := parentOf[cur]
		if !ok {
			return cur
		}
		cur = parent
	}
}

// BytesResolver resolves the canonical (reconstructed) bytes for any hash in
// a chain, reference or child.
type BytesResolver func(hashid.Hash32) ([]byte, error)

// CompactDeepChains walks every child in parentOf whose chain depth exceeds
// maxDepth, reconstructs it, re-encodes it directly against its chain's
// root reference, and rewires parentOf so the child's new depth is 1. It
// returns the freshly re-encoded ChildDelta for every child it touched.
//
// parentOf is mutated in place to reflect the new, flattened chain shape.
func CompactDeepChains(
	parentOf map[hashid.Hash32]hashid.Hash32,
	maxDepth int,
	resolve BytesResolver,
	cfg Config,
) (map[hashid.Hash32]ChildDelta, error) {
	compacted := map[hashid.Hash32]ChildDelta{}

	// Snapshot children up front: rewiring during the loop must not change
	// which children are visited or their originally-measured depth.
	children := make([]hashid.Hash32, 0, len(parentOf))
	depths := make(map[hashid.Hash32]int, len(parentOf))
	for child := range parentOf {
		children = append(children, child)
		depths[child] = ChainDepth(child, parentOf)
	}

	for _, child := range children {
		if depths[child] <= maxDepth {
			continue
		}
		root := RootOf(child, parentOf)

		rootBytes, err := resolve(root)
		if err != nil {
			return nil, err
		}
		childBytes, err := resolve(child)
		if err != nil {
			return nil, err
		}

		newDelta := EncodeChild(root, rootBytes, child, childBytes, 1, cfg)
		parentOf[child] = root
		compacted[child] = newDelta
	}
	return compacted, nil
}
