package delta

import (
	"github.com/pkg/errors"

	"github.com/talaria-db/sequoia/hashid"
)

// ErrRoundTripMismatch is returned by Verify when applying a child's ops
// against its reference does not reproduce the child's canonical bytes.
var ErrRoundTripMismatch = errors.New("delta: round-trip mismatch")

// computeOps greedily diffs child against ref: it indexes ref's k-mers, and
// at each child position looks for the longest matching run anchored at any
// indexed k-mer, emitting Copy for matches and Insert/Substitute for the
// literal runs between matches.
func computeOps(ref, child []byte) []Op {
	index := map[string][]int{}
	if len(ref) >= kmerSize {
		for i := 0; i+kmerSize <= len(ref); i++ {
			kmer := string(ref[i : i+kmerSize])
			index[kmer] = append(index[kmer], i)
		}
	}

	var ops []Op
	var literal []byte
	literalRefPos := 0
	refCursor := 0
	i := 0

	flushLiteral := func() {
		if len(literal) == 0 {
			return
		}
		buf := append([]byte(nil), literal...)
		if literalRefPos+len(buf) <= len(ref) {
			ops = append(ops, Op{Kind: OpSubstitute, RefOffset: literalRefPos, Bytes: buf, Len: len(buf)})
		} else {
			ops = append(ops, Op{Kind: OpInsert, Bytes: buf, Len: len(buf)})
		}
		literal = nil
	}

	for i < len(child) {
		if i+kmerSize <= len(child) {
			if positions, ok := index[string(child[i:i+kmerSize])]; ok {
				bestLen, bestPos := 0, 0
				for _, p := range positions {
					l := matchLength(ref, p, child, i)
					if l > bestLen {
						bestLen, bestPos = l, p
					}
				}
				if bestLen >= kmerSize {
					flushLiteral()
					ops = append(ops, Op{Kind: OpCopy, RefOffset: bestPos, Len: bestLen})
					i += bestLen
					refCursor = bestPos + bestLen
					continue
				}
			}
		}
		if len(literal) == 0 {
			literalRefPos = refCursor
		}
		literal = append(literal, child[i])
		i++
	}
	flushLiteral()
	return ops
}

func matchLength(ref []byte, rpos int, child []byte, cpos int) int {
	n := 0
	for rpos+n < len(ref) && cpos+n < len(child) && ref[rpos+n] == child[cpos+n] {
		n++
	}
	return n
}

// Apply reconstructs a child's bytes from ref and ops.
func Apply(ref []byte, ops []Op) []byte {
	var out []byte
	for _, op := range ops {
		switch op.Kind {
		case OpCopy:
			out = append(out, ref[op.RefOffset:op.RefOffset+op.Len]...)
		case OpInsert, OpSubstitute:
			out = append(out, op.Bytes...)
		}
	}
	return out
}

func encodedSize(ops []Op) int {
	size := 0
	for _, op := range ops {
		switch op.Kind {
		case OpCopy:
			size += 9 // opcode + two varint-ish fields, approximated
		case OpInsert, OpSubstitute:
			size += 5 + len(op.Bytes)
		}
	}
	return size
}

// similarityRatio is a cheap proxy for how much of child is reconstructable
// via Copy ops against ref: the fraction of child bytes covered by Copy.
func similarityRatio(child []byte, ops []Op) float64 {
	if len(child) == 0 {
		return 1
	}
	covered := 0
	for _, op := range ops {
		if op.Kind == OpCopy {
			covered += op.Len
		}
	}
	return float64(covered) / float64(len(child))
}

// EncodeChild produces the ChildDelta for child against ref at the given
// chain depth, applying every Full-vs-Delta decision gate from cfg.
func EncodeChild(refHash hashid.Hash32, ref []byte, childID hashid.Hash32, child []byte, depth int, cfg Config) ChildDelta {
	full := func() ChildDelta {
		return ChildDelta{
			ChildID:        childID,
			ReferenceHash:  refHash,
			Classification: Classification{Full: true},
			EncodedSize:    len(child),
		}
	}

	if cfg.NoDeltas {
		return full()
	}
	if cfg.MaxAlignLength > 0 && len(child) > cfg.MaxAlignLength {
		return full()
	}
	if len(child) < cfg.MinDeltaSize {
		return full()
	}

	ops := computeOps(ref, child)

	if cfg.MaxDeltaOpsThreshold > 0 && len(ops) > cfg.MaxDeltaOpsThreshold {
		return full()
	}
	if similarityRatio(child, ops) < cfg.MinSimilarityThreshold {
		return full()
	}
	size := encodedSize(ops)
	if cfg.MaxDeltaSize > 0 && size > cfg.MaxDeltaSize {
		return full()
	}
	if cfg.CompressionThreshold > 0 && float64(size) > cfg.CompressionThreshold*float64(len(child)) {
		return full()
	}

	return ChildDelta{
		ChildID:        childID,
		ReferenceHash:  refHash,
		Ops:            ops,
		Classification: Classification{Full: false, Depth: depth},
		EncodedSize:    size,
	}
}

// Verify recomputes child bytes from ref and d.Ops and checks the result
// against want. Full children carry no ops and are not checked: Verify
// returns nil for them.
func Verify(ref []byte, d ChildDelta, want []byte) error {
	if d.Classification.Full {
		return nil
	}
	got := Apply(ref, d.Ops)
	if string(got) != string(want) {
		return errors.Wrapf(ErrRoundTripMismatch, "child %s against reference %s", d.ChildID, d.ReferenceHash)
	}
	return nil
}
