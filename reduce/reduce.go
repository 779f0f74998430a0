// Package reduce implements the reduction driver (C11): orchestrates the
// reference selector (C9) and delta encoder (C10) over an already
// canonicalized sequence set, persists the resulting reference and delta
// chunks through the chunk store (C4), and assembles a ReductionManifest
// with its Merkle root and aggregate statistics. Grounded on the
// garbage_collect_deltas/build_reference_graph reduction loop in
// original_source/talaria-sequoia/src/storage/core.rs.
package reduce

import (
	"sort"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/talaria-db/sequoia/chunkstore"
	"github.com/talaria-db/sequoia/delta"
	"github.com/talaria-db/sequoia/hashid"
	"github.com/talaria-db/sequoia/manifest"
	"github.com/talaria-db/sequoia/merkle"
	"github.com/talaria-db/sequoia/metrics"
	"github.com/talaria-db/sequoia/selector"
)

// Input is one already-canonicalized sequence entering a reduction pass.
type Input struct {
	Hash     hashid.Hash32
	Sequence []byte
	TaxonID  string
}

// Params configures one reduction run.
type Params struct {
	Profile        string
	SourceManifest hashid.Hash32
	SourceDatabase string
	Selector       selector.Config
	Delta          delta.Config
	PreviousVersion *string
}

// Driver runs the reduction pipeline against a chunk store.
type Driver struct {
	chunks *chunkstore.Store
	log    *zap.Logger
	stats  *metrics.Registry
}

// New constructs a Driver over chunks (the C4 store backing reference and
// delta chunk persistence). stats may be nil, in which case the run
// proceeds without instrumentation.
func New(chunks *chunkstore.Store, log *zap.Logger, stats *metrics.Registry) *Driver {
	if log == nil {
		log = zap.NewNop()
	}
	return &Driver{chunks: chunks, log: log, stats: stats}
}

// Run executes one reduction pass: selection, delta encoding per reference
// cluster, chunk persistence, and ReductionManifest assembly. createdAt is
// supplied by the caller (kept for testability); Run reads the clock only
// to time its latency metrics.
func (d *Driver) Run(inputs []Input, params Params, createdAt time.Time) (manifest.ReductionManifest, error) {
	var empty manifest.ReductionManifest

	candidates := make([]selector.Candidate, len(inputs))
	byHash := make(map[hashid.Hash32]Input, len(inputs))
	for i, in := range inputs {
		candidates[i] = selector.Candidate{Hash: in.Hash, Sequence: in.Sequence, TaxonID: in.TaxonID}
		byHash[in.Hash] = in
	}

	sel, err := selector.Select(candidates, params.Selector)
	if err != nil {
		return empty, errors.Wrap(err, "reduce: select references")
	}

	childrenByRef := map[hashid.Hash32][]hashid.Hash32{}
	for child, ref := range sel.ChildToReference {
		childrenByRef[ref] = append(childrenByRef[ref], child)
	}

	var referenceChunks []manifest.ReferenceChunk
	var deltaChunks []manifest.DeltaChunkRef
	var allPersistedHashes []hashid.Hash32
	var originalSize, reducedSize int64

	for _, refHash := range sel.References {
		ref := byHash[refHash]
		originalSize += int64(len(ref.Sequence))

		storeStart := time.Now()
		refChunkHash, err := d.chunks.Store(ref.Sequence, true)
		if err != nil {
			return empty, errors.Wrap(err, "reduce: persist reference chunk")
		}
		if d.stats != nil {
			d.stats.ObserveStoreLatency(time.Since(storeStart).Microseconds())
			d.stats.ChunksStored.Inc()
			d.stats.BytesWritten.Add(float64(len(ref.Sequence)))
		}
		allPersistedHashes = append(allPersistedHashes, refChunkHash)

		compressedSize, _, err := d.chunks.StoredSize(refChunkHash)
		if err != nil {
			return empty, errors.Wrap(err, "reduce: size reference chunk")
		}
		reducedSize += int64(compressedSize)

		referenceChunks = append(referenceChunks, manifest.ReferenceChunk{
			ChunkHash:        refChunkHash,
			SequenceIDs:      []hashid.Hash32{refHash},
			Count:            1,
			UncompressedSize: int64(len(ref.Sequence)),
			CompressedSize:   int64(compressedSize),
			TaxonIDs:         taxonList(ref.TaxonID),
		})

		children := childrenByRef[refHash]
		sort.Slice(children, func(i, j int) bool { return hashid.Less(children[i], children[j]) })

		var ops []delta.ChildDelta
		var totalOps int
		for _, childHash := range children {
			child := byHash[childHash]
			originalSize += int64(len(child.Sequence))
			deltaStart := time.Now()
			cd := delta.EncodeChild(refChunkHash, ref.Sequence, childHash, child.Sequence, 1, params.Delta)
			if d.stats != nil {
				d.stats.ObserveDeltaLatency(time.Since(deltaStart).Microseconds())
			}
			if err := delta.Verify(ref.Sequence, cd, child.Sequence); err != nil {
				return empty, errors.Wrapf(err, "reduce: verify delta for child %s", childHash)
			}
			ops = append(ops, cd)
			totalOps += len(cd.Ops)
			reducedSize += int64(cd.EncodedSize)
		}
		if len(children) == 0 {
			continue
		}

		deltaPayload := encodeDeltaGroup(ops)
		deltaChunkHash, err := d.chunks.Store(deltaPayload, true)
		if err != nil {
			return empty, errors.Wrap(err, "reduce: persist delta chunk")
		}
		allPersistedHashes = append(allPersistedHashes, deltaChunkHash)

		avg := 0.0
		if len(ops) > 0 {
			avg = float64(totalOps) / float64(len(ops))
		}
		deltaChunks = append(deltaChunks, manifest.DeltaChunkRef{
			ChunkHash:          deltaChunkHash,
			ReferenceChunkHash: refChunkHash,
			ChildCount:         len(children),
			ChildIDs:           children,
			Size:               int64(len(deltaPayload)),
			AverageDeltaOps:    avg,
		})
	}

	for _, h := range sel.Discarded {
		in := byHash[h]
		originalSize += int64(len(in.Sequence))
	}

	ratio := metrics.ReductionRatio(originalSize, reducedSize)
	dedupApprox := false
	dedupRatio := ratio
	if len(inputs) == 0 {
		dedupApprox = true
	}

	root := merkle.BuildFromItems(hashid.Sorted(allPersistedHashes)).RootHash()

	rm := manifest.ReductionManifest{
		Profile:        params.Profile,
		SourceManifest: params.SourceManifest,
		SourceDatabase: params.SourceDatabase,
		Parameters: manifest.ReductionParameters{
			TargetRatio:         params.Selector.TargetRatio,
			MinLength:           params.Selector.MinLength,
			SimilarityThreshold: params.Selector.SimilarityThreshold,
			TaxonomyAware:       params.Selector.TaxonomyAware,
			AlignSelect:         params.Selector.AlignSelect,
			MaxAlignLength:      params.Delta.MaxAlignLength,
			NoDeltas:            params.Delta.NoDeltas,
		},
		ReferenceChunks: referenceChunks,
		DeltaChunks:     deltaChunks,
		Statistics: manifest.ReductionStatistics{
			OriginalSequenceCount:           len(inputs),
			ReferenceSequenceCount:          len(sel.References),
			ChildSequenceCount:              len(sel.ChildToReference),
			OriginalSizeBytes:               originalSize,
			ReducedSizeBytes:                reducedSize,
			ReductionRatio:                  ratio,
			DeduplicationRatio:              dedupRatio,
			DeduplicationRatioIsApproximate: dedupApprox,
		},
		ReductionMerkleRoot: root,
		CreatedAt:           createdAt,
		Version:             params.Profile + "@" + createdAt.Format(time.RFC3339),
		PreviousVersion:     params.PreviousVersion,
	}
	return rm, nil
}

func taxonList(taxon string) []string {
	if taxon == "" {
		return nil
	}
	return []string{taxon}
}

// encodeDeltaGroup is a minimal deterministic byte encoding of one
// reference cluster's delta ops, used only to obtain a content-addressed
// storage key in C4 (the manifest's own DeltaChunkRef fields carry every
// structured field readers need; this payload is the raw persisted bytes).
func encodeDeltaGroup(ops []delta.ChildDelta) []byte {
	var buf []byte
	for _, cd := range ops {
		buf = append(buf, cd.ChildID[:]...)
		for _, op := range cd.Ops {
			buf = append(buf, byte(op.Kind))
			buf = append(buf, op.Bytes...)
		}
	}
	return buf
}
