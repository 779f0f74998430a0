package manifest

import (
	"time"

	"github.com/talaria-db/sequoia/hashid"
	"github.com/talaria-db/sequoia/merkle"
)

// SequenceRoot computes the Merkle root over a chunk index's hashes, sorted
// lexicographically, matching merkle.BuildFromItems's canonical leaf order.
func SequenceRoot(chunks []ChunkMetadata) hashid.Hash32 {
	leaves := make([]hashid.Hash32, len(chunks))
	for i, c := range chunks {
		leaves[i] = c.Hash
	}
	return merkle.BuildFromItems(leaves).RootHash()
}

// BuildTemporalManifest assembles a TemporalManifest from a chunk index and
// taxonomy metadata, computing SequenceRoot and ETag. previousVersion is nil
// for the first manifest in a lineage.
func BuildTemporalManifest(
	version, sequenceVersion, taxonomyVersion string,
	taxonomyRoot, taxonomyManifestHash hashid.Hash32,
	chunks []ChunkMetadata,
	previousVersion *string,
	createdAt time.Time,
) TemporalManifest {
	seqRoot := SequenceRoot(chunks)
	return TemporalManifest{
		Version:              version,
		CreatedAt:            createdAt,
		SequenceVersion:      sequenceVersion,
		TaxonomyVersion:      taxonomyVersion,
		TaxonomyRoot:         taxonomyRoot,
		SequenceRoot:         seqRoot,
		TaxonomyManifestHash: taxonomyManifestHash,
		ChunkIndex:           chunks,
		ETag:                 GenerateETag(taxonomyRoot, seqRoot),
		PreviousVersion:      previousVersion,
	}
}
