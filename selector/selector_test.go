package selector

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/talaria-db/sequoia/hashid"
)

func mkCandidate(id string, seq string, taxon string) Candidate {
	return Candidate{Hash: hashid.Of([]byte(id)), Sequence: []byte(seq), TaxonID: taxon}
}

func sampleCandidates() []Candidate {
	return []Candidate{
		mkCandidate("a", "MVALPRWFDKAAAAAAAAAA", "9606"),
		mkCandidate("b", "MVALPRWFDKAAAAAAAAAB", "9606"), // near-identical to a
		mkCandidate("c", "MVALPRWFDKAAAAAAAAAC", "9606"), // near-identical to a
		mkCandidate("d", "QQQQQQQQQQQQQQQQQQQQ", "10090"), // unrelated
		mkCandidate("e", "QQQQQQQQQQQQQQQQQQQR", "10090"), // near-identical to d
	}
}

func assertPartition(t *testing.T, candidates []Candidate, res Result) {
	t.Helper()
	seen := map[hashid.Hash32]bool{}
	for _, h := range res.References {
		require.False(t, seen[h], "reference %s duplicated", h)
		seen[h] = true
	}
	for child, ref := range res.ChildToReference {
		require.True(t, seen[ref], "child %s mapped to non-reference %s", child, ref)
		require.False(t, contains(res.References, child), "child %s is also a reference", child)
	}
	total := len(res.References) + len(res.ChildToReference) + len(res.Discarded)
	require.Equal(t, len(candidates), total)
}

func contains(hashes []hashid.Hash32, h hashid.Hash32) bool {
	for _, x := range hashes {
		if x == h {
			return true
		}
	}
	return false
}

func TestAutoDetectSentinelAlwaysFails(t *testing.T) {
	_, err := Select(sampleCandidates(), Config{Strategy: SinglePass, TargetRatio: 0})
	require.ErrorIs(t, err, ErrAutoDetectUnavailable)
}

func TestSinglePassRespectsTargetRatioCap(t *testing.T) {
	candidates := sampleCandidates()
	res, err := Select(candidates, Config{
		Strategy:            SinglePass,
		TargetRatio:         0.4, // ceil(0.4*5) = 2
		SimilarityThreshold: 0.9,
	})
	require.NoError(t, err)
	require.LessOrEqual(t, len(res.References), 2)
	assertPartition(t, candidates, res)
}

func TestSinglePassEveryChildMappedToAcceptedReference(t *testing.T) {
	candidates := sampleCandidates()
	res, err := Select(candidates, Config{
		Strategy:            SinglePass,
		TargetRatio:         1.0,
		SimilarityThreshold: 0.95,
	})
	require.NoError(t, err)
	assertPartition(t, candidates, res)
	require.NotEmpty(t, res.References)
}

func TestSimilarityMatrixRespectsCap(t *testing.T) {
	candidates := sampleCandidates()
	res, err := Select(candidates, Config{
		Strategy:            SimilarityMatrix,
		TargetRatio:         0.4,
		SimilarityThreshold: 0.9,
	})
	require.NoError(t, err)
	require.LessOrEqual(t, len(res.References), 2)
	assertPartition(t, candidates, res)
}

func TestHybridProducesValidPartition(t *testing.T) {
	candidates := sampleCandidates()
	res, err := Select(candidates, Config{
		Strategy:            Hybrid,
		TargetRatio:         0.4,
		SimilarityThreshold: 0.9,
	})
	require.NoError(t, err)
	require.LessOrEqual(t, len(res.References), 2)
	assertPartition(t, candidates, res)
}

func TestGraphCentralityRespectsCapAndPartition(t *testing.T) {
	candidates := sampleCandidates()
	res, err := Select(candidates, Config{
		Strategy:            GraphCentrality,
		TargetRatio:         0.4,
		SimilarityThreshold: 0.9,
	})
	require.NoError(t, err)
	require.LessOrEqual(t, len(res.References), 2)
	assertPartition(t, candidates, res)
}

func TestTaxonomyAwarePenalizesInterTaxonSimilarity(t *testing.T) {
	a := mkCandidate("a", "MVALPRWFDKAAAAAAAAAA", "9606")
	b := mkCandidate("b", "MVALPRWFDKAAAAAAAAAB", "10090")
	withoutPenalty := compositionSimilarity(a, b)

	cfg := Config{TaxonomyAware: true}
	score := func(x, y Candidate) float64 {
		s := compositionSimilarity(x, y)
		if cfg.TaxonomyAware && x.TaxonID != y.TaxonID {
			s *= 0.7
		}
		return s
	}
	require.Less(t, score(a, b), withoutPenalty)
}

func TestAlignSelectWithoutExternalScoresFails(t *testing.T) {
	_, err := Select(sampleCandidates(), Config{
		Strategy:    SinglePass,
		TargetRatio: 1.0,
		AlignSelect: true,
	})
	require.Error(t, err)
}

func TestExternalScoresOverrideDefaultProxy(t *testing.T) {
	candidates := sampleCandidates()
	calls := 0
	res, err := Select(candidates, Config{
		Strategy:            SinglePass,
		TargetRatio:         1.0,
		SimilarityThreshold: 0.5,
		ExternalScores: func(a, b Candidate) float64 {
			calls++
			if a.TaxonID == b.TaxonID {
				return 1.0
			}
			return 0.0
		},
	})
	require.NoError(t, err)
	require.Greater(t, calls, 0)
	assertPartition(t, candidates, res)
}
