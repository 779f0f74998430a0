// Package selector implements the reference selector (C9): picks a subset
// of candidate sequences to serve as delta-encoding references and maps
// every remaining candidate to exactly one reference. Grounded on the
// reference-graph construction (build_reference_graph) in
// original_source/talaria-sequoia/src/storage/core.rs.
package selector

import (
	"math"
	"sort"

	"github.com/pkg/errors"

	"github.com/talaria-db/sequoia/hashid"
)

// Strategy selects the reference-selection algorithm.
type Strategy int

const (
	SinglePass Strategy = iota
	SimilarityMatrix
	Hybrid
	GraphCentrality
)

// ErrAutoDetectUnavailable is returned when TargetRatio is the auto-detect
// sentinel (0) but no external aligner is configured to drive the coverage
// heuristic auto-detect depends on. This package never silently falls back.
var ErrAutoDetectUnavailable = errors.New("selector: target_ratio auto-detect requires an external aligner, none configured")

// Config tunes a selection run.
type Config struct {
	Strategy Strategy `toml:"strategy"`
	// TargetRatio caps |references| at ceil(TargetRatio*n). Zero is the
	// auto-detect sentinel, which this package always rejects (see
	// ErrAutoDetectUnavailable) since it implements no external aligner.
	TargetRatio float64 `toml:"target_ratio" default:"0.1"`
	// SimilarityThreshold is the minimum score for "sufficiently similar".
	SimilarityThreshold float64 `toml:"similarity_threshold" default:"0.5"`
	// TaxonomyAware penalizes inter-taxon similarity so references end up
	// spread across more taxa.
	TaxonomyAware bool `toml:"taxonomy_aware"`
	// AlignSelect requests external-aligner-derived scores, unsupported by
	// this package's proxy scorer; set it only alongside ExternalScores.
	AlignSelect bool `toml:"align_select"`
	// MinLength discards candidates shorter than this before reference
	// selection runs; they are reported as Discarded rather than ever
	// becoming a reference or being assigned to one. Zero disables the
	// filter.
	MinLength int `toml:"min_length"`
	// ExternalScores, when non-nil, supplies a similarity(a,b) function in
	// place of the built-in composition proxy (the "scores come from an
	// external aligner" path). Required when AlignSelect is true.
	ExternalScores func(a, b Candidate) float64 `toml:"-"`
}

// Candidate is one sequence eligible for selection.
type Candidate struct {
	Hash     hashid.Hash32
	Sequence []byte
	TaxonID  string
}

// Result is the outcome of a selection run.
type Result struct {
	References       []hashid.Hash32
	ChildToReference map[hashid.Hash32]hashid.Hash32
	Discarded        []hashid.Hash32
}

func targetCount(ratio float64, n int) int {
	if n == 0 {
		return 0
	}
	k := int(math.Ceil(ratio * float64(n)))
	if k < 1 {
		k = 1
	}
	if k > n {
		k = n
	}
	return k
}

// Select dispatches to the configured strategy.
func Select(candidates []Candidate, cfg Config) (Result, error) {
	if cfg.TargetRatio == 0 {
		return Result{}, ErrAutoDetectUnavailable
	}
	if cfg.AlignSelect && cfg.ExternalScores == nil {
		return Result{}, errors.New("selector: align_select requires ExternalScores")
	}
	if len(candidates) == 0 {
		return Result{ChildToReference: map[hashid.Hash32]hashid.Hash32{}}, nil
	}

	eligible := candidates
	var tooShort []hashid.Hash32
	if cfg.MinLength > 0 {
		eligible = make([]Candidate, 0, len(candidates))
		for _, c := range candidates {
			if len(c.Sequence) < cfg.MinLength {
				tooShort = append(tooShort, c.Hash)
				continue
			}
			eligible = append(eligible, c)
		}
	}
	if len(eligible) == 0 {
		return Result{ChildToReference: map[hashid.Hash32]hashid.Hash32{}, Discarded: tooShort}, nil
	}

	scorer := cfg.ExternalScores
	if scorer == nil {
		scorer = compositionSimilarity
	}
	score := func(a, b Candidate) float64 {
		s := scorer(a, b)
		if cfg.TaxonomyAware && a.TaxonID != b.TaxonID {
			s *= 0.7
		}
		return s
	}

	var res Result
	var err error
	switch cfg.Strategy {
	case SinglePass:
		res, err = singlePass(eligible, cfg, score)
	case SimilarityMatrix:
		res, err = similarityMatrix(eligible, cfg, score)
	case Hybrid:
		res, err = hybrid(eligible, cfg, score)
	case GraphCentrality:
		res, err = graphCentrality(eligible, cfg, score)
	default:
		return Result{}, errors.Errorf("selector: unknown strategy %d", cfg.Strategy)
	}
	if err != nil {
		return Result{}, err
	}
	res.Discarded = append(res.Discarded, tooShort...)
	return res, nil
}

type scoreFunc func(a, b Candidate) float64

// singlePass sorts by length descending, greedily accepts references up to
// the target_ratio cap, then assigns every non-accepted candidate to its
// best-scoring accepted reference.
func singlePass(candidates []Candidate, cfg Config, score scoreFunc) (Result, error) {
	cap := targetCount(cfg.TargetRatio, len(candidates))
	ordered := append([]Candidate(nil), candidates...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return len(ordered[i].Sequence) > len(ordered[j].Sequence)
	})

	var refs []Candidate
	var pending []Candidate
	for _, c := range ordered {
		if len(refs) >= cap {
			pending = append(pending, c)
			continue
		}
		sufficientlySimilar := false
		for _, r := range refs {
			if score(c, r) >= cfg.SimilarityThreshold {
				sufficientlySimilar = true
				break
			}
		}
		if sufficientlySimilar {
			pending = append(pending, c)
		} else {
			refs = append(refs, c)
		}
	}

	return assignChildren(refs, pending, score), nil
}

// assignChildren maps every pending candidate to the reference it scores
// highest against. If refs is empty every pending candidate is discarded.
func assignChildren(refs, pending []Candidate, score scoreFunc) Result {
	res := Result{
		References:       make([]hashid.Hash32, len(refs)),
		ChildToReference: map[hashid.Hash32]hashid.Hash32{},
	}
	for i, r := range refs {
		res.References[i] = r.Hash
	}
	if len(refs) == 0 {
		for _, p := range pending {
			res.Discarded = append(res.Discarded, p.Hash)
		}
		return res
	}
	for _, p := range pending {
		best := refs[0]
		bestScore := score(p, best)
		for _, r := range refs[1:] {
			if s := score(p, r); s > bestScore {
				bestScore = s
				best = r
			}
		}
		res.ChildToReference[p.Hash] = best.Hash
	}
	return res
}

// similarityMatrix builds a pairwise score matrix and greedily runs a
// set-cover: repeatedly accepting the candidate that "covers" (scores above
// threshold against) the most still-uncovered candidates, until the cap is
// hit or everything is covered.
func similarityMatrix(candidates []Candidate, cfg Config, score scoreFunc) (Result, error) {
	n := len(candidates)
	cap := targetCount(cfg.TargetRatio, n)

	matrix := make([][]float64, n)
	for i := range matrix {
		matrix[i] = make([]float64, n)
		for j := range matrix[i] {
			if i == j {
				continue
			}
			matrix[i][j] = score(candidates[i], candidates[j])
		}
	}

	covered := make([]bool, n)
	var refIdx []int
	for len(refIdx) < cap {
		bestIdx, bestGain := -1, -1
		for i := 0; i < n; i++ {
			if covered[i] {
				continue
			}
			gain := 0
			for j := 0; j < n; j++ {
				if !covered[j] && (i == j || matrix[i][j] >= cfg.SimilarityThreshold) {
					gain++
				}
			}
			if gain > bestGain {
				bestGain = gain
				bestIdx = i
			}
		}
		if bestIdx == -1 {
			break
		}
		refIdx = append(refIdx, bestIdx)
		covered[bestIdx] = true
		for j := 0; j < n; j++ {
			if matrix[bestIdx][j] >= cfg.SimilarityThreshold {
				covered[j] = true
			}
		}
		if allTrue(covered) {
			break
		}
	}

	refSet := make(map[int]bool, len(refIdx))
	var refs []Candidate
	for _, i := range refIdx {
		refSet[i] = true
		refs = append(refs, candidates[i])
	}
	var pending []Candidate
	for i, c := range candidates {
		if !refSet[i] {
			pending = append(pending, c)
		}
	}
	return assignChildren(refs, pending, score), nil
}

func allTrue(bs []bool) bool {
	for _, b := range bs {
		if !b {
			return false
		}
	}
	return true
}

// hybrid runs single-pass uncapped to shrink the candidate pool, then
// similarity-matrix on the survivors bounded by the real target_ratio cap,
// then re-assigns every original candidate against the final reference set.
func hybrid(candidates []Candidate, cfg Config, score scoreFunc) (Result, error) {
	loose := cfg
	loose.TargetRatio = 1.0
	first, err := singlePass(candidates, loose, score)
	if err != nil {
		return Result{}, err
	}

	byHash := make(map[hashid.Hash32]Candidate, len(candidates))
	for _, c := range candidates {
		byHash[c.Hash] = c
	}
	survivors := make([]Candidate, 0, len(first.References))
	for _, h := range first.References {
		survivors = append(survivors, byHash[h])
	}

	second, err := similarityMatrix(survivors, cfg, score)
	if err != nil {
		return Result{}, err
	}

	refSet := make(map[hashid.Hash32]bool, len(second.References))
	var refs []Candidate
	for _, h := range second.References {
		refSet[h] = true
		refs = append(refs, byHash[h])
	}
	var pending []Candidate
	for _, c := range candidates {
		if !refSet[c.Hash] {
			pending = append(pending, c)
		}
	}
	return assignChildren(refs, pending, score), nil
}

// graphCentrality scores each candidate by a weighted blend of normalized
// degree, betweenness, and coverage in the similarity graph (edges where
// score >= threshold), then takes the top-k by score as references.
func graphCentrality(candidates []Candidate, cfg Config, score scoreFunc) (Result, error) {
	n := len(candidates)
	cap := targetCount(cfg.TargetRatio, n)

	adj := make([][]bool, n)
	weights := make([][]float64, n)
	for i := range adj {
		adj[i] = make([]bool, n)
		weights[i] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if i == j {
				continue
			}
			s := score(candidates[i], candidates[j])
			weights[i][j] = s
			if s >= cfg.SimilarityThreshold {
				adj[i][j] = true
			}
		}
	}

	degree := make([]float64, n)
	coverage := make([]float64, n)
	for i := 0; i < n; i++ {
		var deg int
		var cov float64
		for j := 0; j < n; j++ {
			if adj[i][j] {
				deg++
			}
			cov += weights[i][j]
		}
		degree[i] = float64(deg)
		coverage[i] = cov
	}
	betweenness := brandesBetweenness(adj)

	normalize(degree)
	normalize(betweenness)
	normalize(coverage)

	type scored struct {
		idx   int
		value float64
	}
	ranked := make([]scored, n)
	for i := 0; i < n; i++ {
		ranked[i] = scored{i, 0.5*degree[i] + 0.3*betweenness[i] + 0.2*coverage[i]}
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].value > ranked[j].value })

	refSet := map[int]bool{}
	var refs []Candidate
	for i := 0; i < cap && i < len(ranked); i++ {
		idx := ranked[i].idx
		refSet[idx] = true
		refs = append(refs, candidates[idx])
	}
	var pending []Candidate
	for i, c := range candidates {
		if !refSet[i] {
			pending = append(pending, c)
		}
	}
	return assignChildren(refs, pending, score), nil
}

func normalize(v []float64) {
	max := 0.0
	for _, x := range v {
		if x > max {
			max = x
		}
	}
	if max == 0 {
		return
	}
	for i := range v {
		v[i] /= max
	}
}

// brandesBetweenness computes unweighted betweenness centrality via
// Brandes' algorithm.
func brandesBetweenness(adj [][]bool) []float64 {
	n := len(adj)
	cb := make([]float64, n)

	for s := 0; s < n; s++ {
		stack := []int{}
		pred := make([][]int, n)
		sigma := make([]float64, n)
		dist := make([]int, n)
		for i := range dist {
			dist[i] = -1
		}
		sigma[s] = 1
		dist[s] = 0
		queue := []int{s}

		for len(queue) > 0 {
			v := queue[0]
			queue = queue[1:]
			stack = append(stack, v)
			for w := 0; w < n; w++ {
				if !adj[v][w] {
					continue
				}
				if dist[w] < 0 {
					dist[w] = dist[v] + 1
					queue = append(queue, w)
				}
				if dist[w] == dist[v]+1 {
					sigma[w] += sigma[v]
					pred[w] = append(pred[w], v)
				}
			}
		}

		delta := make([]float64, n)
		for i := len(stack) - 1; i >= 0; i-- {
			w := stack[i]
			for _, v := range pred[w] {
				if sigma[w] != 0 {
					delta[v] += (sigma[v] / sigma[w]) * (1 + delta[w])
				}
			}
			if w != s {
				cb[w] += delta[w]
			}
		}
	}
	return cb
}
