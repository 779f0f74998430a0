package manifest

import "github.com/talaria-db/sequoia/hashid"

// Diff is the result of comparing two TemporalManifests' chunk indices.
type Diff struct {
	Added          []hashid.Hash32
	Removed        []hashid.Hash32
	Unchanged      []hashid.Hash32
	TaxonomyChanged bool
}

// DiffManifests compares prev to next, reporting which chunk hashes were
// added or removed and whether the taxonomy version advanced.
func DiffManifests(prev, next TemporalManifest) Diff {
	prevSet := make(map[hashid.Hash32]bool, len(prev.ChunkIndex))
	for _, c := range prev.ChunkIndex {
		prevSet[c.Hash] = true
	}
	nextSet := make(map[hashid.Hash32]bool, len(next.ChunkIndex))
	for _, c := range next.ChunkIndex {
		nextSet[c.Hash] = true
	}

	var d Diff
	for h := range nextSet {
		if prevSet[h] {
			d.Unchanged = append(d.Unchanged, h)
		} else {
			d.Added = append(d.Added, h)
		}
	}
	for h := range prevSet {
		if !nextSet[h] {
			d.Removed = append(d.Removed, h)
		}
	}
	d.TaxonomyChanged = prev.TaxonomyVersion != next.TaxonomyVersion ||
		prev.TaxonomyRoot != next.TaxonomyRoot
	return d
}

// DetectTaxonomyChanges reports which of a manifest's taxon IDs are no
// longer present under the manifest's current taxonomy, given a classifier
// function that reports whether a taxon ID is still known. It is used after
// a taxonomy dump update to flag chunks whose taxon assignment may now be
// stale (spec §4.10's discrepancy surfacing, not automatic reclassification).
func DetectTaxonomyChanges(m TemporalManifest, knownTaxon func(id string) bool) []string {
	seen := map[string]bool{}
	var stale []string
	for _, c := range m.ChunkIndex {
		for _, t := range c.TaxonIDs {
			if seen[t] {
				continue
			}
			seen[t] = true
			if !knownTaxon(t) {
				stale = append(stale, t)
			}
		}
	}
	return stale
}
