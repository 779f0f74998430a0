package reduce

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/talaria-db/sequoia/manifest"
)

// ProfileStore persists ReductionManifests at a stable filesystem path
// (versions/<source>/<dataset>/<version>/profiles/<profile>.tal) in addition
// to their content-addressed chunk, so a profile's latest reduction can be
// looked up without knowing its chunk hash. Grounded on
// store_database_reduction_manifest/get_database_reduction_by_profile/
// list_database_reduction_profiles in
// original_source/talaria-sequoia/src/storage/core.rs (see SPEC_FULL.md's
// supplemental-features section).
type ProfileStore struct {
	root string
}

// NewProfileStore roots the store at root (typically <data_dir>/versions).
func NewProfileStore(root string) *ProfileStore {
	return &ProfileStore{root: root}
}

func (p *ProfileStore) profilePath(source, dataset, version, profile string) string {
	return filepath.Join(p.root, source, dataset, version, "profiles", profile+".tal")
}

// Put writes rm to its stable profile path.
func (p *ProfileStore) Put(source, dataset, version string, rm manifest.ReductionManifest) error {
	path := p.profilePath(source, dataset, version, rm.Profile)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrap(err, "reduce: create profile directory")
	}
	return manifest.Write(path, &rm)
}

// Get loads the ReductionManifest for (source, dataset, version, profile).
func (p *ProfileStore) Get(source, dataset, version, profile string) (manifest.ReductionManifest, error) {
	var rm manifest.ReductionManifest
	path := p.profilePath(source, dataset, version, profile)
	if err := manifest.Read(path, &rm); err != nil {
		return rm, errors.Wrapf(err, "reduce: read profile %s", profile)
	}
	return rm, nil
}

// List returns every profile name persisted for (source, dataset, version).
func (p *ProfileStore) List(source, dataset, version string) ([]string, error) {
	dir := filepath.Join(p.root, source, dataset, version, "profiles")
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "reduce: list profiles")
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		ext := filepath.Ext(name)
		names = append(names, name[:len(name)-len(ext)])
	}
	return names, nil
}
