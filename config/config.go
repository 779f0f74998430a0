// Package config loads the engine's TOML configuration file, layering
// decoded overrides on top of struct-tag defaults. Grounded on the
// config-layering approach named in SPEC_FULL.md's AMBIENT STACK: defaults
// populated by github.com/creasty/defaults, overridden by
// github.com/BurntSushi/toml decoding, mirroring how dolt-style tools layer
// a config.toml over built-in defaults.
package config

import (
	"os"

	"github.com/BurntSushi/toml"
	"github.com/creasty/defaults"
	"github.com/pkg/errors"

	"github.com/talaria-db/sequoia/chunker"
	"github.com/talaria-db/sequoia/delta"
	"github.com/talaria-db/sequoia/kv"
	"github.com/talaria-db/sequoia/selector"
)

// Config is the engine's root configuration, decoded from a single
// config.toml with one table per component.
type Config struct {
	Home          string `toml:"home" default:"."`
	DatabasesDir  string `toml:"databases_dir"`
	DownloadsDir  string `toml:"downloads_dir"`
	BulkImport    bool   `toml:"bulk_import_mode"`
	JSONManifests bool   `toml:"json_manifests"`

	KV       kv.Config       `toml:"kv"`
	Chunker  chunker.Config  `toml:"chunker"`
	Selector selector.Config `toml:"selector"`
	Delta    delta.Config    `toml:"delta"`
}

// Default returns a Config with every component's struct-tag defaults
// populated but no overrides applied.
func Default() (Config, error) {
	var cfg Config
	if err := defaults.Set(&cfg); err != nil {
		return Config{}, errors.Wrap(err, "config: populate defaults")
	}
	return cfg, nil
}

// Load reads defaults, then decodes path over them. A missing file is not
// an error: callers get pure defaults, matching "dolt-style tools layer a
// config.toml over built-in defaults" when no file has been written yet.
func Load(path string) (Config, error) {
	cfg, err := Default()
	if err != nil {
		return Config{}, err
	}

	if _, statErr := os.Stat(path); os.IsNotExist(statErr) {
		return cfg, nil
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, errors.Wrapf(err, "config: decode %s", path)
	}
	return cfg, nil
}

// Write serializes cfg as TOML to path.
func Write(path string, cfg Config) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "config: create %s", path)
	}
	defer f.Close()

	enc := toml.NewEncoder(f)
	if err := enc.Encode(cfg); err != nil {
		return errors.Wrapf(err, "config: encode %s", path)
	}
	return nil
}

// applyEnvOverrides layers the spec's documented environment variables over
// cfg, matching TALARIA_HOME/TALARIA_DATABASES_DIR/TALARIA_DOWNLOADS_DIR/
// TALARIA_BULK_IMPORT_MODE/TALARIA_JSON_FORMAT from spec.md §6.
func applyEnvOverrides(cfg Config) Config {
	if v := os.Getenv("TALARIA_HOME"); v != "" {
		cfg.Home = v
	}
	if v := os.Getenv("TALARIA_DATABASES_DIR"); v != "" {
		cfg.DatabasesDir = v
	}
	if v := os.Getenv("TALARIA_DOWNLOADS_DIR"); v != "" {
		cfg.DownloadsDir = v
	}
	if os.Getenv("TALARIA_BULK_IMPORT_MODE") == "1" {
		cfg.BulkImport = true
	}
	if os.Getenv("TALARIA_JSON_FORMAT") == "1" {
		cfg.JSONManifests = true
	}
	return cfg
}

// LoadWithEnv combines Load with the spec's environment-variable override
// layer, which always wins over both defaults and the TOML file.
func LoadWithEnv(path string) (Config, error) {
	cfg, err := Load(path)
	if err != nil {
		return Config{}, err
	}
	return applyEnvOverrides(cfg), nil
}
