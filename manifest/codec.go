package manifest

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"os"

	"github.com/fxamacker/cbor/v2"
	"github.com/pkg/errors"

	"github.com/talaria-db/sequoia/hashid"
)

// magic identifies the TAL framed binary container: "TAL" followed by a
// one-byte format version. Bumping the version is reserved for a future
// breaking change to the payload encoding.
var magic = []byte{'T', 'A', 'L', 0x01}

// jsonFormatEnv, when set to a truthy value, makes Write emit indented JSON
// instead of the TAL binary frame. Read auto-detects either on load, so the
// env var only affects newly written manifests.
const jsonFormatEnv = "TALARIA_JSON_FORMAT"

func jsonFormatEnabled() bool {
	v := os.Getenv(jsonFormatEnv)
	return v == "1" || v == "true" || v == "TRUE"
}

// Write encodes v (a *TemporalManifest or *ReductionManifest) to path,
// framed as TAL+CBOR unless TALARIA_JSON_FORMAT selects the JSON fallback.
func Write(path string, v interface{}) error {
	if jsonFormatEnabled() {
		b, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return errors.Wrap(err, "manifest: marshal json")
		}
		return errors.Wrap(os.WriteFile(path, b, 0o644), "manifest: write json manifest")
	}

	payload, err := cbor.Marshal(v)
	if err != nil {
		return errors.Wrap(err, "manifest: marshal cbor")
	}
	out := make([]byte, 0, len(magic)+len(payload))
	out = append(out, magic...)
	out = append(out, payload...)
	return errors.Wrap(os.WriteFile(path, out, 0o644), "manifest: write tal manifest")
}

// Read decodes the manifest at path into out (a pointer to TemporalManifest
// or ReductionManifest), detecting the TAL binary frame by its magic prefix
// and falling back to JSON otherwise.
func Read(path string, out interface{}) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrap(err, "manifest: read file")
	}
	if len(raw) >= len(magic) && bytes.Equal(raw[:len(magic)], magic) {
		if err := cbor.Unmarshal(raw[len(magic):], out); err != nil {
			return errors.Wrap(err, "manifest: unmarshal cbor")
		}
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return errors.Wrap(err, "manifest: unmarshal json")
	}
	return nil
}

// GenerateETag derives the manifest ETag from the taxonomy and sequence
// Merkle roots: the first 16 hex characters (8 bytes) of
// Hash32.of(taxonomyRoot || sequenceRoot), matching
// original_source/talaria-herald/src/manifest/core.rs's generate_etag.
func GenerateETag(taxonomyRoot, sequenceRoot hashid.Hash32) string {
	combined := make([]byte, 0, hashid.Size*2)
	combined = append(combined, taxonomyRoot[:]...)
	combined = append(combined, sequenceRoot[:]...)
	h := hashid.Of(combined)
	return hex.EncodeToString(h[:])[:16]
}
