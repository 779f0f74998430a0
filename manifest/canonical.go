package manifest

import (
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/talaria-db/sequoia/hashid"
)

// ErrTruncatedCanonicalBytes is returned by DecodeChunkManifest when buf ends
// before a declared field is fully present.
var ErrTruncatedCanonicalBytes = errors.New("manifest: truncated canonical chunk manifest bytes")

// DecodeChunkManifest reverses CanonicalBytes, reconstructing a ChunkManifest
// (with TaxonIDs in their stored, already-sorted order) and setting ChunkHash
// to the hash of buf itself — the same value the chunk store's Store call
// returns when buf is the payload it was handed, so a manifest round-tripped
// through the chunk store always carries its own storage key.
func DecodeChunkManifest(buf []byte) (ChunkManifest, error) {
	var c ChunkManifest
	r := &byteReader{buf: buf}

	refCount, err := r.uvarint()
	if err != nil {
		return c, err
	}
	c.SequenceRefs = make([]hashid.Hash32, refCount)
	for i := range c.SequenceRefs {
		raw, err := r.take(hashid.Size)
		if err != nil {
			return c, err
		}
		copy(c.SequenceRefs[i][:], raw)
	}

	taxonCount, err := r.uvarint()
	if err != nil {
		return c, err
	}
	c.TaxonIDs = make([]string, taxonCount)
	for i := range c.TaxonIDs {
		n, err := r.uvarint()
		if err != nil {
			return c, err
		}
		raw, err := r.take(int(n))
		if err != nil {
			return c, err
		}
		c.TaxonIDs[i] = string(raw)
	}

	seqCount, err := r.uvarint()
	if err != nil {
		return c, err
	}
	c.SequenceCount = int(seqCount)

	totalSize, err := r.uvarint()
	if err != nil {
		return c, err
	}
	c.TotalSize = int64(totalSize)

	c.ChunkHash = hashid.Of(buf)
	return c, nil
}

type byteReader struct {
	buf []byte
	pos int
}

func (r *byteReader) uvarint() (uint64, error) {
	v, n := binary.Uvarint(r.buf[r.pos:])
	if n <= 0 {
		return 0, ErrTruncatedCanonicalBytes
	}
	r.pos += n
	return v, nil
}

func (r *byteReader) take(n int) ([]byte, error) {
	if r.pos+n > len(r.buf) {
		return nil, ErrTruncatedCanonicalBytes
	}
	out := r.buf[r.pos : r.pos+n]
	r.pos += n
	return out, nil
}
