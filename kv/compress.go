package kv

import (
	"github.com/dolthub/gozstd"
	"github.com/pkg/errors"
)

// Values stored in a compressed family are framed with a one-byte flag so
// decode can tell compressed payloads from ones written before compression
// was enabled (or by a family that never compresses).
const (
	flagRaw        byte = 0
	flagCompressed byte = 1
)

func (e *Engine) encode(family string, value []byte) ([]byte, error) {
	opts := e.familyOpts(family)
	if !opts.Compress {
		return append([]byte{flagRaw}, value...), nil
	}
	level := opts.CompressionLevel
	if level <= 0 {
		level = 3
	}
	compressed := gozstd.CompressLevel(nil, value, level)
	out := make([]byte, 0, len(compressed)+1)
	out = append(out, flagCompressed)
	out = append(out, compressed...)
	return out, nil
}

func (e *Engine) decode(family string, raw []byte) ([]byte, error) {
	if len(raw) == 0 {
		return raw, nil
	}
	flag, payload := raw[0], raw[1:]
	switch flag {
	case flagRaw:
		return payload, nil
	case flagCompressed:
		out, err := gozstd.Decompress(nil, payload)
		if err != nil {
			return nil, errors.Wrapf(err, "kv: decompress value in family %q", family)
		}
		return out, nil
	default:
		return nil, errors.Errorf("kv: unknown value flag %d in family %q", flag, family)
	}
}
