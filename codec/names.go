package codec

import (
	"fmt"
	"strings"
)

// ByName returns the codec for a configuration name: json, yaml, cbor,
// msgpack, with an optional "+zstd" suffix (e.g. "msgpack+zstd").
func ByName[V any](name string) (Codec[V], error) {
	base, compress := strings.CutSuffix(strings.ToLower(strings.TrimSpace(name)), "+zstd")
	var c Codec[V]
	switch strings.TrimPrefix(base, ".") {
	case "", "json":
		c = JSON[V]{}
	case "yaml", "yml":
		c = YAML[V]{}
	case "msgpack", "mpk":
		c = Msgpack[V]{}
	case "cbor":
		cb, err := NewCBOR[V](false)
		if err != nil {
			return nil, err
		}
		c = cb
	default:
		return nil, fmt.Errorf("codec: unknown codec %q", name)
	}
	if compress {
		return NewZstd[V](c, 0)
	}
	return c, nil
}
