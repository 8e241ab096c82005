// Package codec converts cached values to and from their stored byte form.
package codec

// Codec encodes/decodes values V to []byte for storage.
// Ext is the file extension (with leading dot, or empty) appended to a key to
// form the stored object name, e.g. ".json".
type Codec[V any] interface {
	Encode(V) ([]byte, error)
	Decode([]byte) (V, error)
	Ext() string
}
