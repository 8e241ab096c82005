package catalog

import (
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
)

// Meta describes one stored item. Copies of an item made by synchronization
// carry the source's write id and timestamp, so two members holding the same
// write compare SameWrite while independent writes never do.
type Meta struct {
	Key      string
	Name     string // object name relative to the cache root
	Size     int64  // payload bytes
	Written  int64  // unix nanoseconds
	Checksum uint64 // xxhash64 of the payload; 0 when unknown
	WriteID  string
}

// NewMeta describes a fresh write of payload under key/name.
func NewMeta(key, name string, payload []byte) Meta {
	return Meta{
		Key:      key,
		Name:     name,
		Size:     int64(len(payload)),
		Written:  time.Now().UnixNano(),
		Checksum: Checksum(payload),
		WriteID:  uuid.NewString(),
	}
}

// Checksum is the payload digest stored in Meta.
func Checksum(payload []byte) uint64 { return xxhash.Sum64(payload) }

// WrittenAt returns Written as a time.
func (m Meta) WrittenAt() time.Time { return time.Unix(0, m.Written) }

// SameWrite reports whether two records describe copies of one logical write.
// Size, checksum and name are ignored since members may encode differently.
func (m Meta) SameWrite(o Meta) bool {
	return m.Key == o.Key && m.WriteID == o.WriteID && m.Written == o.Written
}

// ToMap flattens the record for reporting.
func (m Meta) ToMap() map[string]any {
	return map[string]any{
		"key":      m.Key,
		"name":     m.Name,
		"size":     m.Size,
		"written":  m.WrittenAt().UTC().Format(time.RFC3339Nano),
		"checksum": m.Checksum,
		"write_id": m.WriteID,
	}
}
