// Package wire encodes the metadata sidecar stored next to every cached object.
package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/unkn0wn-root/tiercache/catalog"
)

const (
	version  byte = 1
	kindMeta byte = 1
)

var (
	ErrCorrupt   = errors.New("tiercache: corrupt metadata")
	ErrTruncated = errors.New("tiercache: truncated metadata")
	magic4       = [...]byte{'T', 'C', 'M', 'T'}
)

// header: magic(4) | ver(1) | kind(1) | size(u64) | written(u64) | checksum(u64)
const hdrLen = 4 + 1 + 1 + 8 + 8 + 8

// EncodeMeta frames m:
//
//	header | keyLen(u16) | key | nameLen(u16) | name | idLen(u16) | id
func EncodeMeta(m catalog.Meta) ([]byte, error) {
	for _, s := range []string{m.Key, m.Name, m.WriteID} {
		if len(s) > 0xFFFF {
			return nil, fmt.Errorf("tiercache: metadata field too long (%d bytes)", len(s))
		}
	}
	if m.Key == "" || m.Name == "" {
		return nil, fmt.Errorf("tiercache: metadata needs key and name")
	}

	var buf bytes.Buffer
	buf.Grow(hdrLen + 6 + len(m.Key) + len(m.Name) + len(m.WriteID))

	buf.Write(magic4[:])
	buf.WriteByte(version)
	buf.WriteByte(kindMeta)

	var u8 [8]byte
	binary.BigEndian.PutUint64(u8[:], uint64(m.Size))
	buf.Write(u8[:])
	binary.BigEndian.PutUint64(u8[:], uint64(m.Written))
	buf.Write(u8[:])
	binary.BigEndian.PutUint64(u8[:], m.Checksum)
	buf.Write(u8[:])

	var u2 [2]byte
	for _, s := range []string{m.Key, m.Name, m.WriteID} {
		binary.BigEndian.PutUint16(u2[:], uint16(len(s)))
		buf.Write(u2[:])
		buf.WriteString(s)
	}
	return buf.Bytes(), nil
}

// DecodeMeta is the inverse of EncodeMeta. Input that ends early is
// ErrTruncated; anything else malformed is ErrCorrupt.
func DecodeMeta(b []byte) (catalog.Meta, error) {
	var m catalog.Meta
	if len(b) < hdrLen {
		n := min(len(b), len(magic4))
		if bytes.Equal(b[:n], magic4[:n]) {
			return m, ErrTruncated
		}
		return m, ErrCorrupt
	}
	if !bytes.Equal(b[:4], magic4[:]) || b[4] != version || b[5] != kindMeta {
		return m, ErrCorrupt
	}

	off := 6
	m.Size = int64(binary.BigEndian.Uint64(b[off : off+8]))
	off += 8
	m.Written = int64(binary.BigEndian.Uint64(b[off : off+8]))
	off += 8
	m.Checksum = binary.BigEndian.Uint64(b[off : off+8])
	off += 8
	if m.Size < 0 {
		return catalog.Meta{}, ErrCorrupt
	}

	fields := [3]string{}
	for i := range fields {
		if off+2 > len(b) {
			return catalog.Meta{}, ErrTruncated
		}
		l := int(binary.BigEndian.Uint16(b[off : off+2]))
		off += 2
		if l > len(b)-off {
			return catalog.Meta{}, ErrTruncated
		}
		fields[i] = string(b[off : off+l])
		off += l
	}
	if off != len(b) {
		return catalog.Meta{}, ErrCorrupt
	}
	m.Key, m.Name, m.WriteID = fields[0], fields[1], fields[2]
	if m.Key == "" || m.Name == "" {
		return catalog.Meta{}, ErrCorrupt
	}
	return m, nil
}
