package wire

import (
	"encoding/binary"
	"errors"
	"strings"
	"testing"

	"github.com/unkn0wn-root/tiercache/catalog"
)

func sample() catalog.Meta {
	return catalog.Meta{
		Key:      "dir/item",
		Name:     "dir/item.json",
		Size:     42,
		Written:  1_700_000_000_123_456_789,
		Checksum: 0xDEADBEEFCAFE,
		WriteID:  "6f1c7c8e-3a52-4d5e-9e0b-2f7b8d1c9a10",
	}
}

func mustEncode(t *testing.T, m catalog.Meta) []byte {
	t.Helper()
	b, err := EncodeMeta(m)
	if err != nil {
		t.Fatalf("EncodeMeta: %v", err)
	}
	return b
}

func TestMetaRoundTrip(t *testing.T) {
	cases := []catalog.Meta{
		sample(),
		{Key: "k", Name: "k"},                          // no write id, zero values
		{Key: "k", Name: "k.bin", Size: 0, Written: 1}, // empty payload
	}
	for _, m := range cases {
		got, err := DecodeMeta(mustEncode(t, m))
		if err != nil {
			t.Fatalf("DecodeMeta: %v", err)
		}
		if got != m {
			t.Fatalf("round trip: got %+v want %+v", got, m)
		}
	}
}

func TestMetaRejectsTrailingBytes(t *testing.T) {
	enc := append(mustEncode(t, sample()), 0xDE, 0xAD)
	if _, err := DecodeMeta(enc); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("expected ErrCorrupt on trailing bytes, got %v", err)
	}
}

func TestMetaTruncationIsDistinct(t *testing.T) {
	enc := mustEncode(t, sample())
	for _, n := range []int{0, 2, 10, hdrLen, len(enc) - 1} {
		if _, err := DecodeMeta(enc[:n]); !errors.Is(err, ErrTruncated) {
			t.Fatalf("prefix of %d bytes: expected ErrTruncated, got %v", n, err)
		}
	}
}

func TestMetaCorruptHeaders(t *testing.T) {
	enc := mustEncode(t, sample())

	badMagic := append([]byte(nil), enc...)
	badMagic[0] = 'X'
	if _, err := DecodeMeta(badMagic); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("bad magic: %v", err)
	}

	badVer := append([]byte(nil), enc...)
	badVer[4] = version + 1
	if _, err := DecodeMeta(badVer); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("bad version: %v", err)
	}

	badKind := append([]byte(nil), enc...)
	badKind[5] = kindMeta + 1
	if _, err := DecodeMeta(badKind); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("bad kind: %v", err)
	}

	negSize := append([]byte(nil), enc...)
	binary.BigEndian.PutUint64(negSize[6:14], ^uint64(0))
	if _, err := DecodeMeta(negSize); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("negative size: %v", err)
	}

	if _, err := DecodeMeta([]byte("{\"key\":\"x\"}")); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("foreign bytes: %v", err)
	}
}

func TestMetaFieldLengthValidation(t *testing.T) {
	m := sample()
	m.Key = ""
	if _, err := EncodeMeta(m); err == nil {
		t.Fatalf("expected error on empty key")
	}
	m = sample()
	m.Name = strings.Repeat("a", 0x10000)
	if _, err := EncodeMeta(m); err == nil {
		t.Fatalf("expected error on name length > 0xFFFF")
	}
	m.Name = strings.Repeat("b", 0xFFFF)
	if _, err := EncodeMeta(m); err != nil {
		t.Fatalf("boundary name length should succeed: %v", err)
	}
}
