package tiercache

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/unkn0wn-root/tiercache/catalog"
)

var (
	ErrNotInitialized       = errors.New("tiercache: cache not initialized")
	ErrKeyNotFound          = catalog.ErrKeyNotFound
	ErrKeyExists            = errors.New("tiercache: key already exists")
	ErrReadOnly             = errors.New("tiercache: cache is read-only")
	ErrConfirmationRequired = errors.New("tiercache: clear requires force")
	ErrDuplicateKey         = catalog.ErrDuplicateKey
	ErrConsistencyMismatch  = errors.New("tiercache: metadata mismatch between caches")
	ErrMissingMeta          = errors.New("tiercache: data object without metadata")
	ErrInvalidKey           = errors.New("tiercache: invalid key")
)

// OpError records the operation, cache and key of a failure.
type OpError struct {
	Op    string
	Cache string
	Key   string
	Err   error
}

func (e *OpError) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)
	if e.Cache != "" {
		b.WriteString(" ")
		b.WriteString(e.Cache)
	}
	if e.Key != "" {
		fmt.Fprintf(&b, " key %q", e.Key)
	}
	b.WriteString(": ")
	b.WriteString(e.Err.Error())
	return b.String()
}

func (e *OpError) Unwrap() error { return e.Err }

// Copy is one member's metadata for a key.
type Copy struct {
	Member string
	Meta   catalog.Meta
}

// MismatchError lists keys whose copies in different members are not the
// same write.
type MismatchError struct {
	Keys map[string][]Copy
}

func (e *MismatchError) Error() string {
	keys := make([]string, 0, len(e.Keys))
	for k := range e.Keys {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	const show = 5
	if len(keys) > show {
		return fmt.Sprintf("metadata mismatch for %d keys: %s, ...", len(keys), strings.Join(keys[:show], ", "))
	}
	return fmt.Sprintf("metadata mismatch for %s", strings.Join(keys, ", "))
}

func (e *MismatchError) Unwrap() error { return ErrConsistencyMismatch }
