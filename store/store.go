// Package store defines the blob storage abstraction caches are built on.
//
// A Store addresses objects by slash-separated names relative to its root.
// Implementations MUST be byte-for-byte transparent: Read must return exactly
// the bytes previously passed to Write for the same name. Any internal
// transform (compression, encryption) must be fully reversed.
//
// Stores must be safe for concurrent use. The caches built on top of them are
// not; callers serialize cache access themselves.
package store

import (
	"context"
	"errors"
	"path"
	"strings"
	"time"

	"github.com/unkn0wn-root/tiercache/location"
)

var (
	// ErrNotFound is returned by Read for a missing object.
	ErrNotFound = errors.New("store: object not found")
	// ErrTruncated is returned by Read when the backend delivered fewer bytes
	// than it announced.
	ErrTruncated = errors.New("store: truncated read")
)

// TempPrefix starts the base name of in-flight temporary objects. List skips them.
const TempPrefix = ".tiercache-tmp-"

// ObjectInfo is one List result. Name is relative to the store root.
type ObjectInfo struct {
	Name    string
	Size    int64
	ModTime time.Time
}

// Store is a minimal blob store.
type Store interface {
	// Root is the location of the store itself.
	Root() location.Location
	// Locate maps a name to its absolute location without any I/O.
	Locate(name string) location.Location

	// Read returns the object's bytes, ErrNotFound or ErrTruncated.
	Read(ctx context.Context, name string) ([]byte, error)
	// Write stores data under name. It never reports success for a partial write.
	Write(ctx context.Context, name string, data []byte) error
	// Delete removes name. Deleting a missing object is not an error.
	Delete(ctx context.Context, name string) error
	// List returns every object whose name starts with prefix, recursively,
	// ordered by name.
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)

	// Sub returns a store rooted at rel below this one. It shares the
	// underlying client; closing it is a no-op.
	Sub(rel string) Store

	// Close releases resources.
	Close(ctx context.Context) error
}

// Join joins name segments with "/" and cleans the result. Empty segments are
// dropped and "." collapses to "".
func Join(parts ...string) string {
	p := path.Join(parts...)
	if p == "." {
		return ""
	}
	return strings.TrimPrefix(p, "/")
}

// IsTemp reports whether name is an in-flight temporary object.
func IsTemp(name string) bool {
	return strings.HasPrefix(path.Base(name), TempPrefix)
}
