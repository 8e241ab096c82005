package tiercache

import (
	"fmt"
	"path"
	"strings"
)

// MetaSuffix is appended to a data object's name to form its sidecar name.
const MetaSuffix = ".meta"

// ValidateKey reports whether key can be stored. Keys are slash-separated,
// already clean, relative, and may not use the sidecar suffix.
func ValidateKey(key string) error {
	switch {
	case key == "", key == ".":
		return fmt.Errorf("%w: empty", ErrInvalidKey)
	case strings.HasPrefix(key, "/"):
		return fmt.Errorf("%w: %q is absolute", ErrInvalidKey, key)
	case path.Clean(key) != key:
		return fmt.Errorf("%w: %q is not clean", ErrInvalidKey, key)
	case key == ".." || strings.HasPrefix(key, "../"):
		return fmt.Errorf("%w: %q escapes the cache root", ErrInvalidKey, key)
	case strings.HasSuffix(key, MetaSuffix):
		return fmt.Errorf("%w: %q ends with %s", ErrInvalidKey, key, MetaSuffix)
	}
	return nil
}

func dataName(key, ext string) string { return key + ext }

func metaName(name string) string { return name + MetaSuffix }

// keyForName inverts dataName. ok is false when name does not carry ext.
func keyForName(name, ext string) (string, bool) {
	if !strings.HasSuffix(name, ext) {
		return "", false
	}
	k := strings.TrimSuffix(name, ext)
	if k == "" {
		return "", false
	}
	return path.Clean(k), true
}
