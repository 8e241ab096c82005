package catalog

import (
	"context"
	"fmt"
)

// Builder scans a backend and returns the entries it holds.
type Builder func(ctx context.Context) ([]Entry, error)

// DuplicateKeyError reports two backend objects that map to one key.
type DuplicateKeyError struct {
	Key    string
	First  string
	Second string
}

func (e *DuplicateKeyError) Error() string {
	return fmt.Sprintf("duplicate key %q: %s and %s", e.Key, e.First, e.Second)
}

func (e *DuplicateKeyError) Unwrap() error { return ErrDuplicateKey }

// Build runs b and indexes the result. A key discovered twice fails the build
// instead of overwriting, since the losing object would be orphaned.
func Build(ctx context.Context, b Builder) (*Map, error) {
	c := NewMap()
	if b == nil {
		return c, nil
	}
	entries, err := b(ctx)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if prev, ok := c.m[e.Key]; ok {
			return nil, &DuplicateKeyError{Key: e.Key, First: locString(prev), Second: locString(e)}
		}
		c.m[e.Key] = e
	}
	return c, nil
}

func locString(e Entry) string {
	if e.Location != nil {
		return e.Location.String()
	}
	return e.Meta.Name
}
