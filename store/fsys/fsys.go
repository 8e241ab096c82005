// Package fsys stores cache objects on a go-billy filesystem: the local disk
// (osfs) or process memory (memfs).
package fsys

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"

	"github.com/unkn0wn-root/tiercache/location"
	"github.com/unkn0wn-root/tiercache/store"
)

// Store is a store over a billy filesystem.
type Store struct {
	bfs  billy.Filesystem
	root location.Location
}

var _ store.Store = (*Store)(nil)

// Local returns a store rooted at dir on the local disk. dir is created if
// missing.
func Local(dir string) (*Store, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("fsys: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("fsys: create root: %w", err)
	}
	return New(osfs.New(abs), location.NewPath(abs)), nil
}

// Memory returns an empty in-memory store. label names its root (mem://label).
func Memory(label string) *Store {
	return New(memfs.New(), location.Object{Scheme: "mem", Bucket: label})
}

// New wraps an existing billy filesystem. root is what Root reports.
func New(bfs billy.Filesystem, root location.Location) *Store {
	return &Store{bfs: bfs, root: root}
}

// Unwrap returns the underlying billy filesystem.
func (s *Store) Unwrap() billy.Filesystem { return s.bfs }

func (s *Store) Root() location.Location { return s.root }

func (s *Store) Locate(name string) location.Location {
	if name == "" {
		return s.root
	}
	return s.root.Join(name)
}

func (s *Store) Read(_ context.Context, name string) ([]byte, error) {
	b, err := util.ReadFile(s.bfs, name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", store.ErrNotFound, name)
		}
		return nil, fmt.Errorf("fsys: read %s: %w", name, err)
	}
	return b, nil
}

// Write goes through a temporary file in the target directory followed by a
// rename, so readers never observe a partial object.
func (s *Store) Write(_ context.Context, name string, data []byte) error {
	dir := path.Dir(name)
	if err := s.bfs.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("fsys: mkdir %s: %w", dir, err)
	}
	f, err := s.bfs.TempFile(dir, store.TempPrefix)
	if err != nil {
		return fmt.Errorf("fsys: temp file: %w", err)
	}
	tmp := f.Name()
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = s.bfs.Remove(tmp)
		return fmt.Errorf("fsys: write %s: %w", name, err)
	}
	if err := f.Close(); err != nil {
		_ = s.bfs.Remove(tmp)
		return fmt.Errorf("fsys: write %s: %w", name, err)
	}
	if err := s.bfs.Rename(tmp, name); err != nil {
		// some billy backends refuse to rename over an existing file
		if rmErr := s.bfs.Remove(name); rmErr == nil || errors.Is(rmErr, fs.ErrNotExist) {
			err = s.bfs.Rename(tmp, name)
		}
		if err != nil {
			_ = s.bfs.Remove(tmp)
			return fmt.Errorf("fsys: rename %s: %w", name, err)
		}
	}
	return nil
}

func (s *Store) Delete(_ context.Context, name string) error {
	if err := s.bfs.Remove(name); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("fsys: delete %s: %w", name, err)
	}
	return nil
}

func (s *Store) List(ctx context.Context, prefix string) ([]store.ObjectInfo, error) {
	var out []store.ObjectInfo
	if err := s.walk(ctx, "", prefix, &out); err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) walk(ctx context.Context, dir, prefix string, out *[]store.ObjectInfo) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	read := dir
	if read == "" {
		read = "."
	}
	infos, err := s.bfs.ReadDir(read)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("fsys: list %s: %w", read, err)
	}
	for _, fi := range infos {
		name := store.Join(dir, fi.Name())
		if fi.IsDir() {
			// prune directories that cannot contain a match
			if strings.HasPrefix(name+"/", prefix) || strings.HasPrefix(prefix, name+"/") {
				if err := s.walk(ctx, name, prefix, out); err != nil {
					return err
				}
			}
			continue
		}
		if store.IsTemp(name) || !strings.HasPrefix(name, prefix) {
			continue
		}
		*out = append(*out, store.ObjectInfo{Name: name, Size: fi.Size(), ModTime: fi.ModTime()})
	}
	return nil
}

func (s *Store) Sub(rel string) store.Store { return store.Prefixed(s, rel) }

func (s *Store) Close(context.Context) error { return nil }

func (s *Store) String() string { return "fsys(" + s.root.String() + ")" }
