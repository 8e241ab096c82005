package store

import (
	"context"
	"strings"

	"github.com/unkn0wn-root/tiercache/location"
)

// Prefixed exposes the names under rel of parent as a store of its own.
// Backends use it to implement Sub.
func Prefixed(parent Store, rel string) Store {
	rel = Join(rel)
	if rel == "" {
		return parent
	}
	if p, ok := parent.(*prefixed); ok {
		return &prefixed{parent: p.parent, rel: Join(p.rel, rel)}
	}
	return &prefixed{parent: parent, rel: rel}
}

type prefixed struct {
	parent Store
	rel    string
}

var _ Store = (*prefixed)(nil)

func (p *prefixed) Root() location.Location { return p.parent.Locate(p.rel) }

func (p *prefixed) Locate(name string) location.Location {
	return p.parent.Locate(Join(p.rel, name))
}

func (p *prefixed) Read(ctx context.Context, name string) ([]byte, error) {
	return p.parent.Read(ctx, Join(p.rel, name))
}

func (p *prefixed) Write(ctx context.Context, name string, data []byte) error {
	return p.parent.Write(ctx, Join(p.rel, name), data)
}

func (p *prefixed) Delete(ctx context.Context, name string) error {
	return p.parent.Delete(ctx, Join(p.rel, name))
}

func (p *prefixed) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	dir := p.rel + "/"
	infos, err := p.parent.List(ctx, dir+prefix)
	if err != nil {
		return nil, err
	}
	out := infos[:0]
	for _, o := range infos {
		if !strings.HasPrefix(o.Name, dir) {
			continue
		}
		o.Name = strings.TrimPrefix(o.Name, dir)
		out = append(out, o)
	}
	return out, nil
}

func (p *prefixed) Sub(rel string) Store { return Prefixed(p, rel) }

func (p *prefixed) Close(context.Context) error { return nil }
