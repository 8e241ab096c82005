// Package redis stores cache objects as plain string values in Redis.
package redis

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	goredis "github.com/redis/go-redis/v9"

	"github.com/unkn0wn-root/tiercache/location"
	"github.com/unkn0wn-root/tiercache/store"
)

var ErrNilClient = errors.New("redis store: nil client")

// scanCount is the COUNT hint passed to SCAN.
const scanCount = 512

type Redis struct {
	rdb         goredis.UniversalClient
	closeClient bool
	ns          string
	root        location.Object
}

var _ store.Store = (*Redis)(nil)

type Config struct {
	Client      goredis.UniversalClient
	CloseClient bool // set true only if this store exclusively owns the client
	// Namespace prefixes every key, e.g. "tiercache". Objects live under
	// "<Namespace>/<name>".
	Namespace string
	// Label names the root location (redis://<Label>/<Namespace>). Defaults
	// to "default".
	Label string
}

func New(cfg Config) (*Redis, error) {
	if cfg.Client == nil {
		return nil, ErrNilClient
	}
	label := cfg.Label
	if label == "" {
		label = "default"
	}
	ns := store.Join(cfg.Namespace)
	return &Redis{
		rdb:         cfg.Client,
		closeClient: cfg.CloseClient,
		ns:          ns,
		root:        location.Object{Scheme: "redis", Bucket: label, Key: ns},
	}, nil
}

func (p *Redis) key(name string) string {
	if p.ns == "" {
		return name
	}
	return p.ns + "/" + name
}

func (p *Redis) Root() location.Location { return p.root }

func (p *Redis) Locate(name string) location.Location { return p.root.JoinObject(name) }

func (p *Redis) Read(ctx context.Context, name string) ([]byte, error) {
	b, err := p.rdb.Get(ctx, p.key(name)).Bytes()
	if err == goredis.Nil {
		return nil, fmt.Errorf("%w: %s", store.ErrNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("redis: get %s: %w", name, err) // transport/server error
	}
	return b, nil
}

// Write is a single SET; Redis applies it atomically.
func (p *Redis) Write(ctx context.Context, name string, data []byte) error {
	if data == nil {
		data = []byte{}
	}
	if err := p.rdb.Set(ctx, p.key(name), data, 0).Err(); err != nil {
		return fmt.Errorf("redis: set %s: %w", name, err)
	}
	return nil
}

func (p *Redis) Delete(ctx context.Context, name string) error {
	if err := p.rdb.Del(ctx, p.key(name)).Err(); err != nil {
		return fmt.Errorf("redis: del %s: %w", name, err)
	}
	return nil
}

// List walks the keyspace with SCAN and fetches sizes with a pipelined STRLEN.
// Redis keeps no modification time, so ModTime is zero.
func (p *Redis) List(ctx context.Context, prefix string) ([]store.ObjectInfo, error) {
	match := escapeGlob(p.key(prefix)) + "*"
	var keys []string
	var cursor uint64
	for {
		batch, next, err := p.rdb.Scan(ctx, cursor, match, scanCount).Result()
		if err != nil {
			return nil, fmt.Errorf("redis: scan: %w", err)
		}
		keys = append(keys, batch...)
		cursor = next
		if cursor == 0 {
			break
		}
	}
	if len(keys) == 0 {
		return nil, nil
	}

	pipe := p.rdb.Pipeline()
	lens := make([]*goredis.IntCmd, len(keys))
	for i, k := range keys {
		lens[i] = pipe.StrLen(ctx, k)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("redis: strlen: %w", err)
	}

	strip := ""
	if p.ns != "" {
		strip = p.ns + "/"
	}
	seen := make(map[string]struct{}, len(keys))
	out := make([]store.ObjectInfo, 0, len(keys))
	for i, k := range keys {
		// SCAN may return a key more than once
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		name := strings.TrimPrefix(k, strip)
		if store.IsTemp(name) {
			continue
		}
		out = append(out, store.ObjectInfo{Name: name, Size: lens[i].Val()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (p *Redis) Sub(rel string) store.Store { return store.Prefixed(p, rel) }

// Close releases the underlying redis client only when this store owns it.
// Safe to call multiple times; repeated calls become no-ops.
func (p *Redis) Close(context.Context) error {
	if p.closeClient {
		if err := p.rdb.Close(); err != nil && !errors.Is(err, goredis.ErrClosed) {
			return err
		}
	}
	return nil
}

func escapeGlob(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
