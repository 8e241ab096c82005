// Package minio stores cache objects on a MinIO (or other S3-compatible)
// server through minio-go.
package minio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/unkn0wn-root/tiercache/location"
	"github.com/unkn0wn-root/tiercache/store"
)

type Config struct {
	// Endpoint is the server address, e.g. "localhost:9000".
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	// Client, when set, is used as is and the connection fields are ignored.
	Client *minio.Client
	// Root is the bucket and key prefix every name is placed under.
	Root location.Object
}

func (c *Config) validate() error {
	if c.Root.Bucket == "" {
		return errors.New("bucket is required")
	}
	if c.Client != nil {
		return nil
	}
	if c.Endpoint == "" {
		return errors.New("endpoint is required when client is not provided")
	}
	return nil
}

type Store struct {
	client *minio.Client
	root   location.Object
}

var _ store.Store = (*Store)(nil)

func New(cfg Config) (*Store, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("minio: invalid config: %w", err)
	}
	client := cfg.Client
	if client == nil {
		var err error
		client, err = minio.New(cfg.Endpoint, &minio.Options{
			Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
			Secure: cfg.UseSSL,
		})
		if err != nil {
			return nil, fmt.Errorf("minio: create client: %w", err)
		}
	}
	root := cfg.Root
	root.Scheme = "minio"
	root.Key = strings.TrimSuffix(root.Key, "/")
	return &Store{client: client, root: root}, nil
}

func (s *Store) key(name string) string { return s.root.JoinObject(name).Key }

func (s *Store) Root() location.Location { return s.root }

func (s *Store) Locate(name string) location.Location { return s.root.JoinObject(name) }

func (s *Store) Read(ctx context.Context, name string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.root.Bucket, s.key(name), minio.GetObjectOptions{})
	if err != nil {
		return nil, translate("get", name, err)
	}
	defer func() { _ = obj.Close() }()

	// GetObject is lazy; Stat surfaces a missing key before reading.
	info, err := obj.Stat()
	if err != nil {
		return nil, translate("stat", name, err)
	}
	buf := make([]byte, info.Size)
	if _, err := io.ReadFull(obj, buf); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: %s", store.ErrTruncated, name)
		}
		return nil, translate("read", name, err)
	}
	return buf, nil
}

// Write is a single PutObject with a known size; minio-go switches to a
// multipart upload for large payloads and the object appears only once
// complete.
func (s *Store) Write(ctx context.Context, name string, data []byte) error {
	_, err := s.client.PutObject(ctx, s.root.Bucket, s.key(name), bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: "application/octet-stream"})
	if err != nil {
		return translate("put", name, err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, name string) error {
	err := s.client.RemoveObject(ctx, s.root.Bucket, s.key(name), minio.RemoveObjectOptions{})
	if err != nil && !IsNotFound(err) {
		return translate("delete", name, err)
	}
	return nil
}

func (s *Store) List(ctx context.Context, prefix string) ([]store.ObjectInfo, error) {
	base := s.root.Key
	if base != "" {
		base += "/"
	}
	var out []store.ObjectInfo
	for obj := range s.client.ListObjects(ctx, s.root.Bucket, minio.ListObjectsOptions{
		Prefix:    base + prefix,
		Recursive: true,
	}) {
		if obj.Err != nil {
			return nil, translate("list", prefix, obj.Err)
		}
		name := strings.TrimPrefix(obj.Key, base)
		if name == "" || strings.HasSuffix(name, "/") || store.IsTemp(name) {
			continue
		}
		out = append(out, store.ObjectInfo{Name: name, Size: obj.Size, ModTime: obj.LastModified})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) Sub(rel string) store.Store { return store.Prefixed(s, rel) }

func (s *Store) Close(context.Context) error { return nil }

// IsNotFound reports whether err is the server's answer for a missing key.
func IsNotFound(err error) bool {
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NotFound":
		return true
	}
	return false
}

func translate(op, name string, err error) error {
	if IsNotFound(err) {
		return fmt.Errorf("%w: %s", store.ErrNotFound, name)
	}
	return fmt.Errorf("minio: %s %s: %w", op, name, err)
}
