// Package s3 stores cache objects in an AWS S3 bucket (or any endpoint that
// speaks the S3 API) through aws-sdk-go-v2.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/unkn0wn-root/tiercache/location"
	"github.com/unkn0wn-root/tiercache/store"
)

// API is the subset of *s3.Client the store uses. The multipart calls are
// only reached through manager.Uploader for large objects.
type API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	manager.UploadAPIClient
}

var _ API = (*s3.Client)(nil)

// Uploader is satisfied by *manager.Uploader.
type Uploader interface {
	Upload(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

type Config struct {
	Client API
	// Uploader defaults to manager.NewUploader(Client) with PartSize and
	// Concurrency applied.
	Uploader    Uploader
	PartSize    int64
	Concurrency int
	// Root is the bucket and key prefix every name is placed under.
	Root location.Object
}

type Store struct {
	client   API
	uploader Uploader
	root     location.Object
}

var _ store.Store = (*Store)(nil)

func New(cfg Config) (*Store, error) {
	if cfg.Client == nil {
		return nil, errors.New("s3 store: nil client")
	}
	if cfg.Root.Bucket == "" {
		return nil, errors.New("s3 store: bucket is required")
	}
	up := cfg.Uploader
	if up == nil {
		up = manager.NewUploader(cfg.Client, func(u *manager.Uploader) {
			if cfg.PartSize > 0 {
				u.PartSize = cfg.PartSize
			}
			if cfg.Concurrency > 0 {
				u.Concurrency = cfg.Concurrency
			}
		})
	}
	root := cfg.Root
	root.Scheme = "s3"
	root.Key = strings.TrimSuffix(root.Key, "/")
	return &Store{client: cfg.Client, uploader: up, root: root}, nil
}

func (s *Store) key(name string) string { return s.root.JoinObject(name).Key }

func (s *Store) Root() location.Location { return s.root }

func (s *Store) Locate(name string) location.Location { return s.root.JoinObject(name) }

// Read fetches the object in full. A body shorter than the announced
// Content-Length is reported as store.ErrTruncated.
func (s *Store) Read(ctx context.Context, name string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.root.Bucket),
		Key:    aws.String(s.key(name)),
	})
	if err != nil {
		return nil, translate("get", name, err)
	}
	defer func() { _ = out.Body.Close() }()

	b, err := io.ReadAll(out.Body)
	if err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("%w: %s", store.ErrTruncated, name)
		}
		return nil, fmt.Errorf("s3: read %s: %w", name, err)
	}
	if out.ContentLength != nil && int64(len(b)) < *out.ContentLength {
		return nil, fmt.Errorf("%w: %s: got %d of %d bytes", store.ErrTruncated, name, len(b), *out.ContentLength)
	}
	return b, nil
}

// Write uploads through manager.Uploader: a single PUT for small objects, a
// multipart upload otherwise. Neither becomes visible until complete.
func (s *Store) Write(ctx context.Context, name string, data []byte) error {
	_, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.root.Bucket),
		Key:         aws.String(s.key(name)),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/octet-stream"),
	})
	if err != nil {
		return translate("put", name, err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, name string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.root.Bucket),
		Key:    aws.String(s.key(name)),
	})
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
	p := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.root.Bucket),
		Prefix: aws.String(base + prefix),
	})
	var out []store.ObjectInfo
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, translate("list", prefix, err)
		}
		for _, obj := range page.Contents {
			name := strings.TrimPrefix(aws.ToString(obj.Key), base)
			if name == "" || strings.HasSuffix(name, "/") || store.IsTemp(name) {
				continue
			}
			out = append(out, store.ObjectInfo{
				Name:    name,
				Size:    aws.ToInt64(obj.Size),
				ModTime: aws.ToTime(obj.LastModified),
			})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) Sub(rel string) store.Store { return store.Prefixed(s, rel) }

func (s *Store) Close(context.Context) error { return nil }

// IsNotFound reports whether err is S3's answer for a missing key.
func IsNotFound(err error) bool {
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var nf *types.NotFound
	if errors.As(err, &nf) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return true
		}
	}
	var re *awshttp.ResponseError
	return errors.As(err, &re) && re.HTTPStatusCode() == 404
}

func translate(op, name string, err error) error {
	if IsNotFound(err) {
		return fmt.Errorf("%w: %s", store.ErrNotFound, name)
	}
	return fmt.Errorf("s3: %s %s: %w", op, name, err)
}
