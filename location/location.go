// Package location models backend addresses: local filesystem paths and
// object-storage URIs. A Location is opaque to the cache; it is recorded in the
// catalog and used for logging and equality only.
package location

import (
	"fmt"
	"net/url"
	"path"
	"path/filepath"
	"strings"
)

// DefaultRegion is used for HTTPS URLs of objects without an explicit region.
const DefaultRegion = "us-east-2"

// Location is a backend-specific address.
type Location interface {
	// String returns the canonical backend-native form.
	String() string
	// Join appends path segments.
	Join(parts ...string) Location
	// Parent returns the enclosing directory or prefix.
	Parent() Location
	// Base returns the last path segment.
	Base() string
	// IsPrefix reports whether the location names a directory/prefix rather than
	// a leaf object. It is a syntactic check and never touches the backend.
	IsPrefix() bool
}

// Equal reports whether a and b address the same thing.
func Equal(a, b Location) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.String() == b.String()
}

// IsObjectURI reports whether s looks like an object-storage URI.
func IsObjectURI(s string) bool {
	return strings.HasPrefix(s, "s3://") || strings.HasPrefix(s, "https://s3.")
}

// Parse turns s into a Location: s3:// and https://s3.<region>... URIs become
// Objects, any other scheme:// URI becomes an Object with that scheme, and
// everything else is a filesystem Path.
func Parse(s string) (Location, error) {
	if strings.HasPrefix(s, "https://s3.") || strings.Contains(s, "://") {
		return ParseObject(s)
	}
	if s == "" {
		return nil, fmt.Errorf("location: empty")
	}
	return NewPath(s), nil
}

// Path is a local filesystem location.
type Path string

var _ Location = Path("")

// NewPath returns a cleaned Path.
func NewPath(p string) Path { return Path(filepath.Clean(p)) }

func (p Path) String() string { return string(p) }

func (p Path) Join(parts ...string) Location {
	elems := make([]string, 0, len(parts)+1)
	elems = append(elems, string(p))
	for _, part := range parts {
		elems = append(elems, filepath.FromSlash(part))
	}
	return Path(filepath.Join(elems...))
}

func (p Path) Parent() Location { return Path(filepath.Dir(string(p))) }

func (p Path) Base() string { return filepath.Base(string(p)) }

func (p Path) IsPrefix() bool {
	s := string(p)
	return s == "" || strings.HasSuffix(s, string(filepath.Separator))
}

// Object is an object-storage location: scheme://bucket/key.
type Object struct {
	Scheme string // "s3" when empty
	Bucket string
	Key    string
	Region string // optional, not part of equality
}

var _ Location = Object{}

// NewObject returns an s3 Object with a normalized key.
func NewObject(bucket, key string) Object {
	return Object{Scheme: "s3", Bucket: bucket, Key: cleanKey(key)}
}

// ParseObject parses s3://bucket/key, https://s3.<region>.amazonaws.com/bucket/key
// and generic scheme://bucket/key URIs.
func ParseObject(s string) (Object, error) {
	u, err := url.Parse(s)
	if err != nil {
		return Object{}, fmt.Errorf("location: parse %q: %w", s, err)
	}
	switch {
	case u.Scheme == "":
		return Object{}, fmt.Errorf("location: %q has no scheme", s)
	case strings.HasPrefix(u.Scheme, "http"):
		// https://s3.<region>.amazonaws.com/<bucket>/<key>
		host := strings.Split(u.Host, ".")
		if len(host) < 2 || host[0] != "s3" {
			return Object{}, fmt.Errorf("location: %q is not an s3 https url", s)
		}
		bucket, key, _ := strings.Cut(strings.TrimPrefix(u.Path, "/"), "/")
		if bucket == "" {
			return Object{}, fmt.Errorf("location: %q has no bucket", s)
		}
		return Object{Scheme: "s3", Bucket: bucket, Key: cleanKey(key), Region: host[1]}, nil
	default:
		if u.Host == "" {
			return Object{}, fmt.Errorf("location: %q has no bucket", s)
		}
		key := strings.TrimPrefix(u.Path, "/")
		if strings.HasSuffix(u.Path, "/") && key != "" {
			return Object{Scheme: u.Scheme, Bucket: u.Host, Key: cleanKey(key) + "/"}, nil
		}
		return Object{Scheme: u.Scheme, Bucket: u.Host, Key: cleanKey(key)}, nil
	}
}

func (o Object) scheme() string {
	if o.Scheme == "" {
		return "s3"
	}
	return o.Scheme
}

// URI is the scheme://bucket/key form. Equal to String.
func (o Object) URI() string {
	s := o.scheme() + "://" + o.Bucket
	if o.Key != "" {
		s += "/" + o.Key
	}
	return s
}

func (o Object) String() string { return o.URI() }

// HTTPSURL returns the virtual-path style AWS URL.
func (o Object) HTTPSURL() string {
	region := o.Region
	if region == "" {
		region = DefaultRegion
	}
	s := "https://s3." + region + ".amazonaws.com/" + url.PathEscape(o.Bucket)
	if o.Key != "" {
		segs := strings.Split(o.Key, "/")
		for i := range segs {
			segs[i] = url.PathEscape(segs[i])
		}
		s += "/" + strings.Join(segs, "/")
	}
	return s
}

// Join appends parts to the key. Repeated slashes collapse.
func (o Object) Join(parts ...string) Location {
	return o.JoinObject(parts...)
}

// JoinObject is Join with a concrete return type.
func (o Object) JoinObject(parts ...string) Object {
	segs := make([]string, 0, len(parts)+1)
	if o.Key != "" {
		segs = append(segs, o.Key)
	}
	segs = append(segs, parts...)
	key := strings.Join(segs, "/")
	for strings.Contains(key, "//") {
		key = strings.ReplaceAll(key, "//", "/")
	}
	o.Key = strings.TrimPrefix(key, "/")
	return o
}

// SplitKey returns the key's directory part and last segment.
func (o Object) SplitKey() (dir, name string) {
	key := strings.TrimSuffix(o.Key, "/")
	if i := strings.LastIndex(key, "/"); i >= 0 {
		return key[:i], key[i+1:]
	}
	return "", key
}

func (o Object) Parent() Location {
	dir, _ := o.SplitKey()
	o.Key = dir
	return o
}

func (o Object) Base() string {
	_, name := o.SplitKey()
	return name
}

// IsBucket reports whether the location is the bucket root.
func (o Object) IsBucket() bool { return o.Key == "" }

func (o Object) IsPrefix() bool { return o.IsBucket() || strings.HasSuffix(o.Key, "/") }

func cleanKey(key string) string {
	key = strings.TrimPrefix(key, "/")
	if key == "" {
		return ""
	}
	for strings.Contains(key, "//") {
		key = strings.ReplaceAll(key, "//", "/")
	}
	return strings.TrimSuffix(path.Clean("/"+key)[1:], "/")
}
