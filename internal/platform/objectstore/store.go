package objectstore

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"
)

type Mode string

const (
	ModeS3    Mode = "s3"
	ModeLocal Mode = "local"
)

func IsSupportedMode(m Mode) bool {
	return m == ModeS3 || m == ModeLocal
}

type ObjectInfo struct {
	Size         int64
	ContentType  string
	LastModified time.Time
	ETag         string
}

// Store is the uniform facade over the artifact object store. URIs are either
// s3://bucket/key or file://path depending on the active provider. The store
// is never the source of truth for job state; it holds STAC catalogs and item
// JSON passed between workflow steps.
type Store interface {
	Get(ctx context.Context, uri string) (io.ReadCloser, error)
	Put(ctx context.Context, uri string, body io.Reader, contentType string) error
	Head(ctx context.Context, uri string) (*ObjectInfo, error)
	List(ctx context.Context, prefixURI string) ([]string, error)
	SignedURL(ctx context.Context, uri string, expires time.Duration) (string, error)
	// URIFor builds a store-native URI for a key under the artifact root.
	URIFor(key string) string
}

// GetJSON reads a stored object and decodes it into v.
func GetJSON(ctx context.Context, s Store, uri string, v interface{}) error {
	rc, err := s.Get(ctx, uri)
	if err != nil {
		return err
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return fmt.Errorf("read %s: %w", uri, err)
	}
	return unmarshalJSON(data, v, uri)
}

func splitURI(uri string, wantScheme string) (host string, path string, err error) {
	u, err := url.Parse(uri)
	if err != nil {
		return "", "", fmt.Errorf("parse object uri %q: %w", uri, err)
	}
	if u.Scheme != wantScheme {
		return "", "", fmt.Errorf("object uri %q: expected scheme %q", uri, wantScheme)
	}
	return u.Host, strings.TrimPrefix(u.Path, "/"), nil
}
