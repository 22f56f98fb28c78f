package objectstore

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/eosdis/harmony-workflow/internal/platform/logger"
)

// localStore is the filesystem fallback used in development and tests. It
// serves file:// URIs rooted at a scratch directory.
type localStore struct {
	log  *logger.Logger
	root string
}

func NewLocalStore(log *logger.Logger, root string) (Store, error) {
	if strings.TrimSpace(root) == "" {
		return nil, fmt.Errorf("missing local object store root")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create object store root: %w", err)
	}
	return &localStore{log: log.With("service", "LocalStore"), root: root}, nil
}

func (s *localStore) pathFor(uri string) (string, error) {
	_, p, err := splitURI(uri, "file")
	if err != nil {
		return "", err
	}
	return "/" + p, nil
}

func (s *localStore) Get(_ context.Context, uri string) (io.ReadCloser, error) {
	p, err := s.pathFor(uri)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", uri, err)
	}
	return f, nil
}

func (s *localStore) Put(_ context.Context, uri string, body io.Reader, _ string) error {
	p, err := s.pathFor(uri)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("put %s: %w", uri, err)
	}
	f, err := os.Create(p)
	if err != nil {
		return fmt.Errorf("put %s: %w", uri, err)
	}
	defer f.Close()
	if _, err := io.Copy(f, body); err != nil {
		return fmt.Errorf("put %s: %w", uri, err)
	}
	return nil
}

func (s *localStore) Head(_ context.Context, uri string) (*ObjectInfo, error) {
	p, err := s.pathFor(uri)
	if err != nil {
		return nil, err
	}
	st, err := os.Stat(p)
	if err != nil {
		return nil, fmt.Errorf("head %s: %w", uri, err)
	}
	return &ObjectInfo{Size: st.Size(), LastModified: st.ModTime()}, nil
}

func (s *localStore) List(_ context.Context, prefixURI string) ([]string, error) {
	prefix, err := s.pathFor(prefixURI)
	if err != nil {
		return nil, err
	}
	dir := filepath.Dir(prefix)
	var uris []string
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if os.IsNotExist(walkErr) {
				return nil
			}
			return walkErr
		}
		if d.IsDir() {
			return nil
		}
		if strings.HasPrefix(path, prefix) {
			uris = append(uris, "file://"+path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", prefixURI, err)
	}
	return uris, nil
}

// SignedURL has nothing to sign locally; the file URI itself is returned.
func (s *localStore) SignedURL(_ context.Context, uri string, _ time.Duration) (string, error) {
	if _, err := s.pathFor(uri); err != nil {
		return "", err
	}
	return uri, nil
}

func (s *localStore) URIFor(key string) string {
	return "file://" + filepath.Join(s.root, key)
}
