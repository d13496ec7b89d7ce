// Package file implements lake.Store on the local file system.
package file

import (
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/sparkify/lake"
)

var _ lake.Store = &Store{}

// Store is a lake.Store rooted at a local directory.
type Store struct {
	root string
}

// NewStore returns a Store rooted at root, which may be a plain path or a
// file:// URI. The directory does not need to exist yet.
func NewStore(root string) (*Store, error) {
	root = strings.TrimPrefix(root, "file://")
	if root == "" {
		return nil, errors.New("empty root directory")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, errors.Wrapf(err, "resolving %s", root)
	}
	return &Store{root: abs}, nil
}

// URI implements lake.Store.
func (s *Store) URI() string {
	return "file://" + filepath.ToSlash(s.root) + "/"
}

func (s *Store) path(key string) string {
	return filepath.Join(s.root, filepath.FromSlash(strings.TrimPrefix(key, "/")))
}

// List implements lake.Store. Directories are not returned, only files.
func (s *Store) List(prefix string) ([]string, error) {
	// walk from the deepest directory the prefix names
	dir := prefix
	if !strings.HasSuffix(dir, "/") {
		dir = filepath.ToSlash(filepath.Dir(filepath.FromSlash(dir)))
		if dir == "." {
			dir = ""
		}
	}
	start := s.path(dir)
	if _, err := os.Stat(start); os.IsNotExist(err) {
		return nil, nil
	}
	keys := make([]string, 0)
	err := filepath.WalkDir(start, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(s.root, p)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "walking %s", start)
	}
	sort.Strings(keys)
	return keys, nil
}

// Glob implements lake.Store.
func (s *Store) Glob(pattern string) ([]string, error) {
	keys, err := s.List(lake.GlobPrefix(pattern))
	if err != nil {
		return nil, errors.Wrap(err, "listing")
	}
	return lake.MatchKeys(keys, pattern)
}

type metaFile struct {
	*os.File
	key string
}

func (m *metaFile) Name() string {
	return m.key
}

// Open implements lake.Store.
func (s *Store) Open(key string) (lake.NamedReadCloser, error) {
	file, err := os.Open(s.path(key))
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s", key)
	}
	return &metaFile{File: file, key: key}, nil
}

type onceCloser struct {
	*os.File
	once sync.Once
	err  error
}

func (o *onceCloser) Close() error {
	o.once.Do(func() {
		o.err = o.File.Close()
	})
	return o.err
}

// Create implements lake.Store, creating parent directories as needed.
// Closing the returned writer more than once is safe.
func (s *Store) Create(key string) (io.WriteCloser, error) {
	p := s.path(key)
	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		return nil, errors.Wrapf(err, "making directory for %s", key)
	}
	f, err := os.Create(p)
	if err != nil {
		return nil, errors.Wrapf(err, "creating %s", key)
	}
	return &onceCloser{File: f}, nil
}

// RemoveAll implements lake.Store.
func (s *Store) RemoveAll(dir string) error {
	dir = lake.DirKey(dir)
	if dir == "" {
		return errors.New("refusing to remove the store root")
	}
	return errors.Wrapf(os.RemoveAll(s.path(dir)), "removing %s", dir)
}
