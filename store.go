package lake

import (
	"io"
	"path"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// Store is a blob store rooted at some URI prefix. Keys are slash separated
// and relative to that root.
type Store interface {
	// URI returns the root of the store, e.g. s3a://bucket/prefix/.
	URI() string

	// List returns every key under prefix, recursively, in sorted order.
	List(prefix string) ([]string, error)

	// Glob returns the sorted keys matching pattern. Hidden files (base
	// name beginning with "_" or ".") are never returned.
	Glob(pattern string) ([]string, error)

	Open(key string) (NamedReadCloser, error)

	// Create returns a writer for key. The object is only guaranteed to be
	// durable once Close returns without error.
	Create(key string) (io.WriteCloser, error)

	// RemoveAll removes every key under the directory dir.
	RemoveAll(dir string) error
}

// ErrNoMatch is returned by Glob implementations when nothing matches.
var ErrNoMatch = errors.New("path does not exist")

// GlobPrefix returns the literal part of pattern up to the last slash before
// the first glob meta character. It is the prefix under which a listing must
// be done to evaluate the pattern.
func GlobPrefix(pattern string) string {
	i := strings.IndexAny(pattern, "*?[\\")
	if i < 0 {
		return pattern
	}
	j := strings.LastIndex(pattern[:i], "/")
	if j < 0 {
		return ""
	}
	return pattern[:j+1]
}

// MatchKeys filters keys down to those matching pattern segment by segment
// (see path.Match). A pattern which matches a directory selects every file
// beneath it, so song_data/*/*/* picks up song_data/A/B/C/x.json. Hidden
// files and the contents of hidden directories are dropped. The result is
// sorted.
func MatchKeys(keys []string, pattern string) ([]string, error) {
	pattern = strings.Trim(pattern, "/")
	if _, err := path.Match(pattern, ""); err != nil {
		return nil, errors.Wrapf(err, "bad pattern '%s'", pattern)
	}
	depth := strings.Count(pattern, "/") + 1
	matched := make([]string, 0, len(keys))
	for _, key := range keys {
		segs := strings.Split(key, "/")
		if len(segs) < depth || hiddenBelow(segs[depth-1:]) {
			continue
		}
		ok, _ := path.Match(pattern, strings.Join(segs[:depth], "/"))
		if ok {
			matched = append(matched, key)
		}
	}
	sort.Strings(matched)
	return matched, nil
}

func hiddenBelow(segs []string) bool {
	for _, seg := range segs {
		if strings.HasPrefix(seg, "_") || strings.HasPrefix(seg, ".") {
			return true
		}
	}
	return false
}

// IsHidden reports whether the base name of key starts with "_" or ".".
// Such files (e.g. _SUCCESS markers) are metadata, not data.
func IsHidden(key string) bool {
	base := path.Base(key)
	return strings.HasPrefix(base, "_") || strings.HasPrefix(base, ".")
}

// DirKey normalizes dir so that it ends in exactly one slash, or is empty.
func DirKey(dir string) string {
	dir = strings.Trim(dir, "/")
	if dir == "" {
		return ""
	}
	return dir + "/"
}
