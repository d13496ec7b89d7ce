package parquet

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/sparkify/lake"
	"github.com/sparkify/lake/duck"
)

// ErrNotCommitted is returned by Reader.Load when a table directory has no
// _SUCCESS marker, i.e. its writer never finished.
var ErrNotCommitted = errors.New("table has not been committed")

// Reader loads tables written by Writer into the query engine.
type Reader struct {
	db      *duck.Querier
	store   lake.Store
	staging string

	// AllowUncommitted skips the _SUCCESS check.
	AllowUncommitted bool
}

// NewReader returns a Reader which downloads tables from store into the
// local directory staging before loading them into db.
func NewReader(db *duck.Querier, store lake.Store, staging string) *Reader {
	return &Reader{db: db, store: store, staging: staging}
}

// Committed reports whether dir holds a _SUCCESS marker.
func (r *Reader) Committed(dir string) (bool, error) {
	dir = lake.DirKey(dir)
	keys, err := r.store.List(dir + SuccessMarker)
	if err != nil {
		return false, errors.Wrapf(err, "listing %s", dir)
	}
	for _, k := range keys {
		if k == dir+SuccessMarker {
			return true, nil
		}
	}
	return false, nil
}

// Load creates or replaces table name in the engine from every Parquet file
// under dir and returns its row count. With hive set, columns found in
// partition directory names are rebuilt from them; a name=NULL directory
// yields NULL.
func (r *Reader) Load(ctx context.Context, dir, name string, hive bool) (int64, error) {
	dir = lake.DirKey(dir)
	if !r.AllowUncommitted {
		ok, err := r.Committed(dir)
		if err != nil {
			return 0, err
		}
		if !ok {
			return 0, errors.Wrapf(ErrNotCommitted, "%s%s", r.store.URI(), dir)
		}
	}
	keys, err := r.store.List(dir)
	if err != nil {
		return 0, errors.Wrapf(err, "listing %s", dir)
	}

	local := filepath.Join(r.staging, filepath.FromSlash(dir))
	if err := os.RemoveAll(local); err != nil {
		return 0, errors.Wrap(err, "clearing staging directory")
	}
	files := 0
	for _, key := range keys {
		if lake.IsHidden(key) || !strings.HasSuffix(key, ".parquet") {
			continue
		}
		p := filepath.Join(local, filepath.FromSlash(strings.TrimPrefix(key, dir)))
		if err := r.download(key, p); err != nil {
			return 0, errors.Wrapf(err, "downloading %s", key)
		}
		files++
	}
	if files == 0 {
		return 0, errors.Errorf("no parquet files under %s%s", r.store.URI(), dir)
	}
	return r.db.LoadParquet(ctx, name, local, hive)
}

func (r *Reader) download(key, path string) (err error) {
	in, err := r.store.Open(key)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := in.Close(); cerr != nil && err == nil {
			err = errors.Wrap(cerr, "closing object")
		}
	}()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.Wrap(err, "making staging directory")
	}
	out, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "creating staged file")
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return errors.Wrap(err, "copying")
	}
	return errors.Wrap(out.Close(), "closing staged file")
}
