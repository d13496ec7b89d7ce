// Package parquet writes query results as Parquet tables in a lake.Store,
// optionally split into Hive-style partition directories, and loads such
// tables back into the query engine.
//
// DuckDB does the encoding into a local staging directory; the files are
// then uploaded to the store, so the same code serves local and S3 output.
package parquet

import (
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"github.com/sparkify/lake"
	"github.com/sparkify/lake/duck"
)

// SuccessMarker is the empty object written into a table directory once
// every data file of the table has been written.
const SuccessMarker = "_SUCCESS"

// WriterOption is a functional option for Writer.
type WriterOption func(w *Writer)

// OptWriterRunID sets the identifier embedded in part file names.
func OptWriterRunID(id string) WriterOption {
	return func(w *Writer) {
		w.runID = id
	}
}

// OptWriterLogger sets the logger.
func OptWriterLogger(l lake.Logger) WriterOption {
	return func(w *Writer) {
		w.log = l
	}
}

// OptWriterStatter sets the stats collector.
func OptWriterStatter(s lake.Statter) WriterOption {
	return func(w *Writer) {
		w.stats = s
	}
}

// Writer writes query results into a lake.Store.
type Writer struct {
	db      *duck.Querier
	store   lake.Store
	staging string
	runID   string

	log   lake.Logger
	stats lake.Statter
}

// NewWriter returns a Writer which runs queries on db, encodes their results
// under the local directory staging and uploads them to store.
func NewWriter(db *duck.Querier, store lake.Store, staging string, opts ...WriterOption) *Writer {
	w := &Writer{
		db:      db,
		store:   store,
		staging: staging,
		runID:   "0",
		log:     lake.NopLogger{},
		stats:   lake.NopStatter{},
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Write replaces whatever is under dir with the result of query. Without
// partition columns a single part file is written. With partition columns
// the rows are split by the values of those columns, each distinct
// combination getting its own directory (e.g. year=2018/month=11/), and the
// partition columns are left out of the files themselves. A NULL partition
// value is written as name=NULL. A _SUCCESS marker is written last. Write
// returns the number of data bytes written.
func (w *Writer) Write(ctx context.Context, query, dir string, partitionBy ...string) (lake.Bytes, error) {
	start := time.Now()
	dir = lake.DirKey(dir)
	if dir == "" {
		return 0, errors.New("cannot write a table at the store root")
	}
	local := filepath.Join(w.staging, filepath.FromSlash(dir))
	if err := os.RemoveAll(local); err != nil {
		return 0, errors.Wrap(err, "clearing staging directory")
	}
	err := w.db.Copy(ctx, query, local, duck.CopyOptions{
		PartitionBy:     partitionBy,
		FilenamePattern: "part-{i}-" + w.runID + ".snappy",
	})
	if err != nil {
		return 0, errors.Wrapf(err, "encoding %s", dir)
	}

	if err := w.store.RemoveAll(dir); err != nil {
		return 0, errors.Wrapf(err, "clearing %s", dir)
	}
	var total lake.Bytes
	files := 0
	err = filepath.WalkDir(local, func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		rel, err := filepath.Rel(local, p)
		if err != nil {
			return err
		}
		key := dir + filepath.ToSlash(rel)
		n, err := w.upload(p, key)
		if err != nil {
			return errors.Wrapf(err, "uploading %s", key)
		}
		total += n
		files++
		return nil
	})
	if err != nil {
		return total, err
	}

	marker, err := w.store.Create(dir + SuccessMarker)
	if err != nil {
		return total, errors.Wrap(err, "creating success marker")
	}
	if err := marker.Close(); err != nil {
		return total, errors.Wrap(err, "closing success marker")
	}
	if err := os.RemoveAll(local); err != nil {
		w.log.Printf("removing staged files in %s: %v", local, err)
	}

	w.stats.Count("parquet.files", int64(files), 1, "dir:"+dir)
	w.stats.Count("parquet.bytes", int64(total), 1, "dir:"+dir)
	w.stats.Timing("parquet.write", time.Since(start), 1, "dir:"+dir)
	w.log.Debugf("wrote %d files (%v) to %s%s", files, total, w.store.URI(), dir)
	return total, nil
}

func (w *Writer) upload(path, key string) (n lake.Bytes, err error) {
	in, err := os.Open(path)
	if err != nil {
		return 0, errors.Wrap(err, "opening staged file")
	}
	defer in.Close()
	out, err := w.store.Create(key)
	if err != nil {
		return 0, errors.Wrap(err, "creating object")
	}
	defer func() {
		if cerr := out.Close(); cerr != nil && err == nil {
			err = errors.Wrap(cerr, "closing object")
		}
	}()
	cw := &lake.CountingWriter{W: out}
	if _, err := io.Copy(cw, in); err != nil {
		return 0, errors.Wrap(err, "copying")
	}
	return cw.Written(), nil
}
