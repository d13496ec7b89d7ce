package lake

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// Ingester copies every object matching a glob from a Store into a local
// staging directory as newline delimited JSON, ready for the query engine
// to read.
type Ingester struct {
	// Concurrency is the number of objects fetched and decoded at once.
	Concurrency int

	Log   Logger
	Stats Statter

	newSource func(r io.Reader) Source
}

// NewIngester returns an Ingester which uses newSource to decode the records
// of each object. Records must decode to map[string]interface{}.
func NewIngester(newSource func(r io.Reader) Source) *Ingester {
	return &Ingester{
		Concurrency: 1,
		Log:         NopLogger{},
		Stats:       NopStatter{},
		newSource:   newSource,
	}
}

// Fetch reads all objects matching pattern and writes their records, one
// object per line, to numbered files in dir. The i-th returned file holds
// the records of the i-th matching key in key order; objects holding no
// records produce no file. No match at all is an error, as is any record
// which fails to decode or is not a JSON object.
func (n *Ingester) Fetch(ctx context.Context, store Store, pattern, dir string) ([]string, error) {
	start := time.Now()
	keys, err := store.Glob(pattern)
	if err != nil {
		return nil, errors.Wrapf(err, "globbing %s%s", store.URI(), pattern)
	}
	if len(keys) == 0 {
		return nil, errors.Wrapf(ErrNoMatch, "%s%s", store.URI(), pattern)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errors.Wrap(err, "making staging directory")
	}
	n.Log.Printf("fetching %d objects matching %s%s", len(keys), store.URI(), pattern)

	counts := make([]int, len(keys))
	eg, ctx := errgroup.WithContext(ctx)
	if n.Concurrency > 0 {
		eg.SetLimit(n.Concurrency)
	}
	for i, key := range keys {
		i, key := i, key
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			c, err := n.stageObject(store, key, stagedName(dir, i))
			counts[i] = c
			return err
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	files := make([]string, 0, len(keys))
	total := 0
	for i, c := range counts {
		total += c
		if c > 0 {
			files = append(files, stagedName(dir, i))
		}
	}
	if len(files) == 0 {
		return nil, errors.Errorf("no records in the %d objects matching %s%s", len(keys), store.URI(), pattern)
	}
	n.Stats.Count("ingest.objects", int64(len(keys)), 1)
	n.Stats.Count("ingest.records", int64(total), 1)
	n.Stats.Timing("ingest.duration", time.Since(start), 1)
	n.Log.Debugf("staged %d records from %s%s in %s", total, store.URI(), pattern, dir)
	return files, nil
}

func stagedName(dir string, i int) string {
	return filepath.Join(dir, fmt.Sprintf("part-%05d.json", i))
}

// stageObject decodes key and writes its records to path. Nothing is left
// at path when the object holds no records.
func (n *Ingester) stageObject(store Store, key, path string) (count int, err error) {
	reader, err := store.Open(key)
	if err != nil {
		return 0, errors.Wrapf(err, "opening %s", key)
	}
	defer func() {
		if cerr := reader.Close(); cerr != nil && err == nil {
			err = errors.Wrapf(cerr, "closing %s", key)
		}
	}()

	f, err := os.Create(path)
	if err != nil {
		return 0, errors.Wrap(err, "creating staging file")
	}
	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	src := n.newSource(reader)
	for {
		rec, err := src.Record()
		if err == io.EOF {
			break
		}
		if err != nil {
			f.Close()
			return 0, errors.Wrapf(err, "decoding record %d of %s", count, reader.Name())
		}
		m, ok := rec.(map[string]interface{})
		if !ok {
			f.Close()
			return 0, errors.Errorf("record %d of %s is a %T, not an object", count, reader.Name(), rec)
		}
		if err := enc.Encode(m); err != nil {
			f.Close()
			return 0, errors.Wrapf(err, "staging record %d of %s", count, reader.Name())
		}
		count++
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return 0, errors.Wrap(err, "flushing staging file")
	}
	if err := f.Close(); err != nil {
		return 0, errors.Wrap(err, "closing staging file")
	}
	if count == 0 {
		return 0, errors.Wrap(os.Remove(path), "removing empty staging file")
	}
	return count, nil
}
