package lake_test

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/sparkify/lake"
	"github.com/sparkify/lake/json"
)

func readStaged(t *testing.T, files []string) []string {
	t.Helper()
	var lines []string
	for _, f := range files {
		b, err := os.ReadFile(f)
		if err != nil {
			t.Fatalf("reading %s: %v", f, err)
		}
		lines = append(lines, strings.Split(strings.TrimSpace(string(b)), "\n")...)
	}
	return lines
}

func TestIngesterFetch(t *testing.T) {
	store := newMemStore(map[string]string{
		"log_data/2018/11/b.json":   `{"n": 3, "s": "c"}` + "\n" + `{"n": 4}`,
		"log_data/2018/11/a.json":   `{"n": 1, "s": "a"} {"n": 2.5, "s": "b<&>"}`,
		"log_data/2018/11/empty":    ``,
		"log_data/2018/11/_SUCCESS": `not json`,
		"log_data/2018/12/c.json":   `{"n": 1542077468796}`,
	})
	for _, concurrency := range []int{0, 1, 4} {
		ing := lake.NewIngester(json.NewLakeSource)
		ing.Concurrency = concurrency
		dir := t.TempDir()
		files, err := ing.Fetch(context.Background(), store, "log_data/2018/11/*", dir)
		if err != nil {
			t.Fatalf("fetching: %v", err)
		}
		if !reflect.DeepEqual(files, []string{filepath.Join(dir, "part-00000.json"), filepath.Join(dir, "part-00001.json")}) {
			t.Fatalf("concurrency %d: unexpected files %v", concurrency, files)
		}
		exp := []string{`{"n":1,"s":"a"}`, `{"n":2.5,"s":"b<&>"}`, `{"n":3,"s":"c"}`, `{"n":4}`}
		if got := readStaged(t, files); !reflect.DeepEqual(got, exp) {
			t.Fatalf("concurrency %d: unexpected records %v", concurrency, got)
		}
	}

	files, err := lake.NewIngester(json.NewLakeSource).Fetch(context.Background(), store, "log_data/*", t.TempDir())
	if err != nil {
		t.Fatalf("fetching all logs: %v", err)
	}
	if got := readStaged(t, files); len(got) != 5 || got[4] != `{"n":1542077468796}` {
		t.Fatalf("integers should be staged verbatim, got %v", got)
	}
}

func TestIngesterErrors(t *testing.T) {
	store := newMemStore(map[string]string{
		"good.json":  `{"a": 1}`,
		"bad.json":   `{"a": `,
		"array.json": `[1, 2]`,
		"none.json":  ``,
	})
	ing := lake.NewIngester(json.NewLakeSource)
	ctx := context.Background()

	if _, err := ing.Fetch(ctx, store, "none/*", t.TempDir()); errors.Cause(err) != lake.ErrNoMatch {
		t.Fatalf("expected ErrNoMatch, got %v", err)
	}
	if _, err := ing.Fetch(ctx, store, "bad.json", t.TempDir()); err == nil || !strings.Contains(err.Error(), "bad.json") {
		t.Fatalf("expected a decode error naming the file, got %v", err)
	}
	if _, err := ing.Fetch(ctx, store, "array.json", t.TempDir()); err == nil {
		t.Fatal("expected an error for a non-object record")
	}
	if _, err := ing.Fetch(ctx, store, "none.json", t.TempDir()); err == nil {
		t.Fatal("expected an error when no object holds records")
	}
	files, err := ing.Fetch(ctx, store, "good.json", t.TempDir())
	if err != nil || len(files) != 1 {
		t.Fatalf("fetching good.json: %v %v", files, err)
	}
}
