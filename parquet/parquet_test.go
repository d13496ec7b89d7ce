package parquet_test

import (
	"context"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/sparkify/lake/duck"
	"github.com/sparkify/lake/file"
	"github.com/sparkify/lake/parquet"
)

const songsQuery = `SELECT * FROM (VALUES
	('SOUPIRU12A6D4FA1E1', 'Der Kleine Dompfaff', 'ARJIE2Y1187B994AB7', 0::BIGINT, 152.92036::DOUBLE),
	('SOXVLOJ12AB0189215', 'Amor De Cabaret', 'ARKRRTF1187B9984DA', 0::BIGINT, 177.47546::DOUBLE),
	('SOBLFFE12AF72AA5BA', 'Scream', 'AR7G5I41187FB4CE6C', 2004::BIGINT, NULL::DOUBLE),
	('SONHOTT12A8C13493C', 'Something Girls', 'AR7G5I41187FB4CE6C', 1982::BIGINT, 233.40363::DOUBLE),
	('SOAOIBZ12AB01815BE', 'I Hold Your Hand In Mine', 'ARPBNLO1187FB3D52F', 2000::BIGINT, 43.36281::DOUBLE)
) AS t(song_id, title, artist_id, year, duration)`

type env struct {
	ctx   context.Context
	db    *duck.Querier
	store *file.Store
	dir   string
}

func newEnv(t *testing.T) *env {
	t.Helper()
	ctx := context.Background()
	db, err := duck.Open(ctx, "", duck.S3Config{}, nil)
	if err != nil {
		t.Fatalf("opening engine: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	dir := t.TempDir()
	s, err := file.NewStore(filepath.Join(dir, "out"))
	if err != nil {
		t.Fatalf("getting store: %v", err)
	}
	return &env{ctx: ctx, db: db, store: s, dir: dir}
}

func (e *env) writer(opts ...parquet.WriterOption) *parquet.Writer {
	return parquet.NewWriter(e.db, e.store, filepath.Join(e.dir, "write"), opts...)
}

func (e *env) reader() *parquet.Reader {
	return parquet.NewReader(e.db, e.store, filepath.Join(e.dir, "read"))
}

func (e *env) query(t *testing.T, stmt string) [][]string {
	t.Helper()
	res, err := e.db.Query(e.ctx, stmt)
	if err != nil {
		t.Fatalf("querying %s: %v", stmt, err)
	}
	return res.Rows
}

func TestWritePartitionedLayout(t *testing.T) {
	e := newEnv(t)
	n, err := e.writer(parquet.OptWriterRunID("test")).Write(e.ctx, songsQuery, "songs/songs.parquet", "year", "artist_id")
	if err != nil {
		t.Fatalf("writing: %v", err)
	}
	if n == 0 {
		t.Fatal("expected bytes to be counted")
	}

	keys, err := e.store.List("songs/")
	if err != nil {
		t.Fatalf("listing: %v", err)
	}
	exp := []string{
		"songs/songs.parquet/_SUCCESS",
		"songs/songs.parquet/year=0/artist_id=ARJIE2Y1187B994AB7/part-0-test.snappy.parquet",
		"songs/songs.parquet/year=0/artist_id=ARKRRTF1187B9984DA/part-0-test.snappy.parquet",
		"songs/songs.parquet/year=1982/artist_id=AR7G5I41187FB4CE6C/part-0-test.snappy.parquet",
		"songs/songs.parquet/year=2000/artist_id=ARPBNLO1187FB3D52F/part-0-test.snappy.parquet",
		"songs/songs.parquet/year=2004/artist_id=AR7G5I41187FB4CE6C/part-0-test.snappy.parquet",
	}
	if !reflect.DeepEqual(keys, exp) {
		t.Fatalf("unexpected layout:\n%s\nexpected:\n%s", strings.Join(keys, "\n"), strings.Join(exp, "\n"))
	}
}

func TestWriteLoadRoundTrip(t *testing.T) {
	e := newEnv(t)
	if _, err := e.writer().Write(e.ctx, songsQuery, "songs/songs.parquet", "year", "artist_id"); err != nil {
		t.Fatalf("writing: %v", err)
	}
	n, err := e.reader().Load(e.ctx, "songs/songs.parquet", "songs", true)
	if err != nil {
		t.Fatalf("loading: %v", err)
	}
	if n != 5 {
		t.Fatalf("expected 5 rows, got %d", n)
	}
	got := e.query(t, "SELECT song_id, title, artist_id, year, duration FROM songs ORDER BY song_id")
	exp := e.query(t, "SELECT * FROM ("+songsQuery+") ORDER BY song_id")
	if !reflect.DeepEqual(got, exp) {
		t.Fatalf("round trip mismatch:\n got %v\nwant %v", got, exp)
	}
}

func TestWriteOverwrites(t *testing.T) {
	e := newEnv(t)
	if _, err := e.writer(parquet.OptWriterRunID("first")).Write(e.ctx, songsQuery, "songs/songs.parquet", "year", "artist_id"); err != nil {
		t.Fatalf("writing: %v", err)
	}
	one := "SELECT * FROM (" + songsQuery + ") WHERE song_id = 'SOUPIRU12A6D4FA1E1'"
	if _, err := e.writer(parquet.OptWriterRunID("second")).Write(e.ctx, one, "songs/songs.parquet", "year", "artist_id"); err != nil {
		t.Fatalf("rewriting: %v", err)
	}
	keys, err := e.store.List("songs/songs.parquet/")
	if err != nil {
		t.Fatalf("listing: %v", err)
	}
	if len(keys) != 2 || !strings.HasSuffix(keys[1], "part-0-second.snappy.parquet") {
		t.Fatalf("stale partitions left behind: %v", keys)
	}
	n, err := e.reader().Load(e.ctx, "songs/songs.parquet", "songs", true)
	if err != nil {
		t.Fatalf("loading: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 row after overwrite, got %d", n)
	}
}

func TestWriteTimestampsAndNullPartition(t *testing.T) {
	e := newEnv(t)
	q := `SELECT * FROM (VALUES
		(epoch_ms(1542077468796), '69', true, 2018::BIGINT),
		(epoch_ms(1542081068796), NULL, false, NULL::BIGINT)
	) AS t(start_time, user_id, paid, year)`
	if _, err := e.writer().Write(e.ctx, q, "t", "year"); err != nil {
		t.Fatalf("writing: %v", err)
	}
	keys, err := e.store.Glob("t/*/*")
	if err != nil {
		t.Fatalf("globbing: %v", err)
	}
	if len(keys) != 2 || !strings.HasPrefix(keys[1], "t/year=NULL/") {
		t.Fatalf("expected a NULL partition directory, got %v", keys)
	}

	if _, err := e.reader().Load(e.ctx, "t", "t", true); err != nil {
		t.Fatalf("loading: %v", err)
	}
	got := e.query(t, "SELECT start_time, user_id, paid, year FROM t ORDER BY start_time")
	exp := [][]string{
		{"2018-11-13 02:51:08.796", "69", "true", "2018"},
		{"2018-11-13 03:51:08.796", "NULL", "false", "NULL"},
	}
	if !reflect.DeepEqual(got, exp) {
		t.Fatalf("got %v, want %v", got, exp)
	}
}

func TestWriteEmptyUnpartitioned(t *testing.T) {
	e := newEnv(t)
	q := "SELECT 'x' AS artist_id WHERE false"
	if _, err := e.writer().Write(e.ctx, q, "artists/artists.parquet"); err != nil {
		t.Fatalf("writing: %v", err)
	}
	n, err := e.reader().Load(e.ctx, "artists/artists.parquet", "artists", false)
	if err != nil {
		t.Fatalf("loading: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected no rows, got %d", n)
	}
}

func TestLoadUncommitted(t *testing.T) {
	e := newEnv(t)
	_, err := e.reader().Load(e.ctx, "songs/songs.parquet", "songs", true)
	if errors.Cause(err) != parquet.ErrNotCommitted {
		t.Fatalf("expected ErrNotCommitted, got %v", err)
	}
}

func TestWriteBadQuery(t *testing.T) {
	e := newEnv(t)
	if _, err := e.writer().Write(e.ctx, "SELECT nope FROM nowhere", "x", "year"); err == nil {
		t.Fatal("expected error for a failing query")
	}
	keys, err := e.store.List("x/")
	if err != nil {
		t.Fatalf("listing: %v", err)
	}
	if len(keys) != 0 {
		t.Fatalf("failed write left %v behind", keys)
	}
}
