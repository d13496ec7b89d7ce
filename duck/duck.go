// Package duck wraps an embedded DuckDB. The ETL stages use it to load staged
// JSON, derive tables with SQL and copy them out as partitioned Parquet; the
// query command uses it to expose written tables as views over their files,
// with Hive partition directories turned back into columns.
package duck

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"
	"github.com/pkg/errors"
	"github.com/sparkify/lake"
)

// S3Config holds the settings DuckDB needs to read from S3 or an
// S3-compatible service such as MinIO.
type S3Config struct {
	AccessKeyID     string
	SecretAccessKey string
	// Endpoint is empty for AWS, or e.g. "http://localhost:9000".
	Endpoint string
	Region   string
	// Anonymous skips the secret; only public buckets can be read.
	Anonymous bool
}

// Querier answers SQL queries over the tables registered with it.
type Querier struct {
	db   *sql.DB
	root string
	log  lake.Logger
}

// Open returns a Querier reading tables under root, which is a local
// directory, a file:// URI or an s3://, s3a:// or s3n:// URI. s3cfg is used
// only for S3 roots.
func Open(ctx context.Context, root string, s3cfg S3Config, log lake.Logger) (*Querier, error) {
	if log == nil {
		log = lake.NopLogger{}
	}
	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, errors.Wrap(err, "opening duckdb")
	}
	local := strings.TrimPrefix(root, "file://")
	q := &Querier{db: db, root: lake.DirKey(local), log: log}
	if strings.HasPrefix(local, "/") {
		q.root = "/" + q.root
	}
	if scheme, rest, ok := strings.Cut(root, "://"); ok && scheme != "file" {
		q.root = "s3://" + lake.DirKey(rest)
		if err := q.setupS3(ctx, s3cfg); err != nil {
			db.Close()
			return nil, err
		}
	}
	return q, nil
}

func (q *Querier) setupS3(ctx context.Context, cfg S3Config) error {
	for _, stmt := range []string{"INSTALL httpfs", "LOAD httpfs"} {
		if _, err := q.db.ExecContext(ctx, stmt); err != nil {
			return errors.Wrapf(err, "running %s", stmt)
		}
	}
	if cfg.Anonymous {
		return nil
	}
	secret := "CREATE OR REPLACE SECRET lake_s3 (TYPE s3"
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		secret += ", KEY_ID " + quote(cfg.AccessKeyID) + ", SECRET " + quote(cfg.SecretAccessKey)
	} else {
		secret += ", PROVIDER credential_chain"
	}
	if cfg.Region != "" {
		secret += ", REGION " + quote(cfg.Region)
	}
	if cfg.Endpoint != "" {
		endpoint := strings.TrimPrefix(strings.TrimPrefix(cfg.Endpoint, "http://"), "https://")
		secret += ", ENDPOINT " + quote(endpoint) + ", URL_STYLE 'path'"
		secret += ", USE_SSL " + strconv.FormatBool(strings.HasPrefix(cfg.Endpoint, "https://"))
	}
	secret += ")"
	if _, err := q.db.ExecContext(ctx, secret); err != nil {
		return errors.Wrap(err, "creating S3 secret")
	}
	q.log.Debugf("configured duckdb S3 access (endpoint %q, region %q)", cfg.Endpoint, cfg.Region)
	return nil
}

// Close releases the database.
func (q *Querier) Close() error {
	return q.db.Close()
}

// Register creates or replaces the view name over every Parquet file below
// dir. With hive set, name=value directories become columns.
func (q *Querier) Register(ctx context.Context, name, dir string, hive bool) error {
	glob := q.root + lake.DirKey(dir) + "**/*.parquet"
	stmt := fmt.Sprintf("CREATE OR REPLACE VIEW %s AS SELECT * FROM read_parquet(%s, hive_partitioning = %t)",
		ident(name), quote(glob), hive)
	if _, err := q.db.ExecContext(ctx, stmt); err != nil {
		return errors.Wrapf(err, "registering %s over %s", name, glob)
	}
	q.log.Debugf("registered view %s over %s", name, glob)
	return nil
}

// Exec runs stmt, which returns no rows.
func (q *Querier) Exec(ctx context.Context, stmt string, args ...interface{}) error {
	if _, err := q.db.ExecContext(ctx, stmt, args...); err != nil {
		return errors.Wrapf(err, "running %s", firstLine(stmt))
	}
	return nil
}

// Count returns the number of rows in table name.
func (q *Querier) Count(ctx context.Context, name string) (int64, error) {
	var n int64
	err := q.db.QueryRowContext(ctx, "SELECT count(*) FROM "+ident(name)).Scan(&n)
	return n, errors.Wrapf(err, "counting %s", name)
}

// CreateTable creates or replaces table name holding the result of query and
// returns its row count.
func (q *Querier) CreateTable(ctx context.Context, name, query string) (int64, error) {
	stmt := fmt.Sprintf("CREATE OR REPLACE TABLE %s AS %s", ident(name), query)
	if _, err := q.db.ExecContext(ctx, stmt); err != nil {
		return 0, errors.Wrapf(err, "creating %s", name)
	}
	return q.Count(ctx, name)
}

// LoadJSON creates or replaces table name from newline delimited JSON files.
// Its columns are the union of the fields of every record, matched by name;
// fields a record lacks are NULL.
func (q *Querier) LoadJSON(ctx context.Context, name string, files []string) (int64, error) {
	if len(files) == 0 {
		return 0, errors.Errorf("no files to load into %s", name)
	}
	quoted := make([]string, len(files))
	for i, f := range files {
		quoted[i] = quote(filepath.ToSlash(f))
	}
	query := fmt.Sprintf("SELECT * FROM read_json_auto([%s], format = 'newline_delimited', union_by_name = true, sample_size = -1)",
		strings.Join(quoted, ", "))
	n, err := q.CreateTable(ctx, name, query)
	if err != nil {
		return 0, err
	}
	q.log.Debugf("loaded %d rows from %d files into %s", n, len(files), name)
	return n, nil
}

// LoadParquet creates or replaces table name from every Parquet file below
// the local directory dir. With hive set, name=value directories become
// columns.
func (q *Querier) LoadParquet(ctx context.Context, name, dir string, hive bool) (int64, error) {
	glob := strings.TrimSuffix(filepath.ToSlash(dir), "/") + "/**/*.parquet"
	query := fmt.Sprintf("SELECT * FROM read_parquet(%s, hive_partitioning = %t)", quote(glob), hive)
	n, err := q.CreateTable(ctx, name, query)
	if err != nil {
		return 0, errors.Wrapf(err, "reading %s", glob)
	}
	return n, nil
}

// CopyOptions control how Copy lays out its files.
type CopyOptions struct {
	// PartitionBy names the columns which become name=value directories.
	// They are not stored in the files themselves.
	PartitionBy []string

	// FilenamePattern names each file, without extension. {i} is replaced
	// by the file's sequence number within its directory.
	FilenamePattern string
}

// Copy writes the result of query as Snappy compressed Parquet into the
// local directory dir, which is created if needed. Existing files with
// other names are left alone.
func (q *Querier) Copy(ctx context.Context, query, dir string, opts CopyOptions) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Wrap(err, "making output directory")
	}
	pattern := opts.FilenamePattern
	if pattern == "" {
		pattern = "data-{i}"
	}
	var stmt string
	if len(opts.PartitionBy) == 0 {
		target := filepath.Join(dir, strings.Replace(pattern, "{i}", "0", -1)+".parquet")
		stmt = fmt.Sprintf("COPY (%s) TO %s (FORMAT PARQUET, COMPRESSION SNAPPY)", query, quote(filepath.ToSlash(target)))
	} else {
		cols := make([]string, len(opts.PartitionBy))
		for i, c := range opts.PartitionBy {
			cols[i] = ident(c)
		}
		stmt = fmt.Sprintf("COPY (%s) TO %s (FORMAT PARQUET, COMPRESSION SNAPPY, PARTITION_BY (%s), OVERWRITE_OR_IGNORE, FILENAME_PATTERN %s)",
			query, quote(filepath.ToSlash(dir)), strings.Join(cols, ", "), quote(pattern))
	}
	if _, err := q.db.ExecContext(ctx, stmt); err != nil {
		return errors.Wrapf(err, "copying to %s", dir)
	}
	return nil
}

// Result is the outcome of a query with every value rendered as text.
type Result struct {
	Columns []string
	Rows    [][]string
}

// Query runs stmt and renders its result.
func (q *Querier) Query(ctx context.Context, stmt string, args ...interface{}) (*Result, error) {
	rows, err := q.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, errors.Wrap(err, "querying")
	}
	defer rows.Close()
	cols, err := rows.Columns()
	if err != nil {
		return nil, errors.Wrap(err, "getting columns")
	}
	res := &Result{Columns: cols}
	vals := make([]interface{}, len(cols))
	ptrs := make([]interface{}, len(cols))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, errors.Wrap(err, "scanning row")
		}
		row := make([]string, len(cols))
		for i, v := range vals {
			row[i] = format(v)
		}
		res.Rows = append(res.Rows, row)
	}
	return res, errors.Wrap(rows.Err(), "iterating rows")
}

func format(v interface{}) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case []byte:
		return string(x)
	case time.Time:
		return x.UTC().Format("2006-01-02 15:04:05.999999")
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	}
	return fmt.Sprint(v)
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i] + " ..."
	}
	return s
}

func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func ident(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
