package sparkify

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/sparkify/lake"
	"github.com/sparkify/lake/termstat"
)

// QueryMain runs one SQL query against the tables of a finished run.
type QueryMain struct {
	OutputData      string `help:"URI the tables were written under."`
	Query           string `help:"Name of a canned query, see --list."`
	Statement       string `help:"SQL statement to run instead of a canned query. Tables are available as views named songs, artists, users, time and songplays."`
	List            bool   `help:"List the canned queries and exit."`
	CredentialsFile string `help:"INI file whose [AWS] section holds AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY."`
	Anonymous       bool   `help:"Send unsigned S3 requests."`
	Region          string `help:"AWS region."`
	Endpoint        string `help:"S3-compatible endpoint. Empty means AWS."`
	Verbose         bool   `help:"Enable verbose logging."`

	out io.Writer
}

// NewQueryMain gets a new QueryMain with the default configuration.
func NewQueryMain() *QueryMain {
	return &QueryMain{
		OutputData:      "s3a://aws-udacity-spark/",
		Query:           "table-counts",
		CredentialsFile: "dl.cfg",
		Region:          "us-west-2",
		out:             os.Stdout,
	}
}

// SetOutput sets where results are written.
func (m *QueryMain) SetOutput(w io.Writer) {
	m.out = w
}

// Run runs the query and renders its result as a table.
func (m *QueryMain) Run() error {
	if m.List {
		for _, name := range QueryNames() {
			fmt.Fprintf(m.out, "%s\n", name)
		}
		return nil
	}
	stmt := m.Statement
	if stmt == "" {
		var ok bool
		stmt, ok = Queries[m.Query]
		if !ok {
			return errors.Errorf("unknown query %q, have %s", m.Query, strings.Join(QueryNames(), ", "))
		}
	}

	var log lake.Logger = lake.NewStdLogger(os.Stderr)
	if m.Verbose {
		log = lake.NewVerboseLogger(os.Stderr)
	}
	cfg, err := loadStoreConfig(log, m.CredentialsFile, StoreConfig{
		Anonymous: m.Anonymous,
		Region:    m.Region,
		Endpoint:  m.Endpoint,
	}, m.OutputData)
	if err != nil {
		return errors.Wrap(err, "loading credentials")
	}

	ctx := context.Background()
	q, err := OpenQuerier(ctx, m.OutputData, cfg, log)
	if err != nil {
		return err
	}
	defer q.Close()

	res, err := q.Query(ctx, stmt)
	if err != nil {
		return err
	}
	_, err = io.WriteString(m.out, termstat.RenderTable(res.Columns, res.Rows, nil)+"\n")
	return errors.Wrap(err, "writing result")
}
