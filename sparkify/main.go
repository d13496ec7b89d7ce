package sparkify

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sparkify/lake"
	"github.com/sparkify/lake/aws/s3"
	"github.com/sparkify/lake/duck"
	"github.com/sparkify/lake/parquet"
	"github.com/sparkify/lake/termstat"
)

// Main holds the configuration of an ETL run.
type Main struct {
	InputData       string `help:"URI of the input data: s3a://bucket/prefix/ or a local directory."`
	OutputData      string `help:"URI under which the tables are written."`
	SongGlob        string `help:"Glob, relative to input-data, selecting song metadata files. The full data set is song_data/*/*/*."`
	LogGlob         string `help:"Glob, relative to input-data, selecting log files. The full data set is log_data/*."`
	CredentialsFile string `help:"INI file whose [AWS] section holds AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY."`
	Anonymous       bool   `help:"Send unsigned S3 requests (public buckets only). No credentials are loaded."`
	Region          string `help:"AWS region."`
	Endpoint        string `help:"S3-compatible endpoint such as http://localhost:9000. Empty means AWS."`
	Concurrency     int    `help:"Number of input files fetched and decoded at once."`
	StagingDir      string `help:"Local directory for files in flight. Empty means a temporary directory."`
	LogPath         string `help:"Log file to write to. Empty means stderr."`
	Verbose         bool   `help:"Enable verbose logging."`

	log     lake.Logger
	logFile *os.File
	stats   *termstat.Collector
	out     io.Writer
}

// NewMain gets a new Main with the default configuration.
func NewMain() *Main {
	return &Main{
		InputData:       "s3a://udacity-dend/",
		OutputData:      "s3a://aws-udacity-spark/",
		SongGlob:        DefaultSongGlob,
		LogGlob:         DefaultLogGlob,
		CredentialsFile: "dl.cfg",
		Region:          "us-west-2",
		Concurrency:     8,
		out:             os.Stdout,
	}
}

// SetOutput sets where the end of run summary is written.
func (m *Main) SetOutput(w io.Writer) {
	m.out = w
}

// Stats returns the stats of the last run.
func (m *Main) Stats() *termstat.Collector { return m.stats }

// Run runs both stages and prints a summary of the run.
func (m *Main) Run() (err error) {
	start := time.Now()
	ctx := context.Background()
	if err := m.setupLogger(); err != nil {
		return errors.Wrap(err, "setting up logger")
	}
	defer func() {
		if cerr := m.closeLogger(); cerr != nil && err == nil {
			err = errors.Wrap(cerr, "closing log file")
		}
	}()
	m.stats = termstat.NewCollector()

	cfg, err := m.storeConfig()
	if err != nil {
		return errors.Wrap(err, "loading credentials")
	}
	input, err := OpenStore(m.InputData, cfg)
	if err != nil {
		return errors.Wrap(err, "opening input")
	}
	output, err := OpenStore(m.OutputData, cfg)
	if err != nil {
		return errors.Wrap(err, "opening output")
	}

	staging := m.StagingDir
	if staging == "" {
		staging, err = os.MkdirTemp("", "lake-")
		if err != nil {
			return errors.Wrap(err, "making staging directory")
		}
		defer os.RemoveAll(staging)
	}
	db, err := duck.Open(ctx, "", duck.S3Config{}, m.log)
	if err != nil {
		return errors.Wrap(err, "opening engine")
	}
	defer db.Close()

	runID := uuid.New().String()
	m.log.Printf("run %s: %s -> %s", runID, input.URI(), output.URI())

	job := NewJob(db, input, output, staging)
	job.SongGlob = m.SongGlob
	job.LogGlob = m.LogGlob
	job.Log = m.log
	job.Stats = m.stats
	job.Ingester.Concurrency = m.Concurrency
	job.Ingester.Log = m.log
	job.Ingester.Stats = m.stats
	job.Writer = parquet.NewWriter(db, output, filepath.Join(staging, "write"),
		parquet.OptWriterRunID(runID),
		parquet.OptWriterLogger(m.log),
		parquet.OptWriterStatter(m.stats),
	)
	if err := job.Run(ctx); err != nil {
		return errors.Wrapf(err, "run %s", runID)
	}

	m.log.Printf("run %s: done in %v", runID, time.Since(start))
	return errors.Wrap(m.stats.Summary(m.out), "writing summary")
}

func (m *Main) setupLogger() error {
	var logOut io.Writer = os.Stderr
	m.logFile = nil
	if m.LogPath != "" {
		f, err := os.OpenFile(m.LogPath, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
		if err != nil {
			return errors.Wrap(err, "opening log file")
		}
		m.logFile = f
		logOut = f
	}
	if m.Verbose {
		m.log = lake.NewVerboseLogger(logOut)
	} else {
		m.log = lake.NewStdLogger(logOut)
	}
	return nil
}

func (m *Main) closeLogger() error {
	if m.logFile == nil {
		return nil
	}
	return m.logFile.Close()
}

func (m *Main) storeConfig() (StoreConfig, error) {
	return loadStoreConfig(m.log, m.CredentialsFile, StoreConfig{
		Anonymous: m.Anonymous,
		Region:    m.Region,
		Endpoint:  m.Endpoint,
	}, m.InputData, m.OutputData)
}

// loadStoreConfig loads credentials into cfg only when one of uris is an S3
// location and requests are signed.
func loadStoreConfig(log lake.Logger, credentialsFile string, cfg StoreConfig, uris ...string) (StoreConfig, error) {
	if cfg.Anonymous {
		return cfg, nil
	}
	remote := false
	for _, uri := range uris {
		remote = remote || s3.IsURI(uri)
	}
	if !remote {
		return cfg, nil
	}
	creds, err := LoadCredentials(credentialsFile)
	if err != nil {
		return cfg, err
	}
	cfg.Credentials = creds
	log.Debugf("using access key %s", maskKey(creds.AccessKeyID))
	return cfg, nil
}

func maskKey(k string) string {
	if len(k) <= 4 {
		return "****"
	}
	return k[:4] + "****"
}
