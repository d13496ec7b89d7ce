package sparkify

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/sparkify/lake"
	"github.com/sparkify/lake/duck"
	"github.com/sparkify/lake/json"
	"github.com/sparkify/lake/parquet"
)

// Job holds everything the two stages need. Input and Output may be the same
// store.
type Job struct {
	Input  lake.Store
	Output lake.Store

	SongGlob string
	LogGlob  string

	// DB holds the staged input and derived tables.
	DB *duck.Querier
	// Staging is a local directory for input and output files in flight.
	Staging string

	Ingester *lake.Ingester
	Writer   *parquet.Writer
	Reader   *parquet.Reader

	Log   lake.Logger
	Stats lake.Statter
}

// NewJob returns a Job reading JSON from input and writing Parquet to output
// with the default globs. Files are staged under the local directory
// staging.
func NewJob(db *duck.Querier, input, output lake.Store, staging string) *Job {
	return &Job{
		Input:    input,
		Output:   output,
		SongGlob: DefaultSongGlob,
		LogGlob:  DefaultLogGlob,
		DB:       db,
		Staging:  staging,
		Ingester: lake.NewIngester(json.NewLakeSource),
		Writer:   parquet.NewWriter(db, output, filepath.Join(staging, "write")),
		Reader:   parquet.NewReader(db, output, filepath.Join(staging, "read")),
		Log:      lake.NopLogger{},
		Stats:    lake.NopStatter{},
	}
}

// Stages returns the song stage followed by the log stage.
func (j *Job) Stages() []lake.Stage {
	return []lake.Stage{
		lake.StageFunc{StageName: "process_song_data", Fn: j.ProcessSongData},
		lake.StageFunc{StageName: "process_log_data", Fn: j.ProcessLogData},
	}
}

// Run runs both stages in order.
func (j *Job) Run(ctx context.Context) error {
	return lake.RunStages(ctx, j.Log, j.Stats, j.Stages()...)
}

// ProcessSongData reads the song metadata and writes the songs and artists
// tables.
func (j *Job) ProcessSongData(ctx context.Context) error {
	if err := j.stage(ctx, j.SongGlob, "song_data", StagingSongs); err != nil {
		return errors.Wrap(err, "reading song data")
	}
	if err := j.write(ctx, Songs); err != nil {
		return err
	}
	return j.write(ctx, Artists)
}

// ProcessLogData reads the activity logs and writes the users, time and
// songplays tables. Songplays are joined against the songs table as written
// to the output by ProcessSongData, which must have completed.
func (j *Job) ProcessLogData(ctx context.Context) error {
	if err := j.stage(ctx, j.LogGlob, "log_data", StagingEvents); err != nil {
		return errors.Wrap(err, "reading log data")
	}
	n, err := j.DB.CreateTable(ctx, NextSongEvents, EventsQuery)
	if err != nil {
		return errors.Wrap(err, "filtering events")
	}
	total, err := j.DB.Count(ctx, StagingEvents)
	if err != nil {
		return err
	}
	j.Log.Printf("%d of %d log events are song plays", n, total)

	if err := j.write(ctx, Users); err != nil {
		return err
	}
	if err := j.write(ctx, Time); err != nil {
		return err
	}
	if _, err := j.Reader.Load(ctx, Songs.Path, SongCatalog, true); err != nil {
		return errors.Wrap(err, "reading back songs")
	}
	return j.write(ctx, Songplays)
}

// stage fetches the objects matching pattern into the staging directory and
// loads them into table.
func (j *Job) stage(ctx context.Context, pattern, dir, table string) error {
	files, err := j.Ingester.Fetch(ctx, j.Input, pattern, filepath.Join(j.Staging, "input", dir))
	if err != nil {
		return err
	}
	n, err := j.DB.LoadJSON(ctx, table, files)
	if err != nil {
		return err
	}
	j.Log.Debugf("staged %d records in %s", n, table)
	return nil
}

// write derives t in the engine and writes it to the output.
func (j *Job) write(ctx context.Context, t Table) error {
	rows, err := j.DB.CreateTable(ctx, t.Name, t.Query)
	if err != nil {
		return errors.Wrapf(err, "deriving %s", t.Name)
	}
	n, err := j.Writer.Write(ctx, SelectQuery(t), t.Path, t.PartitionBy...)
	if err != nil {
		return errors.Wrapf(err, "writing %s", t.Name)
	}
	j.Stats.Count("rows."+t.Name, rows, 1)
	j.Log.Printf("wrote %d rows (%v) to %s%s", rows, n, j.Output.URI(), t.Path)
	return nil
}

// SelectQuery selects the columns of t, in order, from its engine table.
func SelectQuery(t Table) string {
	cols := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		cols[i] = fmt.Sprintf("%q", c)
	}
	return fmt.Sprintf("SELECT %s FROM %q", strings.Join(cols, ", "), t.Name)
}
