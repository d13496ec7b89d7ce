package sparkify

import (
	"context"
	"sort"

	"github.com/pkg/errors"
	"github.com/sparkify/lake"
	"github.com/sparkify/lake/duck"
)

// Queries are the canned analyses of the star schema, by name.
var Queries = map[string]string{
	"top-songs": `SELECT s.title, a.name AS artist, count(*) AS plays
FROM songplays p
JOIN songs s ON s.song_id = p.song_id
LEFT JOIN artists a ON a.artist_id = p.artist_id
GROUP BY s.title, a.name
ORDER BY plays DESC, s.title
LIMIT 10`,
	"plays-by-level": `SELECT level, count(*) AS plays, count(DISTINCT user_id) AS users
FROM songplays
GROUP BY level
ORDER BY level`,
	"plays-by-hour": `SELECT t.hour, count(*) AS plays
FROM songplays p
JOIN "time" t ON t.start_time = p.start_time
GROUP BY t.hour
ORDER BY t.hour`,
	"table-counts": `SELECT 'songs' AS table_name, count(*) AS row_count FROM songs
UNION ALL SELECT 'artists', count(*) FROM artists
UNION ALL SELECT 'users', count(*) FROM users
UNION ALL SELECT 'time', count(*) FROM "time"
UNION ALL SELECT 'songplays', count(*) FROM songplays`,
}

// QueryNames returns the names of Queries, sorted.
func QueryNames() []string {
	names := make([]string, 0, len(Queries))
	for name := range Queries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// OpenQuerier returns a querier over the tables written under output, each
// registered as a view named after its table.
func OpenQuerier(ctx context.Context, output string, cfg StoreConfig, log lake.Logger) (*duck.Querier, error) {
	q, err := duck.Open(ctx, output, duck.S3Config{
		AccessKeyID:     cfg.Credentials.AccessKeyID,
		SecretAccessKey: cfg.Credentials.SecretAccessKey,
		Endpoint:        cfg.Endpoint,
		Region:          cfg.Region,
		Anonymous:       cfg.Anonymous,
	}, log)
	if err != nil {
		return nil, errors.Wrap(err, "opening querier")
	}
	for _, t := range Tables {
		if err := q.Register(ctx, t.Name, t.Path, len(t.PartitionBy) > 0); err != nil {
			q.Close()
			return nil, err
		}
	}
	return q, nil
}
