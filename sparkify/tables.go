// Package sparkify builds the Sparkify star schema from the raw song metadata
// and user activity logs: a songplays fact table and the songs, artists,
// users and time dimension tables, written as partitioned Parquet.
package sparkify

// Default input selections. The full data sets are song_data/*/*/* and
// log_data/*.
const (
	DefaultSongGlob = "song_data/A/A/A/*"
	DefaultLogGlob  = "log_data/2018/11/*"
)

// Table is an output table: where it lives under the output root, its
// columns in file order, the columns it is partitioned by and the query
// deriving it. The query result is held in the engine under Name.
type Table struct {
	Name        string
	Path        string
	Columns     []string
	PartitionBy []string
	Query       string
}

var (
	// Songs holds one row per song in the catalog.
	Songs = Table{
		Name:        "songs",
		Path:        "songs/songs.parquet",
		Columns:     []string{"song_id", "title", "artist_id", "year", "duration"},
		Query:       songsQuery,
		PartitionBy: []string{"year", "artist_id"},
	}

	// Artists holds one row per artist in the catalog.
	Artists = Table{
		Name:    "artists",
		Path:    "artists/artists.parquet",
		Columns: []string{"artist_id", "name", "location", "latitude", "longitude"},
		Query:   artistsQuery,
	}

	// Users holds one row per user and subscription level.
	Users = Table{
		Name:    "users",
		Path:    "users/users.parquet",
		Columns: []string{"user_id", "first_name", "last_name", "gender", "level"},
		Query:   usersQuery,
	}

	// Time breaks the start time of each song play into calendar units.
	Time = Table{
		Name:        "time",
		Path:        "time/time_parquet",
		Columns:     []string{"start_time", "hour", "day", "week", "month", "year", "weekday"},
		Query:       timeQuery,
		PartitionBy: []string{"year", "month"},
	}

	// Songplays is the fact table: one row per play of a song found in the
	// catalog.
	Songplays = Table{
		Name:        "songplays",
		Path:        "songplays/songplays_parquet",
		Columns:     []string{"songplay_id", "start_time", "user_id", "level", "song_id", "artist_id", "session_id", "location", "user_agent", "month", "year"},
		Query:       songplaysQuery,
		PartitionBy: []string{"year", "month"},
	}
)

// Tables lists every output table in the order they are written.
var Tables = []Table{Songs, Artists, Users, Time, Songplays}
