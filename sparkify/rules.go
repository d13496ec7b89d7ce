package sparkify

// Names of the intermediate tables the stages keep in the engine.
const (
	// StagingSongs holds the raw song metadata, one row per record.
	StagingSongs = "staging_songs"
	// StagingEvents holds the raw log events, one row per record.
	StagingEvents = "staging_events"
	// NextSongEvents holds the song play events with a timestamp column.
	NextSongEvents = "events"
	// SongCatalog holds the songs table as read back from the output.
	SongCatalog = "song_catalog"
)

// Exact duplicates are removed, as are songs without an id.
const songsQuery = `
SELECT DISTINCT
    CAST(song_id   AS VARCHAR) AS song_id,
    CAST(title     AS VARCHAR) AS title,
    CAST(artist_id AS VARCHAR) AS artist_id,
    CAST(year      AS BIGINT)  AS year,
    CAST(duration  AS DOUBLE)  AS duration
FROM staging_songs
WHERE song_id IS NOT NULL`

// Nothing ties the result to the songs table's.
const artistsQuery = `
SELECT DISTINCT
    CAST(artist_id        AS VARCHAR) AS artist_id,
    CAST(artist_name      AS VARCHAR) AS name,
    CAST(artist_location  AS VARCHAR) AS location,
    CAST(artist_latitude  AS DOUBLE)  AS latitude,
    CAST(artist_longitude AS DOUBLE)  AS longitude
FROM staging_songs
WHERE artist_id IS NOT NULL`

// EventsQuery keeps the log events of songs being played and adds the
// column timestamp holding ts (milliseconds since the epoch) as a UTC
// timestamp.
const EventsQuery = `
SELECT
    *,
    epoch_ms(CAST(ts AS BIGINT)) AS "timestamp"
FROM staging_events
WHERE page = 'NextSong'`

// Rows are unique on (user_id, level) rather than on the whole row, so a
// user whose level changed during the log appears once per level. The
// earliest event of each pair wins.
const usersQuery = `
SELECT user_id, first_name, last_name, gender, level
FROM (
    SELECT
        CAST(userId    AS VARCHAR) AS user_id,
        CAST(firstName AS VARCHAR) AS first_name,
        CAST(lastName  AS VARCHAR) AS last_name,
        CAST(gender    AS VARCHAR) AS gender,
        CAST(level     AS VARCHAR) AS level,
        CAST(ts        AS BIGINT)  AS ts
    FROM events
    WHERE userId IS NOT NULL
)
QUALIFY row_number() OVER (PARTITION BY user_id, level ORDER BY ts, first_name, last_name, gender) = 1
ORDER BY user_id, level`

// week is the ISO week; weekday runs from 1 (Sunday) to 7 (Saturday).
const timeQuery = `
SELECT epoch_ms(ts) AS start_time, hour, day, week, month, year, weekday
FROM (
    SELECT DISTINCT
        CAST(ts AS BIGINT)             AS ts,
        hour("timestamp")              AS hour,
        day("timestamp")               AS day,
        weekofyear("timestamp")        AS week,
        month("timestamp")             AS month,
        year("timestamp")              AS year,
        dayofweek("timestamp") + 1     AS weekday
    FROM events
)
ORDER BY start_time`

// Events are joined to the catalog on the event's song name matching the
// song's title; events without a match are dropped. Each distinct play gets
// a songplay_id: partitions are numbered in order of their earliest play and
// the number goes in the bits above 33, and plays are numbered in time order
// within their partition. Ids are unique and increase within a partition,
// but are neither contiguous nor ordered across partitions.
const songplaysQuery = `
WITH plays AS (
    SELECT DISTINCT
        CAST(e.ts AS BIGINT)         AS ts,
        CAST(e.userId AS VARCHAR)    AS user_id,
        CAST(e.level AS VARCHAR)     AS level,
        s.song_id                    AS song_id,
        s.artist_id                  AS artist_id,
        CAST(e.sessionId AS BIGINT)  AS session_id,
        CAST(e.location AS VARCHAR)  AS location,
        CAST(e.userAgent AS VARCHAR) AS user_agent,
        month(e."timestamp")         AS month,
        year(e."timestamp")          AS year
    FROM events e
    JOIN song_catalog s ON CAST(e.song AS VARCHAR) = s.title
),
numbered AS (
    SELECT
        *,
        min(ts) OVER (PARTITION BY year, month) AS first_ts,
        row_number() OVER (
            PARTITION BY year, month
            ORDER BY ts, user_id, session_id, song_id, artist_id, level, location, user_agent
        ) - 1 AS seq
    FROM plays
)
SELECT
    ((dense_rank() OVER (ORDER BY first_ts, year, month) - 1) << 33) + seq AS songplay_id,
    epoch_ms(ts) AS start_time,
    user_id, level, song_id, artist_id, session_id, location, user_agent, month, year
FROM numbered
ORDER BY songplay_id`
