package schema

import (
	"fmt"
	"strings"

	"sparkify/internal/config"
)

// UnmatchedPolicy decides what happens to a NextSong event whose song and
// artist names have no match in the song catalog.
type UnmatchedPolicy string

const (
	// ExcludeUnmatched drops unmatched plays and keeps songplays.song_id and
	// songplays.artist_id NOT NULL.
	ExcludeUnmatched UnmatchedPolicy = "exclude"
	// KeepUnmatched stores unmatched plays with NULL song_id and artist_id;
	// both columns are declared nullable.
	KeepUnmatched UnmatchedPolicy = "keep"
)

// ParseUnmatchedPolicy maps a settings value onto an UnmatchedPolicy
func ParseUnmatchedPolicy(name string) (UnmatchedPolicy, error) {
	switch UnmatchedPolicy(strings.ToLower(name)) {
	case ExcludeUnmatched, "":
		return ExcludeUnmatched, nil
	case KeepUnmatched:
		return KeepUnmatched, nil
	}
	return "", fmt.Errorf("unknown unmatched policy %q", name)
}

// Options control how statements are rendered
type Options struct {
	Dialect   Dialect
	Unmatched UnmatchedPolicy
	// Region is added to COPY when the bucket and cluster regions differ
	Region string
}

// Statements holds the four ordered statement lists of a run. The lists are
// built once and never modified; accessors return copies.
type Statements struct {
	dialect Dialect
	drop    []Statement
	create  []Statement
	copy    []Statement
	insert  []Statement
}

// Build renders every statement for cfg. Configuration values are only ever
// interpolated here.
func Build(cfg *config.Config, opts Options) (*Statements, error) {
	if cfg == nil {
		return nil, fmt.Errorf("schema: configuration is required")
	}
	if opts.Dialect == "" {
		opts.Dialect = Redshift
	}
	var err error
	if opts.Dialect, err = ParseDialect(string(opts.Dialect)); err != nil {
		return nil, fmt.Errorf("schema: %w", err)
	}
	if opts.Unmatched, err = ParseUnmatchedPolicy(string(opts.Unmatched)); err != nil {
		return nil, fmt.Errorf("schema: %w", err)
	}

	d := opts.Dialect
	tables := Tables()
	if opts.Unmatched == KeepUnmatched {
		for i := range tables {
			if tables[i].Name == Songplays.Name {
				tables[i] = tables[i].withNullable("song_id", "artist_id")
			}
		}
	}

	s := &Statements{dialect: d}

	// Drop the fact table before the dimensions it references
	for _, t := range dropOrder(tables) {
		s.drop = append(s.drop, Statement{
			Name:  "drop_" + t.Name,
			Table: t.Name,
			Kind:  KindDrop,
			SQL:   d.dropTable(t),
		})
	}

	for _, t := range tables {
		s.create = append(s.create, Statement{
			Name:  "create_" + t.Name,
			Table: t.Name,
			Kind:  KindCreate,
			SQL:   d.createTable(t),
		})
	}

	if d.SupportsCopy() {
		s.copy = []Statement{
			{
				Name:  "copy_" + StagingEvents.Name,
				Table: StagingEvents.Name,
				Kind:  KindCopy,
				SQL:   copyJSON(StagingEvents.Name, cfg.S3.LogData, cfg.IAMRole.ARN, quoteLiteral(cfg.S3.LogJSONPath), opts.Region),
			},
			{
				Name:  "copy_" + StagingSongs.Name,
				Table: StagingSongs.Name,
				Kind:  KindCopy,
				SQL:   copyJSON(StagingSongs.Name, cfg.S3.SongData, cfg.IAMRole.ARN, "'auto'", opts.Region),
			},
		}
	}

	s.insert = []Statement{
		{Name: "insert_users", Table: Users.Name, Kind: KindInsert, SQL: usersInsert()},
		{Name: "insert_songs", Table: Songs.Name, Kind: KindInsert, SQL: songsInsert()},
		{Name: "insert_artists", Table: Artists.Name, Kind: KindInsert, SQL: artistsInsert()},
		{Name: "insert_time", Table: Time.Name, Kind: KindInsert, SQL: timeInsert(d)},
		{Name: "insert_songplays", Table: Songplays.Name, Kind: KindInsert, SQL: songplaysInsert(d, opts.Unmatched)},
	}

	return s, nil
}

// Dialect returns the dialect the statements were rendered in
func (s *Statements) Dialect() Dialect { return s.dialect }

// Drop returns the DROP statements, fact table first
func (s *Statements) Drop() []Statement { return clone(s.drop) }

// Create returns the CREATE statements, fact table last
func (s *Statements) Create() []Statement { return clone(s.create) }

// Copy returns the bulk-load statements. It is empty for dialects without
// COPY support.
func (s *Statements) Copy() []Statement { return clone(s.copy) }

// Insert returns the transform statements, dimensions first
func (s *Statements) Insert() []Statement { return clone(s.insert) }

// All returns every statement in execution order for a full rebuild
func (s *Statements) All() []Statement {
	all := make([]Statement, 0, len(s.drop)+len(s.create)+len(s.copy)+len(s.insert))
	all = append(all, s.drop...)
	all = append(all, s.create...)
	all = append(all, s.copy...)
	all = append(all, s.insert...)
	return all
}

func clone(in []Statement) []Statement {
	out := make([]Statement, len(in))
	copy(out, in)
	return out
}

func dropOrder(tables []Table) []Table {
	var staging, fact, dims []Table
	for _, t := range tables {
		switch t.Role {
		case RoleStaging:
			staging = append(staging, t)
		case RoleFact:
			fact = append(fact, t)
		default:
			dims = append(dims, t)
		}
	}
	out := append(staging, fact...)
	return append(out, dims...)
}

func copyJSON(table, source, role, format, region string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "COPY %s\nFROM %s\nIAM_ROLE %s\nFORMAT AS JSON %s", table, quoteLiteral(source), quoteLiteral(role), format)
	if region != "" {
		fmt.Fprintf(&b, "\nREGION %s", quoteLiteral(region))
	}
	b.WriteString(";")
	return b.String()
}

// usersInsert keeps one row per user: the one from the latest event. Ties on
// ts fall back to level, then name and gender, so the result never depends on
// engine row order.
func usersInsert() string {
	return `INSERT INTO users (user_id, first_name, last_name, gender, level)
SELECT user_id, first_name, last_name, gender, level
FROM (
    SELECT user_id, first_name, last_name, gender, level,
           ROW_NUMBER() OVER (
               PARTITION BY user_id
               ORDER BY ts DESC NULLS LAST, level DESC NULLS LAST,
                        first_name ASC NULLS LAST, last_name ASC NULLS LAST, gender ASC NULLS LAST
           ) AS recency
    FROM staging_events
    WHERE user_id IS NOT NULL
) AS ranked
WHERE recency = 1;`
}

// songsInsert keeps one row per song_id. The catalog may list a song more
// than once with differing title, year or duration.
func songsInsert() string {
	return `INSERT INTO songs (song_id, title, artist_id, year, duration)
SELECT song_id, title, artist_id, year, duration
FROM (
    SELECT song_id, title, artist_id, year, duration,
           ROW_NUMBER() OVER (
               PARTITION BY song_id
               ORDER BY title ASC NULLS LAST, artist_id ASC NULLS LAST,
                        year DESC NULLS LAST, duration DESC NULLS LAST
           ) AS pick
    FROM staging_songs
    WHERE song_id IS NOT NULL
) AS ranked
WHERE pick = 1;`
}

// artistsInsert keeps one row per artist_id; the catalog repeats artists with
// differing name spellings and locations.
func artistsInsert() string {
	return `INSERT INTO artists (artist_id, artist_name, artist_location, artist_latitude, artist_longitude)
SELECT artist_id, artist_name, artist_location, artist_latitude, artist_longitude
FROM (
    SELECT artist_id, artist_name, artist_location, artist_latitude, artist_longitude,
           ROW_NUMBER() OVER (
               PARTITION BY artist_id
               ORDER BY artist_name ASC NULLS LAST, artist_location ASC NULLS LAST,
                        artist_latitude ASC NULLS LAST, artist_longitude ASC NULLS LAST
           ) AS pick
    FROM staging_songs
    WHERE artist_id IS NOT NULL
) AS ranked
WHERE pick = 1;`
}

// timeInsert derives calendar fields in UTC: hour 0-23, ISO-8601 week and
// weekday 0 = Sunday.
func timeInsert(d Dialect) string {
	return fmt.Sprintf(`INSERT INTO time (start_time, hour, day, week, month, year, weekday)
SELECT start_time,
       %s AS hour,
       %s AS day,
       %s AS week,
       %s AS month,
       %s AS year,
       %s AS weekday
FROM (
    SELECT DISTINCT %s AS start_time
    FROM staging_events
    WHERE ts IS NOT NULL
) AS event_times;`,
		d.datePart(partHour, "start_time"),
		d.datePart(partDay, "start_time"),
		d.datePart(partWeek, "start_time"),
		d.datePart(partMonth, "start_time"),
		d.datePart(partYear, "start_time"),
		d.datePart(partWeekday, "start_time"),
		d.epochMillisToTimestamp("ts"),
	)
}

// songplaysInsert matches plays to the catalog by title and artist name.
// Under ExcludeUnmatched a catalog row without song_id or artist_id is not a
// match, so the NOT NULL columns never receive a NULL.
func songplaysInsert(d Dialect, policy UnmatchedPolicy) string {
	join := "JOIN"
	matched := "\n  AND ss.song_id IS NOT NULL\n  AND ss.artist_id IS NOT NULL"
	if policy == KeepUnmatched {
		join = "LEFT OUTER JOIN"
		matched = ""
	}
	return fmt.Sprintf(`INSERT INTO songplays (start_time, user_id, session_id, level, song_id, artist_id, location, user_agent)
SELECT DISTINCT %s AS start_time,
       se.user_id, se.session_id, se.level, ss.song_id, ss.artist_id, se.location, se.user_agent
FROM staging_events AS se
%s staging_songs AS ss
    ON se.song = ss.title AND se.artist = ss.artist_name
WHERE se.page = 'NextSong'
  AND se.user_id IS NOT NULL%s;`,
		d.epochMillisToTimestamp("se.ts"), join, matched)
}
