package pipeline

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sparkify/internal/config"
	"sparkify/internal/schema"
	"sparkify/internal/staging"
	"sparkify/internal/testutil"
	"sparkify/internal/warehouse"
	"sparkify/pkg/errors"
)

var eventKeys = []string{
	"artist", "auth", "firstName", "gender", "itemInSession", "lastName", "length",
	"level", "location", "method", "page", "registration", "sessionId", "song",
	"status", "ts", "userAgent", "userId",
}

type event map[string]interface{}

func play(userID string, level string, ts int64, song, artist string) event {
	return event{
		"artist": artist, "auth": "Logged In", "firstName": "Kaylee", "gender": "F",
		"itemInSession": 1, "lastName": "Summers", "length": 246.30812, "level": level,
		"location": "Phoenix-Mesa-Scottsdale, AZ", "method": "PUT", "page": "NextSong",
		"registration": 1540344794796.0, "sessionId": 139, "song": song, "status": 200,
		"ts": ts, "userAgent": "Mozilla/5.0", "userId": userID,
	}
}

type song map[string]interface{}

func catalogSong(songID, title, artistID, artistName string) song {
	return song{
		"num_songs": 1, "artist_id": artistID, "artist_latitude": nil, "artist_longitude": nil,
		"artist_location": "", "artist_name": artistName, "song_id": songID, "title": title,
		"duration": 246.30812, "year": 1994,
	}
}

type localFixture struct {
	svc   *warehouse.Service
	stmts *schema.Statements
	s3    config.S3
}

func newLocalFixture(t *testing.T, policy schema.UnmatchedPolicy, events []event, songs []song) *localFixture {
	t.Helper()
	dir := t.TempDir()
	h := testutil.NewTestHelper(t)

	paths := make([]string, len(eventKeys))
	for i, k := range eventKeys {
		paths[i] = "$['" + k + "']"
	}
	h.WriteNDJSON(filepath.Join(dir, "log_json_path.json"), map[string]interface{}{"jsonpaths": paths})

	logDir := filepath.Join(dir, "log_data")
	songDir := filepath.Join(dir, "song_data")
	require.NoError(t, os.MkdirAll(logDir, 0o755))
	require.NoError(t, os.MkdirAll(songDir, 0o755))

	if len(events) > 0 {
		docs := make([]interface{}, len(events))
		for i, e := range events {
			docs[i] = e
		}
		h.WriteNDJSON(filepath.Join(logDir, "2018", "11", "events.json"), docs...)
	}
	for i, s := range songs {
		h.WriteNDJSON(filepath.Join(songDir, "A", string(rune('A'+i))+".json"), s)
	}

	cfg := testConfig()
	cfg.S3 = config.S3{
		LogData:     logDir,
		LogJSONPath: "file://" + filepath.Join(dir, "log_json_path.json"),
		SongData:    songDir,
	}

	ctx := context.Background()
	svc, err := warehouse.OpenSQLite(ctx, filepath.Join(dir, "sparkify.db"))
	require.NoError(t, err)
	t.Cleanup(func() { svc.Close() })

	stmts, err := schema.Build(cfg, schema.Options{Dialect: schema.SQLite, Unmatched: policy})
	require.NoError(t, err)

	return &localFixture{svc: svc, stmts: stmts, s3: cfg.S3}
}

func (f *localFixture) run(t *testing.T, opts ...Option) *RunReport {
	t.Helper()
	opts = append([]Option{WithCreateTables(true), WithStager(staging.NewLoader(f.s3, nil))}, opts...)
	report, err := New(f.svc, f.stmts, opts...).Run(context.Background())
	require.NoError(t, err)
	return report
}

func (f *localFixture) db() *sql.DB { return f.svc.DB() }

func TestLocalUsersKeepLatestLevel(t *testing.T) {
	f := newLocalFixture(t, schema.ExcludeUnmatched, []event{
		play("42", "free", 1541110796796, "You Gotta Be", "Des'ree"),
		play("42", "paid", 1541110896796, "You Gotta Be", "Des'ree"),
	}, []song{catalogSong("SOQAYCT12AB0185B3A", "You Gotta Be", "ARJNIUY12298900C91", "Des'ree")})

	f.run(t)

	var count int
	var level string
	require.NoError(t, f.db().QueryRow(`SELECT COUNT(*), MAX(level) FROM users WHERE user_id = 42`).Scan(&count, &level))
	assert.Equal(t, 1, count)
	assert.Equal(t, "paid", level)
}

func TestLocalTimeFields(t *testing.T) {
	f := newLocalFixture(t, schema.ExcludeUnmatched, []event{
		play("8", "free", 1541110796796, "You Gotta Be", "Des'ree"),
	}, []song{catalogSong("SOQAYCT12AB0185B3A", "You Gotta Be", "ARJNIUY12298900C91", "Des'ree")})

	f.run(t)

	var startTime string
	var hour, day, week, month, year, weekday int
	require.NoError(t, f.db().QueryRow(`SELECT CAST(start_time AS TEXT), hour, day, week, month, year, weekday FROM time`).
		Scan(&startTime, &hour, &day, &week, &month, &year, &weekday))
	assert.Equal(t, "2018-11-01 22:19:56", startTime)
	assert.Equal(t, []int{22, 1, 44, 11, 2018, 4}, []int{hour, day, week, month, year, weekday})
}

func TestLocalDuplicatePlaysCollapse(t *testing.T) {
	e := play("8", "free", 1541110796796, "You Gotta Be", "Des'ree")
	f := newLocalFixture(t, schema.ExcludeUnmatched, []event{e, e},
		[]song{catalogSong("SOQAYCT12AB0185B3A", "You Gotta Be", "ARJNIUY12298900C91", "Des'ree")})

	report := f.run(t)

	var count int
	var songID, artistID sql.NullString
	require.NoError(t, f.db().QueryRow(`SELECT COUNT(*), MAX(song_id), MAX(artist_id) FROM songplays`).
		Scan(&count, &songID, &artistID))
	assert.Equal(t, 1, count)
	assert.Equal(t, "SOQAYCT12AB0185B3A", songID.String)
	assert.Equal(t, "ARJNIUY12298900C91", artistID.String)

	last := report.Steps[len(report.Steps)-1]
	assert.Equal(t, "insert_songplays", last.Name)
	assert.Equal(t, int64(1), last.Rows)
}

func TestLocalEmptyStaging(t *testing.T) {
	f := newLocalFixture(t, schema.ExcludeUnmatched, nil, nil)

	report := f.run(t)
	assert.Zero(t, report.TotalRows())

	counts, err := New(f.svc, f.stmts).TableCounts(context.Background())
	require.NoError(t, err)
	require.Len(t, counts, 7)
	for _, c := range counts {
		assert.Zero(t, c.Rows, c.Table)
	}
}

func TestLocalRecreateIsIdempotent(t *testing.T) {
	f := newLocalFixture(t, schema.ExcludeUnmatched, nil, nil)
	driver := New(f.svc, f.stmts)

	schemaSQL := func() []string {
		rows, err := f.db().Query(`SELECT sql FROM sqlite_master WHERE type = 'table' AND name <> 'sqlite_sequence'`)
		require.NoError(t, err)
		defer rows.Close()
		var out []string
		for rows.Next() {
			var s string
			require.NoError(t, rows.Scan(&s))
			out = append(out, s)
		}
		require.NoError(t, rows.Err())
		sort.Strings(out)
		return out
	}

	_, err := driver.CreateTables(context.Background())
	require.NoError(t, err)
	first := schemaSQL()

	_, err = driver.CreateTables(context.Background())
	require.NoError(t, err)
	second := schemaSQL()

	assert.Len(t, first, 7)
	assert.Equal(t, first, second)
}

func TestLocalUnmatchedPolicy(t *testing.T) {
	events := []event{
		play("8", "free", 1541110796796, "You Gotta Be", "Des'ree"),
		play("8", "free", 1541110896796, "Unknown Song", "Nobody"),
	}
	songs := []song{catalogSong("SOQAYCT12AB0185B3A", "You Gotta Be", "ARJNIUY12298900C91", "Des'ree")}

	t.Run("exclude", func(t *testing.T) {
		f := newLocalFixture(t, schema.ExcludeUnmatched, events, songs)
		f.run(t)

		var n int
		require.NoError(t, f.db().QueryRow(`SELECT COUNT(*) FROM songplays`).Scan(&n))
		assert.Equal(t, 1, n)
	})

	t.Run("keep", func(t *testing.T) {
		f := newLocalFixture(t, schema.KeepUnmatched, events, songs)
		f.run(t)

		var total, unmatched int
		require.NoError(t, f.db().QueryRow(
			`SELECT COUNT(*), SUM(CASE WHEN song_id IS NULL AND artist_id IS NULL THEN 1 ELSE 0 END) FROM songplays`).
			Scan(&total, &unmatched))
		assert.Equal(t, 2, total)
		assert.Equal(t, 1, unmatched)
	})
}

func TestLocalArtistsDeduplicated(t *testing.T) {
	f := newLocalFixture(t, schema.ExcludeUnmatched, nil, []song{
		catalogSong("SO1", "First", "AR1", "Casual"),
		catalogSong("SO2", "Second", "AR1", "Casual feat. Someone"),
	})

	f.run(t)

	var n int
	var name string
	require.NoError(t, f.db().QueryRow(`SELECT COUNT(*), MAX(artist_name) FROM artists`).Scan(&n, &name))
	assert.Equal(t, 1, n)
	assert.Equal(t, "Casual", name)

	require.NoError(t, f.db().QueryRow(`SELECT COUNT(*) FROM songs`).Scan(&n))
	assert.Equal(t, 2, n)
}

func TestLocalExcludeSkipsCatalogRowsWithoutIDs(t *testing.T) {
	noSongID := catalogSong("", "You Gotta Be", "ARJNIUY12298900C91", "Des'ree")
	delete(noSongID, "song_id")
	noArtistID := catalogSong("SO2", "I Didn't Mean To", "", "Casual")
	delete(noArtistID, "artist_id")

	f := newLocalFixture(t, schema.ExcludeUnmatched, []event{
		play("8", "free", 1541110796796, "You Gotta Be", "Des'ree"),
		play("8", "free", 1541110896796, "I Didn't Mean To", "Casual"),
	}, []song{noSongID, noArtistID})

	report := f.run(t)
	assert.True(t, report.Succeeded())

	var n int
	require.NoError(t, f.db().QueryRow(`SELECT COUNT(*) FROM songplays`).Scan(&n))
	assert.Zero(t, n)
}

func TestLocalSongsDeduplicated(t *testing.T) {
	first := catalogSong("SO1", "You Gotta Be", "AR1", "Des'ree")
	second := catalogSong("SO1", "You Gotta Be", "AR1", "Des'ree")
	second["duration"] = 100.5

	f := newLocalFixture(t, schema.ExcludeUnmatched, []event{
		play("8", "free", 1541110796796, "You Gotta Be", "Des'ree"),
	}, []song{second, first})

	f.run(t)

	var n int
	var duration float64
	require.NoError(t, f.db().QueryRow(`SELECT COUNT(*), MAX(duration) FROM songs WHERE song_id = 'SO1'`).Scan(&n, &duration))
	assert.Equal(t, 1, n)
	assert.InDelta(t, 246.30812, duration, 1e-9)

	require.NoError(t, f.db().QueryRow(`SELECT COUNT(*) FROM songplays WHERE song_id = 'SO1'`).Scan(&n))
	assert.Equal(t, 1, n)
}

func TestLocalAtomicRollsBackEverything(t *testing.T) {
	f := newLocalFixture(t, schema.ExcludeUnmatched, []event{
		play("8", "free", 1541110796796, "You Gotta Be", "Des'ree"),
	}, nil)

	// Tables exist and are empty before the failing run
	_, err := New(f.svc, f.stmts).CreateTables(context.Background())
	require.NoError(t, err)

	broken := config.S3{LogData: f.s3.LogData, LogJSONPath: f.s3.LogJSONPath, SongData: "file:///does/not/exist"}
	_, err = New(f.svc, f.stmts,
		WithAtomic(true),
		WithStager(staging.NewLoader(broken, nil)),
	).Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeFileNotFound, errors.GetErrorCode(err))

	var n int
	require.NoError(t, f.db().QueryRow(`SELECT COUNT(*) FROM staging_events`).Scan(&n))
	assert.Zero(t, n)
}

func TestLocalWithoutStager(t *testing.T) {
	f := newLocalFixture(t, schema.ExcludeUnmatched, nil, nil)

	_, err := New(f.svc, f.stmts).LoadStaging(context.Background())
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeStagingFailed, errors.GetErrorCode(err))
}
