package staging

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"sparkify/internal/config"
	"sparkify/internal/schema"
	"sparkify/pkg/errors"
)

func openStagingDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "staging.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	stmts, err := schema.Build(&config.Config{}, schema.Options{Dialect: schema.SQLite})
	require.NoError(t, err)
	for _, st := range stmts.Create()[:2] {
		_, err := db.Exec(st.SQL)
		require.NoError(t, err, st.Name)
	}
	return db
}

func testSources() config.S3 {
	return config.S3{
		LogData:     "testdata/log_data",
		LogJSONPath: "file://testdata/log_json_path.json",
		SongData:    "testdata/song_data",
	}
}

func inTx(t *testing.T, db *sql.DB, fn func(tx *sql.Tx) (int64, error)) (int64, error) {
	t.Helper()
	tx, err := db.Begin()
	require.NoError(t, err)
	n, err := fn(tx)
	if err != nil {
		_ = tx.Rollback()
		return n, err
	}
	require.NoError(t, tx.Commit())
	return n, nil
}

func TestLoadEvents(t *testing.T) {
	db := openStagingDB(t)
	loader := NewLoader(testSources(), nil)
	ctx := context.Background()

	n, err := inTx(t, db, func(tx *sql.Tx) (int64, error) { return loader.LoadEvents(ctx, tx) })
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	var (
		artist, page, userAgent string
		userID, sessionID       int64
		ts, registration        int64
		length                  float64
	)
	err = db.QueryRow(`SELECT artist, page, user_agent, user_id, session_id, ts, registration, length
		FROM staging_events WHERE page = 'NextSong'`).
		Scan(&artist, &page, &userAgent, &userID, &sessionID, &ts, &registration, &length)
	require.NoError(t, err)
	assert.Equal(t, "Des'ree", artist)
	assert.Equal(t, int64(8), userID)
	assert.Equal(t, int64(139), sessionID)
	assert.Equal(t, int64(1541110796796), ts)
	assert.Equal(t, int64(1540344794796), registration)
	assert.InDelta(t, 246.30812, length, 1e-9)
	assert.Contains(t, userAgent, "Mozilla/5.0")

	// An empty userId loads as NULL
	var nullUsers int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM staging_events WHERE user_id IS NULL`).Scan(&nullUsers))
	assert.Equal(t, 1, nullUsers)
}

func TestLoadSongs(t *testing.T) {
	db := openStagingDB(t)
	loader := NewLoader(testSources(), nil)
	ctx := context.Background()

	n, err := inTx(t, db, func(tx *sql.Tx) (int64, error) { return loader.LoadSongs(ctx, tx) })
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	var (
		title    string
		year     int64
		location sql.NullString
		lat      sql.NullFloat64
	)
	err = db.QueryRow(`SELECT title, year, artist_location, artist_latitude
		FROM staging_songs WHERE song_id = 'SOQAYCT12AB0185B3A'`).Scan(&title, &year, &location, &lat)
	require.NoError(t, err)
	assert.Equal(t, "You Gotta Be", title)
	assert.Equal(t, int64(1994), year)
	assert.True(t, location.Valid)
	assert.Equal(t, "", location.String)
	assert.False(t, lat.Valid)
}

func TestLoadSongsMatchesKeysExactly(t *testing.T) {
	db := openStagingDB(t)
	dir := t.TempDir()
	doc := `{"Song_ID": "SO1", "song_id": "SO2", "Title": "Ignored", "artist_id": "AR1"}` + "\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "song.json"), []byte(doc), 0o600))

	sources := testSources()
	sources.SongData = dir
	loader := NewLoader(sources, nil)
	ctx := context.Background()

	n, err := inTx(t, db, func(tx *sql.Tx) (int64, error) { return loader.LoadSongs(ctx, tx) })
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	var songID string
	var title sql.NullString
	require.NoError(t, db.QueryRow(`SELECT song_id, title FROM staging_songs`).Scan(&songID, &title))
	assert.Equal(t, "SO2", songID)
	assert.False(t, title.Valid)
}

func TestLoadRejectsRemoteSources(t *testing.T) {
	db := openStagingDB(t)
	loader := NewLoader(config.S3{SongData: "s3://udacity-dend/song_data"}, nil)

	_, err := inTx(t, db, func(tx *sql.Tx) (int64, error) { return loader.LoadSongs(context.Background(), tx) })
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeStagingFailed, errors.GetErrorCode(err))
}

func TestLoadMissingSource(t *testing.T) {
	db := openStagingDB(t)
	loader := NewLoader(config.S3{SongData: filepath.Join(t.TempDir(), "nope")}, nil)

	_, err := inTx(t, db, func(tx *sql.Tx) (int64, error) { return loader.LoadSongs(context.Background(), tx) })
	assert.Equal(t, errors.ErrCodeFileNotFound, errors.GetErrorCode(err))
}

func TestLoadEmptySource(t *testing.T) {
	db := openStagingDB(t)
	loader := NewLoader(config.S3{SongData: t.TempDir()}, nil)

	n, err := inTx(t, db, func(tx *sql.Tx) (int64, error) { return loader.LoadSongs(context.Background(), tx) })
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestLoadCorruptDocument(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.json"), []byte(`{"song_id": "S1"} {"song_id": `), 0o644))

	db := openStagingDB(t)
	loader := NewLoader(config.S3{SongData: dir}, nil)

	_, err := inTx(t, db, func(tx *sql.Tx) (int64, error) { return loader.LoadSongs(context.Background(), tx) })
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeFileCorrupted, errors.GetErrorCode(err))
}

func TestLoadEventsMappingMismatch(t *testing.T) {
	dir := t.TempDir()
	mapping := filepath.Join(dir, "paths.json")
	require.NoError(t, os.WriteFile(mapping, []byte(`{"jsonpaths": ["$.artist"]}`), 0o644))

	db := openStagingDB(t)
	loader := NewLoader(config.S3{LogData: "testdata/log_data", LogJSONPath: mapping}, nil)

	_, err := inTx(t, db, func(tx *sql.Tx) (int64, error) { return loader.LoadEvents(context.Background(), tx) })
	assert.Equal(t, errors.ErrCodeStagingFailed, errors.GetErrorCode(err))
}

func TestConvert(t *testing.T) {
	integer := schema.Column{Name: "user_id", Type: "INTEGER"}
	bigint := schema.Column{Name: "ts", Type: "BIGINT"}
	double := schema.Column{Name: "length", Type: "DOUBLE PRECISION"}
	text := schema.Column{Name: "level", Type: "VARCHAR(10)"}

	tests := []struct {
		name     string
		value    interface{}
		column   schema.Column
		expected interface{}
		wantErr  bool
	}{
		{name: "nil", value: nil, column: integer, expected: nil},
		{name: "numeric string", value: "42", column: integer, expected: int64(42)},
		{name: "empty string to integer", value: "", column: integer, expected: nil},
		{name: "empty string stays text", value: "", column: text, expected: ""},
		{name: "fractional bigint", value: json.Number("1540919166796.0"), column: bigint, expected: int64(1540919166796)},
		{name: "double", value: json.Number("246.30812"), column: double, expected: 246.30812},
		{name: "number to text", value: json.Number("7"), column: text, expected: "7"},
		{name: "bool to integer", value: true, column: integer, expected: int64(1)},
		{name: "bad integer", value: "abc", column: integer, wantErr: true},
		{name: "object", value: map[string]interface{}{}, column: text, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := convert(tt.value, tt.column)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestInsertSQL(t *testing.T) {
	assert.Equal(t,
		"INSERT INTO staging_songs (num_songs, artist_id, artist_latitude, artist_longitude, artist_location, artist_name, song_id, title, duration, year) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		insertSQL(schema.StagingSongs))
}
