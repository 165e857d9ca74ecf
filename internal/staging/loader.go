package staging

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"io"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	json "github.com/goccy/go-json"

	"sparkify/internal/config"
	"sparkify/internal/observability"
	"sparkify/internal/schema"
	"sparkify/pkg/errors"
)

// Preparer is the part of *sql.Tx the loader needs
type Preparer interface {
	PrepareContext(ctx context.Context, query string) (*sql.Stmt, error)
}

// Loader fills the staging tables from JSON documents on the local file
// system. It stands in for COPY on engines that cannot read object storage:
// events are mapped through a jsonpaths document, songs are matched to
// columns by key name.
type Loader struct {
	sources config.S3
	logger  *observability.Logger
}

// NewLoader creates a loader reading from the paths in sources. Each path is
// a file or directory, optionally prefixed with file://.
func NewLoader(sources config.S3, logger *observability.Logger) *Loader {
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	return &Loader{sources: sources, logger: logger.WithField("component", "staging")}
}

// LoadEvents fills staging_events and returns the number of rows inserted
func (l *Loader) LoadEvents(ctx context.Context, tx Preparer) (int64, error) {
	mappingPath, err := localPath(l.sources.LogJSONPath)
	if err != nil {
		return 0, err
	}
	f, err := os.Open(mappingPath)
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrCodeFileNotFound, "Cannot open jsonpaths document").
			WithContext("path", mappingPath)
	}
	defer f.Close()

	paths, err := ParseJSONPaths(f)
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrCodeFileCorrupted, "Invalid jsonpaths document").
			WithContext("path", mappingPath)
	}
	table := schema.StagingEvents
	if len(paths) != len(table.Columns) {
		return 0, errors.New(errors.ErrCodeStagingFailed,
			fmt.Sprintf("jsonpaths document has %d expressions, %s has %d columns", len(paths), table.Name, len(table.Columns))).
			WithContext("path", mappingPath)
	}

	return l.load(ctx, tx, table, l.sources.LogData, func(doc map[string]interface{}, i int) interface{} {
		v, _ := paths[i].Lookup(doc)
		return v
	})
}

// LoadSongs fills staging_songs and returns the number of rows inserted
func (l *Loader) LoadSongs(ctx context.Context, tx Preparer) (int64, error) {
	table := schema.StagingSongs
	return l.load(ctx, tx, table, l.sources.SongData, func(doc map[string]interface{}, i int) interface{} {
		return lookupKey(doc, table.Columns[i].Name)
	})
}

type extractFunc func(doc map[string]interface{}, column int) interface{}

func (l *Loader) load(ctx context.Context, tx Preparer, table schema.Table, source string, extract extractFunc) (int64, error) {
	root, err := localPath(source)
	if err != nil {
		return 0, err
	}
	files, err := jsonFiles(root)
	if err != nil {
		return 0, err
	}

	stmt, err := tx.PrepareContext(ctx, insertSQL(table))
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrCodeStagingFailed, "Failed to prepare staging insert").
			WithContext("table", table.Name)
	}
	defer stmt.Close()

	var rows int64
	for _, file := range files {
		n, err := l.loadFile(ctx, stmt, table, file, extract)
		rows += n
		if err != nil {
			return rows, err
		}
	}

	l.logger.InfoWithFields("staged local files", map[string]interface{}{
		"table": table.Name,
		"files": len(files),
		"rows":  rows,
	})
	return rows, nil
}

func (l *Loader) loadFile(ctx context.Context, stmt *sql.Stmt, table schema.Table, file string, extract extractFunc) (int64, error) {
	f, err := os.Open(file)
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrCodeFileNotFound, "Cannot open staging file").
			WithContext("path", file)
	}
	defer f.Close()

	dec := json.NewDecoder(f)
	dec.UseNumber()

	var rows int64
	args := make([]interface{}, len(table.Columns))
	for {
		var doc map[string]interface{}
		if err := dec.Decode(&doc); err != nil {
			if stderrors.Is(err, io.EOF) {
				break
			}
			return rows, errors.Wrap(err, errors.ErrCodeFileCorrupted, "Invalid JSON document").
				WithContext("path", file).
				WithContext("documents_read", rows)
		}

		for i, col := range table.Columns {
			v, err := convert(extract(doc, i), col)
			if err != nil {
				return rows, errors.Wrap(err, errors.ErrCodeStagingFailed, "Cannot convert staging value").
					WithContext("path", file).
					WithContext("column", col.Name)
			}
			args[i] = v
		}

		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return rows, errors.Wrap(err, errors.ErrCodeStagingFailed, fmt.Sprintf("Failed to insert into %s", table.Name)).
				WithContext("path", file)
		}
		rows++
	}

	l.logger.DebugWithFields("staged file", map[string]interface{}{
		"table": table.Name,
		"path":  file,
		"rows":  rows,
	})
	return rows, nil
}

func insertSQL(table schema.Table) string {
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(table.Columns)), ", ")
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		table.Name, strings.Join(table.ColumnNames(), ", "), placeholders)
}

// lookupKey matches a column name against the document keys exactly, as
// COPY 'auto' does. Keys differing only in case load as NULL.
func lookupKey(doc map[string]interface{}, name string) interface{} {
	return doc[name]
}

// convert coerces a decoded JSON value to the column type. Empty strings
// load as NULL outside character columns.
func convert(v interface{}, col schema.Column) (interface{}, error) {
	if v == nil {
		return nil, nil
	}
	kind := columnKind(col.Type)

	switch val := v.(type) {
	case string:
		if kind == kindText {
			return val, nil
		}
		if strings.TrimSpace(val) == "" {
			return nil, nil
		}
		return parseNumber(strings.TrimSpace(val), kind)
	case json.Number:
		if kind == kindText {
			return val.String(), nil
		}
		return parseNumber(val.String(), kind)
	case bool:
		if kind == kindText {
			return strconv.FormatBool(val), nil
		}
		if val {
			return int64(1), nil
		}
		return int64(0), nil
	}
	return nil, fmt.Errorf("unsupported JSON value %T", v)
}

type valueKind int

const (
	kindText valueKind = iota
	kindInteger
	kindFloat
)

func columnKind(sqlType string) valueKind {
	t := strings.ToUpper(sqlType)
	switch {
	case strings.Contains(t, "INT"):
		return kindInteger
	case strings.Contains(t, "DOUBLE"), strings.Contains(t, "FLOAT"),
		strings.Contains(t, "REAL"), strings.Contains(t, "DECIMAL"), strings.Contains(t, "NUMERIC"):
		return kindFloat
	}
	return kindText
}

func parseNumber(s string, kind valueKind) (interface{}, error) {
	if kind == kindInteger {
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n, nil
		}
		// COPY rounds fractional input for integer columns
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid integer %q", s)
		}
		return int64(math.Round(f)), nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid number %q", s)
	}
	return f, nil
}

func localPath(uri string) (string, error) {
	switch {
	case strings.HasPrefix(uri, "file://"):
		return strings.TrimPrefix(uri, "file://"), nil
	case strings.Contains(uri, "://"):
		return "", errors.New(errors.ErrCodeStagingFailed, fmt.Sprintf("Cannot read %s from the local target", uri)).
			WithContext("path", uri).
			WithSuggestions(
				"Point the [S3] paths at local copies of the data when using --target sqlite",
				"Use --target redshift to COPY from S3",
			)
	}
	return uri, nil
}

// jsonFiles lists the *.json files under root in lexical order. root may
// also name a single file.
func jsonFiles(root string) ([]string, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeFileNotFound, "Staging source not found").
			WithContext("path", root)
	}
	if !info.IsDir() {
		return []string{root}, nil
	}

	var files []string
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.EqualFold(filepath.Ext(path), ".json") {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeFileNotFound, "Cannot list staging source").
			WithContext("path", root)
	}
	return files, nil
}
