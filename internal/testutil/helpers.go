package testutil

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	json "github.com/goccy/go-json"

	"sparkify/internal/config"
)

const (
	dirPermission  = 0o755
	filePermission = 0o600
)

// TestHelper provides common test utilities
type TestHelper struct {
	t *testing.T
}

// NewTestHelper creates a new test helper
func NewTestHelper(t *testing.T) *TestHelper {
	return &TestHelper{t: t}
}

// WriteFile writes content to a file in the given directory, creating parent
// directories as needed.
func (h *TestHelper) WriteFile(dir, filename, content string) string {
	h.t.Helper()
	path := filepath.Join(dir, filename)

	if err := os.MkdirAll(filepath.Dir(path), dirPermission); err != nil {
		h.t.Fatalf("Failed to create directories: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), filePermission); err != nil {
		h.t.Fatalf("Failed to write file %s: %v", path, err)
	}
	return path
}

// WriteNDJSON writes one JSON document per line, the layout of the raw log
// and song files.
func (h *TestHelper) WriteNDJSON(path string, docs ...interface{}) string {
	h.t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), dirPermission); err != nil {
		h.t.Fatalf("Failed to create directories: %v", err)
	}
	f, err := os.Create(path)
	if err != nil {
		h.t.Fatalf("Failed to create %s: %v", path, err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	for _, d := range docs {
		b, err := json.Marshal(d)
		if err != nil {
			h.t.Fatalf("Failed to encode document: %v", err)
		}
		_, _ = w.Write(append(b, '\n'))
	}
	if err := w.Flush(); err != nil {
		h.t.Fatalf("Failed to write %s: %v", path, err)
	}
	return path
}

// WriteDWHConfig writes a complete dwh.cfg with the given S3 locations and
// returns its path.
func (h *TestHelper) WriteDWHConfig(dir string, s3 config.S3) string {
	h.t.Helper()
	return h.WriteFile(dir, config.DefaultConfigFile, fmt.Sprintf(`[CLUSTER]
HOST='example.cluster.us-west-2.redshift.amazonaws.com'
DB_NAME='dwh'
DB_USER='dwhuser'
DB_PASSWORD='Passw0rd'
DB_PORT='5439'

[IAM_ROLE]
ARN='arn:aws:iam::123456789012:role/dwhRole'

[S3]
LOG_DATA='%s'
LOG_JSONPATH='%s'
SONG_DATA='%s'
`, s3.LogData, s3.LogJSONPath, s3.SongData))
}

// S3Bucket returns the public source locations of the song and log data
func S3Bucket() config.S3 {
	return config.S3{
		LogData:     "s3://udacity-dend/log_data",
		LogJSONPath: "s3://udacity-dend/log_json_path.json",
		SongData:    "s3://udacity-dend/song_data",
	}
}
