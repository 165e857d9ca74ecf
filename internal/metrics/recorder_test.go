package metrics

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveStatement(t *testing.T) {
	r := NewRecorder()

	r.ObserveStatement("insert", "insert_users", "users", 150*time.Millisecond, 104, nil)
	r.ObserveStatement("insert", "insert_songplays", "songplays", time.Second, 333, nil)
	r.ObserveStatement("insert", "insert_time", "time", time.Second, 0, errors.New("boom"))

	assert.Equal(t, 2.0, testutil.ToFloat64(r.statements.WithLabelValues("insert", StatusSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.statements.WithLabelValues("insert", StatusFailure)))
	assert.Equal(t, 104.0, testutil.ToFloat64(r.rows.WithLabelValues("users")))
	assert.Equal(t, 333.0, testutil.ToFloat64(r.rows.WithLabelValues("songplays")))
	assert.Equal(t, 3, testutil.CollectAndCount(r.duration))
}

func TestMarkSuccess(t *testing.T) {
	r := NewRecorder()
	at := time.Date(2018, 11, 30, 0, 0, 0, 0, time.UTC)

	r.MarkSuccess(at)

	expected := `
# HELP sparkify_last_success_timestamp_seconds Unix time of the last run that finished without error.
# TYPE sparkify_last_success_timestamp_seconds gauge
sparkify_last_success_timestamp_seconds 1.5435360e+09
`
	require.NoError(t, testutil.GatherAndCompare(r.Gatherer(), strings.NewReader(expected),
		"sparkify_last_success_timestamp_seconds"))
}

func TestPush(t *testing.T) {
	var (
		method string
		path   string
		body   string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		method = req.Method
		path = req.URL.Path
		b, _ := io.ReadAll(req.Body)
		body = string(b)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	r := NewRecorder()
	r.ObserveStatement("staging", "copy_staging_songs", "staging_songs", time.Second, 10, nil)

	require.NoError(t, r.Push(context.Background(), srv.URL, "run-1"))
	assert.Equal(t, http.MethodPut, method)
	assert.Equal(t, "/metrics/job/sparkify_etl/run_id/run-1", path)
	assert.NotEmpty(t, body)
}

func TestPushErrors(t *testing.T) {
	r := NewRecorder()
	assert.Error(t, r.Push(context.Background(), "", "run-1"))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	err := r.Push(context.Background(), srv.URL, "run-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), srv.URL)
}
