package ui

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"sparkify/internal/pipeline"
	"sparkify/internal/schema"
)

func TestRenderReport(t *testing.T) {
	withColor(t, false)
	started := time.Date(2018, 11, 30, 12, 0, 0, 0, time.UTC)
	report := &pipeline.RunReport{
		RunID:      "3f1c1c0e-0000-4000-8000-000000000000",
		Target:     "redshift",
		Atomic:     true,
		StartedAt:  started,
		FinishedAt: started.Add(3 * time.Second),
		Steps: []pipeline.Step{
			{Stage: pipeline.StageStaging, Name: "copy_staging_events", Table: "staging_events", Rows: 8056, Duration: time.Second, Status: pipeline.StatusSucceeded},
			{Stage: pipeline.StageInsert, Name: "insert_users", Table: "users", Rows: 104, Duration: 200 * time.Millisecond, Status: pipeline.StatusSucceeded},
			{Stage: pipeline.StageInsert, Name: "insert_songs", Table: "songs", Duration: 100 * time.Millisecond, Status: pipeline.StatusFailed},
		},
		Err: errors.New("boom"),
	}

	var buf bytes.Buffer
	RenderReport(&buf, report)
	output := buf.String()

	for _, want := range []string{
		"Run 3f1c1c0e-0000-4000-8000-000000000000 on redshift (atomic)",
		"STATEMENT",
		"copy_staging_events",
		"8056",
		"insert_users",
		"failed",
		"104",
		"3.0s",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("Expected report to contain %q, got:\n%s", want, output)
		}
	}
}

func TestRenderCounts(t *testing.T) {
	var buf bytes.Buffer
	RenderCounts(&buf, []pipeline.TableCount{
		{Table: "users", Role: schema.RoleDimension, Rows: 104},
		{Table: "songplays", Role: schema.RoleFact, Rows: 333},
	})

	output := buf.String()
	if !strings.Contains(output, "DIMENSION") || !strings.Contains(output, "333") {
		t.Errorf("Unexpected counts table:\n%s", output)
	}
}

func TestRenderStatements(t *testing.T) {
	stmts := []schema.Statement{
		{Name: "drop_users", Table: "users", Kind: schema.KindDrop, SQL: "DROP TABLE IF EXISTS users;"},
	}

	var buf bytes.Buffer
	RenderStatements(&buf, stmts)

	output := buf.String()
	if !strings.Contains(output, "drop_users") || !strings.Contains(output, stmts[0].Fingerprint()) {
		t.Errorf("Unexpected statements table:\n%s", output)
	}
}
