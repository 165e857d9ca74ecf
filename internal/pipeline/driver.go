package pipeline

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"sparkify/internal/metrics"
	"sparkify/internal/observability"
	"sparkify/internal/schema"
	"sparkify/internal/staging"
	"sparkify/internal/warehouse"
	"sparkify/pkg/errors"
)

// Stages of a run, in execution order
const (
	StageSetup   = "setup"
	StageStaging = "staging"
	StageInsert  = "insert"
)

// Executor runs statements on one warehouse connection
type Executor interface {
	Dialect() schema.Dialect
	Exec(ctx context.Context, stmt schema.Statement) (warehouse.Result, error)
	Run(ctx context.Context, name string, fn warehouse.TxFunc) (warehouse.Result, error)
	Atomic(ctx context.Context, fn func(ctx context.Context) error) error
	CountRows(ctx context.Context, table string) (int64, error)
}

// Stager fills the staging tables on targets without COPY
type Stager interface {
	LoadEvents(ctx context.Context, tx staging.Preparer) (int64, error)
	LoadSongs(ctx context.Context, tx staging.Preparer) (int64, error)
}

// Driver runs the load in its fixed order: optional table setup, staging,
// then the analytics inserts. The first failing statement stops the run.
type Driver struct {
	exec     Executor
	stmts    *schema.Statements
	stager   Stager
	logger   *observability.Logger
	recorder *metrics.Recorder
	observer func(Step)

	createTables bool
	atomic       bool
}

// Option configures a Driver
type Option func(*Driver)

// WithLogger sets the logger statements are reported to
func WithLogger(l *observability.Logger) Option {
	return func(d *Driver) { d.logger = l }
}

// WithRecorder records statement metrics on r
func WithRecorder(r *metrics.Recorder) Option {
	return func(d *Driver) { d.recorder = r }
}

// WithStager sets the loader used when the target has no COPY
func WithStager(s Stager) Option {
	return func(d *Driver) { d.stager = s }
}

// WithCreateTables drops and recreates every table before loading
func WithCreateTables(enabled bool) Option {
	return func(d *Driver) { d.createTables = enabled }
}

// WithAtomic runs the whole sequence in one transaction
func WithAtomic(enabled bool) Option {
	return func(d *Driver) { d.atomic = enabled }
}

// WithObserver is called after every step, successful or not
func WithObserver(fn func(Step)) Option {
	return func(d *Driver) { d.observer = fn }
}

// New creates a driver for stmts on exec
func New(exec Executor, stmts *schema.Statements, opts ...Option) *Driver {
	d := &Driver{
		exec:   exec,
		stmts:  stmts,
		logger: observability.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Run executes the full sequence and returns the report of every step that
// ran. The report is returned on failure too.
func (d *Driver) Run(ctx context.Context) (*RunReport, error) {
	report := &RunReport{
		RunID:     uuid.NewString(),
		Target:    string(d.exec.Dialect()),
		Atomic:    d.atomic,
		StartedAt: time.Now().UTC(),
	}
	logger := d.logger.WithField("run_id", report.RunID)
	logger.InfoWithFields("run started", map[string]interface{}{
		"target":        report.Target,
		"atomic":        d.atomic,
		"create_tables": d.createTables,
	})

	sequence := func(ctx context.Context) error {
		if d.createTables {
			if err := d.createTablesInto(ctx, report, logger); err != nil {
				return err
			}
		}
		if err := d.loadStagingInto(ctx, report, logger); err != nil {
			return err
		}
		return d.insertAnalyticsInto(ctx, report, logger)
	}

	var err error
	if d.atomic {
		err = d.exec.Atomic(ctx, sequence)
	} else {
		err = sequence(ctx)
	}

	report.FinishedAt = time.Now().UTC()
	if err != nil {
		report.Err = err
		logger.WithError(err).ErrorWithFields("run failed", map[string]interface{}{
			"duration": report.Duration().String(),
			"steps":    len(report.Steps),
		})
		return report, err
	}

	if d.recorder != nil {
		d.recorder.MarkSuccess(report.FinishedAt)
	}
	logger.InfoWithFields("run finished", map[string]interface{}{
		"duration": report.Duration().String(),
		"rows":     report.TotalRows(),
	})
	return report, nil
}

// CreateTables drops every table then creates it again
func (d *Driver) CreateTables(ctx context.Context) (*RunReport, error) {
	return d.single(ctx, d.createTablesInto)
}

// LoadStaging fills the staging tables
func (d *Driver) LoadStaging(ctx context.Context) (*RunReport, error) {
	return d.single(ctx, d.loadStagingInto)
}

// InsertAnalytics populates the star schema from the staging tables
func (d *Driver) InsertAnalytics(ctx context.Context) (*RunReport, error) {
	return d.single(ctx, d.insertAnalyticsInto)
}

type stageFunc func(ctx context.Context, report *RunReport, logger *observability.Logger) error

func (d *Driver) single(ctx context.Context, fn stageFunc) (*RunReport, error) {
	report := &RunReport{
		RunID:     uuid.NewString(),
		Target:    string(d.exec.Dialect()),
		StartedAt: time.Now().UTC(),
	}
	err := fn(ctx, report, d.logger.WithField("run_id", report.RunID))
	report.FinishedAt = time.Now().UTC()
	report.Err = err
	return report, err
}

func (d *Driver) createTablesInto(ctx context.Context, report *RunReport, logger *observability.Logger) error {
	for _, list := range [][]schema.Statement{d.stmts.Drop(), d.stmts.Create()} {
		for _, stmt := range list {
			if err := d.execStatement(ctx, report, logger, StageSetup, stmt); err != nil {
				return err
			}
		}
	}
	return nil
}

func (d *Driver) loadStagingInto(ctx context.Context, report *RunReport, logger *observability.Logger) error {
	copies := d.stmts.Copy()
	if len(copies) == 0 {
		return d.stageLocally(ctx, report, logger)
	}
	for _, stmt := range copies {
		if err := d.execStatement(ctx, report, logger, StageStaging, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (d *Driver) insertAnalyticsInto(ctx context.Context, report *RunReport, logger *observability.Logger) error {
	for _, stmt := range d.stmts.Insert() {
		if err := d.execStatement(ctx, report, logger, StageInsert, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (d *Driver) stageLocally(ctx context.Context, report *RunReport, logger *observability.Logger) error {
	if d.stager == nil {
		return errors.New(errors.ErrCodeStagingFailed,
			"Target has no COPY support and no local staging source is configured").
			WithContext("target", string(d.exec.Dialect()))
	}

	loads := []struct {
		table string
		fn    func(context.Context, staging.Preparer) (int64, error)
	}{
		{schema.StagingEvents.Name, d.stager.LoadEvents},
		{schema.StagingSongs.Name, d.stager.LoadSongs},
	}
	for _, load := range loads {
		name := "stage_" + load.table
		log := logger.WithFields(map[string]interface{}{
			"stage":     StageStaging,
			"statement": name,
			"table":     load.table,
		})
		log.Debug("statement started")

		res, err := d.exec.Run(ctx, name, func(ctx context.Context, tx *sql.Tx) (int64, error) {
			return load.fn(ctx, tx)
		})
		step := Step{
			Stage:    StageStaging,
			Name:     name,
			Table:    load.table,
			Duration: res.Duration,
			Rows:     res.RowsAffected,
		}
		if err := d.finishStep(report, log, step, err); err != nil {
			return err
		}
	}
	return nil
}

func (d *Driver) execStatement(ctx context.Context, report *RunReport, logger *observability.Logger, stage string, stmt schema.Statement) error {
	log := logger.WithFields(map[string]interface{}{
		"stage":       stage,
		"statement":   stmt.Name,
		"table":       stmt.Table,
		"fingerprint": stmt.Fingerprint(),
	})
	log.Debug("statement started")

	res, err := d.exec.Exec(ctx, stmt)
	step := Step{
		Stage:       stage,
		Name:        stmt.Name,
		Table:       stmt.Table,
		Fingerprint: stmt.Fingerprint(),
		Duration:    res.Duration,
		Rows:        res.RowsAffected,
	}
	return d.finishStep(report, log, step, err)
}

func (d *Driver) finishStep(report *RunReport, log *observability.Logger, step Step, err error) error {
	step.Status = StatusSucceeded
	if err != nil {
		step.Status = StatusFailed
		step.Error = err.Error()
	}
	report.Steps = append(report.Steps, step)

	if d.recorder != nil {
		d.recorder.ObserveStatement(step.Stage, step.Name, step.Table, step.Duration, step.Rows, err)
	}
	if d.observer != nil {
		d.observer(step)
	}

	fields := map[string]interface{}{
		"duration": step.Duration.String(),
		"rows":     step.Rows,
	}
	if err != nil {
		fields["error_code"] = string(errors.GetErrorCode(err))
		log.WithError(err).ErrorWithFields("statement failed", fields)
		return err
	}
	log.InfoWithFields("statement finished", fields)
	return nil
}

// TableCounts returns the row count of every table, staging first
func (d *Driver) TableCounts(ctx context.Context) ([]TableCount, error) {
	var counts []TableCount
	for _, t := range schema.Tables() {
		n, err := d.exec.CountRows(ctx, t.Name)
		if err != nil {
			return counts, err
		}
		counts = append(counts, TableCount{Table: t.Name, Role: t.Role, Rows: n})
	}
	return counts, nil
}
