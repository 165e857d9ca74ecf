package cmd

import (
	"context"

	"sparkify/internal/config"
	"sparkify/internal/schema"
	"sparkify/internal/warehouse"
	"sparkify/pkg/errors"
)

// loadTarget reads dwh.cfg and renders the statements for the configured
// target. Both happen exactly once per command.
func loadTarget(opts schema.Options) (*config.Config, *schema.Statements, error) {
	cfg, err := config.Load(settings.ConfigFile)
	if err != nil {
		return nil, nil, err
	}

	dialect, err := schema.ParseDialect(settings.Target)
	if err != nil {
		return nil, nil, errors.ConfigInvalidError("settings", "target", err.Error())
	}
	opts.Dialect = dialect
	if opts.Unmatched == "" {
		opts.Unmatched = schema.UnmatchedPolicy(settings.UnmatchedPolicy)
	}
	if opts.Region == "" {
		opts.Region = settings.Region
	}

	stmts, err := schema.Build(cfg, opts)
	if err != nil {
		return nil, nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "Cannot render statements")
	}
	return cfg, stmts, nil
}

// openWarehouse connects to the configured target
func openWarehouse(ctx context.Context, cfg *config.Config) (*warehouse.Service, error) {
	opts := []warehouse.Option{warehouse.WithStatementTimeout(settings.StatementTimeout)}
	if settings.Target == config.TargetSQLite {
		return warehouse.OpenSQLite(ctx, settings.SQLitePath, opts...)
	}
	return warehouse.Open(ctx, cfg, opts...)
}
