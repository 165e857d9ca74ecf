package warehouse

import (
	"context"
	stderrors "errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"sparkify/internal/schema"
	"sparkify/pkg/errors"
)

// SQLSTATE classes and codes the warehouse reports
const (
	sqlstateSyntax         = "42601"
	sqlstatePermission     = "42501"
	sqlstateUndefinedTable = "42P01"
	sqlstateUndefinedCol   = "42703"
	sqlstateQueryCanceled  = "57014"
	classIntegrity         = "23"
	classAuthorization     = "28"
)

// classify turns a driver error from stmt into a StatementError with a code
// refined from the SQLSTATE, or from the message for engines without one.
func classify(stmt schema.Statement, err error) error {
	appErr := errors.StatementError(stmt.Name, stmt.SQL, err)
	if stmt.Table != "" {
		appErr.WithContext("table", stmt.Table)
	}

	var pgErr *pgconn.PgError
	if stderrors.As(err, &pgErr) {
		appErr.WithContext("sqlstate", pgErr.Code)
		if pgErr.Detail != "" {
			appErr.WithContext("detail", pgErr.Detail)
		}
		appErr.Code = codeForSQLState(pgErr.Code)
	} else {
		appErr.Code = codeForMessage(err)
	}

	switch appErr.Code {
	case errors.ErrCodeSQLObjectNotFound:
		appErr.WithSuggestions(
			"Run with --create-tables to recreate the schema",
			"Check that the statement runs against the expected database",
		)
	case errors.ErrCodeSQLPermission:
		appErr.WithSuggestions(
			"Check the grants of [CLUSTER] DB_USER",
			"For COPY, check that [IAM_ROLE] ARN may read the S3 paths",
		)
	case errors.ErrCodeSQLSyntax:
		appErr.WithSuggestions("Inspect the rendered SQL with 'sparkify statements'")
	case errors.ErrCodeConstraint:
		appErr.WithSuggestions("Check the staging data for duplicate or missing keys")
	}
	return appErr
}

func codeForSQLState(code string) errors.ErrorCode {
	switch {
	case code == sqlstateSyntax:
		return errors.ErrCodeSQLSyntax
	case code == sqlstatePermission:
		return errors.ErrCodeSQLPermission
	case code == sqlstateUndefinedTable, code == sqlstateUndefinedCol:
		return errors.ErrCodeSQLObjectNotFound
	case code == sqlstateQueryCanceled:
		return errors.ErrCodeSQLTimeout
	case strings.HasPrefix(code, classIntegrity):
		return errors.ErrCodeConstraint
	}
	return errors.ErrCodeSQLExecution
}

func codeForMessage(err error) errors.ErrorCode {
	if stderrors.Is(err, context.DeadlineExceeded) || stderrors.Is(err, context.Canceled) {
		return errors.ErrCodeSQLTimeout
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "syntax error"):
		return errors.ErrCodeSQLSyntax
	case strings.Contains(msg, "no such table"), strings.Contains(msg, "no such column"),
		strings.Contains(msg, "does not exist"):
		return errors.ErrCodeSQLObjectNotFound
	case strings.Contains(msg, "permission denied"):
		return errors.ErrCodeSQLPermission
	case strings.Contains(msg, "constraint failed"), strings.Contains(msg, "violates"):
		return errors.ErrCodeConstraint
	}
	return errors.ErrCodeSQLExecution
}

// classifyConnect maps a failed ping onto a ConnectionError
func classifyConnect(err error) *errors.AppError {
	var pgErr *pgconn.PgError
	if stderrors.As(err, &pgErr) && strings.HasPrefix(pgErr.Code, classAuthorization) {
		return errors.Wrap(err, errors.ErrCodeAuthenticationFailed, "Authentication failed").
			WithContext("sqlstate", pgErr.Code).
			WithSuggestions(
				"Verify [CLUSTER] DB_USER and DB_PASSWORD",
				"If DB_PASSWORD is a keyring reference, check the stored secret",
			)
	}
	if stderrors.Is(err, context.DeadlineExceeded) {
		return errors.Wrap(err, errors.ErrCodeConnectionTimeout, "Timed out connecting to the warehouse").
			WithSuggestions("Check that the cluster is running and publicly accessible")
	}
	return errors.ConnectionError("Failed to connect to the warehouse", err)
}
