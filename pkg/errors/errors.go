package errors

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
	"time"
)

// ErrorCode represents a unique error code for categorizing errors
type ErrorCode string

const (
	// Connection errors (1xxx)
	ErrCodeConnectionFailed     ErrorCode = "SPKE1001"
	ErrCodeConnectionTimeout    ErrorCode = "SPKE1002"
	ErrCodeAuthenticationFailed ErrorCode = "SPKE1003"

	// Configuration errors (2xxx)
	ErrCodeConfigNotFound ErrorCode = "SPKE2001"
	ErrCodeConfigInvalid  ErrorCode = "SPKE2002"
	ErrCodeConfigMissing  ErrorCode = "SPKE2003"
	ErrCodeSecretLookup   ErrorCode = "SPKE2004"

	// Statement errors (4xxx)
	ErrCodeSQLSyntax         ErrorCode = "SPKE4001"
	ErrCodeSQLPermission     ErrorCode = "SPKE4002"
	ErrCodeSQLTimeout        ErrorCode = "SPKE4003"
	ErrCodeSQLTransaction    ErrorCode = "SPKE4004"
	ErrCodeSQLObjectNotFound ErrorCode = "SPKE4005"
	ErrCodeSQLExecution      ErrorCode = "SPKE4006"
	ErrCodeStagingFailed     ErrorCode = "SPKE4007"
	ErrCodeConstraint        ErrorCode = "SPKE4009"

	// File system errors (5xxx)
	ErrCodeFileNotFound  ErrorCode = "SPKE5001"
	ErrCodeFileCorrupted ErrorCode = "SPKE5003"

	// System errors (9xxx)
	ErrCodeInternal ErrorCode = "SPKE9001"
)

// ErrorSeverity represents the severity level of an error
type ErrorSeverity string

const (
	SeverityCritical ErrorSeverity = "CRITICAL"
	SeverityError    ErrorSeverity = "ERROR"
	SeverityWarning  ErrorSeverity = "WARNING"
	SeverityInfo     ErrorSeverity = "INFO"
)

// AppError represents a structured application error with context
type AppError struct {
	Code        ErrorCode
	Message     string
	Severity    ErrorSeverity
	Context     map[string]interface{}
	Cause       error
	Stack       string
	Timestamp   time.Time
	Suggestions []string
}

// Error implements the error interface
func (e *AppError) Error() string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("[%s] %s: %s", e.Code, e.Severity, e.Message))

	if e.Cause != nil {
		b.WriteString(fmt.Sprintf("\nCaused by: %v", e.Cause))
	}

	if len(e.Suggestions) > 0 {
		b.WriteString("\nSuggestions:")
		for i, suggestion := range e.Suggestions {
			b.WriteString(fmt.Sprintf("\n  %d. %s", i+1, suggestion))
		}
	}

	return b.String()
}

// Unwrap returns the cause of the error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an AppError with the same code
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// New creates a new AppError
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:      code,
		Message:   message,
		Severity:  SeverityError,
		Context:   make(map[string]interface{}),
		Stack:     captureStack(),
		Timestamp: time.Now(),
	}
}

// Wrap wraps an existing error with AppError
func Wrap(err error, code ErrorCode, message string) *AppError {
	if err == nil {
		return nil
	}

	appErr := New(code, message)
	appErr.Cause = err

	// Inherit context from a wrapped AppError
	var inner *AppError
	if errors.As(err, &inner) {
		for k, v := range inner.Context {
			appErr.Context[k] = v
		}
	}

	return appErr
}

// WithContext adds context to the error
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithSeverity sets the error severity
func (e *AppError) WithSeverity(severity ErrorSeverity) *AppError {
	e.Severity = severity
	return e
}

// WithSuggestions adds recovery suggestions
func (e *AppError) WithSuggestions(suggestions ...string) *AppError {
	e.Suggestions = append(e.Suggestions, suggestions...)
	return e
}

func captureStack() string {
	const depth = 32
	var pcs [depth]uintptr
	n := runtime.Callers(3, pcs[:])

	var b strings.Builder
	frames := runtime.CallersFrames(pcs[:n])

	for {
		frame, more := frames.Next()
		if !strings.Contains(frame.File, "runtime/") {
			b.WriteString(fmt.Sprintf("%s:%d %s\n", frame.File, frame.Line, frame.Function))
		}
		if !more {
			break
		}
	}

	return b.String()
}

// Common error constructors

// ConnectionError creates a connection-related error
func ConnectionError(message string, cause error) *AppError {
	return Wrap(cause, ErrCodeConnectionFailed, message).
		WithSuggestions(
			"Check that the cluster endpoint in [CLUSTER] HOST is reachable",
			"Verify the cluster security group allows inbound traffic on DB_PORT",
		)
}

// ConfigError creates an error for a missing section or key in the
// configuration document.
func ConfigError(section, key string) *AppError {
	field := section
	if key != "" {
		field = section + "." + key
	}
	return New(ErrCodeConfigMissing, fmt.Sprintf("Missing required configuration value %s", field)).
		WithContext("section", section).
		WithContext("key", key).
		WithSuggestions(fmt.Sprintf("Add %s to the configuration file", field))
}

// ConfigInvalidError creates an error for a configuration value that is
// present but unusable.
func ConfigInvalidError(section, key, reason string) *AppError {
	return New(ErrCodeConfigInvalid, fmt.Sprintf("Invalid configuration value %s.%s: %s", section, key, reason)).
		WithContext("section", section).
		WithContext("key", key)
}

// StatementError creates an error for a failed warehouse statement. The code
// defaults to ErrCodeSQLExecution; callers refine it once the driver error is
// classified.
func StatementError(name, query string, cause error) *AppError {
	return Wrap(cause, ErrCodeSQLExecution, fmt.Sprintf("Statement %s failed", name)).
		WithContext("statement", name).
		WithContext("query", truncateString(strings.TrimSpace(query), 200))
}

// IsConfigError reports whether err is a configuration error of any kind
func IsConfigError(err error) bool {
	switch GetErrorCode(err) {
	case ErrCodeConfigNotFound, ErrCodeConfigInvalid, ErrCodeConfigMissing, ErrCodeSecretLookup:
		return true
	}
	return false
}

// IsConnectionError reports whether err came from establishing the connection
func IsConnectionError(err error) bool {
	switch GetErrorCode(err) {
	case ErrCodeConnectionFailed, ErrCodeConnectionTimeout, ErrCodeAuthenticationFailed:
		return true
	}
	return false
}

// IsStatementError reports whether err came from executing a statement
func IsStatementError(err error) bool {
	return strings.HasPrefix(string(GetErrorCode(err)), "SPKE4")
}

// GetErrorCode extracts the error code from an error
func GetErrorCode(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrCodeInternal
}

func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
