package models

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrAdapterNotActive = errors.New("adapter is not active")
	ErrAdapterStopped   = errors.New("adapter is stopped")
	ErrNoStatements     = errors.New("at least one type of statement has to be not empty")
)

func IsAdapterNotActiveErr(err error) bool { return errors.Is(err, ErrAdapterNotActive) }

// ConfigurationError is raised before the adapter reaches the active state:
// missing or invalid schema, output types or statements, and source mismatches.
type ConfigurationError struct {
	Msg string
	Err error
}

func (e ConfigurationError) Error() string {
	if e.Err != nil {
		return "invalid adapter config: " + e.Msg + ": " + e.Err.Error()
	}
	return "invalid adapter config: " + e.Msg
}

func (e ConfigurationError) Unwrap() error { return e.Err }

func IsConfigurationErr(err error) bool {
	var target ConfigurationError
	return errors.As(err, &target)
}

// SchemaMismatchError reports an upstream source that does not declare every
// field of the adapter event schema.
type SchemaMismatchError struct {
	EventType    string
	SchemaFields []string
	SourceFields []string
}

func (e SchemaMismatchError) Error() string {
	return fmt.Sprintf(
		"event types and fields from source streams do not match for %s: event types=[%s] stream fields=[%s]",
		e.EventType,
		strings.Join(e.SchemaFields, ", "),
		strings.Join(e.SourceFields, ", "),
	)
}

func IsSchemaMismatchErr(err error) bool {
	var target SchemaMismatchError
	return errors.As(err, &target)
}

// QuerySyntaxError is returned by the standalone syntax check.
type QuerySyntaxError struct {
	Query string
	Err   error
}

func (e QuerySyntaxError) Error() string {
	return fmt.Sprintf("invalid statement syntax %q: %s", e.Query, e.Err)
}

func (e QuerySyntaxError) Unwrap() error { return e.Err }

func IsQuerySyntaxErr(err error) bool {
	var target QuerySyntaxError
	return errors.As(err, &target)
}

// CompilationError is raised when a statement cannot be activated at start.
type CompilationError struct {
	Statement string
	Err       error
}

func (e CompilationError) Error() string {
	return fmt.Sprintf("compile statement %q: %s", e.Statement, e.Err)
}

func (e CompilationError) Unwrap() error { return e.Err }

func IsCompilationErr(err error) bool {
	var target CompilationError
	return errors.As(err, &target)
}

// SubmissionError wraps any failure raised while submitting a record to the
// engine or while routing the results it produced.
type SubmissionError struct {
	EventType string
	Err       error
}

func (e SubmissionError) Error() string {
	return fmt.Sprintf("submit event of type %s: %s", e.EventType, e.Err)
}

func (e SubmissionError) Unwrap() error { return e.Err }

func IsSubmissionErr(err error) bool {
	var target SubmissionError
	return errors.As(err, &target)
}
