package obsanalytics

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput    = errors.New("invalid input")
	ErrQueryExecution  = errors.New("query execution failed")
	ErrUpstreamService = errors.New("upstream service failed")
)

// InvalidInputError is returned before any I/O when a request cannot be served.
type InvalidInputError struct {
	Field  string
	Reason string
}

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *InvalidInputError) Is(target error) bool {
	return target == ErrInvalidInput
}

// QueryExecutionError wraps a failure reported by the data store.
type QueryExecutionError struct {
	Query  string
	Params []interface{}
	Err    error
}

func (e *QueryExecutionError) Error() string {
	return fmt.Sprintf("failed to exec query: %v, query: %s, params: %v", e.Err, e.Query, e.Params)
}

func (e *QueryExecutionError) Unwrap() error {
	return e.Err
}

func (e *QueryExecutionError) Is(target error) bool {
	return target == ErrQueryExecution
}

// UpstreamServiceError wraps a failure of the measurement definition service.
type UpstreamServiceError struct {
	Service   string
	Operation string
	Err       error
}

func (e *UpstreamServiceError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Service, e.Operation, e.Err)
}

func (e *UpstreamServiceError) Unwrap() error {
	return e.Err
}

func (e *UpstreamServiceError) Is(target error) bool {
	return target == ErrUpstreamService
}

func invalidInput(field, format string, args ...interface{}) error {
	return &InvalidInputError{Field: field, Reason: fmt.Sprintf(format, args...)}
}
