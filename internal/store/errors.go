package store

import (
	"errors"
	"fmt"
)

var (
	// ErrDataAccess matches every failure returned by Store operations.
	ErrDataAccess = errors.New("data access failed")
	// ErrQuery matches failures raised by the database while running a statement.
	ErrQuery = errors.New("query failed")

	ErrUnknownIdentifier = errors.New("identifier not allowed")
	ErrUnsafeClause      = errors.New("unsafe where clause")
	ErrInvalidInput      = errors.New("invalid store input")
)

// QueryError wraps a statement failure. The surrounding transaction has already
// been rolled back when it is returned.
type QueryError struct {
	Op    string
	Table string
	Err   error
}

func (e *QueryError) Error() string {
	if e.Table != "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Table, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *QueryError) Unwrap() error { return e.Err }

func (e *QueryError) Is(target error) bool {
	return target == ErrQuery || target == ErrDataAccess
}
