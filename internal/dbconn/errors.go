package dbconn

import (
	"errors"
	"fmt"
)

// ErrConnection matches every *ConnectionError via errors.Is.
var ErrConnection = errors.New("database connection error")

var errNotConnected = errors.New("connection is not alive")

// ConnectionError reports a failure to establish or keep the database connection.
type ConnectionError struct {
	Op  string
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

func (e *ConnectionError) Is(target error) bool { return target == ErrConnection }
