package expreplay

import (
	"errors"
	"fmt"
)

// ExpReplayError implements errors unique to an experience replay
// buffer.
type ExpReplayError struct {
	Op  string
	Err error
}

// Error satisifes the error interface
func (e *ExpReplayError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

// Unwrap returns the underlying error
func (e *ExpReplayError) Unwrap() error {
	return e.Err
}

// ErrInsufficientData is returned when more transitions are requested
// than the buffer holds
var ErrInsufficientData = errors.New("insufficient data in buffer")

// IsInsufficientData returns whether or not an error reports that
// there are insufficient samples in the buffer to sample from the
// buffer.
func IsInsufficientData(err error) bool {
	return errors.Is(err, ErrInsufficientData)
}

// PersistenceError is returned when a snapshot of the buffer cannot be
// written or read. Callers recover from it by starting from an empty
// buffer.
type PersistenceError struct {
	Op  string
	Err error
}

// Error satisifes the error interface
func (p *PersistenceError) Error() string {
	return fmt.Sprintf("%v: persistence: %v", p.Op, p.Err)
}

// Unwrap returns the underlying error
func (p *PersistenceError) Unwrap() error {
	return p.Err
}

// ErrNoSnapshot is returned when restoring from a snapshot that does
// not exist
var ErrNoSnapshot = errors.New("no snapshot")

// IsPersistence returns whether err is, or wraps, a *PersistenceError
func IsPersistence(err error) bool {
	var p *PersistenceError
	return errors.As(err, &p)
}
