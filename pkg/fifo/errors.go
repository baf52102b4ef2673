// SPDX-License-Identifier: MIT
package fifo

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration reports invalid construction parameters.
	ErrConfiguration = errors.New("fifo: invalid configuration")

	// ErrCapacity reports a non-blocking transfer larger than the data or
	// space currently available.
	ErrCapacity = errors.New("fifo: insufficient capacity")

	// ErrCancelled reports that a blocking transfer was aborted through an
	// injected error.
	ErrCancelled = errors.New("fifo: operation cancelled")
)

// Side selects the reading or writing end of a queue.
type Side uint8

const (
	SideReader Side = iota
	SideWriter
)

func (s Side) String() string {
	switch s {
	case SideReader:
		return "reader"
	case SideWriter:
		return "writer"
	default:
		return fmt.Sprintf("side(%d)", uint8(s))
	}
}

// CancelledError is returned by a blocked Read or Write after an error was
// injected for its side. It matches both ErrCancelled and Cause with
// errors.Is.
type CancelledError struct {
	Side  Side
	Cause error
}

func (e *CancelledError) Error() string {
	return fmt.Sprintf("fifo: %s cancelled: %v", e.Side, e.Cause)
}

func (e *CancelledError) Unwrap() []error {
	return []error{ErrCancelled, e.Cause}
}
