package scheduler

import (
	"errors"
	"fmt"
)

var (
	// ErrSystemFault wraps a panic or error raised by a system's Run.
	ErrSystemFault = errors.New("scheduler: system fault")
	// ErrBusy is returned when RunFrame is called while a frame is running.
	ErrBusy = errors.New("scheduler: frame already running")
	// ErrClosed is returned by RunFrame after Close.
	ErrClosed = errors.New("scheduler: closed")
	// ErrDuplicateSystem reports two systems sharing a name.
	ErrDuplicateSystem = errors.New("scheduler: duplicate system name")
	// ErrInvalidSystem reports a malformed system descriptor.
	ErrInvalidSystem = errors.New("scheduler: invalid system")
)

// Fault records a system that panicked or returned an error during a frame.
// Its writes for that frame may be partial.
type Fault struct {
	Err    error
	System string
	Wave   int
}

func (f Fault) Error() string {
	return fmt.Sprintf("system %q (wave %d): %v", f.System, f.Wave, f.Err)
}

func (f Fault) Unwrap() error {
	return f.Err
}

// panicError turns a recovered value into an error wrapping ErrSystemFault
// and, when the value is itself an error, that error too.
func panicError(r any) error {
	if err, ok := r.(error); ok {
		return fmt.Errorf("%w: panic: %w", ErrSystemFault, err)
	}
	return fmt.Errorf("%w: panic: %v", ErrSystemFault, r)
}
