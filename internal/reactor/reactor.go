// Package reactor provides readiness notification for file descriptors.
//
// A Reactor delivers read/write readiness to one callback per descriptor.
// Interest starts disarmed at Register and is switched per direction with
// Arm and Disarm. Callbacks for one descriptor never run concurrently.
package reactor

import (
	"context"
	"errors"
	"time"
)

// EventType is a set of readiness conditions.
type EventType uint8

const (
	EventRead EventType = 1 << iota
	EventWrite
	// EventError is reported together with the armed directions when the
	// descriptor is in an error or hang-up state.
	EventError
)

// String returns a compact form such as "rw" or "r!".
func (e EventType) String() string {
	s := ""
	if e&EventRead != 0 {
		s += "r"
	}
	if e&EventWrite != 0 {
		s += "w"
	}
	if e&EventError != 0 {
		s += "!"
	}
	if s == "" {
		return "-"
	}
	return s
}

// Callback is invoked with the ready conditions of fd.
type Callback func(fd int, events EventType)

var (
	ErrNotRegistered = errors.New("reactor: descriptor not registered")
	ErrRegistered    = errors.New("reactor: descriptor already registered")
	ErrRunning       = errors.New("reactor: loop already running")
	ErrClosed        = errors.New("reactor: closed")
	ErrNotSupported  = errors.New("reactor: not supported on this platform")
)

// Reactor is the readiness contract used by the transport.
type Reactor interface {
	// Register adds fd with no interest armed.
	Register(fd int, cb Callback) error
	// Arm enables notification for the given directions.
	Arm(fd int, events EventType) error
	// Disarm disables notification for the given directions.
	Disarm(fd int, events EventType) error
	// Unregister removes fd; no callback for it runs afterwards.
	Unregister(fd int) error
	// Now returns the loop's monotonic clock.
	Now() time.Time
}

// Loop is a Reactor that owns its dispatch goroutine.
//
// Post is the only method safe to call from other goroutines while Run is
// active; everything else must happen inside a callback or a posted task.
type Loop interface {
	Reactor
	// Run dispatches events and posted tasks until ctx is done.
	Run(ctx context.Context) error
	// Post queues fn to run on the loop goroutine.
	Post(fn func()) error
	// Close releases the loop's descriptors.
	Close() error
}
