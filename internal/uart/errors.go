package uart

import "errors"

var (
	// ErrClosed is returned by requests on a closed transport.
	ErrClosed = errors.New("uart: transport closed")
	// ErrBusy is returned when the direction already has an outstanding operation.
	ErrBusy = errors.New("uart: operation already in progress")
	// ErrEmptyBuffer is returned for zero-length requests.
	ErrEmptyBuffer = errors.New("uart: empty buffer")

	ErrOpen           = errors.New("uart: open failed")
	ErrRegister       = errors.New("uart: reactor registration failed")
	ErrArm            = errors.New("uart: arming readiness failed")
	ErrSetBaudRate    = errors.New("uart: set baud rate failed")
	ErrSetParity      = errors.New("uart: set parity failed")
	ErrSetFlowControl = errors.New("uart: set flow control failed")

	// ErrZeroWrite is reported when the device accepts no bytes.
	ErrZeroWrite = errors.New("uart: wrote zero bytes")
	// ErrZeroRead is reported when a readable device returns no bytes.
	ErrZeroRead = errors.New("uart: read zero bytes")
)
