package uart

import (
	"errors"
	"fmt"
	"time"

	"github.com/bigbag/slipuart/internal/logger"
	"github.com/bigbag/slipuart/internal/reactor"
	"github.com/bigbag/slipuart/internal/serial"
)

// Op identifies the operation abandoned on an I/O error.
type Op uint8

const (
	OpBlockRead Op = iota
	OpBlockWrite
	OpFrameRead
	OpFrameWrite
)

func (op Op) String() string {
	switch op {
	case OpBlockRead:
		return "block read"
	case OpBlockWrite:
		return "block write"
	case OpFrameRead:
		return "frame read"
	case OpFrameWrite:
		return "frame write"
	default:
		return fmt.Sprintf("op(%d)", uint8(op))
	}
}

// Handlers are the completion notifications of a transport. Nil entries are
// skipped. They run on the reactor goroutine and may issue new requests.
type Handlers struct {
	BlockSent     func()
	BlockReceived func()
	FrameSent     func()
	// FrameReceived reports the decoded length of a frame written into the
	// buffer passed to ReceiveFrame.
	FrameReceived func(size int)
	// IOError reports an operation abandoned on a hard I/O error.
	IOError func(op Op, err error)
}

// mode is the discipline of the outstanding operation in one direction.
type mode uint8

const (
	modeIdle mode = iota
	modeBlock
	modeFrame
)

// Transport is one open serial link. See the package documentation for the
// threading rules.
type Transport struct {
	cfg      *Config
	reactor  reactor.Reactor
	dev      serial.Device
	fd       int
	name     string
	logger   logger.Logger
	metrics  *Metrics
	handlers Handlers

	baudRate    int
	parity      bool
	flowControl bool

	readMode  mode
	writeMode mode
	blockRx   blockReader
	blockTx   blockWriter
	rx        frameReceiver
	tx        frameSender
}

// Open opens device, configures it for raw non-blocking use and registers
// its descriptor with r. Interest is not armed until a request is made.
func Open(r reactor.Reactor, device string, opts ...Option) (*Transport, error) {
	cfg, err := NewConfig(opts...)
	if err != nil {
		return nil, err
	}

	log := cfg.logger.With("device", device)
	log.Info("opening serial device", "baudRate", cfg.baudRate, "flowControl", cfg.flowControl, "parity", cfg.parity)

	dev, err := cfg.opener(device, serial.Mode{
		BaudRate:    cfg.baudRate,
		Parity:      cfg.parity,
		FlowControl: cfg.flowControl,
	})
	if err != nil {
		log.Error("failed to open serial device", "error", err)
		return nil, fmt.Errorf("%w: %s: %w", ErrOpen, device, err)
	}

	t := &Transport{
		cfg:         cfg,
		reactor:     r,
		dev:         dev,
		fd:          dev.Fd(),
		name:        device,
		logger:      log,
		metrics:     &Metrics{},
		baudRate:    cfg.baudRate,
		parity:      cfg.parity,
		flowControl: cfg.flowControl,
		rx:          frameReceiver{buf: make([]byte, cfg.receiveBufferSize)},
		tx:          frameSender{chunk: make([]byte, cfg.chunkSize)},
	}

	if err := r.Register(t.fd, t.handleEvent); err != nil {
		_ = dev.Close()
		log.Error("failed to register serial device", "fd", t.fd, "error", err)
		return nil, fmt.Errorf("%w: %w", ErrRegister, err)
	}

	if cfg.settleDelay > 0 {
		time.Sleep(cfg.settleDelay)
	}

	log.Debug("serial device ready", "fd", t.fd)

	return t, nil
}

// Close unregisters the descriptor from the reactor, then closes the
// device. Outstanding operations are dropped without notification. Calling
// Close on a closed transport is a no-op.
func (t *Transport) Close() error {
	if t.dev == nil {
		return nil
	}

	var errs []error
	if err := t.reactor.Unregister(t.fd); err != nil {
		errs = append(errs, fmt.Errorf("uart: unregister: %w", err))
	}
	if err := t.dev.Close(); err != nil {
		errs = append(errs, fmt.Errorf("uart: close: %w", err))
	}

	t.dev = nil
	t.fd = -1
	t.readMode = modeIdle
	t.writeMode = modeIdle
	t.blockRx = blockReader{}
	t.blockTx = blockWriter{}
	t.rx.reset()
	t.tx.reset()

	t.logger.Info("serial device closed")

	return errors.Join(errs...)
}

// SetHandlers replaces the completion handlers.
func (t *Transport) SetHandlers(h Handlers) {
	t.handlers = h
}

// SetBaudRate changes the line speed. The previous rate stays in effect on failure.
func (t *Transport) SetBaudRate(rate int) error {
	if t.dev == nil {
		return ErrClosed
	}

	t.logger.Info("setting baud rate", "baudRate", rate)
	if err := t.dev.SetBaudRate(rate); err != nil {
		t.logger.Error("failed to set baud rate", "baudRate", rate, "error", err)
		return fmt.Errorf("%w: %d: %w", ErrSetBaudRate, rate, err)
	}
	t.baudRate = rate

	return nil
}

// SetParity toggles even parity.
func (t *Transport) SetParity(enabled bool) error {
	if t.dev == nil {
		return ErrClosed
	}

	t.logger.Info("setting parity", "parity", enabled)
	if err := t.dev.SetParity(enabled); err != nil {
		t.logger.Error("failed to set parity", "parity", enabled, "error", err)
		return fmt.Errorf("%w: %w", ErrSetParity, err)
	}
	t.parity = enabled

	return nil
}

// SetFlowControl toggles RTS/CTS hardware flow control.
func (t *Transport) SetFlowControl(enabled bool) error {
	if t.dev == nil {
		return ErrClosed
	}

	t.logger.Info("setting flow control", "flowControl", enabled)
	if err := t.dev.SetFlowControl(enabled); err != nil {
		t.logger.Error("failed to set flow control", "flowControl", enabled, "error", err)
		return fmt.Errorf("%w: %w", ErrSetFlowControl, err)
	}
	t.flowControl = enabled

	return nil
}

// Device returns the device path passed to Open.
func (t *Transport) Device() string { return t.name }

// Fd returns the descriptor, or -1 once closed.
func (t *Transport) Fd() int { return t.fd }

// IsOpen reports whether the device is open.
func (t *Transport) IsOpen() bool { return t.dev != nil }

// BaudRate returns the current line speed.
func (t *Transport) BaudRate() int { return t.baudRate }

// Parity reports whether even parity is enabled.
func (t *Transport) Parity() bool { return t.parity }

// FlowControl reports whether RTS/CTS flow control is enabled.
func (t *Transport) FlowControl() bool { return t.flowControl }

// Metrics returns the transport counters.
func (t *Transport) Metrics() *Metrics { return t.metrics }

// Config returns the configuration the transport was opened with.
func (t *Transport) Config() *Config { return t.cfg }

func (t *Transport) checkRead(buf []byte) error {
	switch {
	case t.dev == nil:
		return ErrClosed
	case t.readMode != modeIdle:
		return ErrBusy
	case len(buf) == 0:
		return ErrEmptyBuffer
	}
	return nil
}

func (t *Transport) checkWrite(buf []byte) error {
	switch {
	case t.dev == nil:
		return ErrClosed
	case t.writeMode != modeIdle:
		return ErrBusy
	case len(buf) == 0:
		return ErrEmptyBuffer
	}
	return nil
}

func (t *Transport) arm(events reactor.EventType) error {
	if err := t.reactor.Arm(t.fd, events); err != nil {
		t.logger.Error("failed to arm readiness", "events", events, "error", err)
		return fmt.Errorf("%w: %w", ErrArm, err)
	}
	return nil
}

func (t *Transport) disarm(events reactor.EventType) {
	if err := t.reactor.Disarm(t.fd, events); err != nil {
		t.logger.Warn("failed to disarm readiness", "events", events, "error", err)
	}
}

// checkSlow logs a single read or write that took longer than the
// configured threshold.
func (t *Transport) checkSlow(op string, start time.Time) {
	if t.cfg.slowIOThreshold <= 0 {
		return
	}
	if d := t.reactor.Now().Sub(start); d > t.cfg.slowIOThreshold {
		t.logger.Info("slow serial I/O", "op", op, "took", d)
	}
}

// failRead abandons the outstanding read operation.
func (t *Transport) failRead(err error) {
	op := OpBlockRead
	if t.readMode == modeFrame {
		op = OpFrameRead
	}

	t.logger.Error("read failed, operation abandoned", "op", op, "error", err)
	t.metrics.incIOErrorCount()
	t.disarm(reactor.EventRead)
	t.readMode = modeIdle
	t.blockRx = blockReader{}

	if h := t.handlers.IOError; h != nil {
		h(op, err)
	}
}

// failWrite abandons the outstanding write operation.
func (t *Transport) failWrite(err error) {
	op := OpBlockWrite
	if t.writeMode == modeFrame {
		op = OpFrameWrite
	}

	t.logger.Error("write failed, operation abandoned", "op", op, "error", err)
	t.metrics.incIOErrorCount()
	t.disarm(reactor.EventWrite)
	t.writeMode = modeIdle
	t.blockTx = blockWriter{}
	t.tx.reset()

	if h := t.handlers.IOError; h != nil {
		h(op, err)
	}
}
