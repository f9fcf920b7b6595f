package uart

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bigbag/slipuart/internal/logger"
	"github.com/bigbag/slipuart/internal/reactor"
	"github.com/bigbag/slipuart/internal/serial"
)

const testFd = 42

var errIO = errors.New("input/output error")

// fakeReactor records interest and lets tests fire readiness by hand.
type fakeReactor struct {
	callbacks map[int]reactor.Callback
	armed     map[int]reactor.EventType
	now       time.Time
	step      time.Duration
	armErr    error
	journal   *[]string
}

func newFakeReactor() *fakeReactor {
	return &fakeReactor{
		callbacks: make(map[int]reactor.Callback),
		armed:     make(map[int]reactor.EventType),
		now:       time.Unix(1700000000, 0),
		step:      time.Millisecond,
	}
}

func (r *fakeReactor) record(s string) {
	if r.journal != nil {
		*r.journal = append(*r.journal, s)
	}
}

func (r *fakeReactor) Register(fd int, cb reactor.Callback) error {
	if _, ok := r.callbacks[fd]; ok {
		return reactor.ErrRegistered
	}
	r.callbacks[fd] = cb
	r.record("register")
	return nil
}

func (r *fakeReactor) Arm(fd int, events reactor.EventType) error {
	if r.armErr != nil {
		return r.armErr
	}
	if _, ok := r.callbacks[fd]; !ok {
		return reactor.ErrNotRegistered
	}
	r.armed[fd] |= events
	return nil
}

func (r *fakeReactor) Disarm(fd int, events reactor.EventType) error {
	if _, ok := r.callbacks[fd]; !ok {
		return reactor.ErrNotRegistered
	}
	r.armed[fd] &^= events
	return nil
}

func (r *fakeReactor) Unregister(fd int) error {
	if _, ok := r.callbacks[fd]; !ok {
		return reactor.ErrNotRegistered
	}
	delete(r.callbacks, fd)
	delete(r.armed, fd)
	r.record("unregister")
	return nil
}

// Now advances the clock by step on every call.
func (r *fakeReactor) Now() time.Time {
	r.now = r.now.Add(r.step)
	return r.now
}

func (r *fakeReactor) isArmed(fd int, events reactor.EventType) bool {
	return r.armed[fd]&events == events
}

// fire delivers events to fd when at least one of them is armed, mirroring
// the readiness filter of a real reactor.
func (r *fakeReactor) fire(fd int, events reactor.EventType) bool {
	cb, ok := r.callbacks[fd]
	if !ok {
		return false
	}
	ready := events & r.armed[fd]
	if ready == 0 {
		return false
	}
	cb(fd, ready)
	return true
}

// pump fires events while they stay armed, up to limit times, and returns
// the number of callbacks delivered.
func (r *fakeReactor) pump(fd int, events reactor.EventType, limit int) int {
	n := 0
	for n < limit && r.fire(fd, events) {
		n++
	}
	return n
}

// ioStep scripts one Read or Write result of fakeDevice.
type ioStep struct {
	data []byte // Read: bytes to return
	n    int    // Write: bytes to accept
	eof  bool   // return 0, nil
	err  error
}

// fakeDevice is a scripted serial.Device. Without a script reads would
// block and writes accept everything.
type fakeDevice struct {
	name    string
	fd      int
	mode    serial.Mode
	reads   []ioStep
	writes  []ioStep
	journal *[]string

	written    []byte
	readSizes  []int
	writeSizes []int
	closed     bool
	closeCalls int

	baudErr   error
	parityErr error
	flowErr   error
}

func newFakeDevice() *fakeDevice {
	return &fakeDevice{name: "/dev/ttyTEST0", fd: testFd}
}

// feed queues bytes as one read result.
func (d *fakeDevice) feed(data []byte) {
	d.reads = append(d.reads, ioStep{data: append([]byte(nil), data...)})
}

func (d *fakeDevice) Name() string { return d.name }
func (d *fakeDevice) Fd() int { return d.fd }

func (d *fakeDevice) Read(p []byte) (int, error) {
	d.readSizes = append(d.readSizes, len(p))
	if d.closed {
		return 0, serial.ErrClosed
	}
	if len(d.reads) == 0 {
		return 0, serial.ErrWouldBlock
	}

	step := &d.reads[0]
	switch {
	case step.err != nil:
		err := step.err
		d.reads = d.reads[1:]
		return 0, err
	case step.eof:
		d.reads = d.reads[1:]
		return 0, nil
	}

	n := copy(p, step.data)
	step.data = step.data[n:]
	if len(step.data) == 0 {
		d.reads = d.reads[1:]
	}
	return n, nil
}

func (d *fakeDevice) Write(p []byte) (int, error) {
	d.writeSizes = append(d.writeSizes, len(p))
	if d.closed {
		return 0, serial.ErrClosed
	}
	if len(d.writes) == 0 {
		d.written = append(d.written, p...)
		return len(p), nil
	}

	step := d.writes[0]
	d.writes = d.writes[1:]
	switch {
	case step.err != nil:
		return 0, step.err
	case step.eof:
		return 0, nil
	}

	n := min(step.n, len(p))
	d.written = append(d.written, p[:n]...)
	return n, nil
}

func (d *fakeDevice) SetBaudRate(rate int) error {
	if d.baudErr != nil {
		return d.baudErr
	}
	d.mode.BaudRate = rate
	return nil
}

func (d *fakeDevice) SetParity(enabled bool) error {
	if d.parityErr != nil {
		return d.parityErr
	}
	d.mode.Parity = enabled
	return nil
}

func (d *fakeDevice) SetFlowControl(enabled bool) error {
	if d.flowErr != nil {
		return d.flowErr
	}
	d.mode.FlowControl = enabled
	return nil
}

func (d *fakeDevice) Close() error {
	d.closeCalls++
	d.closed = true
	if d.journal != nil {
		*d.journal = append(*d.journal, "close")
	}
	return nil
}

func openerFor(dev *fakeDevice) serial.Opener {
	return func(name string, mode serial.Mode) (serial.Device, error) {
		dev.name = name
		dev.mode = mode
		return dev, nil
	}
}

// newTestTransport opens a transport over dev with a fake reactor.
func newTestTransport(t *testing.T, dev *fakeDevice, opts ...Option) (*Transport, *fakeReactor) {
	t.Helper()

	r := newFakeReactor()
	base := []Option{
		WithDeviceOpener(openerFor(dev)),
		WithSettleDelay(0),
		WithLogger(logger.NewSlog(logger.ErrorLevel, false)),
	}
	tr, err := Open(r, dev.name, append(base, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = tr.Close() })

	return tr, r
}

// recorder collects handler invocations.
type recorder struct {
	blockSent     int
	blockReceived int
	frameSent     int
	frames        []int
	ioErrors      []Op
	lastErr       error
}

func (rec *recorder) handlers() Handlers {
	return Handlers{
		BlockSent:     func() { rec.blockSent++ },
		BlockReceived: func() { rec.blockReceived++ },
		FrameSent:     func() { rec.frameSent++ },
		FrameReceived: func(size int) { rec.frames = append(rec.frames, size) },
		IOError: func(op Op, err error) {
			rec.ioErrors = append(rec.ioErrors, op)
			rec.lastErr = err
		},
	}
}
