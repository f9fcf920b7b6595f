// Package link is a blocking, goroutine-safe facade over uart.Transport.
//
// A Link owns a reactor loop running on its own goroutine. Every transport
// call is posted onto that loop and the caller waits for the completion
// handler, the context, or Close, whichever comes first.
//
// A request abandoned through its context keeps its direction busy until the
// transport completes it; the next call in that direction waits for that.
// A frame received for an abandoned ReadFrame is kept and returned by the
// next ReadFrame, so a caller that retries after a timeout does not lose it.
// Data is copied on the way in and out, so an abandoned request never
// touches caller memory.
package link

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/bigbag/slipuart/internal/logger"
	"github.com/bigbag/slipuart/internal/reactor"
	"github.com/bigbag/slipuart/internal/uart"
)

// MaxFrameSize is the largest frame ReadFrame accepts. Longer frames are
// dropped by the decoder and counted in Metrics.DecodeErrorCount.
const MaxFrameSize = 4096

var ErrClosed = errors.New("link: closed")

type result struct {
	data []byte
	err  error
}

const (
	reqPending int32 = iota
	reqDelivered
	reqAbandoned
)

type request struct {
	buf   []byte
	frame bool
	done  chan result
	state atomic.Int32
}

func newRequest(buf []byte) *request {
	return &request{buf: buf, done: make(chan result, 1)}
}

// deliver hands res to the waiter. It reports false if the waiter is gone.
func (r *request) deliver(res result) bool {
	if !r.state.CompareAndSwap(reqPending, reqDelivered) {
		return false
	}
	r.done <- res
	return true
}

// abandon reports false if a result was already delivered.
func (r *request) abandon() bool {
	return r.state.CompareAndSwap(reqPending, reqAbandoned)
}

// Link is a serial link usable from any goroutine.
type Link struct {
	loop   reactor.Loop
	tr     *uart.Transport
	logger logger.Logger

	// txSlot and rxSlot hold one token per outstanding operation; the loop
	// releases it on completion.
	txSlot chan struct{}
	rxSlot chan struct{}

	// tx, rx and unclaimed are owned by the loop goroutine.
	tx *request
	rx *request
	// unclaimed holds frames received for abandoned ReadFrame calls.
	unclaimed [][]byte

	cancel    context.CancelFunc
	done      chan struct{}
	closed    chan struct{}
	closeOnce sync.Once
	closeErr  error
}

// Open opens device and starts its reactor loop.
func Open(device string, opts ...uart.Option) (*Link, error) {
	cfg, err := uart.NewConfig(opts...)
	if err != nil {
		return nil, err
	}
	log := cfg.GetLogger()

	loop, err := reactor.NewLoop(log)
	if err != nil {
		return nil, fmt.Errorf("link: %w", err)
	}

	tr, err := uart.Open(loop, device, opts...)
	if err != nil {
		_ = loop.Close()
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	l := &Link{
		loop:   loop,
		tr:     tr,
		logger: log.With("device", device),
		txSlot: make(chan struct{}, 1),
		rxSlot: make(chan struct{}, 1),
		cancel: cancel,
		done:   make(chan struct{}),
		closed: make(chan struct{}),
	}

	tr.SetHandlers(uart.Handlers{
		BlockSent:     func() { l.completeTx(nil) },
		FrameSent:     func() { l.completeTx(nil) },
		BlockReceived: l.blockReceived,
		FrameReceived: l.frameReceived,
		IOError:       l.ioError,
	})

	go l.run(ctx)

	return l, nil
}

func (l *Link) run(ctx context.Context) {
	defer close(l.done)

	if err := l.loop.Run(ctx); err != nil {
		l.logger.Error("reactor loop stopped", "error", err)
	}
}

// WriteFrame sends p as one SLIP frame.
func (l *Link) WriteFrame(ctx context.Context, p []byte) error {
	_, err := l.do(ctx, l.txSlot, func(req *request) error {
		l.tx = req
		return l.tr.SendFrame(req.buf)
	}, bytes.Clone(p))

	return err
}

// ReadFrame returns the next frame.
func (l *Link) ReadFrame(ctx context.Context) ([]byte, error) {
	return l.do(ctx, l.rxSlot, func(req *request) error {
		req.frame = true
		if len(l.unclaimed) > 0 {
			frame := l.unclaimed[0]
			l.unclaimed = l.unclaimed[1:]
			l.finish(l.rxSlot, req, result{data: frame})
			return nil
		}
		l.rx = req
		return l.tr.ReceiveFrame(req.buf)
	}, make([]byte, MaxFrameSize))
}

// WriteBlock writes all of p.
func (l *Link) WriteBlock(ctx context.Context, p []byte) error {
	_, err := l.do(ctx, l.txSlot, func(req *request) error {
		l.tx = req
		return l.tr.SendBlock(req.buf)
	}, bytes.Clone(p))

	return err
}

// ReadBlock reads exactly n bytes.
func (l *Link) ReadBlock(ctx context.Context, n int) ([]byte, error) {
	if n <= 0 {
		return nil, uart.ErrEmptyBuffer
	}

	return l.do(ctx, l.rxSlot, func(req *request) error {
		l.rx = req
		return l.tr.ReceiveBlock(req.buf)
	}, make([]byte, n))
}

// SetBaudRate changes the line speed.
func (l *Link) SetBaudRate(rate int) error {
	return l.call(func() error { return l.tr.SetBaudRate(rate) })
}

// Metrics returns the transport counters.
func (l *Link) Metrics() *uart.Metrics {
	return l.tr.Metrics()
}

// Device returns the device path.
func (l *Link) Device() string {
	return l.tr.Device()
}

// Close closes the transport and stops the loop. Blocked calls return
// ErrClosed. It is safe to call more than once.
func (l *Link) Close() error {
	l.closeOnce.Do(func() {
		errc := make(chan error, 1)
		err := l.loop.Post(func() {
			errc <- l.tr.Close()
			l.fail(ErrClosed)
		})

		if err == nil {
			select {
			case err = <-errc:
			case <-l.done:
				err = l.tr.Close()
			}
		} else {
			err = l.tr.Close()
		}

		close(l.closed)
		l.cancel()
		<-l.done

		l.closeErr = errors.Join(err, l.loop.Close())
		l.logger.Debug("link closed")
	})

	return l.closeErr
}

// do acquires slot, starts the operation on the loop and waits for it.
func (l *Link) do(ctx context.Context, slot chan struct{}, start func(*request) error, buf []byte) ([]byte, error) {
	select {
	case slot <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-l.closed:
		return nil, ErrClosed
	}

	req := newRequest(buf)
	err := l.loop.Post(func() {
		if err := start(req); err != nil {
			l.finish(slot, req, result{err: err})
		}
	})
	if err != nil {
		<-slot
		return nil, ErrClosed
	}

	select {
	case res := <-req.done:
		return res.data, res.err
	case <-ctx.Done():
		err = ctx.Err()
	case <-l.closed:
		err = ErrClosed
	case <-l.done:
		err = ErrClosed
	}

	if !req.abandon() {
		// completed while we were giving up
		res := <-req.done
		return res.data, res.err
	}
	return nil, err
}

// call runs fn on the loop and returns its error.
func (l *Link) call(fn func() error) error {
	errc := make(chan error, 1)
	if err := l.loop.Post(func() { errc <- fn() }); err != nil {
		return ErrClosed
	}

	select {
	case err := <-errc:
		return err
	case <-l.done:
		return ErrClosed
	}
}

// finish delivers res and releases slot. Loop goroutine only.
func (l *Link) finish(slot chan struct{}, req *request, res result) {
	if l.tx == req {
		l.tx = nil
	}
	if l.rx == req {
		l.rx = nil
	}
	if !req.deliver(res) && req.frame && res.err == nil {
		l.logger.Debug("keeping frame of abandoned read", "size", len(res.data))
		l.unclaimed = append(l.unclaimed, res.data)
	}
	<-slot
}

func (l *Link) completeTx(err error) {
	if req := l.tx; req != nil {
		l.finish(l.txSlot, req, result{err: err})
	}
}

func (l *Link) blockReceived() {
	if req := l.rx; req != nil {
		l.finish(l.rxSlot, req, result{data: req.buf})
	}
}

func (l *Link) frameReceived(size int) {
	if req := l.rx; req != nil {
		l.finish(l.rxSlot, req, result{data: bytes.Clone(req.buf[:size])})
	}
}

func (l *Link) ioError(op uart.Op, err error) {
	err = fmt.Errorf("link: %s: %w", op, err)
	switch op {
	case uart.OpBlockWrite, uart.OpFrameWrite:
		l.completeTx(err)
	default:
		if req := l.rx; req != nil {
			l.finish(l.rxSlot, req, result{err: err})
		}
	}
}

// fail completes every outstanding request with err.
func (l *Link) fail(err error) {
	l.completeTx(err)
	if req := l.rx; req != nil {
		l.finish(l.rxSlot, req, result{err: err})
	}
}
