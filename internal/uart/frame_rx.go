package uart

import (
	"errors"
	"time"

	"github.com/bigbag/slipuart/internal/reactor"
	"github.com/bigbag/slipuart/internal/serial"
	"github.com/bigbag/slipuart/internal/slip"
)

// frameReceiver buffers raw bytes between reads and decodes them into the
// caller's buffer. Bytes buf[pos:n] have been read but not yet decoded.
type frameReceiver struct {
	buf []byte
	pos int
	n   int
	dec slip.Decoder

	// trackStart is set by ReceiveFrame and cleared by the first read,
	// which records start.
	trackStart bool
	start      time.Time
}

func (r *frameReceiver) reset() {
	r.pos, r.n = 0, 0
	r.dec = slip.Decoder{}
	r.trackStart = false
	r.start = time.Time{}
}

// ReceiveFrame decodes the next frame into buf and calls
// Handlers.FrameReceived with its size. Bytes left over from an earlier read
// are decoded first; when they complete a frame the handler runs before
// ReceiveFrame returns and no read interest is armed. A frame longer than
// buf is dropped and the decoder moves on to the next one.
func (t *Transport) ReceiveFrame(buf []byte) error {
	if err := t.checkRead(buf); err != nil {
		return err
	}

	t.readMode = modeFrame
	t.rx.trackStart = true
	t.rx.dec.Init(buf)

	if t.rx.pos < t.rx.n && t.decodeBuffered() {
		return nil
	}

	if err := t.arm(reactor.EventRead); err != nil {
		t.readMode = modeIdle
		return err
	}

	return nil
}

func (t *Transport) frameReadReady() {
	rx := &t.rx
	now := t.reactor.Now()

	n, err := t.dev.Read(rx.buf)
	t.checkSlow("read", now)

	switch {
	case errors.Is(err, serial.ErrWouldBlock):
		t.metrics.incWouldBlockCount()
		return
	case err != nil:
		t.failRead(err)
		return
	case n <= 0:
		t.failRead(ErrZeroRead)
		return
	}

	// timing starts with the first read that returned data
	if rx.trackStart {
		rx.trackStart = false
		rx.start = now
	}

	t.metrics.addBytesRead(n)
	rx.pos, rx.n = 0, n
	t.decodeBuffered()
}

// decodeBuffered feeds buffered bytes to the decoder until a frame completes
// or the buffer runs out, and reports whether a frame was delivered. The
// handler is invoked last; the receiver is not touched after it returns.
func (t *Transport) decodeBuffered() bool {
	rx := &t.rx
	overflows := rx.dec.Overflows()

	size := 0
	for rx.pos < rx.n && size == 0 {
		size = rx.dec.Feed(rx.buf[rx.pos])
		rx.pos++
	}
	if rx.pos == rx.n {
		rx.pos, rx.n = 0, 0
	}

	if dropped := rx.dec.Overflows() - overflows; dropped > 0 {
		t.metrics.addDecodeErrorCount(dropped)
		t.logger.Warn("dropped oversized frame", "count", dropped)
	}

	if size == 0 {
		return false
	}

	t.readMode = modeIdle
	t.disarm(reactor.EventRead)

	if !rx.trackStart {
		elapsed := t.reactor.Now().Sub(rx.start)
		t.metrics.setLastFrameReceiveTime(elapsed)
		t.logger.Debug("frame received", "size", size, "took", elapsed)
	} else {
		t.logger.Debug("frame received from buffer", "size", size)
	}

	t.metrics.incFrameRecvCount()
	if h := t.handlers.FrameReceived; h != nil {
		h(size)
	}

	return true
}
