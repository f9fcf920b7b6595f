package uart

import (
	"errors"

	"github.com/bigbag/slipuart/internal/reactor"
	"github.com/bigbag/slipuart/internal/serial"
)

// blockWriter holds the unwritten tail of the outgoing buffer. Frame mode
// reuses it for each encoded chunk.
type blockWriter struct {
	pending []byte
}

// blockReader holds the unfilled tail of the receive buffer.
type blockReader struct {
	pending []byte
}

// SendBlock writes all of buf, then calls Handlers.BlockSent. buf must stay
// untouched until then.
func (t *Transport) SendBlock(buf []byte) error {
	if err := t.checkWrite(buf); err != nil {
		return err
	}

	t.writeMode = modeBlock
	t.blockTx.pending = buf
	if err := t.arm(reactor.EventWrite); err != nil {
		t.writeMode = modeIdle
		t.blockTx = blockWriter{}
		return err
	}

	return nil
}

// ReceiveBlock fills all of buf, then calls Handlers.BlockReceived.
func (t *Transport) ReceiveBlock(buf []byte) error {
	if err := t.checkRead(buf); err != nil {
		return err
	}

	t.readMode = modeBlock
	t.blockRx.pending = buf
	if err := t.arm(reactor.EventRead); err != nil {
		t.readMode = modeIdle
		t.blockRx = blockReader{}
		return err
	}

	return nil
}

// writeReady performs one write of the pending bytes and reports whether
// they are now all written. Write interest is disarmed on completion.
func (t *Transport) writeReady() bool {
	w := &t.blockTx
	if len(w.pending) == 0 {
		t.logger.Debug("write ready without pending data")
		t.disarm(reactor.EventWrite)
		return false
	}

	start := t.reactor.Now()
	n, err := t.dev.Write(w.pending)
	t.checkSlow("write", start)

	switch {
	case errors.Is(err, serial.ErrWouldBlock):
		// interest stays armed
		t.metrics.incWouldBlockCount()
		return false
	case err != nil:
		t.failWrite(err)
		return false
	case n <= 0:
		t.failWrite(ErrZeroWrite)
		return false
	}

	t.metrics.addBytesWritten(n)
	w.pending = w.pending[n:]
	if len(w.pending) > 0 {
		return false
	}

	w.pending = nil
	t.disarm(reactor.EventWrite)

	return true
}

func (t *Transport) blockWriteReady() {
	if !t.writeReady() {
		return
	}

	t.writeMode = modeIdle
	t.metrics.incBlockSendCount()
	if h := t.handlers.BlockSent; h != nil {
		h()
	}
}

func (t *Transport) blockReadReady() {
	r := &t.blockRx
	if len(r.pending) == 0 {
		t.logger.Debug("read ready without pending block")
		t.disarm(reactor.EventRead)
		return
	}

	start := t.reactor.Now()
	n, err := t.dev.Read(r.pending)
	t.checkSlow("read", start)

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

	t.metrics.addBytesRead(n)
	r.pending = r.pending[n:]
	if len(r.pending) > 0 {
		return
	}

	r.pending = nil
	t.disarm(reactor.EventRead)
	t.readMode = modeIdle
	t.metrics.incBlockRecvCount()
	if h := t.handlers.BlockReceived; h != nil {
		h()
	}
}
