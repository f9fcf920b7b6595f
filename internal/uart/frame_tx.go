package uart

import (
	"github.com/bigbag/slipuart/internal/reactor"
	"github.com/bigbag/slipuart/internal/slip"
)

// frameSender encodes the outgoing frame into fixed-size chunks.
type frameSender struct {
	enc   slip.Encoder
	chunk []byte
}

func (s *frameSender) reset() {
	s.enc = slip.Encoder{}
}

// SendFrame SLIP-encodes frame and writes it in chunks of at most the
// configured chunk size, then calls Handlers.FrameSent. frame must stay
// untouched until then.
func (t *Transport) SendFrame(frame []byte) error {
	if err := t.checkWrite(frame); err != nil {
		return err
	}

	t.writeMode = modeFrame
	t.tx.enc.Start(frame)
	t.logger.Debug("sending frame", "size", len(frame))

	if err := t.sendChunk(); err != nil {
		t.writeMode = modeIdle
		t.blockTx = blockWriter{}
		t.tx.reset()
		return err
	}

	return nil
}

// sendChunk fills the chunk buffer from the encoder and hands it to the
// block writer.
func (t *Transport) sendChunk() error {
	n := 0
	for n < len(t.tx.chunk) && t.tx.enc.Pending() {
		t.tx.chunk[n] = t.tx.enc.Next()
		n++
	}

	t.blockTx.pending = t.tx.chunk[:n]
	t.metrics.incChunkSendCount()

	return t.arm(reactor.EventWrite)
}

func (t *Transport) frameWriteReady() {
	if !t.writeReady() {
		return
	}

	if t.tx.enc.Pending() {
		if err := t.sendChunk(); err != nil {
			t.failWrite(err)
		}
		return
	}

	t.writeMode = modeIdle
	t.metrics.incFrameSendCount()
	t.logger.Debug("frame sent")
	if h := t.handlers.FrameSent; h != nil {
		h()
	}
}
