package transfer

import (
	"bytes"
	"context"
	"crypto/md5"
	"fmt"
	"hash"
	"io"
	"time"

	"github.com/bigbag/slipuart/internal/logger"
)

// Receiver writes an incoming stream to an io.Writer.
type Receiver struct {
	conn     FrameConn
	progress ProgressCallback
	onInfo   func(FileInfo) error
	info     *FileInfo
	linger   time.Duration
	logger   logger.Logger
}

// DefaultLinger covers one sender ack timeout plus the resend.
const DefaultLinger = DefaultAckTimeout + time.Second

// NewReceiver creates a Receiver on conn.
func NewReceiver(conn FrameConn) *Receiver {
	return &Receiver{conn: conn, linger: DefaultLinger, logger: logger.GetLogger()}
}

// SetLinger sets how long Receive keeps answering repeated packets after
// the End packet was acknowledged. It should exceed the sender's ack
// timeout. Zero returns right after End.
func (r *Receiver) SetLinger(d time.Duration) {
	r.linger = d
}

// SetProgressCallback sets the progress callback function. The total is
// taken from the Info packet, or reported as -1 until End arrives.
func (r *Receiver) SetProgressCallback(cb ProgressCallback) {
	r.progress = cb
}

// SetInfoCallback sets a function called when the Info packet arrives,
// before any data is written. An error aborts the transfer.
func (r *Receiver) SetInfoCallback(fn func(FileInfo) error) {
	r.onInfo = fn
}

// Info returns the file metadata sent by the peer, or nil.
func (r *Receiver) Info() *FileInfo {
	return r.info
}

// SetLogger sets the logger.
func (r *Receiver) SetLogger(l logger.Logger) {
	r.logger = l
}

// Receive reads packets until End, verifies the stream and returns the
// number of bytes written to w.
func (r *Receiver) Receive(ctx context.Context, w io.Writer) (int64, error) {
	var (
		expected uint32
		written  int64
		sum      hash.Hash = md5.New()
	)

	for {
		frame, err := r.conn.ReadFrame(ctx)
		if err != nil {
			return written, err
		}

		p, err := DecodePacket(frame)
		if err != nil {
			r.logger.Warn("ignoring malformed packet", "error", err)
			continue
		}

		switch {
		case p.Type == TypeAck:
			continue
		case p.Seq < expected:
			// our Ack was lost and the sender retried
			r.logger.Debug("duplicate packet", "seq", p.Seq)
			if err := r.ack(ctx, p.Seq, StatusOK); err != nil {
				return written, err
			}
			continue
		case p.Seq > expected:
			_ = r.ack(ctx, p.Seq, StatusBadSequence)
			return written, fmt.Errorf("unexpected packet %d, want %d", p.Seq, expected)
		}

		switch p.Type {
		case TypeEnd:
			if err := r.finish(ctx, p, written, sum.Sum(nil)); err != nil {
				return written, err
			}
			r.lingerAfterEnd(ctx, p.Seq)
			return written, nil
		case TypeInfo:
			if err := r.handleInfo(ctx, p); err != nil {
				return written, err
			}
			expected++
			continue
		}

		if _, err := w.Write(p.Data); err != nil {
			_ = r.ack(ctx, p.Seq, StatusWriteError)
			return written, fmt.Errorf("write block %d: %w", p.Seq, err)
		}
		sum.Write(p.Data)
		written += int64(len(p.Data))
		expected++

		if err := r.ack(ctx, p.Seq, StatusOK); err != nil {
			return written, err
		}
		if r.progress != nil {
			r.progress(written, r.total())
		}
	}
}

func (r *Receiver) handleInfo(ctx context.Context, p *Packet) error {
	info, err := p.Info()
	if err != nil {
		_ = r.ack(ctx, p.Seq, StatusBadInfo)
		return err
	}

	if r.onInfo != nil {
		if err := r.onInfo(info); err != nil {
			_ = r.ack(ctx, p.Seq, StatusWriteError)
			return err
		}
	}
	r.info = &info
	r.logger.Info("incoming file", "name", info.Name, "size", info.Size)

	return r.ack(ctx, p.Seq, StatusOK)
}

func (r *Receiver) total() int64 {
	if r.info == nil {
		return -1
	}
	return r.info.Size
}

func (r *Receiver) finish(ctx context.Context, p *Packet, written int64, got []byte) error {
	size, want, err := p.EndInfo()
	if err != nil {
		_ = r.ack(ctx, p.Seq, StatusBadSize)
		return err
	}

	if int64(size) != written {
		_ = r.ack(ctx, p.Seq, StatusBadSize)
		return fmt.Errorf("size mismatch: expected %d, got %d", size, written)
	}
	if !bytes.Equal(want[:], got) {
		_ = r.ack(ctx, p.Seq, StatusBadChecksum)
		return fmt.Errorf("MD5 mismatch: expected %x, got %x", want, got)
	}

	if r.progress != nil {
		r.progress(written, written)
	}
	r.logger.Info("transfer received", "size", written)

	return r.ack(ctx, p.Seq, StatusOK)
}

// lingerAfterEnd re-acks repeats of the last packets until the line has
// been quiet for the linger period, so a sender that lost the End Ack still
// completes. The transfer is already verified; errors here are not reported.
func (r *Receiver) lingerAfterEnd(ctx context.Context, end uint32) {
	for r.linger > 0 {
		lctx, cancel := context.WithTimeout(ctx, r.linger)
		frame, err := r.conn.ReadFrame(lctx)
		cancel()
		if err != nil {
			return
		}

		p, err := DecodePacket(frame)
		if err != nil || p.Type == TypeAck || p.Seq > end {
			continue
		}
		r.logger.Debug("repeated packet after end", "seq", p.Seq)
		if err := r.ack(ctx, p.Seq, StatusOK); err != nil {
			return
		}
	}
}

func (r *Receiver) ack(ctx context.Context, seq uint32, status byte) error {
	return r.conn.WriteFrame(ctx, NewAckPacket(seq, status).Encode())
}
