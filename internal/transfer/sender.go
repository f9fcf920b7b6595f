package transfer

import (
	"context"
	"crypto/md5"
	"errors"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/bigbag/slipuart/internal/logger"
)

const (
	DefaultAckTimeout = 5 * time.Second
	DefaultRetries    = 3
)

// Sender transmits a stream as Data packets followed by End.
type Sender struct {
	conn       FrameConn
	progress   ProgressCallback
	info       *FileInfo
	ackTimeout time.Duration
	retries    int
	logger     logger.Logger
}

// NewSender creates a Sender on conn.
func NewSender(conn FrameConn) *Sender {
	return &Sender{
		conn:       conn,
		ackTimeout: DefaultAckTimeout,
		retries:    DefaultRetries,
		logger:     logger.GetLogger(),
	}
}

// SetProgressCallback sets the progress callback function.
func (s *Sender) SetProgressCallback(cb ProgressCallback) {
	s.progress = cb
}

// SetFileInfo makes Send open the transfer with an Info packet.
func (s *Sender) SetFileInfo(info FileInfo) {
	s.info = &info
}

// SetAckTimeout sets how long each packet waits for its Ack.
func (s *Sender) SetAckTimeout(d time.Duration) {
	s.ackTimeout = d
}

// SetRetries sets how often a packet is resent after an Ack timeout.
func (s *Sender) SetRetries(n int) {
	s.retries = n
}

// SetLogger sets the logger.
func (s *Sender) SetLogger(l logger.Logger) {
	s.logger = l
}

func (s *Sender) reportProgress(current, total int64) {
	if s.progress != nil {
		s.progress(current, total)
	}
}

// Send transmits size bytes from r.
func (s *Sender) Send(ctx context.Context, r io.Reader, size int64) error {
	if size < 0 || size > math.MaxUint32 {
		return fmt.Errorf("invalid transfer size %d", size)
	}

	hash := md5.New()
	block := make([]byte, BlockSize)
	var sent int64
	var seq uint32

	s.logger.Info("starting transfer", "size", size, "blocks", CalculateBlocks(size))

	if s.info != nil {
		p, err := NewInfoPacket(seq, *s.info)
		if err != nil {
			return err
		}
		if err := s.sendPacket(ctx, p); err != nil {
			return fmt.Errorf("file info failed: %w", err)
		}
		seq++
	}

	for sent < size {
		n, err := io.ReadFull(r, block[:min(int64(BlockSize), size-sent)])
		if err != nil {
			return fmt.Errorf("read block %d: %w", seq, err)
		}
		hash.Write(block[:n])

		if err := s.sendPacket(ctx, NewDataPacket(seq, block[:n])); err != nil {
			return fmt.Errorf("data block %d failed: %w", seq, err)
		}

		sent += int64(n)
		seq++
		s.reportProgress(sent, size)
	}

	var sum [16]byte
	copy(sum[:], hash.Sum(nil))
	if err := s.sendPacket(ctx, NewEndPacket(seq, uint32(size), sum)); err != nil {
		return fmt.Errorf("end failed: %w", err)
	}

	s.logger.Info("transfer complete", "size", size, "packets", seq+1)

	return nil
}

// sendPacket sends p and waits for a successful Ack, resending on timeout.
func (s *Sender) sendPacket(ctx context.Context, p *Packet) error {
	frame := p.Encode()

	var lastErr error
	for attempt := 0; attempt <= s.retries; attempt++ {
		if attempt > 0 {
			s.logger.Warn("resending packet", "seq", p.Seq, "attempt", attempt, "error", lastErr)
		}

		if err := s.conn.WriteFrame(ctx, frame); err != nil {
			return err
		}

		status, err := s.waitAck(ctx, p.Seq)
		switch {
		case err == nil && status == StatusOK:
			return nil
		case err == nil:
			return fmt.Errorf("packet %d rejected: status=0x%02X (%s)", p.Seq, status, StatusMessage(status))
		case errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil:
			lastErr = err
			continue
		default:
			return err
		}
	}

	return fmt.Errorf("no ack for packet %d after %d attempts: %w", p.Seq, s.retries+1, lastErr)
}

// waitAck reads frames until the Ack for seq arrives. Acks for earlier
// packets are leftovers of retries and are skipped.
func (s *Sender) waitAck(ctx context.Context, seq uint32) (byte, error) {
	ctx, cancel := context.WithTimeout(ctx, s.ackTimeout)
	defer cancel()

	for {
		frame, err := s.conn.ReadFrame(ctx)
		if err != nil {
			return 0, err
		}

		p, err := DecodePacket(frame)
		if err != nil {
			s.logger.Warn("ignoring malformed packet", "error", err)
			continue
		}
		if p.Type != TypeAck || p.Seq != seq {
			s.logger.Debug("ignoring stale packet", "type", p.Type, "seq", p.Seq, "want", seq)
			continue
		}

		return p.Status()
	}
}
