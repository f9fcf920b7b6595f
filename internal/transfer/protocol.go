// Package transfer moves a file over a frame link.
//
// Every packet travels in its own frame and is answered by an Ack carrying
// the same sequence number. An optional Info packet opens the transfer with
// CBOR encoded file metadata. The final End packet carries the total size
// and MD5 digest so the receiver can verify the stream.
package transfer

import "context"

// Packet types
const (
	TypeData = 0x01
	TypeEnd  = 0x02
	TypeAck  = 0x03
	TypeInfo = 0x04
)

// Packet layout: type(1) | seq(4 LE) | len(2 LE) | data
const (
	HeaderSize = 7
	BlockSize  = 0x400 // 1KB data per packet
	endSize    = 4 + 16
)

// Ack status codes
const (
	StatusOK          = 0x00
	StatusBadSequence = 0x01
	StatusBadSize     = 0x02
	StatusBadChecksum = 0x03
	StatusWriteError  = 0x04
	StatusBadInfo     = 0x05
)

// StatusMessage returns human-readable status message
func StatusMessage(status byte) string {
	switch status {
	case StatusOK:
		return "ok"
	case StatusBadSequence:
		return "unexpected sequence number"
	case StatusBadSize:
		return "size mismatch"
	case StatusBadChecksum:
		return "MD5 mismatch"
	case StatusWriteError:
		return "write error"
	case StatusBadInfo:
		return "invalid file info"
	default:
		return "unknown status"
	}
}

// FrameConn is a bidirectional frame link such as *link.Link.
type FrameConn interface {
	WriteFrame(ctx context.Context, p []byte) error
	ReadFrame(ctx context.Context) ([]byte, error)
}

// ProgressCallback is called to report transfer progress in bytes.
type ProgressCallback func(current, total int64)

// CalculateBlocks returns the number of data packets for size bytes.
func CalculateBlocks(size int64) int64 {
	return (size + BlockSize - 1) / BlockSize
}
