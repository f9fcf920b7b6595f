package uart

import (
	"sync/atomic"
	"time"
)

// Metrics contains atomic counters for a transport. They are safe to read
// from any goroutine and can back a prometheus CounterFunc or GaugeFunc.
type Metrics struct {
	// BlockSendCount is the number of completed SendBlock operations.
	BlockSendCount atomic.Uint64
	// BlockRecvCount is the number of completed ReceiveBlock operations.
	BlockRecvCount atomic.Uint64
	// FrameSendCount is the number of completed SendFrame operations.
	FrameSendCount atomic.Uint64
	// FrameRecvCount is the number of frames delivered to FrameReceived.
	FrameRecvCount atomic.Uint64
	// ChunkSendCount is the number of encoded chunks submitted for writing.
	ChunkSendCount atomic.Uint64

	BytesWritten atomic.Uint64
	BytesRead    atomic.Uint64

	// WouldBlockCount counts reads and writes that returned would-block.
	WouldBlockCount atomic.Uint64
	// IOErrorCount counts operations abandoned on a hard I/O error.
	IOErrorCount atomic.Uint64
	// DecodeErrorCount counts received frames dropped for exceeding the caller buffer.
	DecodeErrorCount atomic.Uint64

	lastFrameReceiveTime atomic.Int64
}

// LastFrameReceiveTime returns the time from the first read after a
// ReceiveFrame call to the completion of that frame, for the last frame
// whose reception involved a read.
func (m *Metrics) LastFrameReceiveTime() time.Duration {
	return time.Duration(m.lastFrameReceiveTime.Load())
}

func (m *Metrics) setLastFrameReceiveTime(d time.Duration) {
	m.lastFrameReceiveTime.Store(int64(d))
}

func (m *Metrics) incBlockSendCount() {
	m.BlockSendCount.Add(1)
}

func (m *Metrics) incBlockRecvCount() {
	m.BlockRecvCount.Add(1)
}

func (m *Metrics) incFrameSendCount() {
	m.FrameSendCount.Add(1)
}

func (m *Metrics) incFrameRecvCount() {
	m.FrameRecvCount.Add(1)
}

func (m *Metrics) incChunkSendCount() {
	m.ChunkSendCount.Add(1)
}

func (m *Metrics) addBytesWritten(n int) {
	m.BytesWritten.Add(uint64(n))
}

func (m *Metrics) addBytesRead(n int) {
	m.BytesRead.Add(uint64(n))
}

func (m *Metrics) incWouldBlockCount() {
	m.WouldBlockCount.Add(1)
}

func (m *Metrics) incIOErrorCount() {
	m.IOErrorCount.Add(1)
}

func (m *Metrics) addDecodeErrorCount(n int) {
	m.DecodeErrorCount.Add(uint64(n))
}
