package uart

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bigbag/slipuart/internal/reactor"
	"github.com/bigbag/slipuart/internal/slip"
)

func TestHandleEvent_RoutesByMode(t *testing.T) {
	dev := newFakeDevice()
	tr, r := newTestTransport(t, dev, WithReceiveBufferSize(16))
	rec := &recorder{}
	tr.SetHandlers(rec.handlers())

	// block read uses the caller buffer
	require.NoError(t, tr.ReceiveBlock(make([]byte, 3)))
	dev.feed([]byte("xyz"))
	require.True(t, r.fire(testFd, reactor.EventRead))
	assert.Equal(t, 1, rec.blockReceived)
	assert.Equal(t, []int{3}, dev.readSizes)

	// frame read uses the receive buffer
	require.NoError(t, tr.ReceiveFrame(make([]byte, 64)))
	dev.feed(slip.Encode([]byte("f")))
	require.True(t, r.fire(testFd, reactor.EventRead))
	assert.Equal(t, []int{1}, rec.frames)
	assert.Equal(t, []int{3, 16}, dev.readSizes)
}

func TestHandleEvent_BothDirections(t *testing.T) {
	dev := newFakeDevice()
	tr, r := newTestTransport(t, dev)
	rec := &recorder{}
	tr.SetHandlers(rec.handlers())

	require.NoError(t, tr.SendFrame([]byte("out")))
	require.NoError(t, tr.ReceiveFrame(make([]byte, 8)))
	dev.feed(slip.Encode([]byte("in")))

	require.True(t, r.fire(testFd, reactor.EventRead|reactor.EventWrite))
	assert.Equal(t, []int{2}, rec.frames)
	assert.Equal(t, 1, rec.frameSent)
}

func TestHandleEvent_CloseFromReadHandlerSkipsWrite(t *testing.T) {
	dev := newFakeDevice()
	tr, r := newTestTransport(t, dev)

	tr.SetHandlers(Handlers{
		BlockReceived: func() { require.NoError(t, tr.Close()) },
		BlockSent:     func() { t.Fatal("write half dispatched after close") },
	})

	require.NoError(t, tr.SendBlock([]byte("w")))
	require.NoError(t, tr.ReceiveBlock(make([]byte, 1)))
	dev.feed([]byte("r"))

	cb := r.callbacks[testFd]
	cb(testFd, reactor.EventRead|reactor.EventWrite)

	assert.Empty(t, dev.writeSizes)
	assert.False(t, tr.IsOpen())
}

func TestHandleEvent_ForeignDescriptorIgnored(t *testing.T) {
	dev := newFakeDevice()
	tr, r := newTestTransport(t, dev)

	require.NoError(t, tr.ReceiveBlock(make([]byte, 1)))
	dev.feed([]byte("r"))

	r.callbacks[testFd](testFd+7, reactor.EventRead)
	assert.Empty(t, dev.readSizes)
}
