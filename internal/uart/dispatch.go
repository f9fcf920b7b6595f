package uart

import "github.com/bigbag/slipuart/internal/reactor"

// handleEvent is the reactor callback for the transport descriptor. Each
// direction goes to the frame pipeline when a frame operation is active for
// it, otherwise to the block engine. The read half runs first.
func (t *Transport) handleEvent(fd int, events reactor.EventType) {
	if t.dev == nil || fd != t.fd {
		return
	}

	if events&reactor.EventRead != 0 {
		switch t.readMode {
		case modeFrame:
			t.frameReadReady()
		default:
			t.blockReadReady()
		}
	}

	// a read handler may have closed the transport
	if t.dev == nil || fd != t.fd {
		return
	}

	if events&reactor.EventWrite != 0 {
		switch t.writeMode {
		case modeFrame:
			t.frameWriteReady()
		default:
			t.blockWriteReady()
		}
	}
}
