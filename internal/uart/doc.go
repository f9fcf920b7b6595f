// Package uart is a non-blocking serial transport driven by a reactor.
//
// A Transport moves bytes over one serial descriptor in two disciplines,
// chosen independently for each direction:
//
//   - block mode: SendBlock and ReceiveBlock transfer an exact byte count;
//   - frame mode: SendFrame and ReceiveFrame transfer SLIP framed packets.
//
// Requests return immediately after arming readiness interest. Progress is
// made inside the reactor callback, and completion is reported through the
// Handlers set with SetHandlers. At most one operation per direction may be
// outstanding.
//
// # Threading
//
// A Transport has no locks. Every method, and every handler it invokes, runs
// on the reactor goroutine. Other goroutines reach it through
// reactor.Loop.Post, as package link does.
//
// # Frame reception
//
// Bytes are read in chunks of at most the receive buffer size. When one read
// holds more than one frame, the remainder stays buffered and the next
// ReceiveFrame call decodes it before arming any read. If that completes a
// frame, FrameReceived runs before ReceiveFrame returns.
//
// # Errors
//
// A would-block result leaves interest armed. Any other failure, including a
// zero-length read or write, abandons the operation: interest is disarmed,
// the completion handler is not called, and Handlers.IOError is notified.
// There are no timeouts at this layer.
package uart
