//go:build linux

package reactor

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	"golang.org/x/sys/unix"

	"github.com/bigbag/slipuart/internal/logger"
)

const maxEvents = 64

type source struct {
	cb   Callback
	mask EventType
}

// Epoll is a level-triggered epoll(7) Loop.
//
// A registered descriptor is only in the epoll set while some interest is
// armed, so an idle descriptor in hang-up state does not spin the loop.
type Epoll struct {
	epfd    int
	wakefd  int
	sources *xsync.MapOf[int, *source]
	tasks   *taskQueue
	running atomic.Bool
	closed  atomic.Bool
	// wakeMu keeps wakefd open while Post or a context wakeup writes to it.
	wakeMu sync.RWMutex
	logger logger.Logger
}

var _ Loop = (*Epoll)(nil)

// NewLoop returns the platform Loop.
func NewLoop(l logger.Logger) (Loop, error) {
	return NewEpoll(l)
}

// NewEpoll creates an epoll instance with an eventfd for Post wakeups.
func NewEpoll(l logger.Logger) (*Epoll, error) {
	if l == nil {
		l = logger.GetLogger()
	}

	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("epoll create: %w", err)
	}

	wakefd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		_ = unix.Close(epfd)
		return nil, fmt.Errorf("eventfd: %w", err)
	}

	ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(wakefd)}
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, wakefd, &ev); err != nil {
		_ = unix.Close(wakefd)
		_ = unix.Close(epfd)
		return nil, fmt.Errorf("epoll ctl add: %w", err)
	}

	return &Epoll{
		epfd:    epfd,
		wakefd:  wakefd,
		sources: xsync.NewMapOf[int, *source](),
		tasks:   newTaskQueue(),
		logger:  l.With("component", "reactor"),
	}, nil
}

// Register adds fd with no interest armed.
func (r *Epoll) Register(fd int, cb Callback) error {
	if r.closed.Load() {
		return ErrClosed
	}
	if _, loaded := r.sources.LoadOrStore(fd, &source{cb: cb}); loaded {
		return fmt.Errorf("%w: fd %d", ErrRegistered, fd)
	}
	return nil
}

// Arm enables notification for events on fd.
func (r *Epoll) Arm(fd int, events EventType) error {
	src, ok := r.sources.Load(fd)
	if !ok {
		return fmt.Errorf("%w: fd %d", ErrNotRegistered, fd)
	}
	return r.setMask(fd, src, src.mask|(events&(EventRead|EventWrite)))
}

// Disarm disables notification for events on fd.
func (r *Epoll) Disarm(fd int, events EventType) error {
	src, ok := r.sources.Load(fd)
	if !ok {
		return fmt.Errorf("%w: fd %d", ErrNotRegistered, fd)
	}
	return r.setMask(fd, src, src.mask&^events)
}

// Unregister removes fd from the loop.
func (r *Epoll) Unregister(fd int) error {
	src, ok := r.sources.LoadAndDelete(fd)
	if !ok {
		return fmt.Errorf("%w: fd %d", ErrNotRegistered, fd)
	}
	if src.mask != 0 {
		src.mask = 0
		if err := unix.EpollCtl(r.epfd, unix.EPOLL_CTL_DEL, fd, nil); err != nil && !errors.Is(err, unix.ENOENT) {
			return fmt.Errorf("epoll ctl del: %w", err)
		}
	}
	return nil
}

// Now returns the current monotonic time.
func (r *Epoll) Now() time.Time {
	return time.Now()
}

// Post queues fn to run on the loop goroutine.
func (r *Epoll) Post(fn func()) error {
	r.wakeMu.RLock()
	defer r.wakeMu.RUnlock()

	if r.closed.Load() {
		return ErrClosed
	}
	r.tasks.push(fn)
	r.signal()
	return nil
}

// Run dispatches until ctx is done. It returns nil on cancellation.
func (r *Epoll) Run(ctx context.Context) error {
	if !r.running.CompareAndSwap(false, true) {
		return ErrRunning
	}
	defer r.running.Store(false)

	stop := context.AfterFunc(ctx, r.wake)
	defer stop()

	events := make([]unix.EpollEvent, maxEvents)
	for {
		r.tasks.run(r.onPanic)
		if ctx.Err() != nil {
			return nil
		}
		if err := r.poll(events, -1); err != nil {
			return err
		}
	}
}

// RunOnce runs pending tasks, then waits up to timeout for events and
// dispatches them. It is meant for callers that drive the loop themselves.
func (r *Epoll) RunOnce(timeout time.Duration) error {
	if !r.running.CompareAndSwap(false, true) {
		return ErrRunning
	}
	defer r.running.Store(false)

	r.tasks.run(r.onPanic)

	events := make([]unix.EpollEvent, maxEvents)
	return r.poll(events, int(timeout.Milliseconds()))
}

// Close releases the epoll and eventfd descriptors. Closing twice is a no-op.
func (r *Epoll) Close() error {
	r.wakeMu.Lock()
	defer r.wakeMu.Unlock()

	if !r.closed.CompareAndSwap(false, true) {
		return nil
	}
	r.signal()
	err := unix.Close(r.epfd)
	if cerr := unix.Close(r.wakefd); err == nil {
		err = cerr
	}
	return err
}

func (r *Epoll) poll(events []unix.EpollEvent, timeoutMs int) error {
	n, err := unix.EpollWait(r.epfd, events, timeoutMs)
	if err != nil {
		if errors.Is(err, unix.EINTR) {
			return nil
		}
		return fmt.Errorf("epoll wait: %w", err)
	}

	for i := 0; i < n; i++ {
		fd := int(events[i].Fd)
		if fd == r.wakefd {
			r.drainWake()
			continue
		}
		r.dispatch(fd, events[i].Events)
	}
	return nil
}

func (r *Epoll) dispatch(fd int, raw uint32) {
	// Earlier callbacks in this batch may have unregistered or disarmed fd.
	src, ok := r.sources.Load(fd)
	if !ok || src.mask == 0 {
		return
	}

	var ready EventType
	if raw&unix.EPOLLIN != 0 {
		ready |= EventRead
	}
	if raw&unix.EPOLLOUT != 0 {
		ready |= EventWrite
	}
	if raw&(unix.EPOLLERR|unix.EPOLLHUP) != 0 {
		ready |= EventError | src.mask
	}
	ready &= src.mask | EventError
	if ready&(EventRead|EventWrite) == 0 {
		return
	}

	runGuarded(func() { src.cb(fd, ready) }, r.onPanic)
}

func (r *Epoll) setMask(fd int, src *source, mask EventType) error {
	if mask == src.mask {
		return nil
	}

	var op int
	switch {
	case src.mask == 0:
		op = unix.EPOLL_CTL_ADD
	case mask == 0:
		op = unix.EPOLL_CTL_DEL
	default:
		op = unix.EPOLL_CTL_MOD
	}

	ev := unix.EpollEvent{Fd: int32(fd)}
	if mask&EventRead != 0 {
		ev.Events |= unix.EPOLLIN
	}
	if mask&EventWrite != 0 {
		ev.Events |= unix.EPOLLOUT
	}

	var evp *unix.EpollEvent
	if op != unix.EPOLL_CTL_DEL {
		evp = &ev
	}
	if err := unix.EpollCtl(r.epfd, op, fd, evp); err != nil {
		return fmt.Errorf("epoll ctl fd %d: %w", fd, err)
	}

	src.mask = mask
	return nil
}

// wake is signal for callers that do not hold wakeMu.
func (r *Epoll) wake() {
	r.wakeMu.RLock()
	defer r.wakeMu.RUnlock()

	if !r.closed.Load() {
		r.signal()
	}
}

func (r *Epoll) signal() {
	var buf [8]byte
	binary.NativeEndian.PutUint64(buf[:], 1)
	// EAGAIN means the counter is already non-zero, which is enough.
	_, _ = unix.Write(r.wakefd, buf[:])
}

func (r *Epoll) drainWake() {
	var buf [8]byte
	_, _ = unix.Read(r.wakefd, buf[:])
}

func (r *Epoll) onPanic(v any) {
	r.logger.Error("callback panicked", "panic", v)
}
