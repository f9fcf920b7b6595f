package reactor

import (
	"sync"

	"github.com/eapache/queue"
)

// taskQueue is a FIFO of functions posted from other goroutines.
type taskQueue struct {
	mu sync.Mutex
	q  *queue.Queue
}

func newTaskQueue() *taskQueue {
	return &taskQueue{q: queue.New()}
}

func (t *taskQueue) push(fn func()) {
	t.mu.Lock()
	t.q.Add(fn)
	t.mu.Unlock()
}

func (t *taskQueue) pop() (func(), bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.q.Length() == 0 {
		return nil, false
	}
	return t.q.Remove().(func()), true
}

func (t *taskQueue) length() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.q.Length()
}

// run executes the tasks queued at call time. Tasks posted while running
// wait for the next call.
func (t *taskQueue) run(onPanic func(any)) {
	for n := t.length(); n > 0; n-- {
		fn, ok := t.pop()
		if !ok {
			return
		}
		runGuarded(fn, onPanic)
	}
}

func runGuarded(fn func(), onPanic func(any)) {
	defer func() {
		if v := recover(); v != nil && onPanic != nil {
			onPanic(v)
		}
	}()
	fn()
}
