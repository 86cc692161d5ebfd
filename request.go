package extmem

import (
	"container/list"
	"sync"
	"sync/atomic"
	"time"

	"github.com/outofcore/extmem/internal/interfaces"
)

// Direction distinguishes a read request from a write request.
type Direction int

const (
	DirectionRead Direction = iota
	DirectionWrite
)

func (d Direction) String() string {
	if d == DirectionWrite {
		return "write"
	}
	return "read"
}

// RequestState is the lifecycle state of a Request: OP while queued or
// in flight, Done once the transfer has finished (set before its
// completion callback runs), and Ready2Die once every holder has
// released its reference.
type RequestState int32

const (
	StateOP RequestState = iota
	StateDone
	StateReady2Die
)

// CompletionFunc is invoked exactly once, after the request has moved
// to Done and before any blocked waiter is woken, when a served request
// finishes (successfully or with an I/O error). A request whose Cancel
// succeeded never invokes its callback.
type CompletionFunc func(req *Request, err error)

// Request represents one outstanding or completed asynchronous I/O
// operation. It is safe for concurrent use: multiple goroutines may
// Wait, Poll, add/remove waiters, or Cancel the same Request.
type Request struct {
	file      interfaces.FileBackend
	buf       []byte
	offset    int64
	direction Direction
	cb        CompletionFunc

	queue *DiskQueue
	elem  *list.Element // valid while still pending in the queue; nil once dequeued

	state    atomic.Int32
	refcount atomic.Int32
	canceled atomic.Bool

	mu      sync.Mutex
	done    bool
	err     error
	waiters map[chan struct{}]struct{}
}

func newRequest(file interfaces.FileBackend, buf []byte, offset int64, dir Direction, cb CompletionFunc, q *DiskQueue) *Request {
	r := &Request{
		file:      file,
		buf:       buf,
		offset:    offset,
		direction: dir,
		cb:        cb,
		queue:     q,
		waiters:   make(map[chan struct{}]struct{}),
	}
	r.refcount.Store(1)
	return r
}

// Direction returns whether this is a read or write request.
func (r *Request) Direction() Direction { return r.direction }

// Bytes returns the number of bytes this request transfers.
func (r *Request) Bytes() int64 { return int64(len(r.buf)) }

// State returns the request's current lifecycle state.
func (r *Request) State() RequestState { return RequestState(r.state.Load()) }

// AddWaiter registers w to be closed when the request completes. If the
// request is already done, w is closed immediately rather than
// registered, so there is no lost-wakeup window.
func (r *Request) AddWaiter(w chan struct{}) {
	r.mu.Lock()
	if r.done {
		r.mu.Unlock()
		close(w)
		return
	}
	r.waiters[w] = struct{}{}
	r.mu.Unlock()
}

// DeleteWaiter unregisters w. It is a no-op if w was never registered
// or has already been notified.
func (r *Request) DeleteWaiter(w chan struct{}) {
	r.mu.Lock()
	delete(r.waiters, w)
	r.mu.Unlock()
}

// Poll reports whether the request has finished without blocking, and
// the error it finished with, if any.
func (r *Request) Poll() (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.done, r.err
}

// Wait blocks until the request completes and returns its result.
func (r *Request) Wait() error {
	r.mu.Lock()
	if r.done {
		err := r.err
		r.mu.Unlock()
		return err
	}
	w := make(chan struct{})
	r.waiters[w] = struct{}{}
	r.mu.Unlock()

	start := time.Now()
	<-w
	d := time.Since(start)
	if wl := loadWaitLogger(); wl != nil {
		kind := interfaces.WaitKindRead
		if r.direction == DirectionWrite {
			kind = interfaces.WaitKindWrite
		}
		wl.LogWait(kind, start, d)
	}
	if r.queue != nil && r.queue.stats != nil {
		r.queue.stats.RecordIOWait(d)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Cancel attempts to remove the request from its disk queue before it
// is dispatched to a worker. It returns false if the request was
// already being served or has already completed. A canceled request's
// completion callback is never invoked, but waiters are still woken:
// Wait returns nil, Poll reports done with a nil error, and Canceled
// reports true.
func (r *Request) Cancel() bool {
	if r.state.Load() != int32(StateOP) {
		return false
	}
	r.queue.mu.Lock()
	if r.elem == nil {
		r.queue.mu.Unlock()
		return false
	}
	lst := r.queue.listFor(r.direction)
	lst.Remove(r.elem)
	r.elem = nil
	r.queue.mu.Unlock()

	r.canceled.Store(true)
	r.complete(nil, false)
	return true
}

// Retain increments the request's reference count. Pair with Release.
func (r *Request) Retain() {
	r.refcount.Add(1)
}

// Release decrements the reference count. Once it reaches zero and the
// request has completed, the request transitions to Ready2Die.
func (r *Request) Release() {
	if r.refcount.Add(-1) == 0 && r.state.Load() == int32(StateDone) {
		r.state.Store(int32(StateReady2Die))
	}
}

// Canceled reports whether the request was canceled before dispatch.
func (r *Request) Canceled() bool { return r.canceled.Load() }

// complete transitions the request to Done, stores err, then invokes the
// completion callback (if any), and only then wakes waiters. The
// transition to Done happens before the callback runs so that a
// callback polling its own request via State or Poll observes Done,
// not OP.
func (r *Request) complete(err error, invokeCallback bool) {
	r.mu.Lock()
	r.done = true
	r.err = err
	r.mu.Unlock()

	r.state.Store(int32(StateDone))
	if r.refcount.Load() == 0 {
		r.state.Store(int32(StateReady2Die))
	}

	if invokeCallback && r.cb != nil {
		r.cb(r, err)
	}

	r.mu.Lock()
	waiters := r.waiters
	r.waiters = nil
	r.mu.Unlock()

	for w := range waiters {
		close(w)
	}
}

var waitLogger atomic.Pointer[WaitLogWriter]

func loadWaitLogger() *WaitLogWriter { return waitLogger.Load() }

// SetWaitLogWriter installs w as the process-wide wait-log sink. Pass
// nil to disable wait logging.
func SetWaitLogWriter(w *WaitLogWriter) { waitLogger.Store(w) }
