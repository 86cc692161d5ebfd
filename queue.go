package extmem

import (
	"container/list"
	"sync"
	"time"

	"github.com/outofcore/extmem/internal/interfaces"
	"github.com/outofcore/extmem/internal/logging"
)

// QueuePolicy decides which of a disk's pending reads and pending
// writes is served next when both are non-empty.
type QueuePolicy int

const (
	// PolicyNone alternates between reads and writes, favoring
	// whichever list was not served last.
	PolicyNone QueuePolicy = iota
	PolicyReadFirst
	PolicyWriteFirst
)

// DiskQueue serializes asynchronous requests against a single disk's
// file backend. Requests within the same priority class are served in
// submission order (FIFO); cross-class order is governed by the
// queue's policy. Workers drain pending requests with a condition
// variable rather than a counting channel so that a canceled request
// can be removed from the pending list without leaving a stray wakeup
// behind.
type DiskQueue struct {
	diskIndex int
	backend   interfaces.FileBackend
	policy    QueuePolicy
	logger    *logging.Logger
	stats     *Stats

	mu           sync.Mutex
	cond         *sync.Cond
	pendingRead  *list.List
	pendingWrite *list.List
	terminating  bool
	favorWrite   bool // alternation state for PolicyNone

	wg sync.WaitGroup
}

// NewDiskQueue constructs a queue for one disk and starts the given
// number of worker goroutines draining it. workers should be 1 for
// syscall/mmap/memory backends and may be >1 for an AIO backend that
// wants concurrent submitters feeding one ring.
func NewDiskQueue(diskIndex int, backend interfaces.FileBackend, policy QueuePolicy, workers int, logger *logging.Logger, stats *Stats) *DiskQueue {
	q := &DiskQueue{
		diskIndex:    diskIndex,
		backend:      backend,
		policy:       policy,
		logger:       logger,
		stats:        stats,
		pendingRead:  list.New(),
		pendingWrite: list.New(),
	}
	q.cond = sync.NewCond(&q.mu)
	if workers < 1 {
		workers = 1
	}
	q.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go q.workerLoop()
	}
	return q
}

// Aread submits an asynchronous read of len(p) bytes at offset. cb may
// be nil.
func (q *DiskQueue) Aread(p []byte, offset int64, cb CompletionFunc) *Request {
	return q.submit(p, offset, DirectionRead, cb)
}

// Awrite submits an asynchronous write of len(p) bytes at offset. cb
// may be nil.
func (q *DiskQueue) Awrite(p []byte, offset int64, cb CompletionFunc) *Request {
	return q.submit(p, offset, DirectionWrite, cb)
}

func (q *DiskQueue) submit(p []byte, offset int64, dir Direction, cb CompletionFunc) *Request {
	req := newRequest(q.backend, p, offset, dir, cb, q)

	q.mu.Lock()
	lst := q.listFor(dir)
	req.elem = lst.PushBack(req)
	q.cond.Signal()
	q.mu.Unlock()

	if q.stats != nil {
		q.stats.RequestStarted()
	}
	return req
}

func (q *DiskQueue) listFor(dir Direction) *list.List {
	if dir == DirectionWrite {
		return q.pendingWrite
	}
	return q.pendingRead
}

// Stop drains all currently pending requests, then stops every worker.
// It blocks until the last worker has exited.
func (q *DiskQueue) Stop() {
	q.mu.Lock()
	q.terminating = true
	q.cond.Broadcast()
	q.mu.Unlock()
	q.wg.Wait()
}

func (q *DiskQueue) workerLoop() {
	defer q.wg.Done()
	for {
		req := q.dequeue()
		if req == nil {
			return
		}
		q.serve(req)
	}
}

// dequeue blocks until a request is available or the queue is
// terminating with nothing left pending.
func (q *DiskQueue) dequeue() *Request {
	q.mu.Lock()
	defer q.mu.Unlock()
	for {
		if req := q.pickLocked(); req != nil {
			return req
		}
		if q.terminating {
			return nil
		}
		q.cond.Wait()
	}
}

func (q *DiskQueue) pickLocked() *Request {
	switch q.policy {
	case PolicyReadFirst:
		if e := q.pendingRead.Front(); e != nil {
			return q.popLocked(q.pendingRead, e)
		}
		if e := q.pendingWrite.Front(); e != nil {
			return q.popLocked(q.pendingWrite, e)
		}
	case PolicyWriteFirst:
		if e := q.pendingWrite.Front(); e != nil {
			return q.popLocked(q.pendingWrite, e)
		}
		if e := q.pendingRead.Front(); e != nil {
			return q.popLocked(q.pendingRead, e)
		}
	default:
		first, second := q.pendingRead, q.pendingWrite
		if q.favorWrite {
			first, second = q.pendingWrite, q.pendingRead
		}
		if e := first.Front(); e != nil {
			q.favorWrite = !q.favorWrite
			return q.popLocked(first, e)
		}
		if e := second.Front(); e != nil {
			return q.popLocked(second, e)
		}
	}
	return nil
}

func (q *DiskQueue) popLocked(lst *list.List, e *list.Element) *Request {
	req := lst.Remove(e).(*Request)
	req.elem = nil
	return req
}

func (q *DiskQueue) serve(req *Request) {
	start := time.Now()
	var err error
	if req.direction == DirectionWrite {
		err = req.file.WriteAt(req.buf, req.offset)
	} else {
		err = req.file.ReadAt(req.buf, req.offset)
	}
	latency := time.Since(start)
	if err != nil {
		err = WrapIOError(req.direction.String(), q.diskIndex, err)
		if q.logger != nil {
			q.logger.Errorf("disk %d: %s at %d failed: %v", q.diskIndex, req.direction, req.offset, err)
		}
	}
	if q.stats != nil {
		q.stats.RequestFinished()
		if req.direction == DirectionWrite {
			q.stats.RecordWrite(uint64(len(req.buf)), latency, err == nil)
		} else {
			q.stats.RecordRead(uint64(len(req.buf)), latency, err == nil)
		}
	}
	req.complete(err, true)
}
