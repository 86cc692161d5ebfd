package extmem

import (
	"sync"
	"testing"
	"time"
)

func TestDiskQueueFIFOWithinClass(t *testing.T) {
	backend := NewMockFileBackend(1 << 20)
	backend.Latency = 5 * time.Millisecond
	q := NewDiskQueue(0, backend, PolicyNone, 1, nil, nil)
	defer q.Stop()

	var mu sync.Mutex
	var order []int
	var reqs []*Request
	for i := 0; i < 5; i++ {
		i := i
		req := q.Aread(make([]byte, 64), 0, func(_ *Request, _ error) {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
		})
		reqs = append(reqs, req)
	}
	for _, r := range reqs {
		r.Wait()
	}
	for i, got := range order {
		if got != i {
			t.Errorf("completion order[%d] = %d, want %d (FIFO violated): %v", i, got, i, order)
			break
		}
	}
}

func TestDiskQueueReadFirstPolicy(t *testing.T) {
	backend := NewMockFileBackend(1 << 20)
	backend.Latency = 30 * time.Millisecond
	q := NewDiskQueue(0, backend, PolicyReadFirst, 1, nil, nil)
	defer q.Stop()

	// occupy the worker so both classes queue up behind it
	blocker := q.Awrite(make([]byte, 64), 0, nil)

	var mu sync.Mutex
	var order []string
	w := q.Awrite(make([]byte, 64), 0, func(_ *Request, _ error) {
		mu.Lock()
		order = append(order, "write")
		mu.Unlock()
	})
	r := q.Aread(make([]byte, 64), 0, func(_ *Request, _ error) {
		mu.Lock()
		order = append(order, "read")
		mu.Unlock()
	})

	blocker.Wait()
	w.Wait()
	r.Wait()

	if len(order) != 2 || order[0] != "read" {
		t.Errorf("expected read to be served before write under PolicyReadFirst, got %v", order)
	}
}

func TestDiskQueueStopDrainsPending(t *testing.T) {
	backend := NewMockFileBackend(1 << 20)
	q := NewDiskQueue(0, backend, PolicyNone, 1, nil, nil)

	var completed int
	var mu sync.Mutex
	var reqs []*Request
	for i := 0; i < 10; i++ {
		reqs = append(reqs, q.Awrite(make([]byte, 64), 0, func(_ *Request, _ error) {
			mu.Lock()
			completed++
			mu.Unlock()
		}))
	}
	q.Stop()
	for _, r := range reqs {
		r.Wait()
	}
	if completed != 10 {
		t.Errorf("completed = %d, want 10 (Stop must drain pending work)", completed)
	}
}
