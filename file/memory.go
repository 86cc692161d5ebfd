// Package file provides the file backends extmem's disk queues drive:
// memory, syscall, mmap, and aio. Each backend is a thin, synchronous
// implementation of interfaces.FileBackend; async scheduling lives one
// layer up in the disk queue.
package file

import (
	"sync"

	"github.com/outofcore/extmem/internal/interfaces"
)

// shardSize is the granularity of the locks protecting a Memory
// backend's storage. Sharding lets non-overlapping reads/writes proceed
// in parallel instead of serializing behind one mutex.
const shardSize = 64 * 1024

// Memory is a RAM-backed file backend: a configured-size byte slice
// guarded by a set of sharded locks. It never touches the filesystem,
// useful for tests and for the spec's "memory" backend, which trades
// durability for speed.
type Memory struct {
	size   int64
	data   []byte
	shards []sync.RWMutex
}

var _ interfaces.FileBackend = (*Memory)(nil)

// NewMemory allocates a Memory backend of the given size, zero-filled.
func NewMemory(size int64) *Memory {
	numShards := (size + shardSize - 1) / shardSize
	if numShards < 1 {
		numShards = 1
	}
	return &Memory{
		size:   size,
		data:   make([]byte, size),
		shards: make([]sync.RWMutex, numShards),
	}
}

func (m *Memory) shardRange(off, length int64) (start, end int) {
	start = int(off / shardSize)
	end = int((off + length - 1) / shardSize)
	if end >= len(m.shards) {
		end = len(m.shards) - 1
	}
	return start, end
}

// Size returns the backend's current length.
func (m *Memory) Size() (int64, error) { return m.size, nil }

// SetSize grows or shrinks the backing slice. Shrinking discards the
// truncated tail; growing zero-fills the new region.
func (m *Memory) SetSize(length int64) error {
	if length == m.size {
		return nil
	}
	grown := make([]byte, length)
	copy(grown, m.data)
	m.data = grown
	m.size = length
	numShards := (length + shardSize - 1) / shardSize
	if numShards < 1 {
		numShards = 1
	}
	m.shards = make([]sync.RWMutex, numShards)
	return nil
}

// ReadAt copies len(p) bytes starting at off into p.
func (m *Memory) ReadAt(p []byte, off int64) error {
	if off < 0 || off+int64(len(p)) > m.size {
		return errOutOfBounds("read", off, len(p), m.size)
	}
	start, end := m.shardRange(off, int64(len(p)))
	for i := start; i <= end; i++ {
		m.shards[i].RLock()
	}
	copy(p, m.data[off:off+int64(len(p))])
	for i := start; i <= end; i++ {
		m.shards[i].RUnlock()
	}
	return nil
}

// WriteAt copies len(p) bytes from p into the backend starting at off.
func (m *Memory) WriteAt(p []byte, off int64) error {
	if off < 0 || off+int64(len(p)) > m.size {
		return errOutOfBounds("write", off, len(p), m.size)
	}
	start, end := m.shardRange(off, int64(len(p)))
	for i := start; i <= end; i++ {
		m.shards[i].Lock()
	}
	copy(m.data[off:off+int64(len(p))], p)
	for i := start; i <= end; i++ {
		m.shards[i].Unlock()
	}
	return nil
}

// Lock is a no-op: a process-local memory region needs no advisory
// lock against other processes.
func (m *Memory) Lock() error { return nil }

// IOType names this backend for logging and statistics.
func (m *Memory) IOType() string { return "memory" }

// Close releases the backing storage.
func (m *Memory) Close() error {
	m.data = nil
	return nil
}
