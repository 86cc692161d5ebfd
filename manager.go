package extmem

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/outofcore/extmem/internal/allocator"
	"github.com/outofcore/extmem/internal/interfaces"
	"github.com/outofcore/extmem/internal/logging"
)

// Strategy maps a block's position within a new_blocks call onto a
// disk index. blockIndex is the global running index (continues across
// calls for strategies that care, such as striping); n is the size of
// the current call; numDisks is the number of disks in the manager.
type Strategy func(blockIndex, n, numDisks int) int

// StripingStrategy assigns disks round-robin, continuing from wherever
// the manager's running counter left off.
func StripingStrategy() Strategy {
	return func(blockIndex, _, numDisks int) int { return blockIndex % numDisks }
}

// SingleDiskStrategy pins every block to disk i.
func SingleDiskStrategy(i int) Strategy {
	return func(_, _, _ int) int { return i }
}

// OffsetStrategy round-robins starting k disks in from disk 0.
func OffsetStrategy(k int) Strategy {
	return func(blockIndex, _, numDisks int) int { return (blockIndex + k) % numDisks }
}

// FullyRandomStrategy picks an independent random disk for every block.
func FullyRandomStrategy(rng *rand.Rand) Strategy {
	return func(_, _, numDisks int) int { return rng.Intn(numDisks) }
}

// SimpleRandomStrategy picks one random disk per new_blocks call and
// uses it for every block in that call.
func SimpleRandomStrategy(rng *rand.Rand) Strategy {
	var current, remaining int
	return func(_, n, numDisks int) int {
		if remaining == 0 {
			current = rng.Intn(numDisks)
			remaining = n
		}
		remaining--
		return current
	}
}

// Disk bundles one disk's backend, allocator, request queue, and its
// own I/O statistics.
type Disk struct {
	Index     int
	Backend   interfaces.FileBackend
	Allocator *allocator.Allocator
	Queue     *DiskQueue
	Stats     *Stats
}

// DiskConfig describes how to bring up one disk under a BlockManager.
type DiskConfig struct {
	Backend  interfaces.FileBackend
	Capacity int64
	Policy   QueuePolicy
	Workers  int
	Debug    bool
}

// BlockManager owns a fixed set of disks and assigns blocks to them
// according to a caller-supplied Strategy. It is the single point of
// contact for allocating and freeing BIDs.
type BlockManager struct {
	mu            sync.Mutex
	disks         []*Disk
	stripeCounter int64
	debug         bool
	logger        *logging.Logger
}

// NewBlockManager brings up one DiskQueue, Allocator, and Stats per
// entry in configs and returns a manager over all of them. Each disk
// gets its own Stats rather than sharing one across the manager, so
// that ManagerStats can report a genuine per-disk breakdown.
func NewBlockManager(configs []DiskConfig, logger *logging.Logger) (*BlockManager, error) {
	if len(configs) == 0 {
		return nil, NewError("new_block_manager", CodeConfigError, "at least one disk is required")
	}
	m := &BlockManager{logger: logger}
	for i, c := range configs {
		stats := NewStats()
		q := NewDiskQueue(i, c.Backend, c.Policy, c.Workers, logger, stats)
		m.disks = append(m.disks, &Disk{
			Index:     i,
			Backend:   c.Backend,
			Allocator: allocator.New(c.Capacity, c.Debug),
			Queue:     q,
			Stats:     stats,
		})
		m.debug = m.debug || c.Debug
	}
	return m, nil
}

// NumDisks returns how many disks the manager spans.
func (m *BlockManager) NumDisks() int { return len(m.disks) }

// Disk returns the i'th disk, for callers that need direct queue
// access (e.g. the ReadWritePool).
func (m *BlockManager) Disk(i int) *Disk { return m.disks[i] }

// ManagerStats reports both a per-disk statistics breakdown and a
// merged aggregate across every disk the manager owns.
type ManagerStats struct {
	PerDisk   []Snapshot
	Aggregate Snapshot
}

// Stats snapshots every disk's Stats and folds them into a combined
// aggregate, merging latency histograms bucket-by-bucket before
// recomputing percentiles from the merged counts.
func (m *BlockManager) Stats() ManagerStats {
	result := ManagerStats{PerDisk: make([]Snapshot, len(m.disks))}
	var totalLatencyNs uint64
	for i, d := range m.disks {
		snap := d.Stats.Snapshot()
		result.PerDisk[i] = snap
		mergeSnapshot(&result.Aggregate, snap)
		totalLatencyNs += uint64(snap.AvgLatency) * (snap.ReadOps + snap.WriteOps)
	}
	totalOps := result.Aggregate.ReadOps + result.Aggregate.WriteOps
	if totalOps > 0 {
		result.Aggregate.AvgLatency = time.Duration(totalLatencyNs / totalOps)
		result.Aggregate.LatencyP50 = percentileFromHistogram(result.Aggregate.LatencyHist, totalOps, 0.50)
		result.Aggregate.LatencyP99 = percentileFromHistogram(result.Aggregate.LatencyHist, totalOps, 0.99)
		result.Aggregate.LatencyP999 = percentileFromHistogram(result.Aggregate.LatencyHist, totalOps, 0.999)
	}
	return result
}

// NewBlocks allocates n blocks of size bytes, assigning each to a disk
// via strategy, and returns their BIDs in call order. Allocation is
// atomic per disk: if any disk involved cannot satisfy its share, all
// disks touched by this call are rolled back and ErrOutOfSpace is
// returned.
func (m *BlockManager) NewBlocks(strategy Strategy, n int, size int64) ([]BID, error) {
	if n == 0 {
		return nil, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	numDisks := len(m.disks)
	diskOf := make([]int, n)
	perDisk := make(map[int]int)
	base := int(m.stripeCounter)
	for i := 0; i < n; i++ {
		d := strategy(base+i, n, numDisks)
		if d < 0 || d >= numDisks {
			return nil, NewError("new_blocks", CodeConfigError, fmt.Sprintf("strategy returned out-of-range disk %d", d))
		}
		diskOf[i] = d
		perDisk[d]++
	}

	offsetsByDisk := make(map[int][]int64, len(perDisk))
	var allocatedDisks []int
	for d, cnt := range perDisk {
		offs, err := m.disks[d].Allocator.NewBlocks(cnt, size)
		if err != nil {
			for _, ad := range allocatedDisks {
				_ = m.disks[ad].Allocator.DeleteBlocks(offsetsByDisk[ad], size)
			}
			return nil, NewDiskError("new_blocks", d, CodeOutOfSpace, "disk allocator has insufficient contiguous space")
		}
		offsetsByDisk[d] = offs
		allocatedDisks = append(allocatedDisks, d)
	}

	idxByDisk := make(map[int]int, len(perDisk))
	bids := make([]BID, n)
	for i := 0; i < n; i++ {
		d := diskOf[i]
		off := offsetsByDisk[d][idxByDisk[d]]
		idxByDisk[d]++
		bids[i] = BID{Disk: d, Offset: off, Size: size}
	}

	m.stripeCounter += int64(n)
	return bids, nil
}

// DeleteBlocks returns every BID's space to its disk's allocator.
func (m *BlockManager) DeleteBlocks(bids []BID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	byDisk := make(map[int][]int64)
	sizeByDisk := make(map[int]int64)
	for _, b := range bids {
		byDisk[b.Disk] = append(byDisk[b.Disk], b.Offset)
		sizeByDisk[b.Disk] = b.Size
	}
	for d, offs := range byDisk {
		if d < 0 || d >= len(m.disks) {
			return NewDiskError("delete_blocks", d, CodeBugAssert, "BID names a disk outside this manager")
		}
		if err := m.disks[d].Allocator.DeleteBlocks(offs, sizeByDisk[d]); err != nil {
			if err == allocator.ErrDoubleFree {
				return NewDiskError("delete_blocks", d, CodeBugAssert, "double free of a BID")
			}
			return WrapIOError("delete_blocks", d, err)
		}
	}
	return nil
}

// Shutdown stops every disk queue and closes every backend. If debug
// checks are enabled and any disk still has outstanding allocations,
// it returns a bug_assert error rather than silently leaking the
// mismatch.
func (m *BlockManager) Shutdown() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, d := range m.disks {
		d.Queue.Stop()
	}
	var leakErr error
	if m.debug {
		for _, d := range m.disks {
			if d.Allocator.FreeBytes() != d.Allocator.Capacity() {
				leakErr = NewDiskError("shutdown", d.Index, CodeBugAssert, "disk has outstanding allocations at shutdown")
			}
		}
	}
	for _, d := range m.disks {
		if err := d.Backend.Close(); err != nil && leakErr == nil {
			leakErr = WrapIOError("shutdown", d.Index, err)
		}
	}
	return leakErr
}

// global holds the process-wide BlockManager installed by Init. It is
// an explicit context object rather than a hidden package-init
// singleton: callers must call Init before Default returns non-nil.
var (
	globalMu sync.Mutex
	global   *BlockManager
)

// Init installs m as the process-wide default manager. It returns a
// config_error if a manager is already installed.
func Init(m *BlockManager) error {
	globalMu.Lock()
	defer globalMu.Unlock()
	if global != nil {
		return NewError("init", CodeConfigError, "block manager already initialized")
	}
	global = m
	return nil
}

// Default returns the process-wide manager installed by Init, or nil.
func Default() *BlockManager {
	globalMu.Lock()
	defer globalMu.Unlock()
	return global
}

// ShutdownDefault tears down and clears the process-wide manager.
func ShutdownDefault() error {
	globalMu.Lock()
	m := global
	global = nil
	globalMu.Unlock()
	if m == nil {
		return nil
	}
	return m.Shutdown()
}
