// Package allocator tracks free space on a single disk as a sorted,
// disjoint list of byte extents and carves new blocks from it with a
// first-fit policy. It has no notion of a disk, a backend, or a block
// manager; it only does interval bookkeeping.
package allocator

import (
	"errors"
	"sort"
)

// ErrOutOfSpace is returned when a request cannot be satisfied: either
// no single free extent is large enough, or (for a multi-block request)
// a later block in the same call could not be carved, in which case no
// block from that call is allocated.
var ErrOutOfSpace = errors.New("allocator: insufficient contiguous space")

// ErrDoubleFree is returned by DeleteBlocks in debug mode when an
// extent being freed overlaps space that is already free, which can
// only happen if it was freed once already.
var ErrDoubleFree = errors.New("allocator: extent already free")

// Extent is a contiguous run of free bytes.
type Extent struct {
	Start  int64
	Length int64
}

// Allocator manages free space over [0, capacity) on one disk.
type Allocator struct {
	capacity int64
	debug    bool
	free     []Extent // sorted by Start, disjoint, coalesced
}

// New returns an allocator over a disk of the given capacity, entirely
// free. debug enables double-free detection in DeleteBlocks.
func New(capacity int64, debug bool) *Allocator {
	return &Allocator{
		capacity: capacity,
		debug:    debug,
		free:     []Extent{{Start: 0, Length: capacity}},
	}
}

// Capacity returns the disk's total size in bytes.
func (a *Allocator) Capacity() int64 { return a.capacity }

// FreeBytes returns the total currently free space.
func (a *Allocator) FreeBytes() int64 {
	var total int64
	for _, e := range a.free {
		total += e.Length
	}
	return total
}

// FreeExtents returns a copy of the current free list, for inspection
// or testing the partition invariant.
func (a *Allocator) FreeExtents() []Extent {
	out := make([]Extent, len(a.free))
	copy(out, a.free)
	return out
}

// NewBlocks carves n extents of size bytes each using first-fit. It is
// atomic: if any of the n carves fails, the allocator's free list is
// left untouched and ErrOutOfSpace is returned.
func (a *Allocator) NewBlocks(n int, size int64) ([]int64, error) {
	if n == 0 {
		return nil, nil
	}
	work := append([]Extent(nil), a.free...)
	offsets := make([]int64, 0, n)
	for i := 0; i < n; i++ {
		var off int64
		var ok bool
		work, off, ok = carve(work, size)
		if !ok {
			return nil, ErrOutOfSpace
		}
		offsets = append(offsets, off)
	}
	a.free = work
	return offsets, nil
}

// carve removes the first size-byte run from free using first-fit,
// returning the updated list and the offset it carved from.
func carve(free []Extent, size int64) ([]Extent, int64, bool) {
	for i, e := range free {
		if e.Length < size {
			continue
		}
		off := e.Start
		if e.Length == size {
			free = append(free[:i], free[i+1:]...)
		} else {
			free[i] = Extent{Start: e.Start + size, Length: e.Length - size}
		}
		return free, off, true
	}
	return free, 0, false
}

// DeleteBlocks returns n extents, each of size bytes starting at the
// given offsets, to the free list, coalescing with adjacent free
// extents. In debug mode, returning an extent that overlaps existing
// free space (a double free) returns ErrDoubleFree and leaves the free
// list unchanged for that extent; in release mode it is silently
// skipped so the free map cannot be corrupted.
func (a *Allocator) DeleteBlocks(offsets []int64, size int64) error {
	for _, off := range offsets {
		if err := a.freeOne(Extent{Start: off, Length: size}); err != nil {
			return err
		}
	}
	return nil
}

func (a *Allocator) freeOne(e Extent) error {
	overlap := false
	for _, f := range a.free {
		if e.Start < f.Start+f.Length && f.Start < e.Start+e.Length {
			overlap = true
			break
		}
	}
	if overlap {
		if a.debug {
			return ErrDoubleFree
		}
		return nil
	}

	a.free = append(a.free, e)
	sort.Slice(a.free, func(i, j int) bool { return a.free[i].Start < a.free[j].Start })

	merged := a.free[:0]
	for _, f := range a.free {
		if len(merged) > 0 {
			last := &merged[len(merged)-1]
			if last.Start+last.Length == f.Start {
				last.Length += f.Length
				continue
			}
		}
		merged = append(merged, f)
	}
	a.free = merged
	return nil
}
