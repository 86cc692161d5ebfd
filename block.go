package extmem

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// AlignedBuffer is a page-aligned chunk of anonymous memory sized for a
// single block transfer. Backing it with an anonymous mmap (rather than
// a manually-offset byte slice) gives a real page-aligned address, the
// alignment DIRECT I/O backends require.
type AlignedBuffer struct {
	data []byte
}

// NewAlignedBuffer allocates a zeroed buffer of exactly size bytes,
// aligned to the host page size. size must be positive; callers needing
// a specific alignment coarser than the page size (never the case on
// the platforms this library targets) should check Alignment().
func NewAlignedBuffer(size int) (*AlignedBuffer, error) {
	if size <= 0 {
		return nil, NewError("new_aligned_buffer", CodeAlignmentError, "size must be positive")
	}
	data, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		return nil, WrapIOError("new_aligned_buffer", -1, err)
	}
	return &AlignedBuffer{data: data}, nil
}

// Bytes returns the buffer's backing slice. The slice is valid until
// Release is called.
func (b *AlignedBuffer) Bytes() []byte { return b.data }

// Len returns the buffer size in bytes.
func (b *AlignedBuffer) Len() int { return len(b.data) }

// Alignment returns the alignment guaranteed by this buffer's
// allocation, the host page size.
func (b *AlignedBuffer) Alignment() int { return unix.Getpagesize() }

// Release returns the buffer's memory to the OS. The buffer must not be
// used afterward.
func (b *AlignedBuffer) Release() error {
	if b.data == nil {
		return nil
	}
	err := unix.Munmap(b.data)
	b.data = nil
	if err != nil {
		return WrapIOError("release_aligned_buffer", -1, err)
	}
	return nil
}

// TypedBlock presents a block's payload as a fixed-size header region
// plus a slice of fixed-size records, the way the spec's typed block
// overlays POD records onto a raw buffer. T must be a fixed-size value
// type; TypedBlock does no bounds checking beyond the constructor's
// divisibility check.
type TypedBlock[T any] struct {
	buf    *AlignedBuffer
	header int
	n      int
}

// NewTypedBlock overlays buf with a header of headerSize bytes followed
// by as many T records as fit exactly. It returns an alignment_error if
// the remaining space is not an exact multiple of sizeof(T).
func NewTypedBlock[T any](buf *AlignedBuffer, headerSize int) (*TypedBlock[T], error) {
	var zero T
	recSize := int(unsafe.Sizeof(zero))
	if recSize == 0 {
		return nil, NewError("new_typed_block", CodeAlignmentError, "record type has zero size")
	}
	avail := buf.Len() - headerSize
	if avail < 0 || avail%recSize != 0 {
		return nil, NewError("new_typed_block", CodeAlignmentError, "block size does not evenly divide into header + records")
	}
	return &TypedBlock[T]{buf: buf, header: headerSize, n: avail / recSize}, nil
}

// Header returns the raw header bytes.
func (t *TypedBlock[T]) Header() []byte { return t.buf.Bytes()[:t.header] }

// Records returns the record region as a []T sharing the block's
// backing memory; mutations are visible through future Records() calls
// and are what gets written to disk.
func (t *TypedBlock[T]) Records() []T {
	if t.n == 0 {
		return nil
	}
	base := unsafe.Pointer(&t.buf.Bytes()[t.header])
	return unsafe.Slice((*T)(base), t.n)
}

// NumRecords returns how many T records the block holds.
func (t *TypedBlock[T]) NumRecords() int { return t.n }

// Buffer returns the underlying AlignedBuffer.
func (t *TypedBlock[T]) Buffer() *AlignedBuffer { return t.buf }
