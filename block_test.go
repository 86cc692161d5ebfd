package extmem

import (
	"testing"
	"unsafe"
)

func TestNewAlignedBufferIsPageAligned(t *testing.T) {
	buf, err := NewAlignedBuffer(4096)
	if err != nil {
		t.Fatalf("NewAlignedBuffer: %v", err)
	}
	defer buf.Release()

	if len(buf.Bytes()) != 4096 {
		t.Errorf("Len() = %d, want 4096", len(buf.Bytes()))
	}
	addr := uintptr(unsafe.Pointer(&buf.Bytes()[0]))
	if addr%uintptr(buf.Alignment()) != 0 {
		t.Errorf("buffer address %#x is not aligned to %d", addr, buf.Alignment())
	}
}

func TestNewAlignedBufferRejectsNonPositiveSize(t *testing.T) {
	if _, err := NewAlignedBuffer(0); err == nil {
		t.Error("expected error for zero size")
	}
	if _, err := NewAlignedBuffer(-1); err == nil {
		t.Error("expected error for negative size")
	}
}

func TestAlignedBufferReleaseIsIdempotentFriendly(t *testing.T) {
	buf, err := NewAlignedBuffer(4096)
	if err != nil {
		t.Fatalf("NewAlignedBuffer: %v", err)
	}
	if err := buf.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if err := buf.Release(); err != nil {
		t.Errorf("second Release should be a no-op, got: %v", err)
	}
}

type record struct {
	A uint64
	B uint64
}

func TestTypedBlockOverlay(t *testing.T) {
	buf, err := NewAlignedBuffer(4096)
	if err != nil {
		t.Fatalf("NewAlignedBuffer: %v", err)
	}
	defer buf.Release()

	tb, err := NewTypedBlock[record](buf, 64)
	if err != nil {
		t.Fatalf("NewTypedBlock: %v", err)
	}
	recs := tb.Records()
	if len(recs) != tb.NumRecords() {
		t.Fatalf("Records() len = %d, want %d", len(recs), tb.NumRecords())
	}
	recs[0] = record{A: 7, B: 9}
	again := tb.Records()
	if again[0] != (record{A: 7, B: 9}) {
		t.Errorf("mutation through Records() not visible on next call: got %+v", again[0])
	}
}

func TestTypedBlockRejectsUnevenDivision(t *testing.T) {
	buf, err := NewAlignedBuffer(100)
	if err != nil {
		t.Fatalf("NewAlignedBuffer: %v", err)
	}
	defer buf.Release()

	if _, err := NewTypedBlock[record](buf, 3); err == nil {
		t.Error("expected alignment error for uneven header+record split")
	}
}
