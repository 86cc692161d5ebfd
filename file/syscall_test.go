package file

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func TestSyscallReadWriteRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "disk0")
	s, err := OpenSyscall(path, os.O_RDWR|os.O_CREATE, 0o600, false)
	if err != nil {
		t.Fatalf("OpenSyscall: %v", err)
	}
	defer s.Close()

	if err := s.SetSize(1 << 20); err != nil {
		t.Fatalf("SetSize: %v", err)
	}
	want := bytes.Repeat([]byte("x"), 8192)
	if err := s.WriteAt(want, 4096); err != nil {
		t.Fatalf("WriteAt: %v", err)
	}
	got := make([]byte, len(want))
	if err := s.ReadAt(got, 4096); err != nil {
		t.Fatalf("ReadAt: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Error("round trip mismatch")
	}
}

func TestSyscallSize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "disk0")
	s, err := OpenSyscall(path, os.O_RDWR|os.O_CREATE, 0o600, false)
	if err != nil {
		t.Fatalf("OpenSyscall: %v", err)
	}
	defer s.Close()

	if err := s.SetSize(65536); err != nil {
		t.Fatalf("SetSize: %v", err)
	}
	got, err := s.Size()
	if err != nil {
		t.Fatalf("Size: %v", err)
	}
	if got != 65536 {
		t.Errorf("Size() = %d, want 65536", got)
	}
}

func TestSyscallIOType(t *testing.T) {
	path := filepath.Join(t.TempDir(), "disk0")
	s, err := OpenSyscall(path, os.O_RDWR|os.O_CREATE, 0o600, false)
	if err != nil {
		t.Fatalf("OpenSyscall: %v", err)
	}
	defer s.Close()
	if s.IOType() != "syscall" {
		t.Errorf("IOType() = %q, want syscall", s.IOType())
	}
}
