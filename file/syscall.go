package file

import (
	"io"
	"os"

	"golang.org/x/sys/unix"

	"github.com/outofcore/extmem/internal/interfaces"
)

// Syscall is a POSIX file-descriptor backed backend using positioned
// pread/pwrite. Concurrent non-overlapping transfers proceed without
// serialization since pread/pwrite do not move a shared file offset.
type Syscall struct {
	f *os.File
}

var _ interfaces.FileBackend = (*Syscall)(nil)

// OpenSyscall opens path with the given flags (os.O_RDWR|os.O_CREATE,
// ...), optionally with O_DIRECT when direct is true.
func OpenSyscall(path string, flags int, perm os.FileMode, direct bool) (*Syscall, error) {
	if direct {
		flags |= unix.O_DIRECT
	}
	f, err := os.OpenFile(path, flags, perm)
	if err != nil {
		return nil, err
	}
	return &Syscall{f: f}, nil
}

// Size returns the file's current length.
func (s *Syscall) Size() (int64, error) {
	fi, err := s.f.Stat()
	if err != nil {
		return 0, err
	}
	return fi.Size(), nil
}

// SetSize truncates or extends the file to length bytes.
func (s *Syscall) SetSize(length int64) error {
	return s.f.Truncate(length)
}

// ReadAt performs a positioned pread, retrying on a short read until
// p is full or an error occurs.
func (s *Syscall) ReadAt(p []byte, off int64) error {
	for len(p) > 0 {
		n, err := unix.Pread(int(s.f.Fd()), p, off)
		if err != nil {
			return err
		}
		if n == 0 {
			return io.EOF
		}
		p = p[n:]
		off += int64(n)
	}
	return nil
}

// WriteAt performs a positioned pwrite, retrying on a short write.
func (s *Syscall) WriteAt(p []byte, off int64) error {
	for len(p) > 0 {
		n, err := unix.Pwrite(int(s.f.Fd()), p, off)
		if err != nil {
			return err
		}
		p = p[n:]
		off += int64(n)
	}
	return nil
}

// Lock takes an advisory exclusive flock on the file.
func (s *Syscall) Lock() error {
	return unix.Flock(int(s.f.Fd()), unix.LOCK_EX|unix.LOCK_NB)
}

// IOType names this backend for logging and statistics.
func (s *Syscall) IOType() string { return "syscall" }

// Close closes the underlying file descriptor.
func (s *Syscall) Close() error { return s.f.Close() }
