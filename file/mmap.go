package file

import (
	"os"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/outofcore/extmem/internal/interfaces"
)

// Mmap is a file backend that maps a fresh window of the file for each
// request rather than keeping the whole file mapped: ReadAt/WriteAt
// each mmap exactly the requested range with direction-specific
// protection, memcpy into or out of it, and munmap before returning.
// This lets the kernel's page cache schedule the actual I/O while
// keeping no address space pinned between requests.
type Mmap struct {
	mu   sync.RWMutex
	f    *os.File
	size int64
}

var _ interfaces.FileBackend = (*Mmap)(nil)

// OpenMmap opens path, truncated/extended to length bytes.
func OpenMmap(path string, flags int, perm os.FileMode, length int64) (*Mmap, error) {
	f, err := os.OpenFile(path, flags, perm)
	if err != nil {
		return nil, err
	}
	m := &Mmap{f: f}
	if err := m.SetSize(length); err != nil {
		f.Close()
		return nil, err
	}
	return m, nil
}

// Size returns the file's current length.
func (m *Mmap) Size() (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.size, nil
}

// SetSize truncates the file to length.
func (m *Mmap) SetSize(length int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.f.Truncate(length); err != nil {
		return err
	}
	m.size = length
	return nil
}

// ReadAt maps [off, off+len(p)) PROT_READ, copies it into p, and unmaps.
func (m *Mmap) ReadAt(p []byte, off int64) error {
	return m.mapCopy(p, off, unix.PROT_READ)
}

// WriteAt maps [off, off+len(p)) PROT_WRITE, copies p into it, and unmaps.
func (m *Mmap) WriteAt(p []byte, off int64) error {
	return m.mapCopy(p, off, unix.PROT_WRITE)
}

func (m *Mmap) mapCopy(p []byte, off int64, prot int) error {
	if len(p) == 0 {
		return nil
	}

	m.mu.RLock()
	size := m.size
	m.mu.RUnlock()
	if off < 0 || off+int64(len(p)) > size {
		return errOutOfBounds(protOpName(prot), off, len(p), size)
	}

	mem, err := unix.Mmap(int(m.f.Fd()), off, len(p), prot, unix.MAP_SHARED)
	if err != nil {
		return err
	}
	defer unix.Munmap(mem)

	if prot == unix.PROT_READ {
		copy(p, mem)
	} else {
		copy(mem, p)
	}
	return nil
}

func protOpName(prot int) string {
	if prot == unix.PROT_READ {
		return "read"
	}
	return "write"
}

// Lock takes an advisory exclusive flock on the underlying file.
func (m *Mmap) Lock() error {
	return unix.Flock(int(m.f.Fd()), unix.LOCK_EX|unix.LOCK_NB)
}

// IOType names this backend for logging and statistics.
func (m *Mmap) IOType() string { return "mmap" }

// Close closes the underlying file descriptor. No mapping survives
// between requests, so there is nothing to unmap here.
func (m *Mmap) Close() error {
	return m.f.Close()
}
