//go:build unix || darwin || linux || freebsd || openbsd || netbsd

// pkg/blockio/mmap_unix.go
package blockio

import (
	"os"
	"syscall"

	"golang.org/x/sys/unix"
)

// mapping holds a shared read-write memory mapping of an index file.
type mapping struct {
	data []byte
}

// mapFile maps size bytes of f starting at offset 0.
func mapFile(f *os.File, size int64) (*mapping, error) {
	data, err := syscall.Mmap(int(f.Fd()), 0, int(size),
		syscall.PROT_READ|syscall.PROT_WRITE, syscall.MAP_SHARED)
	if err != nil {
		return nil, err
	}
	return &mapping{data: data}, nil
}

func (m *mapping) sync() error {
	return unix.Msync(m.data, unix.MS_SYNC)
}

func (m *mapping) unmap() error {
	if m.data == nil {
		return nil
	}
	err := syscall.Munmap(m.data)
	m.data = nil
	return err
}

// lockFile acquires an exclusive lock on the given file.
// Returns ErrLocked if another process holds the lock.
func lockFile(f *os.File) error {
	err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB)
	if err != nil {
		if err == unix.EWOULDBLOCK {
			return ErrLocked
		}
		return err
	}
	return nil
}

// unlockFile releases the lock on the given file.
func unlockFile(f *os.File) error {
	return unix.Flock(int(f.Fd()), unix.LOCK_UN)
}
