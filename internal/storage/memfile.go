package storage

import (
	"io"
	"sync"
)

// MemFile is an in-memory File. Its contents survive Close, so it can be
// reopened to simulate restarting a process.
type MemFile struct {
	mu     sync.RWMutex
	data   []byte
	opened bool
}

// NewMemFile returns an empty, open MemFile.
func NewMemFile() *MemFile {
	return &MemFile{opened: true}
}

// Open reopens a closed MemFile.
func (m *MemFile) Open() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.opened {
		return ErrFileAlreadyOpened
	}
	m.opened = true
	return nil
}

func (m *MemFile) ReadAt(p []byte, off int64) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.opened {
		return 0, ErrFileNotOpened
	}
	if off >= int64(len(m.data)) {
		return 0, io.EOF
	}
	n := copy(p, m.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (m *MemFile) WriteAt(p []byte, off int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.opened {
		return 0, ErrFileNotOpened
	}
	end := off + int64(len(p))
	if end > int64(len(m.data)) {
		if end > int64(cap(m.data)) {
			grown := make([]byte, end, max(end, int64(cap(m.data))*2))
			copy(grown, m.data)
			m.data = grown
		} else {
			m.data = m.data[:end]
		}
	}
	return copy(m.data[off:], p), nil
}

func (m *MemFile) Sync() error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.opened {
		return ErrFileNotOpened
	}
	return nil
}

func (m *MemFile) Size() (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.opened {
		return 0, ErrFileNotOpened
	}
	return int64(len(m.data)), nil
}

func (m *MemFile) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.opened {
		return ErrFileNotOpened
	}
	m.opened = false
	return nil
}

// Bytes returns a copy of the file contents.
func (m *MemFile) Bytes() []byte {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]byte, len(m.data))
	copy(out, m.data)
	return out
}

// Corrupt overwrites bytes at off. Test helper for damaged files.
func (m *MemFile) Corrupt(off int64, p []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()

	copy(m.data[off:], p)
}
