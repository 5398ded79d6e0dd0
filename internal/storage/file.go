package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync/atomic"
)

var (
	ErrFileAlreadyOpened = errors.New("file already opened")
	ErrFileAlreadyExists = errors.New("file already exists")
	ErrFileNotOpened     = errors.New("file not opened")
)

// File is the byte container a Pager is built on.
type File interface {
	io.ReaderAt
	io.WriterAt
	// Sync forces written data to stable storage.
	Sync() error
	// Size returns the current length in bytes.
	Size() (int64, error)
	Close() error
}

// OSFile is a File backed by the operating system. The file is held under an
// exclusive advisory lock while open.
type OSFile struct {
	path   string
	file   *os.File
	closed atomic.Bool
}

// OpenFile opens path, creating it if it does not exist.
func OpenFile(path string) (*OSFile, error) {
	return openFile(path, os.O_RDWR|os.O_CREATE)
}

// CreateFile creates a new file at path and fails if one already exists.
func CreateFile(path string) (*OSFile, error) {
	return openFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL)
}

func openFile(path string, flag int) (*OSFile, error) {
	file, err := os.OpenFile(path, flag, 0600)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("%w: %s", ErrFileAlreadyExists, path)
		}
		return nil, err
	}

	if err := lockFile(file); err != nil {
		_ = file.Close()
		if errors.Is(err, errLocked) {
			return nil, fmt.Errorf("%w: %s", ErrFileAlreadyOpened, path)
		}
		return nil, err
	}

	return &OSFile{path: path, file: file}, nil
}

// Path returns the path the file was opened with.
func (f *OSFile) Path() string {
	return f.path
}

func (f *OSFile) ReadAt(p []byte, off int64) (int, error) {
	if f.closed.Load() {
		return 0, ErrFileNotOpened
	}
	return f.file.ReadAt(p, off)
}

func (f *OSFile) WriteAt(p []byte, off int64) (int, error) {
	if f.closed.Load() {
		return 0, ErrFileNotOpened
	}
	return f.file.WriteAt(p, off)
}

func (f *OSFile) Sync() error {
	if f.closed.Load() {
		return ErrFileNotOpened
	}
	return syncData(f.file)
}

func (f *OSFile) Size() (int64, error) {
	if f.closed.Load() {
		return 0, ErrFileNotOpened
	}
	info, err := f.file.Stat()
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// Close releases the lock and closes the file.
func (f *OSFile) Close() error {
	if !f.closed.CompareAndSwap(false, true) {
		return ErrFileNotOpened
	}
	_ = unlockFile(f.file)
	return f.file.Close()
}
