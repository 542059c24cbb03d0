package credstore

import (
	"fmt"
	"os"
)

// FileStore keeps the image in a regular file of exactly Capacity bytes
type FileStore struct {
	f        *os.File
	capacity int64
}

// OpenFileStore opens or creates the image file at path. A shorter file is
// zero-extended to capacity; existing contents are preserved.
func OpenFileStore(path string, capacity int64) (*FileStore, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return nil, fmt.Errorf("opening credential image: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("inspecting credential image: %w", err)
	}
	if info.Size() < capacity {
		if err := f.Truncate(capacity); err != nil {
			f.Close()
			return nil, fmt.Errorf("sizing credential image: %w", err)
		}
	}

	return &FileStore{f: f, capacity: capacity}, nil
}

// Capacity implements Store
func (s *FileStore) Capacity() int64 { return s.capacity }

// ReadAt implements io.ReaderAt
func (s *FileStore) ReadAt(p []byte, off int64) (int, error) {
	n, err := readWindow(off, len(p), s.capacity)
	if n == 0 {
		return 0, err
	}
	if _, rerr := s.f.ReadAt(p[:n], off); rerr != nil {
		return 0, fmt.Errorf("reading credential image: %w", rerr)
	}
	return n, err
}

// WriteAt implements io.WriterAt. The file is synced before returning.
func (s *FileStore) WriteAt(p []byte, off int64) (int, error) {
	if err := checkWrite(off, len(p), s.capacity); err != nil {
		return 0, err
	}
	n, err := s.f.WriteAt(p, off)
	if err != nil {
		return n, fmt.Errorf("writing credential image: %w", err)
	}
	if err := s.f.Sync(); err != nil {
		return n, fmt.Errorf("syncing credential image: %w", err)
	}
	return n, nil
}

// Close releases the file
func (s *FileStore) Close() error {
	return s.f.Close()
}
