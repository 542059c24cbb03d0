package credstore

import "sync"

// MemoryStore keeps the image in memory. It is lost on exit.
type MemoryStore struct {
	mu   sync.RWMutex
	data []byte
}

// NewMemoryStore returns a zeroed image of the given capacity
func NewMemoryStore(capacity int64) *MemoryStore {
	return &MemoryStore{data: make([]byte, capacity)}
}

// Capacity implements Store
func (s *MemoryStore) Capacity() int64 { return int64(len(s.data)) }

// ReadAt implements io.ReaderAt
func (s *MemoryStore) ReadAt(p []byte, off int64) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n, err := readWindow(off, len(p), s.Capacity())
	if n > 0 {
		copy(p, s.data[off:off+int64(n)])
	}
	return n, err
}

// WriteAt implements io.WriterAt
func (s *MemoryStore) WriteAt(p []byte, off int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := checkWrite(off, len(p), s.Capacity()); err != nil {
		return 0, err
	}
	return copy(s.data[off:], p), nil
}
