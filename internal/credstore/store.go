// Package credstore persists the refresh token in a small fixed-size byte
// image addressed by offset, the way an EEPROM would hold it.
package credstore

import (
	"errors"
	"fmt"
	"io"
)

// DefaultCapacity is the image size used when none is configured
const DefaultCapacity = 512

var (
	// ErrOutOfRange indicates a write that does not fit inside the image
	ErrOutOfRange = errors.New("range outside store capacity")

	// ErrNoRecord indicates the store holds no refresh token at the offset
	ErrNoRecord = errors.New("no refresh token stored")

	// ErrCorruptRecord indicates the stored length prefix is impossible
	ErrCorruptRecord = errors.New("corrupt refresh token record")
)

// Store is a fixed-capacity byte image. Bytes never written read as zero.
type Store interface {
	io.ReaderAt
	io.WriterAt

	// Capacity returns the image size in bytes
	Capacity() int64
}

// checkWrite validates that n bytes at off fit in capacity
func checkWrite(off int64, n int, capacity int64) error {
	if off < 0 || off+int64(n) > capacity {
		return fmt.Errorf("%w: %d bytes at offset %d, capacity %d", ErrOutOfRange, n, off, capacity)
	}
	return nil
}

// readWindow clamps a read of n bytes at off to capacity. It returns the
// number of bytes that can be served and the error to report alongside them.
func readWindow(off int64, n int, capacity int64) (int, error) {
	if off < 0 {
		return 0, fmt.Errorf("%w: negative offset %d", ErrOutOfRange, off)
	}
	if off >= capacity {
		return 0, io.EOF
	}
	if avail := capacity - off; int64(n) > avail {
		return int(avail), io.EOF
	}
	return n, nil
}
