package credstore

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisKey holds the image when no key is configured
const DefaultRedisKey = "device-auth:credentials"

const defaultRedisTimeout = 5 * time.Second

// RedisStore keeps the image in a single Redis string value, addressed with
// GETRANGE and SETRANGE. Bytes past the end of the value read as zero.
type RedisStore struct {
	client   *redis.Client
	key      string
	capacity int64
	timeout  time.Duration
}

// NewRedisStore returns a store backed by key on client
func NewRedisStore(client *redis.Client, key string, capacity int64) *RedisStore {
	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisStore{client: client, key: key, capacity: capacity, timeout: defaultRedisTimeout}
}

// CheckHealth verifies Redis connectivity
func (s *RedisStore) CheckHealth(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis health check failed: %w", err)
	}
	return nil
}

// Capacity implements Store
func (s *RedisStore) Capacity() int64 { return s.capacity }

// ReadAt implements io.ReaderAt
func (s *RedisStore) ReadAt(p []byte, off int64) (int, error) {
	n, werr := readWindow(off, len(p), s.capacity)
	if n == 0 {
		return 0, werr
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	data, err := s.client.GetRange(ctx, s.key, off, off+int64(n)-1).Bytes()
	if err != nil && err != redis.Nil {
		return 0, fmt.Errorf("reading credential image: %w", err)
	}
	copied := copy(p[:n], data)
	clear(p[copied:n])
	return n, werr
}

// WriteAt implements io.WriterAt
func (s *RedisStore) WriteAt(p []byte, off int64) (int, error) {
	if err := checkWrite(off, len(p), s.capacity); err != nil {
		return 0, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	if err := s.client.SetRange(ctx, s.key, off, string(p)).Err(); err != nil {
		return 0, fmt.Errorf("writing credential image: %w", err)
	}
	return len(p), nil
}

// Close releases the underlying client
func (s *RedisStore) Close() error {
	return s.client.Close()
}
