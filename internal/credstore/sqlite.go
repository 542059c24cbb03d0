package credstore

import (
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"
)

// SQLiteStore keeps the image as a single blob row
type SQLiteStore struct {
	db       *sql.DB
	capacity int64
}

// OpenSQLiteStore opens the database at path, creating the image row if it
// does not exist yet
func OpenSQLiteStore(path string, capacity int64) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	// A single connection serializes the read-modify-write in WriteAt
	db.SetMaxOpenConns(1)

	if err := initSchema(db, capacity); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to init database: %w", err)
	}

	return &SQLiteStore{db: db, capacity: capacity}, nil
}

func initSchema(db *sql.DB, capacity int64) error {
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS credential_image (
			id     INTEGER PRIMARY KEY CHECK (id = 1),
			image  BLOB NOT NULL
		);`,
	); err != nil {
		return fmt.Errorf("failed to init 'credential_image' table schema: %w", err)
	}
	if _, err := db.Exec(
		`INSERT OR IGNORE INTO credential_image (id, image) VALUES (1, zeroblob(?))`,
		capacity,
	); err != nil {
		return fmt.Errorf("failed to create credential image row: %w", err)
	}
	return nil
}

// Capacity implements Store
func (s *SQLiteStore) Capacity() int64 { return s.capacity }

// ReadAt implements io.ReaderAt
func (s *SQLiteStore) ReadAt(p []byte, off int64) (int, error) {
	n, werr := readWindow(off, len(p), s.capacity)
	if n == 0 {
		return 0, werr
	}

	image, err := loadImage(s.db)
	if err != nil {
		return 0, err
	}
	copied := 0
	if off < int64(len(image)) {
		copied = copy(p[:n], image[off:])
	}
	clear(p[copied:n])
	return n, werr
}

// WriteAt implements io.WriterAt
func (s *SQLiteStore) WriteAt(p []byte, off int64) (int, error) {
	if err := checkWrite(off, len(p), s.capacity); err != nil {
		return 0, err
	}

	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("beginning credential write: %w", err)
	}
	defer tx.Rollback()

	image, err := loadImage(tx)
	if err != nil {
		return 0, err
	}
	if int64(len(image)) < s.capacity {
		image = append(image, make([]byte, s.capacity-int64(len(image)))...)
	}
	copy(image[off:], p)

	if _, err := tx.Exec(`UPDATE credential_image SET image = ? WHERE id = 1`, image); err != nil {
		return 0, fmt.Errorf("writing credential image: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing credential image: %w", err)
	}
	return len(p), nil
}

// Close releases the database
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type queryer interface {
	QueryRow(query string, args ...any) *sql.Row
}

func loadImage(q queryer) ([]byte, error) {
	var image []byte
	err := q.QueryRow(`SELECT image FROM credential_image WHERE id = 1`).Scan(&image)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading credential image: %w", err)
	}
	return image, nil
}
