package credstore

import (
	"encoding/binary"
	"fmt"

	"github.com/wrale/oauth2-device-client/internal/deviceflow"
	"github.com/wrale/oauth2-device-client/internal/validation"
)

const (
	lengthPrefix = 2

	// RecordLen is the number of bytes a refresh token record occupies:
	// a big-endian length followed by the token padded to its capacity
	RecordLen = lengthPrefix + validation.RefreshTokenMax

	// erased is the length prefix read from a never-programmed EEPROM image
	erased = 0xFFFF
)

// SaveRefreshToken writes the refresh token held by creds as one record at
// off. An empty token is written as an empty record.
func SaveRefreshToken(s Store, off int64, creds *deviceflow.Credentials) error {
	token := creds.RefreshToken()

	var rec [RecordLen]byte
	binary.BigEndian.PutUint16(rec[:lengthPrefix], uint16(len(token)))
	copy(rec[lengthPrefix:], token)

	if _, err := s.WriteAt(rec[:], off); err != nil {
		return fmt.Errorf("saving refresh token: %w", err)
	}
	return nil
}

// LoadRefreshToken reads the record at off into creds. It returns
// ErrNoRecord for an empty or erased record; creds are left untouched on
// any error.
func LoadRefreshToken(s Store, off int64, creds *deviceflow.Credentials) error {
	var rec [RecordLen]byte
	if _, err := s.ReadAt(rec[:], off); err != nil {
		return fmt.Errorf("loading refresh token: %w", err)
	}

	n := binary.BigEndian.Uint16(rec[:lengthPrefix])
	switch {
	case n == 0 || n == erased:
		return ErrNoRecord
	case int(n) > validation.RefreshTokenMax:
		return fmt.Errorf("%w: length %d", ErrCorruptRecord, n)
	}

	return creds.SetRefreshToken(string(rec[lengthPrefix : lengthPrefix+int(n)]))
}
