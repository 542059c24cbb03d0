package providertest

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
)

// userCodeCharset avoids vowels and look-alike characters
const userCodeCharset = "BCDFGHJKLMNPQRSTVWXZ"

const userCodeGroupSize = 4

// generateSecureCode returns length random bytes hex-encoded
func generateSecureCode(length int) (string, error) {
	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// selectRandomChar selects a random character without modulo bias
func selectRandomChar(available string) (byte, error) {
	maxNeeded := 256 - (256 % len(available))

	b := make([]byte, 1)
	for {
		if _, err := rand.Read(b); err != nil {
			return 0, fmt.Errorf("generating random byte: %w", err)
		}
		if int(b[0]) >= maxNeeded {
			continue
		}
		return available[int(b[0])%len(available)], nil
	}
}

// generateUserCode returns a code shaped like Google's, e.g. GQVQ-JKEC
func generateUserCode() (string, error) {
	var b strings.Builder
	for group := 0; group < 2; group++ {
		if group > 0 {
			b.WriteByte('-')
		}
		for i := 0; i < userCodeGroupSize; i++ {
			c, err := selectRandomChar(userCodeCharset)
			if err != nil {
				return "", err
			}
			b.WriteByte(c)
		}
	}
	return b.String(), nil
}
