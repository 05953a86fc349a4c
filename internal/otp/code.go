package otp

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
)

const codeDigits = 6

// GenerateCode returns a 6-digit numeric code from crypto/rand. Bytes >= 250 are redrawn
// so every digit is uniformly distributed.
func GenerateCode() (string, error) {
	out := make([]byte, 0, codeDigits)
	buf := make([]byte, codeDigits*2)
	for len(out) < codeDigits {
		if _, err := rand.Read(buf); err != nil {
			return "", err
		}
		for _, b := range buf {
			if b >= 250 {
				continue
			}
			out = append(out, '0'+b%10)
			if len(out) == codeDigits {
				break
			}
		}
	}
	return string(out), nil
}

// HashCode returns the hex SHA-256 of code. Only the hash is persisted.
func HashCode(code string) string {
	h := sha256.Sum256([]byte(code))
	return hex.EncodeToString(h[:])
}

// CodeEqual compares the hash of the provided code with the stored hash in constant time.
func CodeEqual(provided, storedHash string) bool {
	if provided == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(HashCode(provided)), []byte(storedHash)) == 1
}
