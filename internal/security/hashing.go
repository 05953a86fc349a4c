package security

import (
	"strings"
	"unicode"

	"golang.org/x/crypto/bcrypt"
)

// Hasher hashes identity document numbers kept on party records. Plaintext numbers
// are never persisted or logged.
type Hasher struct {
	Cost int
}

// NewHasher returns a Hasher with the given bcrypt cost, clamped to 4–31.
func NewHasher(cost int) *Hasher {
	if cost <= 0 {
		cost = bcrypt.DefaultCost
	}
	if cost < bcrypt.MinCost {
		cost = bcrypt.MinCost
	}
	if cost > bcrypt.MaxCost {
		cost = bcrypt.MaxCost
	}
	return &Hasher{Cost: cost}
}

// NormalizeIDNumber uppercases and strips spaces, dashes and dots so "ab-123 456" and "AB123456" compare equal.
func NormalizeIDNumber(s string) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToUpper(r))
		}
	}
	return b.String()
}

// HashIDNumber returns the bcrypt hash of the normalized number.
func (h *Hasher) HashIDNumber(number string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(NormalizeIDNumber(number)), h.Cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// MatchIDNumber reports whether number matches the stored hash. A malformed hash never matches.
func (h *Hasher) MatchIDNumber(hash, number string) bool {
	n := NormalizeIDNumber(number)
	if hash == "" || n == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(n)) == nil
}
