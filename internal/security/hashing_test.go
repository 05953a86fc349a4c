package security

import (
	"testing"
)

func TestHasher_HashAndMatch(t *testing.T) {
	h := NewHasher(4)
	hash, err := h.HashIDNumber("AB123456")
	if err != nil {
		t.Fatalf("HashIDNumber: %v", err)
	}
	if hash == "" || hash == "AB123456" {
		t.Fatalf("unexpected hash %q", hash)
	}
	if !h.MatchIDNumber(hash, "ab-123 456") {
		t.Error("normalized number should match")
	}
	if h.MatchIDNumber(hash, "AB123457") {
		t.Error("different number matched")
	}
	if h.MatchIDNumber(hash, "") {
		t.Error("empty number matched")
	}
	if h.MatchIDNumber("", "AB123456") {
		t.Error("empty hash matched")
	}
}

func TestNormalizeIDNumber(t *testing.T) {
	testCases := map[string]string{
		"ab-123.456": "AB123456",
		" 9001015009087 ": "9001015009087",
		"":           "",
	}
	for in, want := range testCases {
		if got := NormalizeIDNumber(in); got != want {
			t.Errorf("NormalizeIDNumber(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestHasher_Cost(t *testing.T) {
	if got := NewHasher(0).Cost; got != 10 {
		t.Errorf("default cost = %d, want 10", got)
	}
	if got := NewHasher(2).Cost; got != 4 {
		t.Errorf("min cost = %d, want 4", got)
	}
	if got := NewHasher(40).Cost; got != 31 {
		t.Errorf("max cost = %d, want 31", got)
	}
}
