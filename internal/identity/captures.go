package identity

import "fmt"

// CaptureSet accumulates document-scan captures in the required order.
type CaptureSet []Capture

// Add appends c when it is the next expected kind and returns the extended set.
// Resubmitting the latest kind replaces it.
func (s CaptureSet) Add(c Capture) (CaptureSet, error) {
	if c.ImageRef == "" {
		return s, fmt.Errorf("%w: empty image reference", ErrInvalidClaim)
	}
	if n := len(s); n > 0 && s[n-1].Kind == c.Kind {
		out := append(CaptureSet(nil), s[:n-1]...)
		return append(out, c), nil
	}
	if len(s) >= len(CaptureOrder) || CaptureOrder[len(s)] != c.Kind {
		return s, fmt.Errorf("%w: got %s, want %s", ErrIncompleteCapture, c.Kind, s.Next())
	}
	out := append(CaptureSet(nil), s...)
	return append(out, c), nil
}

// Next returns the kind expected next, or "" once complete.
func (s CaptureSet) Next() CaptureKind {
	if len(s) >= len(CaptureOrder) {
		return ""
	}
	return CaptureOrder[len(s)]
}

// Complete reports whether front, back and selfie are present in order.
func (s CaptureSet) Complete() bool {
	if len(s) != len(CaptureOrder) {
		return false
	}
	for i, k := range CaptureOrder {
		if s[i].Kind != k || s[i].ImageRef == "" {
			return false
		}
	}
	return true
}
