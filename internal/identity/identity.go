// Package identity defines the identity verification strategies a signer can use and the
// result shape every strategy returns.
package identity

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Method names a verification strategy.
type Method string

const (
	MethodManual      Method = "manual"
	MethodFaceMatch   Method = "document_scan_face_match"
	MethodExternalEID Method = "external_eid"
)

// Valid reports whether m is a known method.
func (m Method) Valid() bool {
	switch m {
	case MethodManual, MethodFaceMatch, MethodExternalEID:
		return true
	}
	return false
}

// Failures are recoverable: the signer may retry or switch method. None of them is ever success.
var (
	ErrIdentityMismatch    = errors.New("identity: submitted details do not match the records")
	ErrLowConfidenceMatch  = errors.New("identity: face match confidence below threshold")
	ErrProviderUnavailable = errors.New("identity: verification provider unavailable")
	ErrIncompleteCapture   = errors.New("identity: front, back and selfie captures are required in order")
	ErrUnsupportedMethod   = errors.New("identity: method not supported")
	ErrInvalidClaim        = errors.New("identity: claim is missing required fields")
)

// CaptureKind is one of the three document-scan images.
type CaptureKind string

const (
	CaptureFront  CaptureKind = "front"
	CaptureBack   CaptureKind = "back"
	CaptureSelfie CaptureKind = "selfie"
)

// CaptureOrder is the order captures must arrive in.
var CaptureOrder = []CaptureKind{CaptureFront, CaptureBack, CaptureSelfie}

// Capture is a reference to an uploaded image; the bytes live in file storage.
type Capture struct {
	Kind     CaptureKind `json:"kind"`
	ImageRef string      `json:"imageRef"`
}

// Claim is what the signer (or the agent on their behalf) submits for verification.
// Which fields are used depends on the method.
type Claim struct {
	Method    Method
	SubjectID string

	// manual
	IDNumber           string
	DateOfBirth        *time.Time
	RegistrationNumber string
	RegistrationDate   *time.Time

	// document scan
	Captures []Capture

	// external eID: either the signed assertion itself or the reference the IdP handed back
	Assertion    string
	AssertionRef string
}

// Claims are the identity attributes a verification established.
type Claims struct {
	Name        string     `json:"name,omitempty"`
	IDNumber    string     `json:"idNumber,omitempty"`
	DateOfBirth *time.Time `json:"dateOfBirth,omitempty"`
}

// Result is the outcome of a successful verification. It is never mutated after it is recorded;
// a new verification needs the old result invalidated first.
type Result struct {
	Method     Method    `json:"method"`
	Matched    bool      `json:"matched"`
	Claims     Claims    `json:"claims"`
	Confidence float64   `json:"confidence,omitempty"`
	Reference  string    `json:"reference,omitempty"`
	VerifiedAt time.Time `json:"verifiedAt"`
}

// Verifier is one verification strategy.
type Verifier interface {
	Method() Method
	Verify(ctx context.Context, c Claim) (*Result, error)
}

// Verifiers dispatches claims to the strategy registered for their method.
type Verifiers struct {
	byMethod map[Method]Verifier
}

// NewVerifiers registers vs by their Method.
func NewVerifiers(vs ...Verifier) *Verifiers {
	out := &Verifiers{byMethod: make(map[Method]Verifier, len(vs))}
	for _, v := range vs {
		if v != nil {
			out.byMethod[v.Method()] = v
		}
	}
	return out
}

// Supports reports whether a strategy is registered for m.
func (v *Verifiers) Supports(m Method) bool {
	_, ok := v.byMethod[m]
	return ok
}

// Verify runs the strategy for c.Method. A strategy returning no error must return a matched result.
func (v *Verifiers) Verify(ctx context.Context, c Claim) (*Result, error) {
	impl, ok := v.byMethod[c.Method]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedMethod, c.Method)
	}
	res, err := impl.Verify(ctx, c)
	if err != nil {
		return nil, err
	}
	if res == nil || !res.Matched {
		return nil, ErrIdentityMismatch
	}
	return res, nil
}

// MaskIDNumber keeps the last four characters of an ID number for display in results and audit metadata.
func MaskIDNumber(n string) string {
	if len(n) <= 4 {
		return n
	}
	masked := make([]byte, len(n))
	for i := range masked {
		if i < len(n)-4 {
			masked[i] = '*'
		} else {
			masked[i] = n[i]
		}
	}
	return string(masked)
}

// SameDate reports whether a and b fall on the same calendar day in UTC.
func SameDate(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}
