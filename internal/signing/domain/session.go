package domain

import (
	"sort"
	"time"

	"esign-workflow/internal/consent"
	"esign-workflow/internal/identity"
	otpdomain "esign-workflow/internal/otp/domain"
)

// Evidence is everything a session has collected. It is persisted as one JSON document.
type Evidence struct {
	IdentityMethod  identity.Method    `json:"identityMethod,omitempty"`
	Identity        *identity.Result   `json:"identity,omitempty"`
	PendingCaptures []identity.Capture `json:"pendingCaptures,omitempty"`

	Consents []consent.Requirement `json:"consents"`

	ContactChannel   otpdomain.Channel `json:"contactChannel,omitempty"`
	ContactConfirmed bool              `json:"contactConfirmed,omitempty"`

	PresenceConfirmed bool              `json:"presenceConfirmed,omitempty"`
	Reviewed          []string          `json:"reviewed,omitempty"`
	Printed           []string          `json:"printed,omitempty"`
	CustomerSigned    bool              `json:"customerSigned,omitempty"`
	Scans             map[string]string `json:"scans,omitempty"`
	SignatureRef      string            `json:"signatureRef,omitempty"`
	AgentDeclaration  string            `json:"agentDeclaration,omitempty"`

	OTPChannel           otpdomain.Channel `json:"otpChannel,omitempty"`
	OTPChallengeID       string            `json:"otpChallengeId,omitempty"`
	OTPIssuedAt          *time.Time        `json:"otpIssuedAt,omitempty"`
	OTPVerifiedChallenge string            `json:"otpVerifiedChallenge,omitempty"`
	OTPVerifiedAt        *time.Time        `json:"otpVerifiedAt,omitempty"`
}

// OTPVerified reports whether the most recently issued challenge was verified.
func (e *Evidence) OTPVerified() bool {
	return e.OTPChallengeID != "" && e.OTPVerifiedChallenge == e.OTPChallengeID
}

// ClearOTP forgets the issued challenge and its verification.
func (e *Evidence) ClearOTP() {
	e.OTPChannel = ""
	e.OTPChallengeID = ""
	e.OTPIssuedAt = nil
	e.OTPVerifiedChallenge = ""
	e.OTPVerifiedAt = nil
}

// ScanRefs returns the uploaded scan references ordered by slot id.
func (e *Evidence) ScanRefs() []string {
	slots := make([]string, 0, len(e.Scans))
	for slot := range e.Scans {
		slots = append(slots, slot)
	}
	sort.Strings(slots)
	out := make([]string, 0, len(slots))
	for _, s := range slots {
		out = append(out, e.Scans[s])
	}
	return out
}

// Session is one signer's pass through an envelope (stored in signing_sessions).
type Session struct {
	ID                string
	EnvelopeID        string
	SignerID          string
	AgentID           string
	Method            Method
	Stage             Stage
	Evidence          Evidence
	Version           int64
	AbandonReason     string
	SignedDocumentRef string
	ExpiresAt         time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
	CompletedAt       *time.Time
}

// Clone returns a deep copy; the engine mutates clones and keeps the original on failure.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	ev := &c.Evidence
	if s.Evidence.Identity != nil {
		r := *s.Evidence.Identity
		if r.Claims.DateOfBirth != nil {
			d := *r.Claims.DateOfBirth
			r.Claims.DateOfBirth = &d
		}
		ev.Identity = &r
	}
	ev.PendingCaptures = append([]identity.Capture(nil), s.Evidence.PendingCaptures...)
	ev.Consents = consent.Clone(s.Evidence.Consents)
	ev.Reviewed = append([]string(nil), s.Evidence.Reviewed...)
	ev.Printed = append([]string(nil), s.Evidence.Printed...)
	if s.Evidence.Scans != nil {
		ev.Scans = make(map[string]string, len(s.Evidence.Scans))
		for k, v := range s.Evidence.Scans {
			ev.Scans[k] = v
		}
	}
	ev.OTPIssuedAt = copyTime(s.Evidence.OTPIssuedAt)
	ev.OTPVerifiedAt = copyTime(s.Evidence.OTPVerifiedAt)
	c.CompletedAt = copyTime(s.CompletedAt)
	return &c
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// Contains reports whether list holds v.
func Contains(list []string, v string) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}

// MissingFrom returns the entries of want absent from have, in order.
func MissingFrom(want, have []string) []string {
	var out []string
	for _, w := range want {
		if !Contains(have, w) {
			out = append(out, w)
		}
	}
	return out
}
