package domain

import (
	"errors"
	"fmt"
	"time"
)

// Status is the envelope lifecycle state.
type Status string

const (
	StatusDraft            Status = "draft"
	StatusPendingSignature Status = "pending_signature"
	StatusInProgress       Status = "in_progress"
	StatusSigned           Status = "signed"
	StatusExpired          Status = "expired"
	StatusRejected         Status = "rejected"
)

// ErrInvalidTransition is returned when a status change is not part of the lifecycle.
var ErrInvalidTransition = errors.New("invalid envelope status transition")

var transitions = map[Status][]Status{
	StatusDraft:            {StatusPendingSignature},
	StatusPendingSignature: {StatusInProgress, StatusExpired, StatusRejected},
	// back to pending when a session is abandoned before expiry
	StatusInProgress: {StatusSigned, StatusExpired, StatusRejected, StatusPendingSignature},
}

// Terminal reports whether no further transitions are possible.
func (s Status) Terminal() bool {
	return s == StatusSigned || s == StatusExpired || s == StatusRejected
}

// DocumentSlot is one document the signer must review (or print and scan) before signing.
type DocumentSlot struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	DocumentRef string `json:"documentRef"`
	Required    bool   `json:"required"`
}

// Envelope is a set of documents sent for signature (stored in envelopes).
// Envelopes are soft-expired via Status and never deleted.
type Envelope struct {
	ID         string
	TypeCode   string
	CustomerID string
	Status     Status
	Documents  []DocumentSlot
	ExpiresAt  time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// TransitionTo moves the envelope to next, or returns ErrInvalidTransition.
func (e *Envelope) TransitionTo(next Status, at time.Time) error {
	for _, allowed := range transitions[e.Status] {
		if allowed == next {
			e.Status = next
			e.UpdatedAt = at
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, e.Status, next)
}

// Expired reports whether the envelope's deadline has passed at now.
func (e *Envelope) Expired(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}

// RequiredSlots returns the ids of required document slots in order.
func (e *Envelope) RequiredSlots() []string {
	var ids []string
	for _, d := range e.Documents {
		if d.Required {
			ids = append(ids, d.ID)
		}
	}
	return ids
}

// HasSlot reports whether slotID names one of the envelope's documents.
func (e *Envelope) HasSlot(slotID string) bool {
	for _, d := range e.Documents {
		if d.ID == slotID {
			return true
		}
	}
	return false
}

// Clone returns a copy with its own document slice.
func (e *Envelope) Clone() *Envelope {
	if e == nil {
		return nil
	}
	c := *e
	c.Documents = append([]DocumentSlot(nil), e.Documents...)
	return &c
}
