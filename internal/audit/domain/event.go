package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"
)

// GenesisHash is the PrevHash of the first event in every session trail.
var GenesisHash = strings.Repeat("0", 64)

// EventType names a recorded signing transition.
type EventType string

const (
	EventSessionStarted             EventType = "session_started"
	EventIdentityMethodSelected     EventType = "identity_method_selected"
	EventCaptureReceived            EventType = "capture_received"
	EventIdentityVerified           EventType = "identity_verified"
	EventIdentityInvalidated        EventType = "identity_invalidated"
	EventContactConfirmed           EventType = "contact_confirmed"
	EventConsentAccepted            EventType = "consent_accepted"
	EventPresenceConfirmed          EventType = "presence_confirmed"
	EventDocumentReviewed           EventType = "document_reviewed"
	EventDocumentPrinted            EventType = "document_printed"
	EventStageCompleted             EventType = "stage_completed"
	EventSignatureCaptured          EventType = "signature_captured"
	EventCustomerSignatureWitnessed EventType = "customer_signature_witnessed"
	EventScanUploaded               EventType = "scan_uploaded"
	EventAgentDeclared              EventType = "agent_declared"
	EventOtpIssued                  EventType = "otp_issued"
	EventOtpVerified                EventType = "otp_verified"
	EventDocumentSigned             EventType = "document_signed"
	EventSessionAbandoned           EventType = "session_abandoned"
	EventEnvelopeRejected           EventType = "envelope_rejected"
)

// Event is one entry of a session's append-only audit trail (stored in audit_events).
// Seq, PrevHash and Hash are assigned when the event is sealed onto the trail.
type Event struct {
	ID         string
	SessionID  string
	Seq        int64
	Type       EventType
	ActorID    string
	ActorRole  string
	FromStage  string
	ToStage    string
	Metadata   map[string]string
	OccurredAt time.Time
	PrevHash   string
	Hash       string
}

// Seal places the event after the given head (last seq and hash of the trail) and computes its hash.
func (e *Event) Seal(headSeq int64, headHash string) {
	if headHash == "" {
		headHash = GenesisHash
	}
	e.Seq = headSeq + 1
	e.PrevHash = headHash
	e.Hash = e.ComputeHash()
}

type hashInput struct {
	ID         string            `json:"id"`
	SessionID  string            `json:"session_id"`
	Seq        int64             `json:"seq"`
	Type       EventType         `json:"type"`
	ActorID    string            `json:"actor_id"`
	ActorRole  string            `json:"actor_role"`
	FromStage  string            `json:"from_stage"`
	ToStage    string            `json:"to_stage"`
	Metadata   map[string]string `json:"metadata"`
	OccurredAt string            `json:"occurred_at"`
	PrevHash   string            `json:"prev_hash"`
}

// ComputeHash returns the hex SHA-256 of the event's canonical encoding, PrevHash included and Hash excluded.
// encoding/json sorts map keys, so the encoding is stable across stores.
func (e *Event) ComputeHash() string {
	md := e.Metadata
	if md == nil {
		md = map[string]string{}
	}
	b, _ := json.Marshal(hashInput{
		ID:         e.ID,
		SessionID:  e.SessionID,
		Seq:        e.Seq,
		Type:       e.Type,
		ActorID:    e.ActorID,
		ActorRole:  e.ActorRole,
		FromStage:  e.FromStage,
		ToStage:    e.ToStage,
		Metadata:   md,
		OccurredAt: e.OccurredAt.UTC().Format(time.RFC3339Nano),
		PrevHash:   e.PrevHash,
	})
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// Clone returns a deep copy so stores never share metadata maps with callers.
func (e *Event) Clone() *Event {
	if e == nil {
		return nil
	}
	c := *e
	if e.Metadata != nil {
		c.Metadata = make(map[string]string, len(e.Metadata))
		for k, v := range e.Metadata {
			c.Metadata[k] = v
		}
	}
	return &c
}
