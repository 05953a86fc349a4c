package handler

import (
	"fmt"
	"time"

	auditdomain "esign-workflow/internal/audit/domain"
	"esign-workflow/internal/identity"
	otpdomain "esign-workflow/internal/otp/domain"
	"esign-workflow/internal/signing/domain"
)

const dateLayout = "2006-01-02"

type BeginSessionRequest struct {
	EnvelopeID string `json:"envelopeId"`
	SignerID   string `json:"signerId"`
	Method     string `json:"method"`
}

type SessionRequest struct {
	SessionID string `json:"sessionId"`
}

type CloseSessionRequest struct {
	SessionID string `json:"sessionId"`
	Reason    string `json:"reason,omitempty"`
}

type AdvanceRequest struct {
	SessionID string `json:"sessionId"`
	Input     Input  `json:"input"`
}

// Input is the wire form of a stage input. Kind selects which of the other fields are read.
type Input struct {
	Kind           string            `json:"kind"`
	IdentityMethod string            `json:"identityMethod,omitempty"`
	Claim          *Claim            `json:"claim,omitempty"`
	Capture        *identity.Capture `json:"capture,omitempty"`
	Reason         string            `json:"reason,omitempty"`
	Channel        string            `json:"channel,omitempty"`
	ConsentID      string            `json:"consentId,omitempty"`
	Value          *bool             `json:"value,omitempty"`
	SlotID         string            `json:"slotId,omitempty"`
	ArtifactRef    string            `json:"artifactRef,omitempty"`
	Ref            string            `json:"ref,omitempty"`
	Statement      string            `json:"statement,omitempty"`
	Code           string            `json:"code,omitempty"`
}

// Claim carries identity details. Dates use YYYY-MM-DD.
type Claim struct {
	Method             string `json:"method,omitempty"`
	IDNumber           string `json:"idNumber,omitempty"`
	DateOfBirth        string `json:"dateOfBirth,omitempty"`
	RegistrationNumber string `json:"registrationNumber,omitempty"`
	RegistrationDate   string `json:"registrationDate,omitempty"`
	Assertion          string `json:"assertion,omitempty"`
	AssertionRef       string `json:"assertionRef,omitempty"`
}

type Consent struct {
	ConsentID  string     `json:"consentId"`
	Title      string     `json:"title,omitempty"`
	Required   bool       `json:"required"`
	Value      *bool      `json:"value"`
	AcceptedAt *time.Time `json:"acceptedAt,omitempty"`
}

// Session is the client view of a signing session. Identity claims and codes are never exposed.
type Session struct {
	ID                string     `json:"id"`
	EnvelopeID        string     `json:"envelopeId"`
	SignerID          string     `json:"signerId"`
	AgentID           string     `json:"agentId,omitempty"`
	Method            string     `json:"method"`
	Stage             string     `json:"stage"`
	Version           int64      `json:"version"`
	AcceptedInputs    []string   `json:"acceptedInputs"`
	Consents          []Consent  `json:"consents"`
	IdentityMethod    string     `json:"identityMethod,omitempty"`
	IdentityVerified  bool       `json:"identityVerified"`
	NextCapture       string     `json:"nextCapture,omitempty"`
	ContactChannel    string     `json:"contactChannel,omitempty"`
	ContactConfirmed  bool       `json:"contactConfirmed"`
	PresenceConfirmed bool       `json:"presenceConfirmed,omitempty"`
	Reviewed          []string   `json:"reviewed,omitempty"`
	Printed           []string   `json:"printed,omitempty"`
	CustomerSigned    bool       `json:"customerSigned,omitempty"`
	ScannedSlots      []string   `json:"scannedSlots,omitempty"`
	SignatureCaptured bool       `json:"signatureCaptured,omitempty"`
	Declared          bool       `json:"declared,omitempty"`
	OTPChannel        string     `json:"otpChannel,omitempty"`
	OTPChallengeID    string     `json:"otpChallengeId,omitempty"`
	OTPIssuedAt       *time.Time `json:"otpIssuedAt,omitempty"`
	OTPVerified       bool       `json:"otpVerified"`
	AbandonReason     string     `json:"abandonReason,omitempty"`
	SignedDocumentRef string     `json:"signedDocumentRef,omitempty"`
	ExpiresAt         time.Time  `json:"expiresAt"`
	CreatedAt         time.Time  `json:"createdAt"`
	UpdatedAt         time.Time  `json:"updatedAt"`
	CompletedAt       *time.Time `json:"completedAt,omitempty"`
}

type SessionResponse struct {
	Session *Session `json:"session"`
}

type Event struct {
	Seq        int64             `json:"seq"`
	Type       string            `json:"type"`
	ActorID    string            `json:"actorId"`
	ActorRole  string            `json:"actorRole"`
	FromStage  string            `json:"fromStage,omitempty"`
	ToStage    string            `json:"toStage,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	OccurredAt time.Time         `json:"occurredAt"`
	Hash       string            `json:"hash"`
}

type ListEventsResponse struct {
	Events []Event `json:"events"`
}

type CanResendOTPResponse struct {
	CanResend bool `json:"canResend"`
}

func parseDate(field, s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return nil, fmt.Errorf("%s must be YYYY-MM-DD", field)
	}
	return &t, nil
}

func (c *Claim) toDomain() (identity.Claim, error) {
	if c == nil {
		return identity.Claim{}, fmt.Errorf("claim is required")
	}
	dob, err := parseDate("dateOfBirth", c.DateOfBirth)
	if err != nil {
		return identity.Claim{}, err
	}
	reg, err := parseDate("registrationDate", c.RegistrationDate)
	if err != nil {
		return identity.Claim{}, err
	}
	return identity.Claim{
		Method:             identity.Method(c.Method),
		IDNumber:           c.IDNumber,
		DateOfBirth:        dob,
		RegistrationNumber: c.RegistrationNumber,
		RegistrationDate:   reg,
		Assertion:          c.Assertion,
		AssertionRef:       c.AssertionRef,
	}, nil
}

// toDomain converts the wire input into a stage input.
func (in Input) toDomain() (domain.StageInput, error) {
	switch domain.InputKind(in.Kind) {
	case domain.InputSelectIdentityMethod:
		return domain.SelectIdentityMethod{Method: identity.Method(in.IdentityMethod)}, nil
	case domain.InputSubmitIdentityClaim:
		c, err := in.Claim.toDomain()
		if err != nil {
			return nil, err
		}
		return domain.SubmitIdentityClaim{Claim: c}, nil
	case domain.InputSubmitCapture:
		if in.Capture == nil {
			return nil, fmt.Errorf("capture is required")
		}
		return domain.SubmitCapture{Capture: *in.Capture}, nil
	case domain.InputInvalidateIdentity:
		return domain.InvalidateIdentity{Reason: in.Reason}, nil
	case domain.InputConfirmContact:
		return domain.ConfirmContact{Channel: otpdomain.Channel(in.Channel)}, nil
	case domain.InputAcceptConsent:
		if in.Value == nil {
			return nil, fmt.Errorf("value is required")
		}
		return domain.AcceptConsent{ConsentID: in.ConsentID, Value: *in.Value}, nil
	case domain.InputConfirmPresence:
		return domain.ConfirmPresence{}, nil
	case domain.InputMarkDocumentReviewed:
		return domain.MarkDocumentReviewed{SlotID: in.SlotID}, nil
	case domain.InputMarkDocumentPrinted:
		return domain.MarkDocumentPrinted{SlotID: in.SlotID}, nil
	case domain.InputCaptureSignature:
		return domain.CaptureSignature{ArtifactRef: in.ArtifactRef}, nil
	case domain.InputConfirmCustomerSigned:
		return domain.ConfirmCustomerSigned{}, nil
	case domain.InputUploadScan:
		return domain.UploadScan{SlotID: in.SlotID, Ref: in.Ref}, nil
	case domain.InputSubmitAgentDeclaration:
		return domain.SubmitAgentDeclaration{Statement: in.Statement}, nil
	case domain.InputRequestOTP:
		return domain.RequestOTP{Channel: otpdomain.Channel(in.Channel)}, nil
	case domain.InputSubmitOTP:
		return domain.SubmitOTP{Code: in.Code}, nil
	case domain.InputContinue:
		return domain.Continue{}, nil
	}
	return nil, fmt.Errorf("unknown input kind %q", in.Kind)
}

func sessionToWire(s *domain.Session) *Session {
	if s == nil {
		return nil
	}
	ev := s.Evidence
	out := &Session{
		ID:                s.ID,
		EnvelopeID:        s.EnvelopeID,
		SignerID:          s.SignerID,
		AgentID:           s.AgentID,
		Method:            string(s.Method),
		Stage:             string(s.Stage),
		Version:           s.Version,
		IdentityMethod:    string(ev.IdentityMethod),
		IdentityVerified:  ev.Identity != nil,
		ContactChannel:    string(ev.ContactChannel),
		ContactConfirmed:  ev.ContactConfirmed,
		PresenceConfirmed: ev.PresenceConfirmed,
		Reviewed:          ev.Reviewed,
		Printed:           ev.Printed,
		CustomerSigned:    ev.CustomerSigned,
		SignatureCaptured: ev.SignatureRef != "",
		Declared:          ev.AgentDeclaration != "",
		OTPChannel:        string(ev.OTPChannel),
		OTPChallengeID:    ev.OTPChallengeID,
		OTPIssuedAt:       ev.OTPIssuedAt,
		OTPVerified:       ev.OTPVerified(),
		AbandonReason:     s.AbandonReason,
		SignedDocumentRef: s.SignedDocumentRef,
		ExpiresAt:         s.ExpiresAt,
		CreatedAt:         s.CreatedAt,
		UpdatedAt:         s.UpdatedAt,
		CompletedAt:       s.CompletedAt,
	}
	for _, k := range domain.AcceptedInputs(s.Stage) {
		out.AcceptedInputs = append(out.AcceptedInputs, string(k))
	}
	for _, c := range ev.Consents {
		out.Consents = append(out.Consents, Consent{
			ConsentID: c.ConsentID, Title: c.Title, Required: c.Required, Value: c.Value, AcceptedAt: c.AcceptedAt,
		})
	}
	if ev.Identity == nil && ev.IdentityMethod == identity.MethodFaceMatch {
		out.NextCapture = string(identity.CaptureSet(ev.PendingCaptures).Next())
	}
	for slot := range ev.Scans {
		out.ScannedSlots = append(out.ScannedSlots, slot)
	}
	return out
}

func eventToWire(e *auditdomain.Event) Event {
	return Event{
		Seq:        e.Seq,
		Type:       string(e.Type),
		ActorID:    e.ActorID,
		ActorRole:  e.ActorRole,
		FromStage:  e.FromStage,
		ToStage:    e.ToStage,
		Metadata:   e.Metadata,
		OccurredAt: e.OccurredAt,
		Hash:       e.Hash,
	}
}

type IdentityMethodsResponse struct {
	Methods []string `json:"methods"`
}
