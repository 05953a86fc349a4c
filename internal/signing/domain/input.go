package domain

import (
	"esign-workflow/internal/identity"
	otpdomain "esign-workflow/internal/otp/domain"
)

// InputKind names a stage input in audit metadata and on the wire.
type InputKind string

const (
	InputSelectIdentityMethod   InputKind = "select_identity_method"
	InputSubmitIdentityClaim    InputKind = "submit_identity_claim"
	InputSubmitCapture          InputKind = "submit_capture"
	InputInvalidateIdentity     InputKind = "invalidate_identity"
	InputConfirmContact         InputKind = "confirm_contact"
	InputAcceptConsent          InputKind = "accept_consent"
	InputConfirmPresence        InputKind = "confirm_presence"
	InputMarkDocumentReviewed   InputKind = "mark_document_reviewed"
	InputMarkDocumentPrinted    InputKind = "mark_document_printed"
	InputCaptureSignature       InputKind = "capture_signature"
	InputConfirmCustomerSigned  InputKind = "confirm_customer_signed"
	InputUploadScan             InputKind = "upload_scan"
	InputSubmitAgentDeclaration InputKind = "submit_agent_declaration"
	InputRequestOTP             InputKind = "request_otp"
	InputSubmitOTP              InputKind = "submit_otp"
	InputContinue               InputKind = "continue"
)

// StageInput is what a caller submits to advance a session. The set of implementations is closed.
type StageInput interface {
	Kind() InputKind
	stageInput()
}

type SelectIdentityMethod struct {
	Method identity.Method
}

// SubmitIdentityClaim carries manual details or an eID assertion. The subject is always the session's signer.
type SubmitIdentityClaim struct {
	Claim identity.Claim
}

type SubmitCapture struct {
	Capture identity.Capture
}

type InvalidateIdentity struct {
	Reason string
}

type ConfirmContact struct {
	Channel otpdomain.Channel
}

type AcceptConsent struct {
	ConsentID string
	Value     bool
}

type ConfirmPresence struct{}

type MarkDocumentReviewed struct {
	SlotID string
}

type MarkDocumentPrinted struct {
	SlotID string
}

type CaptureSignature struct {
	ArtifactRef string
}

type ConfirmCustomerSigned struct{}

type UploadScan struct {
	SlotID string
	Ref    string
}

type SubmitAgentDeclaration struct {
	Statement string
}

// RequestOTP issues a code. An empty channel means the confirmed contact channel, else SMS.
type RequestOTP struct {
	Channel otpdomain.Channel
}

type SubmitOTP struct {
	Code string
}

// Continue asks to leave the current stage once its requirements hold.
type Continue struct{}

func (SelectIdentityMethod) Kind() InputKind   { return InputSelectIdentityMethod }
func (SubmitIdentityClaim) Kind() InputKind    { return InputSubmitIdentityClaim }
func (SubmitCapture) Kind() InputKind          { return InputSubmitCapture }
func (InvalidateIdentity) Kind() InputKind     { return InputInvalidateIdentity }
func (ConfirmContact) Kind() InputKind         { return InputConfirmContact }
func (AcceptConsent) Kind() InputKind          { return InputAcceptConsent }
func (ConfirmPresence) Kind() InputKind        { return InputConfirmPresence }
func (MarkDocumentReviewed) Kind() InputKind   { return InputMarkDocumentReviewed }
func (MarkDocumentPrinted) Kind() InputKind    { return InputMarkDocumentPrinted }
func (CaptureSignature) Kind() InputKind       { return InputCaptureSignature }
func (ConfirmCustomerSigned) Kind() InputKind  { return InputConfirmCustomerSigned }
func (UploadScan) Kind() InputKind             { return InputUploadScan }
func (SubmitAgentDeclaration) Kind() InputKind { return InputSubmitAgentDeclaration }
func (RequestOTP) Kind() InputKind             { return InputRequestOTP }
func (SubmitOTP) Kind() InputKind              { return InputSubmitOTP }
func (Continue) Kind() InputKind               { return InputContinue }

func (SelectIdentityMethod) stageInput()   {}
func (SubmitIdentityClaim) stageInput()    {}
func (SubmitCapture) stageInput()          {}
func (InvalidateIdentity) stageInput()     {}
func (ConfirmContact) stageInput()         {}
func (AcceptConsent) stageInput()          {}
func (ConfirmPresence) stageInput()        {}
func (MarkDocumentReviewed) stageInput()   {}
func (MarkDocumentPrinted) stageInput()    {}
func (CaptureSignature) stageInput()       {}
func (ConfirmCustomerSigned) stageInput()  {}
func (UploadScan) stageInput()             {}
func (SubmitAgentDeclaration) stageInput() {}
func (RequestOTP) stageInput()             {}
func (SubmitOTP) stageInput()              {}
func (Continue) stageInput()               {}

// accepted lists the inputs each stage handles besides InvalidateIdentity.
var accepted = map[Stage][]InputKind{
	StageIdentitySelection:      {InputSelectIdentityMethod},
	StageIdentityVerifying:      {InputSelectIdentityMethod, InputSubmitIdentityClaim, InputSubmitCapture},
	StageContactConfirmation:    {InputAcceptConsent, InputConfirmContact, InputContinue},
	StageOtpVerification:        {InputRequestOTP, InputSubmitOTP, InputContinue},
	StageConfirmPresence:        {InputConfirmPresence},
	StageReviewDocuments:        {InputMarkDocumentReviewed, InputContinue},
	StageCaptureConsent:         {InputAcceptConsent, InputContinue},
	StageVerifyCustomerIdentity: {InputSelectIdentityMethod, InputSubmitIdentityClaim, InputSubmitCapture},
	StageCaptureSignature:       {InputCaptureSignature},
	StagePrintDocuments:         {InputMarkDocumentPrinted, InputContinue},
	StageCustomerSigns:          {InputConfirmCustomerSigned},
	StageScanUpload:             {InputUploadScan, InputContinue},
	StageAgentDeclaration:       {InputSubmitIdentityClaim, InputAcceptConsent, InputSubmitAgentDeclaration},
	StageAgentOtpVerification:   {InputRequestOTP, InputSubmitOTP, InputContinue},
}

// Accepts reports whether stage s handles inputs of kind k. InvalidateIdentity is accepted
// by any non-terminal stage; whether there is anything to invalidate is checked by the engine.
func Accepts(s Stage, k InputKind) bool {
	if s.Terminal() {
		return false
	}
	if k == InputInvalidateIdentity {
		return true
	}
	for _, a := range accepted[s] {
		if a == k {
			return true
		}
	}
	return false
}

// AcceptedInputs returns the input kinds s handles, for clients rendering the stage.
func AcceptedInputs(s Stage) []InputKind {
	if s.Terminal() {
		return nil
	}
	return append(append([]InputKind(nil), accepted[s]...), InputInvalidateIdentity)
}
