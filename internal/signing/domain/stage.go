package domain

// Method is how the signer signs.
type Method string

const (
	MethodSelfService    Method = "self_service"
	MethodAgentAssisted  Method = "agent_assisted"
	MethodPhysicalUpload Method = "physical_upload"
)

// Valid reports whether m is a known signing method.
func (m Method) Valid() bool {
	_, ok := paths[m]
	return ok
}

// AgentDriven reports whether an agent operates the session.
func (m Method) AgentDriven() bool {
	return m == MethodAgentAssisted || m == MethodPhysicalUpload
}

// Stage is a step of a signing session. The backend owns the enumeration; clients render it.
type Stage string

const (
	StageIdentitySelection      Stage = "identity_selection"
	StageIdentityVerifying      Stage = "identity_verifying"
	StageContactConfirmation    Stage = "contact_confirmation"
	StageOtpVerification        Stage = "otp_verification"
	StageConfirmPresence        Stage = "confirm_presence"
	StageReviewDocuments        Stage = "review_documents"
	StageCaptureConsent         Stage = "capture_consent"
	StageVerifyCustomerIdentity Stage = "verify_customer_identity"
	StageCaptureSignature       Stage = "capture_signature"
	StagePrintDocuments         Stage = "print_documents"
	StageCustomerSigns          Stage = "customer_signs"
	StageScanUpload             Stage = "scan_upload"
	StageAgentDeclaration       Stage = "agent_declaration"
	StageAgentOtpVerification   Stage = "agent_otp_verification"
	StageSigningCompleted       Stage = "signing_completed"
	StageAbandoned              Stage = "abandoned"
)

var paths = map[Method][]Stage{
	MethodSelfService: {
		StageIdentitySelection, StageIdentityVerifying, StageContactConfirmation,
		StageOtpVerification, StageSigningCompleted,
	},
	MethodAgentAssisted: {
		StageConfirmPresence, StageReviewDocuments, StageCaptureConsent, StageVerifyCustomerIdentity,
		StageCaptureSignature, StageOtpVerification, StageSigningCompleted,
	},
	MethodPhysicalUpload: {
		StagePrintDocuments, StageCustomerSigns, StageScanUpload, StageAgentDeclaration,
		StageAgentOtpVerification, StageSigningCompleted,
	},
}

// Path returns the ordered stages of m.
func Path(m Method) []Stage {
	return append([]Stage(nil), paths[m]...)
}

// FirstStage returns the stage a new session of m starts in.
func FirstStage(m Method) Stage {
	return paths[m][0]
}

// NextStage returns the stage after s on m's path.
func NextStage(m Method, s Stage) (Stage, bool) {
	p := paths[m]
	for i := 0; i < len(p)-1; i++ {
		if p[i] == s {
			return p[i+1], true
		}
	}
	return "", false
}

// OnPath reports whether s belongs to m's path.
func OnPath(m Method, s Stage) bool {
	for _, st := range paths[m] {
		if st == s {
			return true
		}
	}
	return false
}

// IdentityStage is where m verifies identity and where invalidation returns to.
func IdentityStage(m Method) Stage {
	switch m {
	case MethodAgentAssisted:
		return StageVerifyCustomerIdentity
	case MethodPhysicalUpload:
		return StageAgentDeclaration
	}
	return StageIdentitySelection
}

// Terminal reports whether no further transitions are possible.
func (s Stage) Terminal() bool {
	return s == StageSigningCompleted || s == StageAbandoned
}

// IsOTP reports whether s is an OTP verification stage.
func (s Stage) IsOTP() bool {
	return s == StageOtpVerification || s == StageAgentOtpVerification
}

// IsIdentity reports whether identity is verified in s.
func (s Stage) IsIdentity() bool {
	return s == StageIdentityVerifying || s == StageVerifyCustomerIdentity || s == StageAgentDeclaration
}

// Index returns the position of s on m's path, or -1.
func Index(m Method, s Stage) int {
	for i, st := range paths[m] {
		if st == s {
			return i
		}
	}
	return -1
}
