package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a failed operation.
type ErrorKind string

const (
	KindIncompleteRequirement ErrorKind = "incomplete_requirement"
	KindInvalidInput          ErrorKind = "invalid_input"
	KindUnknownConsent        ErrorKind = "unknown_consent"
	KindIdentityMismatch      ErrorKind = "identity_mismatch"
	KindLowConfidenceMatch    ErrorKind = "low_confidence_match"
	KindIncompleteCapture     ErrorKind = "incomplete_capture"
	KindMethodNotAllowed      ErrorKind = "method_not_allowed"
	KindProviderUnavailable   ErrorKind = "provider_unavailable"
	KindChannelUnavailable    ErrorKind = "channel_unavailable"
	KindDeliveryError         ErrorKind = "delivery_error"
	KindResendCooldown        ErrorKind = "resend_cooldown"
	KindExpired               ErrorKind = "expired"
	KindExhausted             ErrorKind = "exhausted"
	KindMismatch              ErrorKind = "mismatch"
	KindFinalizationFailed    ErrorKind = "finalization_failed"
	KindAuditWriteFailed      ErrorKind = "audit_write_failed"
	KindSessionBusy           ErrorKind = "session_busy"
	KindSessionClosed         ErrorKind = "session_closed"
	KindConflict              ErrorKind = "conflict"
	KindForbidden             ErrorKind = "forbidden"
	KindNotFound              ErrorKind = "not_found"
	KindInternal              ErrorKind = "internal"
)

// Recovery tells the caller what to do next.
type Recovery string

const (
	RecoveryRetryStage   Recovery = "retry_stage"
	RecoveryReenterData  Recovery = "reenter_data"
	RecoverySwitchMethod Recovery = "switch_method"
	RecoveryReissue      Recovery = "reissue"
	RecoveryNone         Recovery = "none"
)

var recoveries = map[ErrorKind]Recovery{
	KindIncompleteRequirement: RecoveryReenterData,
	KindInvalidInput:          RecoveryReenterData,
	KindUnknownConsent:        RecoveryReenterData,
	KindIdentityMismatch:      RecoveryReenterData,
	KindLowConfidenceMatch:    RecoverySwitchMethod,
	KindIncompleteCapture:     RecoveryReenterData,
	KindMethodNotAllowed:      RecoverySwitchMethod,
	KindProviderUnavailable:   RecoverySwitchMethod,
	KindChannelUnavailable:    RecoverySwitchMethod,
	KindDeliveryError:         RecoveryRetryStage,
	KindResendCooldown:        RecoveryRetryStage,
	KindExpired:               RecoveryReissue,
	KindExhausted:             RecoveryReissue,
	KindMismatch:              RecoveryReenterData,
	KindFinalizationFailed:    RecoveryRetryStage,
	KindAuditWriteFailed:      RecoveryRetryStage,
	KindSessionBusy:           RecoveryRetryStage,
	KindSessionClosed:         RecoveryNone,
	KindConflict:              RecoveryRetryStage,
	KindForbidden:             RecoveryNone,
	KindNotFound:              RecoveryNone,
	KindInternal:              RecoveryRetryStage,
}

// StageError is returned by every engine operation that fails. The session is unchanged.
type StageError struct {
	Kind     ErrorKind
	Stage    Stage
	Recovery Recovery
	Detail   string
	Err      error
}

// NewStageError builds a StageError with the kind's default recovery.
func NewStageError(kind ErrorKind, stage Stage, detail string, err error) *StageError {
	r, ok := recoveries[kind]
	if !ok {
		r = RecoveryNone
	}
	return &StageError{Kind: kind, Stage: stage, Recovery: r, Detail: detail, Err: err}
}

func (e *StageError) Error() string {
	msg := fmt.Sprintf("signing: %s", e.Kind)
	if e.Stage != "" {
		msg += fmt.Sprintf(" at %s", e.Stage)
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *StageError) Unwrap() error { return e.Err }

// Is matches another *StageError by kind, so errors.Is(err, &StageError{Kind: k}) works.
func (e *StageError) Is(target error) bool {
	var t *StageError
	if errors.As(target, &t) {
		return t.Kind == e.Kind
	}
	return false
}

// KindOf returns the kind of a *StageError in err's chain, or KindInternal.
func KindOf(err error) ErrorKind {
	var se *StageError
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindInternal
}
