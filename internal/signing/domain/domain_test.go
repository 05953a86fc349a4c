package domain

import (
	"errors"
	"testing"
	"time"

	"esign-workflow/internal/consent"
	"esign-workflow/internal/identity"
)

func TestPaths(t *testing.T) {
	testCases := []struct {
		method Method
		first  Stage
		last   Stage
		n      int
	}{
		{MethodSelfService, StageIdentitySelection, StageSigningCompleted, 5},
		{MethodAgentAssisted, StageConfirmPresence, StageSigningCompleted, 7},
		{MethodPhysicalUpload, StagePrintDocuments, StageSigningCompleted, 6},
	}
	for _, tc := range testCases {
		p := Path(tc.method)
		if len(p) != tc.n || p[0] != tc.first || p[len(p)-1] != tc.last || FirstStage(tc.method) != tc.first {
			t.Errorf("%s path = %v", tc.method, p)
		}
		for i := 0; i < len(p)-1; i++ {
			next, ok := NextStage(tc.method, p[i])
			if !ok || next != p[i+1] {
				t.Errorf("%s: NextStage(%s) = %s", tc.method, p[i], next)
			}
		}
		if _, ok := NextStage(tc.method, StageSigningCompleted); ok {
			t.Errorf("%s: stage after completion", tc.method)
		}
	}
	if Method("fax").Valid() {
		t.Error("unknown method valid")
	}
	if !OnPath(MethodAgentAssisted, StageOtpVerification) || OnPath(MethodSelfService, StageScanUpload) {
		t.Error("OnPath wrong")
	}
	if IdentityStage(MethodPhysicalUpload) != StageAgentDeclaration || IdentityStage(MethodSelfService) != StageIdentitySelection {
		t.Error("IdentityStage wrong")
	}
	if Index(MethodSelfService, StageOtpVerification) != 3 || Index(MethodSelfService, StageScanUpload) != -1 {
		t.Error("Index wrong")
	}
}

func TestAccepts(t *testing.T) {
	if !Accepts(StageReviewDocuments, InputMarkDocumentReviewed) || Accepts(StageReviewDocuments, InputSubmitOTP) {
		t.Error("review documents accepts wrong inputs")
	}
	if !Accepts(StageCaptureSignature, InputInvalidateIdentity) {
		t.Error("invalidate should be accepted on non-terminal stages")
	}
	if Accepts(StageSigningCompleted, InputContinue) || Accepts(StageAbandoned, InputInvalidateIdentity) {
		t.Error("terminal stage accepted input")
	}
	in := AcceptedInputs(StageOtpVerification)
	if len(in) != 4 || in[3] != InputInvalidateIdentity {
		t.Errorf("AcceptedInputs = %v", in)
	}
}

func TestStageError(t *testing.T) {
	cause := errors.New("kyc timeout")
	err := error(NewStageError(KindProviderUnavailable, StageIdentityVerifying, "face match", cause))
	var se *StageError
	if !errors.As(err, &se) || se.Recovery != RecoverySwitchMethod {
		t.Fatalf("StageError = %+v", se)
	}
	if !errors.Is(err, cause) {
		t.Error("cause not unwrapped")
	}
	if !errors.Is(err, &StageError{Kind: KindProviderUnavailable}) || errors.Is(err, &StageError{Kind: KindExpired}) {
		t.Error("kind matching wrong")
	}
	if KindOf(err) != KindProviderUnavailable || KindOf(cause) != KindInternal {
		t.Error("KindOf wrong")
	}
	if err.Error() != "signing: provider_unavailable at identity_verifying: face match: kyc timeout" {
		t.Errorf("Error() = %q", err.Error())
	}
}

func TestSession_CloneIsDeep(t *testing.T) {
	dob := time.Date(1990, 1, 1, 0, 0, 0, 0, time.UTC)
	v := true
	s := &Session{
		ID: "s",
		Evidence: Evidence{
			Identity: &identity.Result{Matched: true, Claims: identity.Claims{DateOfBirth: &dob}},
			Consents: []consent.Requirement{{ConsentID: "gdpr", Required: true, Value: &v}},
			Reviewed: []string{"a"},
			Scans:    map[string]string{"a": "scan/a"},
		},
	}
	c := s.Clone()
	c.Evidence.Identity.Matched = false
	*c.Evidence.Consents[0].Value = false
	c.Evidence.Reviewed[0] = "b"
	c.Evidence.Scans["a"] = "other"
	if !s.Evidence.Identity.Matched || !*s.Evidence.Consents[0].Value || s.Evidence.Reviewed[0] != "a" || s.Evidence.Scans["a"] != "scan/a" {
		t.Error("clone shares state with original")
	}
}

func TestEvidence_OTPVerified(t *testing.T) {
	var e Evidence
	if e.OTPVerified() {
		t.Fatal("empty evidence verified")
	}
	e.OTPChallengeID = "c1"
	e.OTPVerifiedChallenge = "c1"
	if !e.OTPVerified() {
		t.Fatal("expected verified")
	}
	e.OTPChallengeID = "c2"
	if e.OTPVerified() {
		t.Error("verification of a superseded challenge counted")
	}
	e.ClearOTP()
	if e.OTPChallengeID != "" || e.OTPVerifiedChallenge != "" {
		t.Error("ClearOTP left state")
	}
}

func TestMissingFrom(t *testing.T) {
	got := MissingFrom([]string{"a", "b", "c"}, []string{"b"})
	if len(got) != 2 || got[0] != "a" || got[1] != "c" {
		t.Errorf("MissingFrom = %v", got)
	}
}
