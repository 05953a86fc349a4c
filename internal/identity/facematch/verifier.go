// Package facematch verifies a signer from ID document scans and a live selfie.
package facematch

import (
	"context"
	"fmt"
	"log"
	"time"

	"esign-workflow/internal/identity"
	"esign-workflow/internal/platform/circuit"
)

// DefaultThreshold is the face-match confidence a result must exceed.
const DefaultThreshold = 0.90

// Verifier runs a face match once all three captures are present.
type Verifier struct {
	analyzer  Analyzer
	threshold float64
	timeout   time.Duration
	breaker   *circuit.Breaker
	now       func() time.Time
}

// NewVerifier returns a Verifier. threshold outside (0,1] falls back to DefaultThreshold.
func NewVerifier(analyzer Analyzer, threshold float64, timeout time.Duration) *Verifier {
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultThreshold
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Verifier{
		analyzer:  analyzer,
		threshold: threshold,
		timeout:   timeout,
		breaker:   circuit.New("kyc-face-match"),
		now:       time.Now,
	}
}

// WithBreaker replaces the default breaker.
func (v *Verifier) WithBreaker(b *circuit.Breaker) *Verifier {
	v.breaker = b
	return v
}

// WithClock overrides the clock used for VerifiedAt.
func (v *Verifier) WithClock(now func() time.Time) *Verifier {
	v.now = now
	return v
}

func (v *Verifier) Method() identity.Method { return identity.MethodFaceMatch }

// Threshold returns the confidence a match must exceed.
func (v *Verifier) Threshold() float64 { return v.threshold }

// Verify never calls the provider unless front, back and selfie are present in that order.
func (v *Verifier) Verify(ctx context.Context, c identity.Claim) (*identity.Result, error) {
	set := identity.CaptureSet(c.Captures)
	if !set.Complete() {
		return nil, identity.ErrIncompleteCapture
	}
	var analysis *Analysis
	err := v.breaker.Do(ctx, func(ctx context.Context) error {
		cctx, cancel := context.WithTimeout(ctx, v.timeout)
		defer cancel()
		var err error
		analysis, err = v.analyzer.Analyze(cctx, AnalyzeRequest{
			SubjectID: c.SubjectID,
			FrontRef:  set[0].ImageRef,
			BackRef:   set[1].ImageRef,
			SelfieRef: set[2].ImageRef,
		})
		if err == nil && analysis == nil {
			err = fmt.Errorf("facematch: empty analysis")
		}
		return err
	})
	if err != nil {
		log.Printf("facematch: analyze subject=%s: %v", c.SubjectID, err)
		return nil, fmt.Errorf("%w: %v", identity.ErrProviderUnavailable, err)
	}
	if !analysis.DocumentValid {
		return nil, identity.ErrIdentityMismatch
	}
	if analysis.Confidence <= v.threshold {
		return nil, fmt.Errorf("%w: %.2f", identity.ErrLowConfidenceMatch, analysis.Confidence)
	}
	res := &identity.Result{
		Method:     identity.MethodFaceMatch,
		Matched:    true,
		Confidence: analysis.Confidence,
		Reference:  analysis.Reference,
		VerifiedAt: v.now().UTC(),
		Claims: identity.Claims{
			Name:     analysis.Name,
			IDNumber: identity.MaskIDNumber(analysis.IDNumber),
		},
	}
	if dob, err := time.Parse("2006-01-02", analysis.DateOfBirth); err == nil {
		res.Claims.DateOfBirth = &dob
	}
	return res, nil
}
