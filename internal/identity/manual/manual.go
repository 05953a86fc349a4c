// Package manual verifies a signer by comparing typed-in details with the party record on file.
package manual

import (
	"context"
	"fmt"
	"strings"
	"time"

	"esign-workflow/internal/identity"
	partydomain "esign-workflow/internal/party/domain"
	partyrepo "esign-workflow/internal/party/repository"
	"esign-workflow/internal/security"
)

// Verifier matches persons on date of birth and ID number, companies on registration number and date.
type Verifier struct {
	parties partyrepo.Repository
	hasher  *security.Hasher
	now     func() time.Time
}

// NewVerifier returns a manual Verifier reading parties from repo.
func NewVerifier(parties partyrepo.Repository, hasher *security.Hasher) *Verifier {
	return &Verifier{parties: parties, hasher: hasher, now: time.Now}
}

// WithClock overrides the clock used for VerifiedAt.
func (v *Verifier) WithClock(now func() time.Time) *Verifier {
	v.now = now
	return v
}

func (v *Verifier) Method() identity.Method { return identity.MethodManual }

// Verify returns ErrIdentityMismatch for any difference, including an unknown subject.
func (v *Verifier) Verify(ctx context.Context, c identity.Claim) (*identity.Result, error) {
	if c.SubjectID == "" {
		return nil, fmt.Errorf("%w: subject", identity.ErrInvalidClaim)
	}
	p, err := v.parties.GetByID(ctx, c.SubjectID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", identity.ErrProviderUnavailable, err)
	}
	if p == nil {
		return nil, identity.ErrIdentityMismatch
	}
	res := &identity.Result{
		Method:     identity.MethodManual,
		Claims:     identity.Claims{Name: p.DisplayName},
		Confidence: 1,
		VerifiedAt: v.now().UTC(),
	}
	if p.Kind == partydomain.KindCompany {
		if err := v.matchCompany(p, c); err != nil {
			return nil, err
		}
		res.Claims.IDNumber = identity.MaskIDNumber(security.NormalizeIDNumber(p.RegistrationNumber))
		res.Matched = true
		return res, nil
	}
	if err := v.matchPerson(p, c); err != nil {
		return nil, err
	}
	dob := *p.DateOfBirth
	res.Claims.DateOfBirth = &dob
	res.Claims.IDNumber = identity.MaskIDNumber(security.NormalizeIDNumber(c.IDNumber))
	res.Matched = true
	return res, nil
}

func (v *Verifier) matchPerson(p *partydomain.Party, c identity.Claim) error {
	if c.IDNumber == "" || c.DateOfBirth == nil {
		return fmt.Errorf("%w: id number and date of birth", identity.ErrInvalidClaim)
	}
	if p.DateOfBirth == nil || !identity.SameDate(*p.DateOfBirth, *c.DateOfBirth) {
		return identity.ErrIdentityMismatch
	}
	if !v.hasher.MatchIDNumber(p.IDNumberHash, c.IDNumber) {
		return identity.ErrIdentityMismatch
	}
	return nil
}

func (v *Verifier) matchCompany(p *partydomain.Party, c identity.Claim) error {
	if c.RegistrationNumber == "" || c.RegistrationDate == nil {
		return fmt.Errorf("%w: registration number and date", identity.ErrInvalidClaim)
	}
	want := security.NormalizeIDNumber(p.RegistrationNumber)
	if want == "" || !strings.EqualFold(want, security.NormalizeIDNumber(c.RegistrationNumber)) {
		return identity.ErrIdentityMismatch
	}
	if p.RegistrationDate == nil || !identity.SameDate(*p.RegistrationDate, *c.RegistrationDate) {
		return identity.ErrIdentityMismatch
	}
	return nil
}
