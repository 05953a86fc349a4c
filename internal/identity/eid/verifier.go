// Package eid accepts a signed claim set from an external eID identity provider.
package eid

import (
	"context"
	"crypto"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"esign-workflow/internal/identity"
	partyrepo "esign-workflow/internal/party/repository"
	"esign-workflow/internal/platform/circuit"
	"esign-workflow/internal/security"
)

// AssertionClaims is the claim set the IdP signs.
type AssertionClaims struct {
	jwt.RegisteredClaims
	Name      string `json:"name"`
	IDNumber  string `json:"id_number"`
	Birthdate string `json:"birthdate"`
}

// Config describes the trusted IdP.
type Config struct {
	BaseURL   string
	Issuer    string
	Audience  string
	PublicKey crypto.PublicKey
	Timeout   time.Duration
}

// Verifier checks the assertion's signature, issuer, audience and expiry, then binds its
// ID number to the signer's record when one is on file.
type Verifier struct {
	cfg     Config
	parties partyrepo.Repository
	hasher  *security.Hasher
	client  *http.Client
	breaker *circuit.Breaker
	now     func() time.Time
}

// NewVerifier returns an eID Verifier. parties may be nil to skip the record binding.
func NewVerifier(cfg Config, parties partyrepo.Repository, hasher *security.Hasher) *Verifier {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Verifier{
		cfg:     cfg,
		parties: parties,
		hasher:  hasher,
		client:  &http.Client{Timeout: cfg.Timeout},
		breaker: circuit.New("eid-provider"),
		now:     time.Now,
	}
}

// WithClock overrides the clock for expiry checks and VerifiedAt.
func (v *Verifier) WithClock(now func() time.Time) *Verifier {
	v.now = now
	return v
}

func (v *Verifier) Method() identity.Method { return identity.MethodExternalEID }

func (v *Verifier) Verify(ctx context.Context, c identity.Claim) (*identity.Result, error) {
	assertion := c.Assertion
	if assertion == "" {
		if c.AssertionRef == "" {
			return nil, fmt.Errorf("%w: assertion", identity.ErrInvalidClaim)
		}
		var err error
		assertion, err = v.fetch(ctx, c.AssertionRef)
		if err != nil {
			log.Printf("eid: fetch assertion ref=%s: %v", c.AssertionRef, err)
			return nil, fmt.Errorf("%w: %v", identity.ErrProviderUnavailable, err)
		}
	}
	claims := &AssertionClaims{}
	_, err := jwt.ParseWithClaims(assertion, claims, security.KeyFunc(v.cfg.PublicKey),
		jwt.WithIssuer(v.cfg.Issuer),
		jwt.WithAudience(v.cfg.Audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: assertion rejected: %v", identity.ErrIdentityMismatch, err)
	}
	if claims.IDNumber == "" {
		return nil, fmt.Errorf("%w: assertion carries no id number", identity.ErrIdentityMismatch)
	}
	if err := v.bind(ctx, c.SubjectID, claims.IDNumber); err != nil {
		return nil, err
	}
	res := &identity.Result{
		Method:     identity.MethodExternalEID,
		Matched:    true,
		Confidence: 1,
		Reference:  claims.ID,
		VerifiedAt: v.now().UTC(),
		Claims: identity.Claims{
			Name:     claims.Name,
			IDNumber: identity.MaskIDNumber(security.NormalizeIDNumber(claims.IDNumber)),
		},
	}
	if dob, err := time.Parse("2006-01-02", claims.Birthdate); err == nil {
		res.Claims.DateOfBirth = &dob
	}
	return res, nil
}

func (v *Verifier) bind(ctx context.Context, subjectID, idNumber string) error {
	if v.parties == nil || subjectID == "" {
		return nil
	}
	p, err := v.parties.GetByID(ctx, subjectID)
	if err != nil {
		return fmt.Errorf("%w: %v", identity.ErrProviderUnavailable, err)
	}
	if p == nil {
		return identity.ErrIdentityMismatch
	}
	if p.IDNumberHash != "" && !v.hasher.MatchIDNumber(p.IDNumberHash, idNumber) {
		return fmt.Errorf("%w: assertion belongs to another person", identity.ErrIdentityMismatch)
	}
	return nil
}

type assertionResponse struct {
	Assertion string `json:"assertion"`
}

func (v *Verifier) fetch(ctx context.Context, ref string) (string, error) {
	var out assertionResponse
	err := v.breaker.Do(ctx, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.cfg.BaseURL+"/v1/assertions/"+url.PathEscape(ref), nil)
		if err != nil {
			return err
		}
		req.Header.Set("Accept", "application/json")
		resp, err := v.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			return fmt.Errorf("eid: provider status=%d body=%s", resp.StatusCode, string(b))
		}
		return json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&out)
	})
	if err != nil {
		return "", err
	}
	if out.Assertion == "" {
		return "", fmt.Errorf("eid: empty assertion")
	}
	return out.Assertion, nil
}
