package security

import (
	"testing"
	"time"

	"esign-workflow/internal/platform/actor"
)

func TestTokenProvider_IssueAndValidate(t *testing.T) {
	p, err := NewTestTokenProvider()
	if err != nil {
		t.Fatalf("NewTestTokenProvider: %v", err)
	}
	want := actor.Actor{ID: "agent-7", Role: actor.RoleAgent}
	token, exp, err := p.Issue(want)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if token == "" || exp.Before(time.Now()) {
		t.Fatalf("token=%q exp=%v", token, exp)
	}
	got, err := p.Validate(token)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if got != want {
		t.Errorf("Validate = %+v, want %+v", got, want)
	}
}

func TestTokenProvider_ValidateRejects(t *testing.T) {
	p, err := NewTestTokenProvider()
	if err != nil {
		t.Fatalf("NewTestTokenProvider: %v", err)
	}
	if _, err := p.Validate("not-a-token"); err != ErrInvalidToken {
		t.Errorf("garbage: want ErrInvalidToken, got %v", err)
	}

	token, _, err := p.Issue(actor.Actor{ID: "c1", Role: actor.RoleCustomer})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	other := NewTokenProvider(p.privateKey, p.publicKey, "other-issuer", TestAudience, time.Minute)
	if _, err := other.Validate(token); err != ErrInvalidToken {
		t.Errorf("wrong issuer: want ErrInvalidToken, got %v", err)
	}
	otherAud := NewTokenProvider(p.privateKey, p.publicKey, TestIssuer, "elsewhere", time.Minute)
	if _, err := otherAud.Validate(token); err != ErrInvalidToken {
		t.Errorf("wrong audience: want ErrInvalidToken, got %v", err)
	}

	p.now = func() time.Time { return time.Now().Add(time.Hour) }
	if _, err := p.Validate(token); err != ErrInvalidToken {
		t.Errorf("expired: want ErrInvalidToken, got %v", err)
	}
}

func TestTokenProvider_SystemRoleNotAccepted(t *testing.T) {
	p, err := NewTestTokenProvider()
	if err != nil {
		t.Fatalf("NewTestTokenProvider: %v", err)
	}
	token, _, err := p.Issue(actor.System)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := p.Validate(token); err != ErrInvalidToken {
		t.Errorf("system token: want ErrInvalidToken, got %v", err)
	}
}

func TestTokenProvider_IssueWithoutPrivateKey(t *testing.T) {
	p, err := NewTestTokenProvider()
	if err != nil {
		t.Fatalf("NewTestTokenProvider: %v", err)
	}
	verifyOnly := NewTokenProvider(nil, p.publicKey, TestIssuer, TestAudience, 0)
	if _, _, err := verifyOnly.Issue(actor.Actor{ID: "c1", Role: actor.RoleCustomer}); err != ErrInvalidKey {
		t.Errorf("Issue without key: want ErrInvalidKey, got %v", err)
	}
}

func TestNewTestTokenProviderTTL(t *testing.T) {
	p, err := NewTestTokenProviderTTL(time.Minute)
	if err != nil {
		t.Fatalf("NewTestTokenProviderTTL: %v", err)
	}
	token, exp, err := p.Issue(actor.Actor{ID: "c1", Role: actor.RoleCustomer})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if d := time.Until(exp); d > time.Minute || d < 50*time.Second {
		t.Errorf("expiry in %v, want about 1m", d)
	}
	verifier := NewTokenProvider(nil, p.publicKey, "esign-auth", "esign-api", 0)
	if _, err := verifier.Validate(token); err != nil {
		t.Errorf("token not accepted with the configured defaults: %v", err)
	}
}
