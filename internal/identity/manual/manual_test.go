package manual

import (
	"context"
	"errors"
	"testing"
	"time"

	"esign-workflow/internal/identity"
	partydomain "esign-workflow/internal/party/domain"
	partyrepo "esign-workflow/internal/party/repository"
	"esign-workflow/internal/security"
)

func date(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func setup(t *testing.T) *Verifier {
	t.Helper()
	h := security.NewHasher(4)
	hash, err := h.HashIDNumber("9001015009087")
	if err != nil {
		t.Fatalf("HashIDNumber: %v", err)
	}
	repo := partyrepo.NewMemoryRepository()
	ctx := context.Background()
	if err := repo.Upsert(ctx, &partydomain.Party{
		ID: "person-1", Kind: partydomain.KindPerson, DisplayName: "Thandi Mokoena",
		DateOfBirth: date(1990, 1, 1), IDNumberHash: hash,
	}); err != nil {
		t.Fatal(err)
	}
	if err := repo.Upsert(ctx, &partydomain.Party{
		ID: "company-1", Kind: partydomain.KindCompany, DisplayName: "Acme (Pty) Ltd",
		RegistrationNumber: "2015/123456/07", RegistrationDate: date(2015, 3, 9),
	}); err != nil {
		t.Fatal(err)
	}
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	return NewVerifier(repo, h).WithClock(func() time.Time { return now })
}

func TestVerify_Person(t *testing.T) {
	v := setup(t)
	res, err := v.Verify(context.Background(), identity.Claim{
		Method: identity.MethodManual, SubjectID: "person-1",
		IDNumber: "900101 5009 087", DateOfBirth: date(1990, 1, 1),
	})
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !res.Matched || res.Method != identity.MethodManual || res.Claims.Name != "Thandi Mokoena" {
		t.Errorf("result = %+v", res)
	}
	if res.Claims.IDNumber != "*********9087" {
		t.Errorf("IDNumber = %q, want masked", res.Claims.IDNumber)
	}
}

func TestVerify_Company(t *testing.T) {
	v := setup(t)
	res, err := v.Verify(context.Background(), identity.Claim{
		SubjectID: "company-1", RegistrationNumber: "2015/123456/07", RegistrationDate: date(2015, 3, 9),
	})
	if err != nil || !res.Matched {
		t.Fatalf("Verify: res=%+v err=%v", res, err)
	}
}

func TestVerify_Failures(t *testing.T) {
	v := setup(t)
	testCases := []struct {
		name  string
		claim identity.Claim
		want  error
	}{
		{"wrong dob", identity.Claim{SubjectID: "person-1", IDNumber: "9001015009087", DateOfBirth: date(1990, 1, 2)}, identity.ErrIdentityMismatch},
		{"wrong id", identity.Claim{SubjectID: "person-1", IDNumber: "9001015009088", DateOfBirth: date(1990, 1, 1)}, identity.ErrIdentityMismatch},
		{"missing dob", identity.Claim{SubjectID: "person-1", IDNumber: "9001015009087"}, identity.ErrInvalidClaim},
		{"unknown subject", identity.Claim{SubjectID: "nobody", IDNumber: "1", DateOfBirth: date(1990, 1, 1)}, identity.ErrIdentityMismatch},
		{"no subject", identity.Claim{}, identity.ErrInvalidClaim},
		{"wrong registration", identity.Claim{SubjectID: "company-1", RegistrationNumber: "2015/999999/07", RegistrationDate: date(2015, 3, 9)}, identity.ErrIdentityMismatch},
		{"wrong registration date", identity.Claim{SubjectID: "company-1", RegistrationNumber: "2015/123456/07", RegistrationDate: date(2016, 3, 9)}, identity.ErrIdentityMismatch},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			res, err := v.Verify(context.Background(), tc.claim)
			if !errors.Is(err, tc.want) {
				t.Errorf("err = %v, want %v", err, tc.want)
			}
			if res != nil {
				t.Errorf("failed verification returned a result: %+v", res)
			}
		})
	}
}
