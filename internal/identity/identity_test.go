package identity

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeVerifier struct {
	method Method
	res    *Result
	err    error
}

func (f *fakeVerifier) Method() Method { return f.method }

func (f *fakeVerifier) Verify(ctx context.Context, c Claim) (*Result, error) {
	return f.res, f.err
}

func TestVerifiers_Dispatch(t *testing.T) {
	ok := &fakeVerifier{method: MethodManual, res: &Result{Method: MethodManual, Matched: true}}
	unmatched := &fakeVerifier{method: MethodExternalEID, res: &Result{Method: MethodExternalEID}}
	v := NewVerifiers(ok, unmatched, nil)

	if !v.Supports(MethodManual) || v.Supports(MethodFaceMatch) {
		t.Fatal("Supports wrong")
	}
	res, err := v.Verify(context.Background(), Claim{Method: MethodManual})
	if err != nil || res.Method != MethodManual {
		t.Fatalf("manual: res=%+v err=%v", res, err)
	}
	if _, err := v.Verify(context.Background(), Claim{Method: MethodExternalEID}); !errors.Is(err, ErrIdentityMismatch) {
		t.Errorf("unmatched result: want ErrIdentityMismatch, got %v", err)
	}
	if _, err := v.Verify(context.Background(), Claim{Method: MethodFaceMatch}); !errors.Is(err, ErrUnsupportedMethod) {
		t.Errorf("unregistered: want ErrUnsupportedMethod, got %v", err)
	}
}

func TestCaptureSet_Order(t *testing.T) {
	var s CaptureSet
	var err error
	if _, err = s.Add(Capture{Kind: CaptureSelfie, ImageRef: "s"}); !errors.Is(err, ErrIncompleteCapture) {
		t.Fatalf("selfie first: want ErrIncompleteCapture, got %v", err)
	}
	if s, err = s.Add(Capture{Kind: CaptureFront, ImageRef: "f1"}); err != nil {
		t.Fatal(err)
	}
	if s, err = s.Add(Capture{Kind: CaptureFront, ImageRef: "f2"}); err != nil {
		t.Fatalf("retake front: %v", err)
	}
	if len(s) != 1 || s[0].ImageRef != "f2" {
		t.Fatalf("retake not replaced: %+v", s)
	}
	if s, err = s.Add(Capture{Kind: CaptureBack, ImageRef: "b"}); err != nil {
		t.Fatal(err)
	}
	if s.Complete() || s.Next() != CaptureSelfie {
		t.Fatalf("front+back must not be complete, next=%s", s.Next())
	}
	if s, err = s.Add(Capture{Kind: CaptureSelfie, ImageRef: "s"}); err != nil {
		t.Fatal(err)
	}
	if !s.Complete() || s.Next() != "" {
		t.Error("expected complete")
	}
	if _, err := s.Add(Capture{Kind: CaptureFront, ImageRef: "again"}); !errors.Is(err, ErrIncompleteCapture) {
		t.Errorf("fourth capture: got %v", err)
	}
	if _, err := CaptureSet(nil).Add(Capture{Kind: CaptureFront}); !errors.Is(err, ErrInvalidClaim) {
		t.Errorf("empty ref: got %v", err)
	}
}

func TestMaskIDNumber(t *testing.T) {
	if got := MaskIDNumber("9001015009087"); got != "*********9087" {
		t.Errorf("MaskIDNumber = %q", got)
	}
	if got := MaskIDNumber("123"); got != "123" {
		t.Errorf("short = %q", got)
	}
}

func TestSameDate(t *testing.T) {
	a := time.Date(1990, 1, 1, 23, 0, 0, 0, time.UTC)
	b := time.Date(1990, 1, 1, 1, 0, 0, 0, time.UTC)
	if !SameDate(a, b) || SameDate(a, a.Add(2*time.Hour)) {
		t.Error("SameDate wrong")
	}
}
