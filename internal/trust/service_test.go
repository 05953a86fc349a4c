package trust

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

type stubTSA struct {
	digest []byte
	err    error
}

func (s *stubTSA) Timestamp(ctx context.Context, digest []byte) ([]byte, error) {
	s.digest = digest
	if s.err != nil {
		return nil, s.err
	}
	return []byte{0x30, 0x00}, nil
}

func sampleRequest() Request {
	return Request{
		EnvelopeID: "env-1", SessionID: "sess-1", SignerID: "c-1", Method: "self_service",
		DocumentRefs: []string{"doc/credit-agreement"}, AuditHeadHash: "abc",
	}
}

func sealServer(t *testing.T, status int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/seals" || r.Header.Get("Idempotency-Key") != "sess-1" {
			t.Errorf("path=%q key=%q", r.URL.Path, r.Header.Get("Idempotency-Key"))
		}
		var body map[string]interface{}
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["digest"] != sampleRequest().Digest() {
			t.Errorf("digest = %v", body["digest"])
		}
		if status != http.StatusOK {
			http.Error(w, "down", status)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"sealId": "seal-9", "signedDocumentRef": "signed/env-1.pdf"})
	}))
}

func TestService_Finalize(t *testing.T) {
	srv := sealServer(t, http.StatusOK)
	defer srv.Close()
	tsa := &stubTSA{}
	seal, err := NewService(NewHTTPSealer(srv.URL, "key", time.Second), tsa).Finalize(context.Background(), sampleRequest())
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if seal.SealID != "seal-9" || seal.SignedDocumentRef != "signed/env-1.pdf" || len(seal.TimestampToken) == 0 {
		t.Errorf("seal = %+v", seal)
	}
	if len(tsa.digest) != 32 {
		t.Errorf("timestamped digest len = %d", len(tsa.digest))
	}
}

func TestService_FinalizeFailures(t *testing.T) {
	down := sealServer(t, http.StatusBadGateway)
	defer down.Close()
	if _, err := NewService(NewHTTPSealer(down.URL, "", time.Second), nil).Finalize(context.Background(), sampleRequest()); !errors.Is(err, ErrFinalizationFailed) {
		t.Errorf("seal failure: err = %v", err)
	}

	up := sealServer(t, http.StatusOK)
	defer up.Close()
	tsa := &stubTSA{err: errors.New("tsa down")}
	if _, err := NewService(NewHTTPSealer(up.URL, "", time.Second), tsa).Finalize(context.Background(), sampleRequest()); !errors.Is(err, ErrFinalizationFailed) {
		t.Errorf("tsa failure: err = %v", err)
	}
}

func TestRequest_DigestStable(t *testing.T) {
	a, b := sampleRequest(), sampleRequest()
	if a.Digest() != b.Digest() || len(a.Digest()) != 64 {
		t.Fatal("digest not stable")
	}
	b.AuditHeadHash = "def"
	if a.Digest() == b.Digest() {
		t.Error("digest ignores audit head")
	}
}
