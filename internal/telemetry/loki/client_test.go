package loki

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"esign-workflow/internal/audit/publisher"
)

func auditJSON(t *testing.T, eventType, toStage string) []byte {
	t.Helper()
	b, err := json.Marshal(publisher.Message{
		ID: "ev-1", SessionID: "sess-1", Seq: 3, EventType: eventType,
		ActorID: "cust-1", ActorRole: "customer", ToStage: toStage,
		OccurredAt: time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return b
}

func TestEntryFromAudit(t *testing.T) {
	e := EntryFromAudit(auditJSON(t, "otp_verified", "otp_verification"))
	if e.Labels["event_type"] != "otp_verified" || e.Labels["stage"] != "otp_verification" || e.Labels["actor_role"] != "customer" {
		t.Errorf("labels = %v", e.Labels)
	}
	if _, ok := e.Labels["session_id"]; ok {
		t.Error("session id must not be a label")
	}
	if !e.Time.Equal(time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)) {
		t.Errorf("time = %v", e.Time)
	}

	bad := EntryFromAudit([]byte("not json"))
	if bad.Line != "not json" || bad.Labels["decode_error"] != "true" {
		t.Errorf("bad entry = %+v", bad)
	}
}

func TestPush_GroupsStreams(t *testing.T) {
	var got PushRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/loki/api/v1/push" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL+"/", srv.Client())
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	err = c.Push(context.Background(),
		EntryFromAudit(auditJSON(t, "consent_accepted", "capture_consent")),
		EntryFromAudit(auditJSON(t, "consent_accepted", "capture_consent")),
		EntryFromAudit(auditJSON(t, "document_signed", "signing_completed")),
	)
	if err != nil {
		t.Fatalf("Push: %v", err)
	}
	if len(got.Streams) != 2 {
		t.Fatalf("streams = %d, want 2", len(got.Streams))
	}
	if len(got.Streams[0].Values) != 2 || got.Streams[0].Stream["job"] != defaultJob {
		t.Errorf("first stream = %+v", got.Streams[0])
	}
}

func TestPush_Non2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()
	c, _ := NewClient(srv.URL, nil)
	if err := c.Push(context.Background(), Entry{Time: time.Now(), Line: "x"}); err == nil {
		t.Fatal("expected error on 400")
	}
	if err := c.Push(context.Background()); err != nil {
		t.Errorf("empty push: %v", err)
	}
}

func TestNewClient_RequiresURL(t *testing.T) {
	if _, err := NewClient("  ", nil); err == nil {
		t.Fatal("expected error for empty URL")
	}
}
