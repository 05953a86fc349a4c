package sms

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"esign-workflow/internal/otp"
)

func delivery(dest string) otp.Delivery {
	return otp.Delivery{ChallengeID: "ch-1", SessionID: "s-1", Channel: "sms", Destination: dest, Code: "123456"}
}

func TestNewClient_Defaults(t *testing.T) {
	c := NewClient("api-key", "", "")
	if c.BaseURL != "https://app.smslocal.in/api/smsapi" {
		t.Errorf("BaseURL = %q, want default", c.BaseURL)
	}
	if c.HTTPClient == nil || c.HTTPClient.Timeout != defaultTimeout {
		t.Errorf("HTTPClient timeout not set to %v", defaultTimeout)
	}
}

func TestSend_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %q, want POST", r.Method)
		}
		if r.Header.Get("Authorization") != "test-api-key" {
			t.Errorf("Authorization = %q", r.Header.Get("Authorization"))
		}
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if body["route"] != "otp" {
			t.Errorf("route = %q, want otp", body["route"])
		}
		if body["numbers"] != "919876543210" {
			t.Errorf("numbers = %q, want digits only", body["numbers"])
		}
		if body["variables"] != "123456" {
			t.Errorf("variables = %q", body["variables"])
		}
		if body["sender_id"] != "ESIGN" {
			t.Errorf("sender_id = %q", body["sender_id"])
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	c := NewClient("test-api-key", server.URL, "ESIGN")
	if err := c.Send(context.Background(), delivery("+91 98765-43210")); err != nil {
		t.Fatalf("Send: %v", err)
	}
}

func TestSend_MissingAPIKey(t *testing.T) {
	err := NewClient("", "", "").Send(context.Background(), delivery("123"))
	if err == nil || !strings.Contains(err.Error(), "API key not configured") {
		t.Errorf("err = %v, want API key error", err)
	}
}

func TestSend_NoDigits(t *testing.T) {
	err := NewClient("k", "http://unused", "").Send(context.Background(), delivery("n/a"))
	if err == nil {
		t.Fatal("expected error for destination without digits")
	}
}

func TestSend_Non200Status(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"invalid request"}`))
	}))
	defer server.Close()

	err := NewClient("api-key", server.URL, "").Send(context.Background(), delivery("1234567890"))
	if err == nil {
		t.Fatal("expected error for non-200 status")
	}
	if !strings.Contains(err.Error(), "status=400") || !strings.Contains(err.Error(), "invalid request") {
		t.Errorf("error = %q, want status and body", err.Error())
	}
}

func TestSend_ContextCanceled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := NewClient("api-key", server.URL, "").Send(ctx, delivery("1234567890")); err == nil {
		t.Fatal("expected error for canceled context")
	}
}
