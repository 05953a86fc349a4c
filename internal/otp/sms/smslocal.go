// Package sms delivers signing OTPs by text message through the SMS Local HTTP API.
package sms

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"esign-workflow/internal/otp"
)

const defaultTimeout = 15 * time.Second

// Client sends OTP SMS via SMS Local (route=otp).
type Client struct {
	APIKey     string
	BaseURL    string
	Sender     string
	HTTPClient *http.Client
}

// NewClient returns a client for the given API key with optional base URL and sender id.
func NewClient(apiKey, baseURL, sender string) *Client {
	if baseURL == "" {
		baseURL = "https://app.smslocal.in/api/smsapi"
	}
	return &Client{
		APIKey:     apiKey,
		BaseURL:    baseURL,
		Sender:     sender,
		HTTPClient: &http.Client{Timeout: defaultTimeout},
	}
}

type sendRequest struct {
	Route     string `json:"route"`
	Numbers   string `json:"numbers"`
	Variables string `json:"variables"`
	SenderID  string `json:"sender_id,omitempty"`
}

// Send posts the code to d.Destination. The phone number is reduced to digits; the code is never logged.
func (c *Client) Send(ctx context.Context, d otp.Delivery) error {
	if c.APIKey == "" {
		return fmt.Errorf("sms: API key not configured")
	}
	phone := digitsOnly(d.Destination)
	if phone == "" {
		return fmt.Errorf("sms: destination has no digits")
	}
	raw, err := json.Marshal(sendRequest{Route: "otp", Numbers: phone, Variables: d.Code, SenderID: c.Sender})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", c.APIKey)
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("sms: request failed status=%d body=%s", resp.StatusCode, string(b))
	}
	return nil
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
