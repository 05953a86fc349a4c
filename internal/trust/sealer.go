package trust

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPSealer asks the trust provider to apply its seal to the envelope.
type HTTPSealer struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

// NewHTTPSealer returns a sealer posting to baseURL + "/v1/seals".
func NewHTTPSealer(baseURL, apiKey string, timeout time.Duration) *HTTPSealer {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPSealer{BaseURL: baseURL, APIKey: apiKey, HTTPClient: &http.Client{Timeout: timeout}}
}

type sealRequest struct {
	Request
	Digest string `json:"digest"`
}

// Seal posts the request and its digest. Only a 200 or 201 with a signed document reference counts.
func (s *HTTPSealer) Seal(ctx context.Context, req Request) (*Seal, error) {
	digest := req.Digest()
	raw, err := json.Marshal(sealRequest{Request: req, Digest: digest})
	if err != nil {
		return nil, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.BaseURL+"/v1/seals", bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	// the session id makes retries of the same finalization idempotent at the provider
	httpReq.Header.Set("Idempotency-Key", req.SessionID)
	if s.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+s.APIKey)
	}
	resp, err := s.HTTPClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("trust: seal status=%d body=%s", resp.StatusCode, string(b))
	}
	var out Seal
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&out); err != nil {
		return nil, fmt.Errorf("trust: decode seal: %w", err)
	}
	if out.SignedDocumentRef == "" {
		return nil, fmt.Errorf("trust: seal response without signed document")
	}
	if out.Digest == "" {
		out.Digest = digest
	}
	return &out, nil
}
