package facematch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// AnalyzeRequest names the three uploaded images by reference.
type AnalyzeRequest struct {
	SubjectID string `json:"subjectId"`
	FrontRef  string `json:"frontImageRef"`
	BackRef   string `json:"backImageRef"`
	SelfieRef string `json:"selfieImageRef"`
}

// Analysis is what the KYC provider extracted from the document and how well the selfie matched it.
type Analysis struct {
	Reference     string  `json:"reference"`
	DocumentValid bool    `json:"documentValid"`
	Confidence    float64 `json:"faceMatchConfidence"`
	Name          string  `json:"name"`
	IDNumber      string  `json:"idNumber"`
	DateOfBirth   string  `json:"dateOfBirth"`
}

// Analyzer compares a live selfie against an identity document.
type Analyzer interface {
	Analyze(ctx context.Context, req AnalyzeRequest) (*Analysis, error)
}

// HTTPAnalyzer calls the KYC provider's document analysis endpoint.
type HTTPAnalyzer struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

// NewHTTPAnalyzer returns an analyzer posting to baseURL + "/v1/face-match".
func NewHTTPAnalyzer(baseURL, apiKey string, timeout time.Duration) *HTTPAnalyzer {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPAnalyzer{BaseURL: baseURL, APIKey: apiKey, HTTPClient: &http.Client{Timeout: timeout}}
}

func (a *HTTPAnalyzer) Analyze(ctx context.Context, in AnalyzeRequest) (*Analysis, error) {
	raw, err := json.Marshal(in)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.BaseURL+"/v1/face-match", bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if a.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+a.APIKey)
	}
	resp, err := a.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("facematch: provider status=%d body=%s", resp.StatusCode, string(b))
	}
	var out Analysis
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&out); err != nil {
		return nil, fmt.Errorf("facematch: decode response: %w", err)
	}
	return &out, nil
}
