// Package rfc3161 requests timestamp tokens from an RFC 3161 time-stamping authority.
package rfc3161

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/asn1"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"time"
)

var oidSHA256 = asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 2, 1}

type algorithmIdentifier struct {
	Algorithm  asn1.ObjectIdentifier
	Parameters asn1.RawValue `asn1:"optional"`
}

type messageImprint struct {
	HashAlgorithm algorithmIdentifier
	HashedMessage []byte
}

type timeStampReq struct {
	Version        int
	MessageImprint messageImprint
	ReqPolicy      asn1.ObjectIdentifier `asn1:"optional"`
	Nonce          *big.Int              `asn1:"optional"`
	CertReq        bool                  `asn1:"optional"`
}

type pkiStatusInfo struct {
	Status       int
	StatusString asn1.RawValue  `asn1:"optional"`
	FailInfo     asn1.BitString `asn1:"optional"`
}

type timeStampResp struct {
	Status         pkiStatusInfo
	TimeStampToken asn1.RawValue `asn1:"optional"`
}

// Client posts DER requests to one TSA.
type Client struct {
	URL        string
	PolicyOID  string
	HTTPClient *http.Client
}

// NewClient returns a client for tsaURL. policyOID may be empty.
func NewClient(tsaURL, policyOID string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{URL: tsaURL, PolicyOID: policyOID, HTTPClient: &http.Client{Timeout: timeout}}
}

// BuildRequest encodes a TimeStampReq for a SHA-256 digest.
func BuildRequest(digest []byte, policyOID string, nonce *big.Int) ([]byte, error) {
	if len(digest) != 32 {
		return nil, fmt.Errorf("rfc3161: digest must be 32 bytes, got %d", len(digest))
	}
	req := timeStampReq{
		Version: 1,
		MessageImprint: messageImprint{
			HashAlgorithm: algorithmIdentifier{
				Algorithm:  oidSHA256,
				Parameters: asn1.RawValue{Class: asn1.ClassUniversal, Tag: asn1.TagNull},
			},
			HashedMessage: digest,
		},
		Nonce:   nonce,
		CertReq: true,
	}
	if p := strings.TrimSpace(policyOID); p != "" {
		oid, err := ParseOID(p)
		if err != nil {
			return nil, err
		}
		req.ReqPolicy = oid
	}
	return asn1.Marshal(req)
}

// Timestamp requests a token for digest and returns the DER TimeStampToken.
// Statuses other than granted (0) and grantedWithMods (1) are errors.
func (c *Client) Timestamp(ctx context.Context, digest []byte) ([]byte, error) {
	nonce, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 64))
	if err != nil {
		return nil, err
	}
	der, err := BuildRequest(digest, c.PolicyOID, nonce)
	if err != nil {
		return nil, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL, bytes.NewReader(der))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/timestamp-query")
	httpReq.Header.Set("Accept", "application/timestamp-reply")
	resp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("rfc3161: tsa status=%d", resp.StatusCode)
	}
	var tsr timeStampResp
	if _, err := asn1.Unmarshal(body, &tsr); err != nil {
		return nil, fmt.Errorf("rfc3161: decode response: %w", err)
	}
	if tsr.Status.Status != 0 && tsr.Status.Status != 1 {
		return nil, fmt.Errorf("rfc3161: tsa rejected request, status=%d", tsr.Status.Status)
	}
	if len(tsr.TimeStampToken.FullBytes) == 0 {
		return nil, fmt.Errorf("rfc3161: response without token")
	}
	return tsr.TimeStampToken.FullBytes, nil
}

// ParseOID parses a dotted object identifier such as "1.3.6.1.4.1.4146.2.3".
func ParseOID(s string) (asn1.ObjectIdentifier, error) {
	parts := strings.Split(strings.TrimSpace(s), ".")
	if len(parts) < 2 {
		return nil, fmt.Errorf("rfc3161: invalid policy oid %q", s)
	}
	out := make(asn1.ObjectIdentifier, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("rfc3161: invalid policy oid %q", s)
		}
		out = append(out, n)
	}
	return out, nil
}
