// Package trust finalizes signed envelopes through the external trust service: it obtains the
// advanced electronic seal on the document and an RFC 3161 timestamp over the sealed digest.
package trust

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
)

// ErrFinalizationFailed wraps every failure to seal or timestamp an envelope. It is retryable.
var ErrFinalizationFailed = errors.New("trust: finalization failed")

// Request is what the trust service signs for.
type Request struct {
	EnvelopeID    string   `json:"envelopeId"`
	SessionID     string   `json:"sessionId"`
	SignerID      string   `json:"signerId"`
	Method        string   `json:"method"`
	DocumentRefs  []string `json:"documentRefs"`
	ArtifactRef   string   `json:"artifactRef,omitempty"`
	ScanRefs      []string `json:"scanRefs,omitempty"`
	AuditHeadHash string   `json:"auditHeadHash"`
}

// Digest is the hex SHA-256 of the request's canonical JSON encoding. It binds the seal to the
// audit trail head at the moment of signing.
func (r Request) Digest() string {
	b, _ := json.Marshal(r)
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// Seal is the trust service's answer.
type Seal struct {
	SealID            string `json:"sealId"`
	SignedDocumentRef string `json:"signedDocumentRef"`
	Digest            string `json:"digest"`
	TimestampToken    []byte `json:"-"`
}

// Finalizer seals an envelope.
type Finalizer interface {
	Finalize(ctx context.Context, req Request) (*Seal, error)
}
