// Package consent tracks the consents a signer must give before an envelope can be signed.
package consent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"esign-workflow/internal/envelopetype"
)

// ErrUnknownConsent is returned when accepting a consent the envelope type does not define.
var ErrUnknownConsent = errors.New("consent: not defined for this envelope type")

// Requirement is one consent on a signing session. Value stays nil until the signer answers.
type Requirement struct {
	ConsentID  string     `json:"consentId"`
	Title      string     `json:"title,omitempty"`
	Required   bool       `json:"required"`
	Value      *bool      `json:"value,omitempty"`
	AcceptedAt *time.Time `json:"acceptedAt,omitempty"`
}

// Ledger derives requirements from envelope type configuration and records answers.
type Ledger struct {
	types envelopetype.Registry
}

// NewLedger returns a Ledger over the given registry.
func NewLedger(types envelopetype.Registry) *Ledger {
	return &Ledger{types: types}
}

// RequiredFor returns the type's consents, in configured order, all unanswered.
func (l *Ledger) RequiredFor(ctx context.Context, typeCode string) ([]Requirement, error) {
	cfg, err := l.types.Get(ctx, typeCode)
	if err != nil {
		return nil, err
	}
	out := make([]Requirement, 0, len(cfg.Consents))
	for _, d := range cfg.Consents {
		out = append(out, Requirement{ConsentID: d.ID, Title: d.Title, Required: d.Required})
	}
	return out, nil
}

// Accept returns a copy of reqs with consentID answered with value at at.
// Answering again overwrites the earlier answer.
func (l *Ledger) Accept(reqs []Requirement, consentID string, value bool, at time.Time) ([]Requirement, error) {
	out := Clone(reqs)
	for i := range out {
		if out[i].ConsentID == consentID {
			v := value
			ts := at.UTC()
			out[i].Value = &v
			out[i].AcceptedAt = &ts
			return out, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownConsent, consentID)
}

// IsSatisfied reports whether every required consent was answered true.
func (l *Ledger) IsSatisfied(reqs []Requirement) bool {
	return len(Missing(reqs)) == 0
}

// Missing returns the ids of required consents not answered true, in order.
func Missing(reqs []Requirement) []string {
	var out []string
	for _, r := range reqs {
		if r.Required && (r.Value == nil || !*r.Value) {
			out = append(out, r.ConsentID)
		}
	}
	return out
}

// Clone deep-copies reqs.
func Clone(reqs []Requirement) []Requirement {
	if reqs == nil {
		return nil
	}
	out := make([]Requirement, len(reqs))
	for i, r := range reqs {
		out[i] = r
		if r.Value != nil {
			v := *r.Value
			out[i].Value = &v
		}
		if r.AcceptedAt != nil {
			ts := *r.AcceptedAt
			out[i].AcceptedAt = &ts
		}
	}
	return out
}
