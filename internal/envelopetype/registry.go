// Package envelopetype provides the per-type configuration of envelopes: which signing and
// identity methods are offered, which documents are expected and which consents must be captured.
package envelopetype

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"esign-workflow/internal/identity"
)

// ErrUnknownType is returned when no configuration exists for a type code.
var ErrUnknownType = errors.New("envelopetype: unknown envelope type")

// ConsentDefinition is one consent the signer is asked for.
type ConsentDefinition struct {
	ID       string `yaml:"id"`
	Title    string `yaml:"title"`
	Text     string `yaml:"text"`
	Required bool   `yaml:"required"`
}

// DocumentTemplate is a document slot created on every envelope of the type.
type DocumentTemplate struct {
	ID       string `yaml:"id"`
	Title    string `yaml:"title"`
	Required bool   `yaml:"required"`
}

// Config is the configuration of one envelope type.
type Config struct {
	Code            string              `yaml:"code"`
	Name            string              `yaml:"name"`
	SigningMethods  []string            `yaml:"signingMethods"`
	IdentityMethods []identity.Method   `yaml:"identityMethods"`
	Documents       []DocumentTemplate  `yaml:"documents"`
	Consents        []ConsentDefinition `yaml:"consents"`
	ValidityDays    int                 `yaml:"validityDays"`
}

// Validate checks the fields the engine depends on.
func (c *Config) Validate() error {
	if c.Code == "" {
		return errors.New("code is required")
	}
	if len(c.SigningMethods) == 0 {
		return fmt.Errorf("type %s: at least one signing method is required", c.Code)
	}
	if len(c.IdentityMethods) == 0 {
		return fmt.Errorf("type %s: at least one identity method is required", c.Code)
	}
	for _, m := range c.IdentityMethods {
		if !m.Valid() {
			return fmt.Errorf("type %s: unknown identity method %q", c.Code, m)
		}
	}
	seen := make(map[string]bool)
	for _, d := range c.Consents {
		if d.ID == "" {
			return fmt.Errorf("type %s: consent without id", c.Code)
		}
		if seen[d.ID] {
			return fmt.Errorf("type %s: duplicate consent %s", c.Code, d.ID)
		}
		seen[d.ID] = true
	}
	for _, d := range c.Documents {
		if d.ID == "" {
			return fmt.Errorf("type %s: document without id", c.Code)
		}
	}
	return nil
}

// AllowsSigningMethod reports whether method is offered for the type.
func (c *Config) AllowsSigningMethod(method string) bool {
	for _, m := range c.SigningMethods {
		if m == method {
			return true
		}
	}
	return false
}

// AllowsIdentityMethod reports whether m is offered for the type.
func (c *Config) AllowsIdentityMethod(m identity.Method) bool {
	for _, allowed := range c.IdentityMethods {
		if allowed == m {
			return true
		}
	}
	return false
}

// Clone returns a deep copy.
func (c *Config) Clone() *Config {
	out := *c
	out.SigningMethods = append([]string(nil), c.SigningMethods...)
	out.IdentityMethods = append([]identity.Method(nil), c.IdentityMethods...)
	out.Documents = append([]DocumentTemplate(nil), c.Documents...)
	out.Consents = append([]ConsentDefinition(nil), c.Consents...)
	return &out
}

// Registry looks up envelope type configuration.
type Registry interface {
	Get(ctx context.Context, code string) (*Config, error)
}

// MemoryRegistry holds configs in memory; FileRegistry fills one from YAML.
type MemoryRegistry struct {
	mu    sync.RWMutex
	types map[string]*Config
}

// NewMemoryRegistry validates and stores cfgs.
func NewMemoryRegistry(cfgs ...*Config) (*MemoryRegistry, error) {
	r := &MemoryRegistry{types: make(map[string]*Config)}
	for _, c := range cfgs {
		if err := r.Put(c); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Put adds or replaces a config.
func (r *MemoryRegistry) Put(c *Config) error {
	if err := c.Validate(); err != nil {
		return fmt.Errorf("envelopetype: %w", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.types[c.Code] = c.Clone()
	return nil
}

// Get returns a copy of the config for code, or ErrUnknownType.
func (r *MemoryRegistry) Get(ctx context.Context, code string) (*Config, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.types[code]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownType, code)
	}
	return c.Clone(), nil
}

// Codes returns the registered type codes.
func (r *MemoryRegistry) Codes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.types))
	for code := range r.types {
		out = append(out, code)
	}
	return out
}
