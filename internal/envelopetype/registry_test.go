package envelopetype

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"esign-workflow/internal/identity"
)

func TestLoadFile_SampleConfig(t *testing.T) {
	r, err := LoadFile(filepath.Join("..", "..", "config", "envelope_types.yaml"))
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	c, err := r.Get(context.Background(), "env-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(c.Consents) != 3 || c.Consents[0].ID != "gdpr" || !c.Consents[1].Required || c.Consents[2].Required {
		t.Errorf("consents = %+v", c.Consents)
	}
	if !c.AllowsSigningMethod("self_service") || !c.AllowsIdentityMethod(identity.MethodFaceMatch) {
		t.Error("env-1 should allow self service with face match")
	}
	m, err := r.Get(context.Background(), "company-mandate")
	if err != nil {
		t.Fatal(err)
	}
	if m.AllowsSigningMethod("self_service") || m.AllowsIdentityMethod(identity.MethodExternalEID) {
		t.Error("company mandate allows too much")
	}
}

func TestGet_Unknown(t *testing.T) {
	r, _ := NewMemoryRegistry()
	if _, err := r.Get(context.Background(), "nope"); !errors.Is(err, ErrUnknownType) {
		t.Errorf("err = %v, want ErrUnknownType", err)
	}
}

func TestGet_ReturnsCopy(t *testing.T) {
	r, err := NewMemoryRegistry(&Config{
		Code: "t", SigningMethods: []string{"self_service"}, IdentityMethods: []identity.Method{identity.MethodManual},
		Consents: []ConsentDefinition{{ID: "terms", Required: true}},
	})
	if err != nil {
		t.Fatal(err)
	}
	c, _ := r.Get(context.Background(), "t")
	c.Consents[0].Required = false
	again, _ := r.Get(context.Background(), "t")
	if !again.Consents[0].Required {
		t.Error("caller mutation leaked into registry")
	}
}

func TestParse_Invalid(t *testing.T) {
	testCases := map[string]string{
		"unknown field":   "envelopeTypes:\n  - code: a\n    colour: red\n",
		"empty":           "envelopeTypes: []\n",
		"no methods":      "envelopeTypes:\n  - code: a\n    identityMethods: [manual]\n",
		"bad identity":    "envelopeTypes:\n  - code: a\n    signingMethods: [self_service]\n    identityMethods: [palm_reading]\n",
		"duplicate":       "envelopeTypes:\n  - code: a\n    signingMethods: [self_service]\n    identityMethods: [manual]\n    consents:\n      - id: x\n      - id: x\n",
	}
	for name, doc := range testCases {
		t.Run(name, func(t *testing.T) {
			if _, err := Parse([]byte(doc)); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestLoadFile_Missing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil || !strings.Contains(err.Error(), "read") {
		t.Errorf("err = %v", err)
	}
	path := filepath.Join(t.TempDir(), "types.yaml")
	_ = os.WriteFile(path, []byte("envelopeTypes:\n  - code: a\n    signingMethods: [agent_assisted]\n    identityMethods: [manual]\n"), 0o600)
	if _, err := LoadFile(path); err != nil {
		t.Errorf("LoadFile: %v", err)
	}
}
