package domain

import (
	"testing"
	"time"
)

func newEvent() *Event {
	return &Event{
		ID:         "ev-1",
		SessionID:  "sess-1",
		Type:       EventConsentAccepted,
		ActorID:    "cust-1",
		ActorRole:  "customer",
		FromStage:  "contact_confirmation",
		ToStage:    "contact_confirmation",
		Metadata:   map[string]string{"consent_id": "gdpr", "value": "true"},
		OccurredAt: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	}
}

func TestSeal_FirstEventUsesGenesis(t *testing.T) {
	e := newEvent()
	e.Seal(0, "")
	if e.Seq != 1 {
		t.Errorf("Seq = %d, want 1", e.Seq)
	}
	if e.PrevHash != GenesisHash {
		t.Errorf("PrevHash = %q, want genesis", e.PrevHash)
	}
	if len(e.Hash) != 64 {
		t.Errorf("Hash length = %d, want 64", len(e.Hash))
	}
}

func TestComputeHash_DetectsTampering(t *testing.T) {
	e := newEvent()
	e.Seal(3, GenesisHash)
	orig := e.Hash

	tampered := e.Clone()
	tampered.Metadata["value"] = "false"
	if tampered.ComputeHash() == orig {
		t.Error("metadata edit should change hash")
	}

	moved := e.Clone()
	moved.Seq = 5
	if moved.ComputeHash() == orig {
		t.Error("seq edit should change hash")
	}
}

func TestComputeHash_StableAcrossTimezones(t *testing.T) {
	e := newEvent()
	e.Seal(0, "")
	c := e.Clone()
	c.OccurredAt = e.OccurredAt.In(time.FixedZone("X", 3*3600))
	if c.ComputeHash() != e.Hash {
		t.Error("hash should not depend on the time zone of OccurredAt")
	}
}

func TestClone_DoesNotShareMetadata(t *testing.T) {
	e := newEvent()
	c := e.Clone()
	c.Metadata["consent_id"] = "other"
	if e.Metadata["consent_id"] != "gdpr" {
		t.Error("Clone shares metadata map with original")
	}
}
