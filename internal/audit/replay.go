package audit

import (
	"errors"
	"fmt"

	"esign-workflow/internal/audit/domain"
)

var (
	// ErrSequenceGap means the trail is not numbered 1..n.
	ErrSequenceGap = errors.New("audit sequence gap")
	// ErrChainBroken means an event's hash or link to its predecessor does not verify.
	ErrChainBroken = errors.New("audit hash chain broken")
	// ErrReplayMismatch means an event starts from a stage the trail never reached.
	ErrReplayMismatch = errors.New("audit replay mismatch")
)

// VerifyChain checks that events are numbered 1..n without gaps, that each links to the
// previous hash and that every stored hash matches its content.
func VerifyChain(events []*domain.Event) error {
	prev := domain.GenesisHash
	for i, e := range events {
		if want := int64(i + 1); e.Seq != want {
			return fmt.Errorf("%w: got seq %d, want %d", ErrSequenceGap, e.Seq, want)
		}
		if e.PrevHash != prev {
			return fmt.Errorf("%w: seq %d does not link to its predecessor", ErrChainBroken, e.Seq)
		}
		if e.ComputeHash() != e.Hash {
			return fmt.Errorf("%w: seq %d content does not match its hash", ErrChainBroken, e.Seq)
		}
		prev = e.Hash
	}
	return nil
}

// Replay walks the trail and returns the stage path it describes, starting with the stage
// the first event entered. Each event must start from the stage the previous one ended in.
func Replay(events []*domain.Event) ([]string, error) {
	var path []string
	current := ""
	for _, e := range events {
		if current != "" && e.FromStage != current {
			return nil, fmt.Errorf("%w: seq %d starts at %q but trail is at %q", ErrReplayMismatch, e.Seq, e.FromStage, current)
		}
		if e.ToStage != "" && e.ToStage != current {
			path = append(path, e.ToStage)
			current = e.ToStage
		}
	}
	return path, nil
}

// FinalStage is the stage the trail ends in, or "" for an empty trail.
func FinalStage(events []*domain.Event) (string, error) {
	path, err := Replay(events)
	if err != nil {
		return "", err
	}
	if len(path) == 0 {
		return "", nil
	}
	return path[len(path)-1], nil
}
