package trust

import (
	"context"
	"encoding/hex"
	"fmt"
	"log"
	"time"

	"esign-workflow/internal/platform/circuit"
	"esign-workflow/internal/trust/rfc3161"
)

// Sealer applies the provider's seal.
type Sealer interface {
	Seal(ctx context.Context, req Request) (*Seal, error)
}

// Timestamper obtains an RFC 3161 token over a SHA-256 digest.
type Timestamper interface {
	Timestamp(ctx context.Context, digest []byte) ([]byte, error)
}

// Service seals and then timestamps. The timestamper is optional.
type Service struct {
	sealer  Sealer
	tsa     Timestamper
	breaker *circuit.Breaker
}

// NewService returns a Finalizer. tsa may be nil.
func NewService(sealer Sealer, tsa Timestamper) *Service {
	return &Service{
		sealer:  sealer,
		tsa:     tsa,
		breaker: circuit.New("trust-service", circuit.WithFailureThreshold(3), circuit.WithCooldown(time.Minute)),
	}
}

// Finalize returns ErrFinalizationFailed wrapping the cause on any failure, including a
// deadline on ctx.
func (s *Service) Finalize(ctx context.Context, req Request) (*Seal, error) {
	var seal *Seal
	err := s.breaker.Do(ctx, func(ctx context.Context) error {
		var err error
		seal, err = s.sealer.Seal(ctx, req)
		if err != nil {
			return err
		}
		if s.tsa == nil {
			return nil
		}
		digest, err := hex.DecodeString(seal.Digest)
		if err != nil {
			return fmt.Errorf("trust: seal digest: %w", err)
		}
		seal.TimestampToken, err = s.tsa.Timestamp(ctx, digest)
		return err
	})
	if err != nil {
		log.Printf("trust: finalize envelope=%s session=%s: %v", req.EnvelopeID, req.SessionID, err)
		return nil, fmt.Errorf("%w: %v", ErrFinalizationFailed, err)
	}
	return seal, nil
}

var _ Timestamper = (*rfc3161.Client)(nil)
