package domain

import "time"

// Channel is how a one-time code reaches the signer.
type Channel string

const (
	ChannelSMS   Channel = "sms"
	ChannelEmail Channel = "email"
)

// Valid reports whether c is a supported channel.
func (c Channel) Valid() bool {
	return c == ChannelSMS || c == ChannelEmail
}

// Challenge is an issued one-time code (stored in otp_challenges). The code itself is never stored.
type Challenge struct {
	ID                string
	SessionID         string
	Channel           Channel
	Destination       string
	CodeHash          string
	IssuedAt          time.Time
	ExpiresAt         time.Time
	ResendAvailableAt time.Time
	Attempts          int
	ConsumedAt        *time.Time
	SupersededAt      *time.Time
}

// Expired reports whether the challenge's TTL has elapsed at now.
func (c *Challenge) Expired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

// Open reports whether the challenge has been neither consumed nor superseded.
func (c *Challenge) Open() bool {
	return c.ConsumedAt == nil && c.SupersededAt == nil
}

// Active reports whether the challenge can still be verified at now.
func (c *Challenge) Active(now time.Time) bool {
	return c.Open() && !c.Expired(now)
}

// Clone returns a copy that shares no pointers with c.
func (c *Challenge) Clone() *Challenge {
	if c == nil {
		return nil
	}
	out := *c
	if c.ConsumedAt != nil {
		t := *c.ConsumedAt
		out.ConsumedAt = &t
	}
	if c.SupersededAt != nil {
		t := *c.SupersededAt
		out.SupersededAt = &t
	}
	return &out
}
