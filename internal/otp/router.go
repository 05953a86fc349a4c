package otp

import (
	"context"
	"fmt"

	"esign-workflow/internal/otp/domain"
)

// Router dispatches deliveries to the sender registered for their channel.
type Router struct {
	senders map[domain.Channel]Sender
}

// NewRouter returns an empty router.
func NewRouter() *Router {
	return &Router{senders: make(map[domain.Channel]Sender)}
}

// Handle registers s for channel. A nil sender leaves the channel unregistered.
func (r *Router) Handle(channel domain.Channel, s Sender) *Router {
	if s != nil {
		r.senders[channel] = s
	}
	return r
}

// Send forwards d to its channel's sender.
func (r *Router) Send(ctx context.Context, d Delivery) error {
	s, ok := r.senders[d.Channel]
	if !ok {
		return fmt.Errorf("no sender configured for channel %q", d.Channel)
	}
	return s.Send(ctx, d)
}
