// Package actor identifies who drives an operation. It is passed explicitly through the
// engine instead of being read from ambient request state.
package actor

import "errors"

// Role is the kind of principal performing an operation.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleAgent    Role = "agent"
	RoleSystem   Role = "system"
)

// ErrInvalidActor is returned when an actor has no id or an unknown role.
var ErrInvalidActor = errors.New("invalid actor")

// Actor is the authenticated principal behind a call.
type Actor struct {
	ID   string
	Role Role
}

// System is the actor recorded for transitions the engine performs on its own (e.g. lazy expiry).
var System = Actor{ID: "system", Role: RoleSystem}

// Validate reports ErrInvalidActor when the actor cannot be recorded in an audit event.
func (a Actor) Validate() error {
	if a.ID == "" {
		return ErrInvalidActor
	}
	switch a.Role {
	case RoleCustomer, RoleAgent, RoleSystem:
		return nil
	}
	return ErrInvalidActor
}
