package domain

import (
	"errors"
	"time"

	otpdomain "esign-workflow/internal/otp/domain"
)

// Kind distinguishes natural persons, companies and the agents who assist them.
type Kind string

const (
	KindPerson  Kind = "person"
	KindCompany Kind = "company"
	KindAgent   Kind = "agent"
)

// Party is a signer or agent record on file. The national ID number is kept only as a bcrypt hash.
type Party struct {
	ID                 string
	Kind               Kind
	DisplayName        string
	Phone              string
	Email              string
	DateOfBirth        *time.Time
	IDNumberHash       string
	RegistrationNumber string
	RegistrationDate   *time.Time
	CreatedAt          time.Time
}

// Validate validates the party for persistence. Returns an error describing the first validation failure.
func (p *Party) Validate() error {
	if p.ID == "" {
		return errors.New("id is required")
	}
	switch p.Kind {
	case KindPerson, KindCompany, KindAgent:
	default:
		return errors.New("kind must be person, company or agent")
	}
	if p.DisplayName == "" {
		return errors.New("display name is required")
	}
	if p.Kind == KindCompany && p.RegistrationNumber == "" {
		return errors.New("company requires a registration number")
	}
	return nil
}

// Destination returns the contact on file for channel, or "" when there is none.
func (p *Party) Destination(ch otpdomain.Channel) string {
	switch ch {
	case otpdomain.ChannelSMS:
		return p.Phone
	case otpdomain.ChannelEmail:
		return p.Email
	}
	return ""
}
