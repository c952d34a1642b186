// Package domain contains entities without logic, just meta-data.
package domain

import (
	"errors"
)

const (
	MaxDisplayNameLen = 36
	MaxContactLen     = 128
)

var (
	ErrNameEmpty   = errors.New("display name empty")
	ErrNameTooLong = errors.New("display name too long")
	ErrContactLong = errors.New("contact info too long")
	ErrUnknownRole = errors.New("unknown role")
)

// ConnectionID identifies one live transport connection.
type ConnectionID string

type Role string

const (
	RolePresenter Role = "presenter"
	RoleAttendee  Role = "attendee"
)

func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RolePresenter, RoleAttendee:
		return Role(s), nil
	case "":
		return RoleAttendee, nil
	}
	return "", ErrUnknownRole
}

// Participant is the identity behind one live connection.
type Participant struct {
	ID              ConnectionID `json:"id"`
	DisplayName     string       `json:"name"`
	ContactInfo     string       `json:"-"`
	Role            Role         `json:"role"`
	HandRaised      bool         `json:"hand_raised"`
	SpeakingGranted bool         `json:"speaking"`
}

// NewParticipant is a tiny helper to avoid ad-hoc struct literals in adapters.
func NewParticipant(id ConnectionID, name, contact string, role Role) (*Participant, error) {
	if name == "" {
		return nil, ErrNameEmpty
	}
	if len(name) > MaxDisplayNameLen {
		return nil, ErrNameTooLong
	}
	if len(contact) > MaxContactLen {
		return nil, ErrContactLong
	}
	return &Participant{ID: id, DisplayName: name, ContactInfo: contact, Role: role}, nil
}
