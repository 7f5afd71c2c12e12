// Package domain contains entity without logic, just meta-data
package domain

import (
	"errors"

	"github.com/google/uuid"
)

const MaxNameLen = 64

var (
	ErrNameEmpty   = errors.New("name empty")
	ErrNameTooLong = errors.New("name too long")
)

type UserID string

// Identity is who a participant claims to be. It travels with room joins
// and chat messages; the registry is the authority for it, not us.
type Identity struct {
	ID    UserID `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// NewIdentity is a tiny helper to avoid ad-hoc struct literals in adapters.
func NewIdentity(name, email string) (Identity, error) {
	if len(name) == 0 {
		return Identity{}, ErrNameEmpty
	}
	if len(name) > MaxNameLen {
		return Identity{}, ErrNameTooLong
	}
	return Identity{ID: UserID(uuid.NewString()), Name: name, Email: email}, nil
}
