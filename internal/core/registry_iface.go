package core

import (
	"context"
	"time"

	"github.com/mkhas/Rescue/internal/domain"
)

// SessionSummary is one row of the responder's active-session list.
type SessionSummary struct {
	ID        domain.SessionID `json:"id"`
	Name      string           `json:"name"`
	Email     string           `json:"email"`
	Latitude  float64          `json:"latitude"`
	Longitude float64          `json:"longitude"`
	UpdatedAt time.Time        `json:"updatedAt"`
}

// SessionRegistry is the backend REST service holding session records.
// Any call may fail with ErrCredentialExpired, which must force a logout.
type SessionRegistry interface {
	Start(ctx context.Context, loc domain.Location) (domain.SessionID, error)
	Update(ctx context.Context, loc domain.Location) error
	Stop(ctx context.Context) error
	ListActive(ctx context.Context) ([]SessionSummary, error)
}

// StateStore is durable local state: one key holding the current session id.
type StateStore interface {
	// Load returns the persisted session id, or ok=false when none is active.
	Load() (domain.SessionID, bool, error)
	Save(id domain.SessionID) error
	Clear() error
}

// Locator acquires the current position. May fail per call (denied, timeout);
// callers treat each failure as contained.
type Locator interface {
	Current(ctx context.Context) (domain.Location, error)
}
