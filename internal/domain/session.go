package domain

import "time"

type SessionID string

type SessionStatus int

const (
	StatusStopped SessionStatus = iota
	StatusActive
)

func (s SessionStatus) String() string {
	if s == StatusActive {
		return "active"
	}
	return "stopped"
}

// Location is a WGS84 point as the registry understands it.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// EmergencySession is the coordinator's view of one live emergency.
// Only the session controller mutates it.
type EmergencySession struct {
	ID             SessionID
	Owner          Identity
	Location       Location
	Status         SessionStatus
	StartedAt      time.Time
	LastReportedAt time.Time
}
