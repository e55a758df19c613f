// Package domain contains the core data types and business rules for the
// convoy API. This package has zero infrastructure dependencies and is
// imported by every other internal package (repo, service, handler).
package domain

import (
	"time"

	"github.com/google/uuid"
)

// TripStatus describes where a trip is in its lifecycle.
// Stored and serialized as an integer code.
type TripStatus int

const (
	TripPlanned TripStatus = iota
	TripActive
	TripFinished
)

// String returns the lowercase name of the status, or "unknown".
func (s TripStatus) String() string {
	switch s {
	case TripPlanned:
		return "planned"
	case TripActive:
		return "active"
	case TripFinished:
		return "finished"
	}
	return "unknown"
}

// Trip represents one journey undertaken by a convoy.
// A trip is the top-level aggregate for waypoints; stop proposals reference
// trips by ID only and never assume the trip object is loaded.
type Trip struct {
	ID        uuid.UUID  `json:"id"`
	ConvoyID  uuid.UUID  `json:"convoy_id"`
	Name      string     `json:"name"`
	Status    TripStatus `json:"status"`
	StartedAt *time.Time `json:"started_at,omitempty"`
	EndedAt   *time.Time `json:"ended_at,omitempty"` // nil while the trip is planned or active
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// Convoy is a group of members traveling together.
type Convoy struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Member is one user's membership in a convoy. DisplayName is denormalized
// here so vote tallies can be rendered without a user lookup.
type Member struct {
	ConvoyID    uuid.UUID `json:"convoy_id"`
	UserID      uuid.UUID `json:"user_id"`
	DisplayName string    `json:"display_name"`
	JoinedAt    time.Time `json:"joined_at"`
}
