package domain

import (
	"time"

	"github.com/google/uuid"
)

// WaypointKind distinguishes the role of a waypoint within a trip.
type WaypointKind int

const (
	WaypointStart WaypointKind = iota
	WaypointDestination
	WaypointStopover
)

// String returns the lowercase name of the kind, or "unknown".
func (k WaypointKind) String() string {
	switch k {
	case WaypointStart:
		return "start"
	case WaypointDestination:
		return "destination"
	case WaypointStopover:
		return "stopover"
	}
	return "unknown"
}

// Waypoint is a geographic point of interest attached to a trip.
// Waypoints created from accepted stop proposals always have kind
// WaypointStopover and AddedBy set to the proposer.
type Waypoint struct {
	ID        uuid.UUID    `json:"id"`
	TripID    uuid.UUID    `json:"trip_id"`
	Kind      WaypointKind `json:"kind"`
	Name      string       `json:"name"`
	Latitude  float64      `json:"latitude"`
	Longitude float64      `json:"longitude"`
	AddedBy   uuid.UUID    `json:"added_by"`
	Position  int          `json:"position"`
	CreatedAt time.Time    `json:"created_at"`
}
