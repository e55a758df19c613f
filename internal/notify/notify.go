// Package notify carries proposal lifecycle events from the voting engine to
// interested parties. Delivery is best-effort and at-least-once: a lost event
// must never roll back a vote or a resolution, so nothing here returns an
// error to the caller's main logic.
package notify

import (
	"time"

	"github.com/google/uuid"

	"github.com/convoyapp/convoy-api/internal/domain"
)

// Event kinds emitted by the voting engine.
const (
	KindProposed    = "proposal.proposed"
	KindVoteUpdated = "proposal.vote_updated"
	KindResolved    = "proposal.resolved"
)

// VoteSnapshot is one vote as carried in notifications.
type VoteSnapshot struct {
	UserID      uuid.UUID `json:"user_id"`
	DisplayName string    `json:"display_name"`
	Approve     bool      `json:"approve"`
	CastAt      time.Time `json:"cast_at"`
}

// ProposalSnapshot is the full state of a proposal as carried in Proposed and
// Resolved events. Type and Status are integer codes.
type ProposalSnapshot struct {
	ID           uuid.UUID      `json:"id"`
	TripID       uuid.UUID      `json:"trip_id"`
	ProposerID   uuid.UUID      `json:"proposer_id"`
	ProposerName string         `json:"proposer_name"`
	Type         int            `json:"type"`
	Latitude     float64        `json:"latitude"`
	Longitude    float64        `json:"longitude"`
	LocationName string         `json:"location_name"`
	Status       int            `json:"status"`
	CreatedAt    time.Time      `json:"created_at"`
	ExpiresAt    time.Time      `json:"expires_at"`
	ResolvedAt   *time.Time     `json:"resolved_at,omitempty"`
	YesCount     int            `json:"yes_count"`
	NoCount      int            `json:"no_count"`
	WaypointID   *uuid.UUID     `json:"waypoint_id,omitempty"`
	Votes        []VoteSnapshot `json:"votes"`
}

// Event is the envelope delivered to subscribers. Exactly one of Proposal or
// the tally fields is meaningful depending on Kind: Proposed and Resolved
// carry a full snapshot, VoteUpdated carries only the running tally.
type Event struct {
	Kind       string            `json:"kind"`
	TripID     uuid.UUID         `json:"trip_id"`
	ProposalID uuid.UUID         `json:"proposal_id"`
	YesCount   int               `json:"yes_count"`
	NoCount    int               `json:"no_count"`
	Proposal   *ProposalSnapshot `json:"proposal,omitempty"`
}

// Snapshot flattens a proposal aggregate into its notification form.
func Snapshot(p domain.StopProposal) ProposalSnapshot {
	snap := ProposalSnapshot{
		ID:           p.ID,
		TripID:       p.TripID,
		ProposerID:   p.ProposerID,
		Type:         int(p.Type),
		Latitude:     p.Latitude,
		Longitude:    p.Longitude,
		LocationName: p.LocationName,
		Status:       int(p.Status),
		CreatedAt:    p.CreatedAt,
		ExpiresAt:    p.ExpiresAt,
		ResolvedAt:   p.ResolvedAt,
		YesCount:     p.YesCount(),
		NoCount:      p.NoCount(),
		WaypointID:   p.WaypointID,
		Votes:        make([]VoteSnapshot, 0, len(p.Votes)),
	}
	for _, v := range p.Votes {
		if v.UserID == p.ProposerID {
			snap.ProposerName = v.DisplayName
		}
		snap.Votes = append(snap.Votes, VoteSnapshot{
			UserID:      v.UserID,
			DisplayName: v.DisplayName,
			Approve:     v.Approve,
			CastAt:      v.CastAt,
		})
	}
	return snap
}

// Proposed builds the event announcing a new proposal.
func Proposed(p domain.StopProposal) Event {
	snap := Snapshot(p)
	return Event{
		Kind:       KindProposed,
		TripID:     p.TripID,
		ProposalID: p.ID,
		YesCount:   snap.YesCount,
		NoCount:    snap.NoCount,
		Proposal:   &snap,
	}
}

// VoteUpdated builds the running-tally event after a vote lands.
func VoteUpdated(p domain.StopProposal) Event {
	return Event{
		Kind:       KindVoteUpdated,
		TripID:     p.TripID,
		ProposalID: p.ID,
		YesCount:   p.YesCount(),
		NoCount:    p.NoCount(),
	}
}

// Resolved builds the terminal event carrying the final snapshot.
func Resolved(p domain.StopProposal) Event {
	snap := Snapshot(p)
	return Event{
		Kind:       KindResolved,
		TripID:     p.TripID,
		ProposalID: p.ID,
		YesCount:   snap.YesCount,
		NoCount:    snap.NoCount,
		Proposal:   &snap,
	}
}
