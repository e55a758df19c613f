package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// VotingWindow is how long a stop proposal stays open for votes before the
// expiry sweep resolves it. Fixed by product design, not configurable.
const VotingWindow = 30 * time.Second

// StopType enumerates the reasons a member may propose a stop.
// Stored and serialized as an integer code.
type StopType int

const (
	StopFuel StopType = iota
	StopBreak
	StopFood
	StopPhoto
	StopSightseeing
)

// String returns the lowercase name of the stop type, or "unknown".
func (t StopType) String() string {
	switch t {
	case StopFuel:
		return "fuel"
	case StopBreak:
		return "break"
	case StopFood:
		return "food"
	case StopPhoto:
		return "photo"
	case StopSightseeing:
		return "sightseeing"
	}
	return "unknown"
}

// Valid reports whether t is one of the defined stop types.
func (t StopType) Valid() bool {
	return t >= StopFuel && t <= StopSightseeing
}

// ProposalStatus is the lifecycle state of a stop proposal.
// Transitions are one-way: Pending → Accepted or Pending → Rejected, exactly
// once. Stored and serialized as an integer code.
type ProposalStatus int

const (
	ProposalPending ProposalStatus = iota
	ProposalAccepted
	ProposalRejected
)

// String returns the lowercase name of the status, or "unknown".
func (s ProposalStatus) String() string {
	switch s {
	case ProposalPending:
		return "pending"
	case ProposalAccepted:
		return "accepted"
	case ProposalRejected:
		return "rejected"
	}
	return "unknown"
}

// Vote is one member's yes/no decision on a proposal.
// Votes are immutable once cast and unique per (proposal, user) — the repo
// layer backs this with a database unique constraint.
type Vote struct {
	ID          uuid.UUID `json:"id"`
	ProposalID  uuid.UUID `json:"proposal_id"`
	UserID      uuid.UUID `json:"user_id"`
	DisplayName string    `json:"display_name,omitempty"`
	Approve     bool      `json:"approve"`
	CastAt      time.Time `json:"cast_at"`
}

// StopProposal is a member-initiated suggestion to add a stopover to an
// active trip, decided by the convoy under the silence-accepts rule: the
// proposal is rejected only if a strict majority of the entire membership
// votes no; members who never vote count as implicit consent.
//
// The aggregate enforces lifecycle rules in memory (pending-only votes,
// terminal resolution, accepted-only waypoint linkage). Under concurrent
// writers those checks are necessary but not sufficient — the repo's
// conditional resolution write is the real arbiter (see repo.ProposalRepo).
type StopProposal struct {
	ID           uuid.UUID      `json:"id"`
	TripID       uuid.UUID      `json:"trip_id"`
	ProposerID   uuid.UUID      `json:"proposer_id"`
	Type         StopType       `json:"type"`
	Latitude     float64        `json:"latitude"`
	Longitude    float64        `json:"longitude"`
	LocationName string         `json:"location_name"`
	Status       ProposalStatus `json:"status"`
	CreatedAt    time.Time      `json:"created_at"`
	ExpiresAt    time.Time      `json:"expires_at"`
	ResolvedAt   *time.Time     `json:"resolved_at,omitempty"`
	WaypointID   *uuid.UUID     `json:"waypoint_id,omitempty"` // set only once, on acceptance
	Votes        []Vote         `json:"votes"`
}

// NewStopProposal validates inputs and returns a pending proposal with an
// empty vote set, expiring one VotingWindow after now. It is the only way to
// construct a proposal outside the repo layer; a zero StopProposal is never a
// valid aggregate.
func NewStopProposal(tripID, proposerID uuid.UUID, stopType StopType, lat, lon float64, locationName string, now time.Time) (StopProposal, error) {
	if tripID == uuid.Nil {
		return StopProposal{}, fmt.Errorf("%w: trip id is required", ErrValidation)
	}
	if proposerID == uuid.Nil {
		return StopProposal{}, fmt.Errorf("%w: proposer id is required", ErrValidation)
	}
	if !stopType.Valid() {
		return StopProposal{}, fmt.Errorf("%w: unknown stop type %d", ErrValidation, stopType)
	}
	if strings.TrimSpace(locationName) == "" {
		return StopProposal{}, fmt.Errorf("%w: location name is required", ErrValidation)
	}
	if lat < -90 || lat > 90 {
		return StopProposal{}, fmt.Errorf("%w: latitude must be between -90 and 90", ErrValidation)
	}
	if lon < -180 || lon > 180 {
		return StopProposal{}, fmt.Errorf("%w: longitude must be between -180 and 180", ErrValidation)
	}

	return StopProposal{
		ID:           uuid.New(),
		TripID:       tripID,
		ProposerID:   proposerID,
		Type:         stopType,
		Latitude:     lat,
		Longitude:    lon,
		LocationName: strings.TrimSpace(locationName),
		Status:       ProposalPending,
		CreatedAt:    now,
		ExpiresAt:    now.Add(VotingWindow),
	}, nil
}

// CastVote appends userID's vote. It fails if the proposal is no longer
// pending or the user already voted. Quorum checking and resolution are the
// caller's responsibility.
func (p *StopProposal) CastVote(userID uuid.UUID, approve bool, now time.Time) (Vote, error) {
	if p.Status != ProposalPending {
		return Vote{}, ErrProposalNotPending
	}
	for _, v := range p.Votes {
		if v.UserID == userID {
			return Vote{}, ErrAlreadyVoted
		}
	}

	vote := Vote{
		ID:         uuid.New(),
		ProposalID: p.ID,
		UserID:     userID,
		Approve:    approve,
		CastAt:     now,
	}
	p.Votes = append(p.Votes, vote)
	return vote, nil
}

// AllMembersVoted reports whether every current convoy member has voted.
// This is the early-resolution trigger: once true, the caller resolves
// immediately instead of waiting for the expiry sweep.
func (p *StopProposal) AllMembersVoted(totalMembers int) bool {
	return len(p.Votes) >= totalMembers
}

// YesCount returns the number of approving votes.
func (p *StopProposal) YesCount() int {
	n := 0
	for _, v := range p.Votes {
		if v.Approve {
			n++
		}
	}
	return n
}

// NoCount returns the number of rejecting votes.
func (p *StopProposal) NoCount() int {
	return len(p.Votes) - p.YesCount()
}

// Expired reports whether the voting window has elapsed at the given instant.
func (p *StopProposal) Expired(now time.Time) bool {
	return !now.Before(p.ExpiresAt)
}

// Resolve applies the silence-accepts rule and moves the proposal to its
// terminal status: Rejected iff the no-votes form a strict majority of the
// entire membership (real division, so totalMembers=4 needs 3 no-votes;
// 2 > 2.0 is false), Accepted otherwise. Members who never voted count as
// consent. Calling Resolve on a non-pending proposal fails and changes
// nothing; resolution is not re-entrant.
func (p *StopProposal) Resolve(totalMembers int, now time.Time) error {
	if p.Status != ProposalPending {
		return ErrProposalNotPending
	}

	if float64(p.NoCount()) > float64(totalMembers)/2 {
		p.Status = ProposalRejected
	} else {
		p.Status = ProposalAccepted
	}
	resolved := now
	p.ResolvedAt = &resolved
	return nil
}

// SetCreatedWaypoint links the waypoint created from an accepted proposal.
// It fails unless the proposal is Accepted. Callers must ensure it is set at
// most once; the conditional resolution write in the repo guarantees only one
// resolution path ever reaches this point.
func (p *StopProposal) SetCreatedWaypoint(waypointID uuid.UUID) error {
	if p.Status != ProposalAccepted {
		return ErrWaypointNotAccepted
	}
	if waypointID == uuid.Nil {
		return fmt.Errorf("%w: waypoint id is required", ErrValidation)
	}
	p.WaypointID = &waypointID
	return nil
}
