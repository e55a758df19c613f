// Package service contains the business logic for the convoy API.
// Services validate inputs, enforce business rules, and orchestrate repo calls.
// No SQL lives here — services depend on repo interfaces, not implementations.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/convoyapp/convoy-api/internal/domain"
	"github.com/convoyapp/convoy-api/internal/notify"
	"github.com/convoyapp/convoy-api/internal/repo"
)

// Notifier delivers proposal lifecycle events. Implementations must be
// non-blocking and must swallow their own failures — notification loss never
// affects the voting engine. *notify.Broadcaster satisfies this.
type Notifier interface {
	Publish(event notify.Event)
}

// ProposalService implements the stop-proposal voting engine: proposing a
// stop, casting votes with quorum-triggered early resolution, and the shared
// resolution routine used by both the vote path and the expiry sweep.
type ProposalService struct {
	trips     repo.TripRepo
	proposals repo.ProposalRepo
	members   repo.MembershipRepo
	notifier  Notifier
	logger    *slog.Logger

	// now is injected so expiry behavior is testable with a fixed clock.
	now func() time.Time
}

// NewProposalService constructs a ProposalService backed by the provided
// repos and notifier.
func NewProposalService(trips repo.TripRepo, proposals repo.ProposalRepo, members repo.MembershipRepo, notifier Notifier, logger *slog.Logger) *ProposalService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ProposalService{
		trips:     trips,
		proposals: proposals,
		members:   members,
		notifier:  notifier,
		logger:    logger,
		now:       time.Now,
	}
}

// WithClock replaces the service's time source. Test use only.
func (s *ProposalService) WithClock(now func() time.Time) *ProposalService {
	s.now = now
	return s
}

// Propose opens a new stop proposal on an active trip. The proposer's
// affirmative vote is cast automatically and counts toward quorum, so a
// one-member convoy reaches quorum the moment the proposal is created and is
// resolved inline before Propose returns.
//
// Fails with domain.ErrNotFound (trip missing), domain.ErrTripFinished,
// domain.ErrUnauthorized (proposer not a member), domain.ErrProposalInProgress
// (the trip already has a pending proposal), or domain.ErrValidation.
func (s *ProposalService) Propose(ctx context.Context, tripID, proposerID uuid.UUID, stopType domain.StopType, lat, lon float64, locationName string) (domain.StopProposal, error) {
	trip, err := s.trips.GetByID(ctx, tripID)
	if err != nil {
		return domain.StopProposal{}, fmt.Errorf("service.ProposalService.Propose: %w", err)
	}
	if trip.Status != domain.TripActive {
		return domain.StopProposal{}, fmt.Errorf("service.ProposalService.Propose: %w", domain.ErrTripFinished)
	}

	isMember, err := s.members.IsMember(ctx, tripID, proposerID)
	if err != nil {
		return domain.StopProposal{}, fmt.Errorf("service.ProposalService.Propose: %w", err)
	}
	if !isMember {
		return domain.StopProposal{}, fmt.Errorf("service.ProposalService.Propose: %w", domain.ErrUnauthorized)
	}

	if _, err := s.proposals.GetPendingByTrip(ctx, tripID); err == nil {
		return domain.StopProposal{}, fmt.Errorf("service.ProposalService.Propose: %w", domain.ErrProposalInProgress)
	} else if !errors.Is(err, domain.ErrNotFound) {
		return domain.StopProposal{}, fmt.Errorf("service.ProposalService.Propose: %w", err)
	}

	now := s.now()
	proposal, err := domain.NewStopProposal(tripID, proposerID, stopType, lat, lon, locationName, now)
	if err != nil {
		return domain.StopProposal{}, err
	}
	if _, err := proposal.CastVote(proposerID, true, now); err != nil {
		return domain.StopProposal{}, fmt.Errorf("service.ProposalService.Propose: self vote: %w", err)
	}

	created, err := s.proposals.Create(ctx, proposal)
	if err != nil {
		return domain.StopProposal{}, fmt.Errorf("service.ProposalService.Propose: %w", err)
	}

	s.notifier.Publish(notify.Proposed(created))

	total, err := s.members.MemberCount(ctx, tripID)
	if err != nil {
		return domain.StopProposal{}, fmt.Errorf("service.ProposalService.Propose: %w", err)
	}
	if created.AllMembersVoted(total) {
		if err := s.resolve(ctx, &created); err != nil {
			return domain.StopProposal{}, fmt.Errorf("service.ProposalService.Propose: %w", err)
		}
	}

	return created, nil
}

// CastVote records one member's decision and, when the vote completes the
// quorum, resolves the proposal inline. This is the event-driven resolution
// trigger; it races the expiry sweep, and the conditional write in the repo
// decides the winner.
//
// Fails with domain.ErrNotFound, domain.ErrUnauthorized,
// domain.ErrProposalNotPending, or domain.ErrAlreadyVoted.
func (s *ProposalService) CastVote(ctx context.Context, proposalID, userID uuid.UUID, approve bool) (domain.StopProposal, error) {
	proposal, err := s.proposals.GetByID(ctx, proposalID)
	if err != nil {
		return domain.StopProposal{}, fmt.Errorf("service.ProposalService.CastVote: %w", err)
	}

	isMember, err := s.members.IsMember(ctx, proposal.TripID, userID)
	if err != nil {
		return domain.StopProposal{}, fmt.Errorf("service.ProposalService.CastVote: %w", err)
	}
	if !isMember {
		return domain.StopProposal{}, fmt.Errorf("service.ProposalService.CastVote: %w", domain.ErrUnauthorized)
	}

	vote, err := proposal.CastVote(userID, approve, s.now())
	if err != nil {
		return domain.StopProposal{}, fmt.Errorf("service.ProposalService.CastVote: %w", err)
	}
	// The aggregate check above races concurrent casts from the same user;
	// the unique constraint behind AddVote is the authoritative guard.
	if _, err := s.proposals.AddVote(ctx, vote); err != nil {
		return domain.StopProposal{}, fmt.Errorf("service.ProposalService.CastVote: %w", err)
	}

	s.notifier.Publish(notify.VoteUpdated(proposal))

	total, err := s.members.MemberCount(ctx, proposal.TripID)
	if err != nil {
		return domain.StopProposal{}, fmt.Errorf("service.ProposalService.CastVote: %w", err)
	}
	if proposal.AllMembersVoted(total) {
		if err := s.resolve(ctx, &proposal); err != nil {
			return domain.StopProposal{}, fmt.Errorf("service.ProposalService.CastVote: %w", err)
		}
	}

	return proposal, nil
}

// GetActive returns the trip's pending proposal.
// Returns domain.ErrNotFound when the trip has none.
func (s *ProposalService) GetActive(ctx context.Context, tripID uuid.UUID) (domain.StopProposal, error) {
	proposal, err := s.proposals.GetPendingByTrip(ctx, tripID)
	if err != nil {
		return domain.StopProposal{}, fmt.Errorf("service.ProposalService.GetActive: %w", err)
	}
	return proposal, nil
}

// History returns one page of the trip's proposals, newest first, and the
// total count. Always returns a non-nil slice so callers can range over it.
func (s *ProposalService) History(ctx context.Context, tripID uuid.UUID, page domain.PaginationParams) ([]domain.StopProposal, int64, error) {
	proposals, total, err := s.proposals.ListByTrip(ctx, tripID, page)
	if err != nil {
		return nil, 0, fmt.Errorf("service.ProposalService.History: %w", err)
	}
	if proposals == nil {
		proposals = []domain.StopProposal{}
	}
	return proposals, total, nil
}

// ResolveExpired resolves every pending proposal whose voting window has
// elapsed. Each candidate is handled in isolation: one proposal's failure is
// logged and does not stop the rest, and a failed proposal is picked up again
// on the next sweep because it is still expired-pending. Returns the number
// of proposals successfully resolved.
func (s *ProposalService) ResolveExpired(ctx context.Context) (int, error) {
	expired, err := s.proposals.ListExpiredPending(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("service.ProposalService.ResolveExpired: %w", err)
	}

	resolved := 0
	for i := range expired {
		if err := s.resolve(ctx, &expired[i]); err != nil {
			s.logger.Error("expired proposal resolution failed",
				"proposal_id", expired[i].ID,
				"trip_id", expired[i].TripID,
				"error", err,
			)
			continue
		}
		resolved++
	}
	return resolved, nil
}

// resolve is the shared resolution routine behind both triggers. It applies
// the silence-accepts rule in memory, then attempts the conditional write;
// on acceptance the stopover waypoint is created and linked inside that same
// write. Losing the race to the other trigger is a benign no-op: no waypoint,
// no notification, nil error. Exactly one caller ever gets past the
// conditional write, so exactly one Resolved event is published and at most
// one waypoint exists per proposal.
func (s *ProposalService) resolve(ctx context.Context, p *domain.StopProposal) error {
	total, err := s.members.MemberCount(ctx, p.TripID)
	if err != nil {
		return fmt.Errorf("resolve: %w", err)
	}

	if err := p.Resolve(total, s.now()); err != nil {
		return fmt.Errorf("resolve: %w", err)
	}

	var wp *domain.Waypoint
	if p.Status == domain.ProposalAccepted {
		wp = &domain.Waypoint{
			TripID:    p.TripID,
			Kind:      domain.WaypointStopover,
			Name:      p.LocationName,
			Latitude:  p.Latitude,
			Longitude: p.Longitude,
			AddedBy:   p.ProposerID,
		}
	}

	created, err := s.proposals.SaveResolution(ctx, *p, wp)
	if err != nil {
		if errors.Is(err, domain.ErrResolutionConflict) {
			s.logger.Debug("lost resolution race, already resolved elsewhere",
				"proposal_id", p.ID,
				"trip_id", p.TripID,
			)
			return nil
		}
		return fmt.Errorf("resolve: %w", err)
	}

	if created != nil {
		if err := p.SetCreatedWaypoint(created.ID); err != nil {
			return fmt.Errorf("resolve: %w", err)
		}
	}

	s.notifier.Publish(notify.Resolved(*p))
	return nil
}
