package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/convoyapp/convoy-api/internal/domain"
	"github.com/convoyapp/convoy-api/internal/repo"
)

// MemberInput is one convoy member supplied at trip creation.
type MemberInput struct {
	UserID      uuid.UUID
	DisplayName string
}

// TripService implements business logic for Trip operations. It holds the
// waypoint and membership repos as well because a trip's route and roster are
// read through the trip surface.
type TripService struct {
	trips     repo.TripRepo
	waypoints repo.WaypointRepo
	members   repo.MembershipRepo
}

// NewTripService constructs a TripService backed by the provided repos.
func NewTripService(trips repo.TripRepo, waypoints repo.WaypointRepo, members repo.MembershipRepo) *TripService {
	return &TripService{trips: trips, waypoints: waypoints, members: members}
}

// Create validates and persists a new trip with its convoy roster.
// The trip starts in the active state. Returns domain.ErrValidation if the
// name is blank, the roster is empty, or any member is incomplete.
func (s *TripService) Create(ctx context.Context, name string, members []MemberInput) (domain.Trip, error) {
	if strings.TrimSpace(name) == "" {
		return domain.Trip{}, fmt.Errorf("%w: name is required", domain.ErrValidation)
	}
	if len(members) == 0 {
		return domain.Trip{}, fmt.Errorf("%w: at least one convoy member is required", domain.ErrValidation)
	}

	roster := make([]domain.Member, 0, len(members))
	seen := make(map[uuid.UUID]bool, len(members))
	for _, m := range members {
		if m.UserID == uuid.Nil {
			return domain.Trip{}, fmt.Errorf("%w: member user id is required", domain.ErrValidation)
		}
		if strings.TrimSpace(m.DisplayName) == "" {
			return domain.Trip{}, fmt.Errorf("%w: member display name is required", domain.ErrValidation)
		}
		if seen[m.UserID] {
			return domain.Trip{}, fmt.Errorf("%w: duplicate member %s", domain.ErrValidation, m.UserID)
		}
		seen[m.UserID] = true
		roster = append(roster, domain.Member{
			UserID:      m.UserID,
			DisplayName: strings.TrimSpace(m.DisplayName),
		})
	}

	trip := domain.Trip{Name: strings.TrimSpace(name), Status: domain.TripActive}
	result, err := s.trips.Create(ctx, trip, roster)
	if err != nil {
		return domain.Trip{}, fmt.Errorf("service.TripService.Create: %w", err)
	}
	return result, nil
}

// GetByID returns a single trip by ID.
// Returns domain.ErrNotFound if no trip with that ID exists.
func (s *TripService) GetByID(ctx context.Context, id uuid.UUID) (domain.Trip, error) {
	result, err := s.trips.GetByID(ctx, id)
	if err != nil {
		return domain.Trip{}, fmt.Errorf("service.TripService.GetByID: %w", err)
	}
	return result, nil
}

// List returns all trips, most recently created first.
// Always returns a non-nil slice so callers can safely range over it.
func (s *TripService) List(ctx context.Context) ([]domain.Trip, error) {
	trips, err := s.trips.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("service.TripService.List: %w", err)
	}
	if trips == nil {
		return []domain.Trip{}, nil
	}
	return trips, nil
}

// Finish ends an active trip. Only convoy members may finish a trip.
// Returns domain.ErrNotFound, domain.ErrUnauthorized, or domain.ErrTripFinished
// when the trip has already ended.
func (s *TripService) Finish(ctx context.Context, id, userID uuid.UUID) (domain.Trip, error) {
	trip, err := s.trips.GetByID(ctx, id)
	if err != nil {
		return domain.Trip{}, fmt.Errorf("service.TripService.Finish: %w", err)
	}
	if trip.Status == domain.TripFinished {
		return domain.Trip{}, fmt.Errorf("service.TripService.Finish: %w", domain.ErrTripFinished)
	}

	isMember, err := s.members.IsMember(ctx, id, userID)
	if err != nil {
		return domain.Trip{}, fmt.Errorf("service.TripService.Finish: %w", err)
	}
	if !isMember {
		return domain.Trip{}, fmt.Errorf("service.TripService.Finish: %w", domain.ErrUnauthorized)
	}

	result, err := s.trips.Finish(ctx, id)
	if err != nil {
		return domain.Trip{}, fmt.Errorf("service.TripService.Finish: %w", err)
	}
	return result, nil
}

// Waypoints returns the trip's route in order.
// Always returns a non-nil slice so callers can safely range over it.
func (s *TripService) Waypoints(ctx context.Context, tripID uuid.UUID) ([]domain.Waypoint, error) {
	if _, err := s.trips.GetByID(ctx, tripID); err != nil {
		return nil, fmt.Errorf("service.TripService.Waypoints: %w", err)
	}
	waypoints, err := s.waypoints.ListByTrip(ctx, tripID)
	if err != nil {
		return nil, fmt.Errorf("service.TripService.Waypoints: %w", err)
	}
	if waypoints == nil {
		return []domain.Waypoint{}, nil
	}
	return waypoints, nil
}
