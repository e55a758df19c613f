package service_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/convoyapp/convoy-api/internal/domain"
	"github.com/convoyapp/convoy-api/internal/repo"
	"github.com/convoyapp/convoy-api/internal/service"
)

// mockWaypointRepo is a hand-written test double for repo.WaypointRepo.
type mockWaypointRepo struct {
	appendFn   func(ctx context.Context, wp domain.Waypoint) (domain.Waypoint, error)
	listByTrip func(ctx context.Context, tripID uuid.UUID) ([]domain.Waypoint, error)
}

func (m *mockWaypointRepo) Append(ctx context.Context, wp domain.Waypoint) (domain.Waypoint, error) {
	return m.appendFn(ctx, wp)
}
func (m *mockWaypointRepo) ListByTrip(ctx context.Context, tripID uuid.UUID) ([]domain.Waypoint, error) {
	return m.listByTrip(ctx, tripID)
}

var _ repo.WaypointRepo = (*mockWaypointRepo)(nil)

func roster(n int) []service.MemberInput {
	out := make([]service.MemberInput, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, service.MemberInput{UserID: uuid.New(), DisplayName: "Driver"})
	}
	return out
}

func TestTripCreate_OK(t *testing.T) {
	var gotTrip domain.Trip
	var gotMembers []domain.Member
	trips := &mockTripRepo{create: func(_ context.Context, trip domain.Trip, members []domain.Member) (domain.Trip, error) {
		gotTrip = trip
		gotMembers = members
		trip.ID = uuid.New()
		return trip, nil
	}}
	svc := service.NewTripService(trips, &mockWaypointRepo{}, fixedMembers(2))

	created, err := svc.Create(context.Background(), "  Alps Tour  ", roster(2))

	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, created.ID)
	assert.Equal(t, "Alps Tour", gotTrip.Name, "name is trimmed")
	assert.Equal(t, domain.TripActive, gotTrip.Status)
	assert.Len(t, gotMembers, 2)
}

func TestTripCreate_Validation(t *testing.T) {
	svc := service.NewTripService(&mockTripRepo{}, &mockWaypointRepo{}, fixedMembers(1))
	dup := uuid.New()

	tests := []struct {
		name    string
		trip    string
		members []service.MemberInput
	}{
		{"blank name", "   ", roster(1)},
		{"empty roster", "Alps Tour", nil},
		{"nil member id", "Alps Tour", []service.MemberInput{{UserID: uuid.Nil, DisplayName: "Driver"}}},
		{"blank display name", "Alps Tour", []service.MemberInput{{UserID: uuid.New(), DisplayName: " "}}},
		{"duplicate member", "Alps Tour", []service.MemberInput{
			{UserID: dup, DisplayName: "Driver"},
			{UserID: dup, DisplayName: "Navigator"},
		}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Create(context.Background(), tc.trip, tc.members)
			assert.ErrorIs(t, err, domain.ErrValidation)
		})
	}
}

func TestTripFinish_OK(t *testing.T) {
	tripID, userID := uuid.New(), uuid.New()
	trips := &mockTripRepo{
		getByID: func(_ context.Context, id uuid.UUID) (domain.Trip, error) {
			return activeTrip(id), nil
		},
		finish: func(_ context.Context, id uuid.UUID) (domain.Trip, error) {
			trip := activeTrip(id)
			trip.Status = domain.TripFinished
			return trip, nil
		},
	}
	svc := service.NewTripService(trips, &mockWaypointRepo{}, fixedMembers(2))

	finished, err := svc.Finish(context.Background(), tripID, userID)

	require.NoError(t, err)
	assert.Equal(t, domain.TripFinished, finished.Status)
}

func TestTripFinish_AlreadyFinished(t *testing.T) {
	trips := &mockTripRepo{getByID: func(_ context.Context, id uuid.UUID) (domain.Trip, error) {
		trip := activeTrip(id)
		trip.Status = domain.TripFinished
		return trip, nil
	}}
	svc := service.NewTripService(trips, &mockWaypointRepo{}, fixedMembers(2))

	_, err := svc.Finish(context.Background(), uuid.New(), uuid.New())

	assert.ErrorIs(t, err, domain.ErrTripFinished)
}

func TestTripFinish_NotAMember(t *testing.T) {
	trips := &mockTripRepo{getByID: func(_ context.Context, id uuid.UUID) (domain.Trip, error) {
		return activeTrip(id), nil
	}}
	members := fixedMembers(2)
	members.isMember = func(context.Context, uuid.UUID, uuid.UUID) (bool, error) { return false, nil }
	svc := service.NewTripService(trips, &mockWaypointRepo{}, members)

	_, err := svc.Finish(context.Background(), uuid.New(), uuid.New())

	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestTripFinish_NotFound(t *testing.T) {
	trips := &mockTripRepo{getByID: func(context.Context, uuid.UUID) (domain.Trip, error) {
		return domain.Trip{}, domain.ErrNotFound
	}}
	svc := service.NewTripService(trips, &mockWaypointRepo{}, fixedMembers(2))

	_, err := svc.Finish(context.Background(), uuid.New(), uuid.New())

	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestTripList_EmptyIsNonNil(t *testing.T) {
	trips := &mockTripRepo{list: func(context.Context) ([]domain.Trip, error) { return nil, nil }}
	svc := service.NewTripService(trips, &mockWaypointRepo{}, fixedMembers(2))

	got, err := svc.List(context.Background())

	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestTripWaypoints_OK(t *testing.T) {
	tripID := uuid.New()
	waypoints := &mockWaypointRepo{listByTrip: func(_ context.Context, id uuid.UUID) ([]domain.Waypoint, error) {
		return []domain.Waypoint{
			{ID: uuid.New(), TripID: id, Kind: domain.WaypointStart, Name: "Munich", Position: 0},
			{ID: uuid.New(), TripID: id, Kind: domain.WaypointStopover, Name: "Garmisch", Position: 1},
		}, nil
	}}
	trips := &mockTripRepo{getByID: func(_ context.Context, id uuid.UUID) (domain.Trip, error) {
		return activeTrip(id), nil
	}}
	svc := service.NewTripService(trips, waypoints, fixedMembers(2))

	got, err := svc.Waypoints(context.Background(), tripID)

	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Munich", got[0].Name)
}

func TestTripWaypoints_TripNotFound(t *testing.T) {
	trips := &mockTripRepo{getByID: func(context.Context, uuid.UUID) (domain.Trip, error) {
		return domain.Trip{}, domain.ErrNotFound
	}}
	svc := service.NewTripService(trips, &mockWaypointRepo{}, fixedMembers(2))

	_, err := svc.Waypoints(context.Background(), uuid.New())

	assert.ErrorIs(t, err, domain.ErrNotFound)
}
