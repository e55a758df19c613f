package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/convoyapp/convoy-api/internal/domain"
)

// WaypointRepo defines the persistence operations for Waypoints.
type WaypointRepo interface {
	// Append inserts a waypoint at the end of the trip's route.
	// Returns domain.ErrTripFinished if the trip is missing or already finished;
	// appending to a finished trip is never allowed.
	Append(ctx context.Context, wp domain.Waypoint) (domain.Waypoint, error)

	// ListByTrip returns all waypoints for a trip in route order.
	ListByTrip(ctx context.Context, tripID uuid.UUID) ([]domain.Waypoint, error)
}

// pgWaypointRepo is the Postgres implementation of WaypointRepo.
type pgWaypointRepo struct {
	db db
}

// NewWaypointRepo constructs a WaypointRepo backed by the provided db connection.
// In production pass *pgxpool.Pool; pass a pgx.Tx to join an enclosing
// transaction (the proposal resolution write does this).
func NewWaypointRepo(db db) WaypointRepo {
	return &pgWaypointRepo{db: db}
}

// Append inserts the waypoint with the next position for its trip.
// The INSERT selects from trips so the not-finished guard and the position
// computation happen in one statement.
func (r *pgWaypointRepo) Append(ctx context.Context, wp domain.Waypoint) (domain.Waypoint, error) {
	const q = `
		INSERT INTO waypoints (trip_id, kind, name, latitude, longitude, added_by, position)
		SELECT t.id, @kind, @name, @latitude, @longitude, @added_by,
		       COALESCE((SELECT max(w.position) + 1 FROM waypoints w WHERE w.trip_id = t.id), 0)
		FROM trips t
		WHERE t.id = @trip_id AND t.status <> @finished
		RETURNING id, trip_id, kind, name, latitude, longitude, added_by, position, created_at`

	args := pgx.NamedArgs{
		"trip_id":   wp.TripID,
		"kind":      int(wp.Kind),
		"name":      wp.Name,
		"latitude":  wp.Latitude,
		"longitude": wp.Longitude,
		"added_by":  wp.AddedBy,
		"finished":  int(domain.TripFinished),
	}

	result, err := scanWaypoint(r.db.QueryRow(ctx, q, args))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Waypoint{}, fmt.Errorf("repo.WaypointRepo.Append: %w", domain.ErrTripFinished)
		}
		return domain.Waypoint{}, fmt.Errorf("repo.WaypointRepo.Append: %w", err)
	}
	return result, nil
}

// ListByTrip returns the trip's waypoints ordered by position.
func (r *pgWaypointRepo) ListByTrip(ctx context.Context, tripID uuid.UUID) ([]domain.Waypoint, error) {
	const q = `
		SELECT id, trip_id, kind, name, latitude, longitude, added_by, position, created_at
		FROM waypoints
		WHERE trip_id = @trip_id
		ORDER BY position`

	rows, err := r.db.Query(ctx, q, pgx.NamedArgs{"trip_id": tripID})
	if err != nil {
		return nil, fmt.Errorf("repo.WaypointRepo.ListByTrip: %w", err)
	}
	defer rows.Close()

	var waypoints []domain.Waypoint
	for rows.Next() {
		wp, err := scanWaypoint(rows)
		if err != nil {
			return nil, fmt.Errorf("repo.WaypointRepo.ListByTrip: scan: %w", err)
		}
		waypoints = append(waypoints, wp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repo.WaypointRepo.ListByTrip: rows: %w", err)
	}

	return waypoints, nil
}

// scanWaypoint maps a single database row into a domain.Waypoint.
func scanWaypoint(s scanner) (domain.Waypoint, error) {
	var (
		wp      domain.Waypoint
		id      pgtype.UUID
		tripID  pgtype.UUID
		kind    int
		addedBy pgtype.UUID
	)

	err := s.Scan(&id, &tripID, &kind, &wp.Name, &wp.Latitude, &wp.Longitude, &addedBy, &wp.Position, &wp.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Waypoint{}, domain.ErrNotFound
		}
		return domain.Waypoint{}, err
	}

	wp.ID = uuid.UUID(id.Bytes)
	wp.TripID = uuid.UUID(tripID.Bytes)
	wp.Kind = domain.WaypointKind(kind)
	wp.AddedBy = uuid.UUID(addedBy.Bytes)

	return wp, nil
}
