// Package repo contains all database access logic for the convoy API.
// Each resource has its own file with an interface and a Postgres implementation.
// No business logic lives here — only SQL and type mapping.
package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/convoyapp/convoy-api/internal/domain"
)

// db is the minimal interface satisfied by *pgxpool.Pool, pgx.Conn, and pgx.Tx.
// Accepting this interface instead of *pgxpool.Pool directly allows integration
// tests to pass a transaction that is rolled back after each test, giving free
// per-test isolation without any manual cleanup.
//
// Begin is included because proposal creation and resolution are multi-statement
// transactions; pgx.Tx implements it via savepoints, so nesting still works.
type db interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// TripRepo defines the persistence operations for Trips and their convoys.
// The service layer depends on this interface, not the concrete Postgres
// implementation, which allows the service to be unit-tested with a mock.
type TripRepo interface {
	// Create inserts a new convoy with the given members and an active trip
	// belonging to it, all in one transaction. Returns the persisted trip.
	Create(ctx context.Context, trip domain.Trip, members []domain.Member) (domain.Trip, error)

	// GetByID retrieves a single trip by its UUID primary key.
	// Returns domain.ErrNotFound if no trip with that ID exists.
	GetByID(ctx context.Context, id uuid.UUID) (domain.Trip, error)

	// List returns all trips ordered by created_at descending.
	List(ctx context.Context) ([]domain.Trip, error)

	// Finish marks a trip finished and stamps ended_at.
	// Returns domain.ErrNotFound if the trip does not exist.
	Finish(ctx context.Context, id uuid.UUID) (domain.Trip, error)
}

// pgTripRepo is the Postgres implementation of TripRepo.
type pgTripRepo struct {
	db db
}

// NewTripRepo constructs a TripRepo backed by the provided db connection.
// In production pass *pgxpool.Pool; in tests pass a pgx.Tx for rollback isolation.
func NewTripRepo(db db) TripRepo {
	return &pgTripRepo{db: db}
}

// Create inserts the convoy, its members, and the trip in one transaction.
func (r *pgTripRepo) Create(ctx context.Context, trip domain.Trip, members []domain.Member) (domain.Trip, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return domain.Trip{}, fmt.Errorf("repo.TripRepo.Create: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	const convoyQ = `
		INSERT INTO convoys (name)
		VALUES (@name)
		RETURNING id`

	var convoyID pgtype.UUID
	if err := tx.QueryRow(ctx, convoyQ, pgx.NamedArgs{"name": trip.Name}).Scan(&convoyID); err != nil {
		return domain.Trip{}, fmt.Errorf("repo.TripRepo.Create: insert convoy: %w", err)
	}

	const memberQ = `
		INSERT INTO convoy_members (convoy_id, user_id, display_name)
		VALUES (@convoy_id, @user_id, @display_name)`

	for _, m := range members {
		args := pgx.NamedArgs{
			"convoy_id":    uuid.UUID(convoyID.Bytes),
			"user_id":      m.UserID,
			"display_name": m.DisplayName,
		}
		if _, err := tx.Exec(ctx, memberQ, args); err != nil {
			return domain.Trip{}, fmt.Errorf("repo.TripRepo.Create: insert member: %w", err)
		}
	}

	const tripQ = `
		INSERT INTO trips (convoy_id, name, status, started_at)
		VALUES (@convoy_id, @name, @status, now())
		RETURNING id, convoy_id, name, status, started_at, ended_at, created_at, updated_at`

	args := pgx.NamedArgs{
		"convoy_id": uuid.UUID(convoyID.Bytes),
		"name":      trip.Name,
		"status":    int(domain.TripActive),
	}

	result, err := scanTrip(tx.QueryRow(ctx, tripQ, args))
	if err != nil {
		return domain.Trip{}, fmt.Errorf("repo.TripRepo.Create: insert trip: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.Trip{}, fmt.Errorf("repo.TripRepo.Create: commit: %w", err)
	}
	return result, nil
}

// GetByID retrieves a trip by primary key.
func (r *pgTripRepo) GetByID(ctx context.Context, id uuid.UUID) (domain.Trip, error) {
	const q = `
		SELECT id, convoy_id, name, status, started_at, ended_at, created_at, updated_at
		FROM trips
		WHERE id = @id`

	row := r.db.QueryRow(ctx, q, pgx.NamedArgs{"id": id})
	result, err := scanTrip(row)
	if err != nil {
		return domain.Trip{}, fmt.Errorf("repo.TripRepo.GetByID: %w", err)
	}
	return result, nil
}

// List returns all trips, most recently created first.
func (r *pgTripRepo) List(ctx context.Context) ([]domain.Trip, error) {
	const q = `
		SELECT id, convoy_id, name, status, started_at, ended_at, created_at, updated_at
		FROM trips
		ORDER BY created_at DESC`

	rows, err := r.db.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("repo.TripRepo.List: %w", err)
	}
	defer rows.Close()

	var trips []domain.Trip
	for rows.Next() {
		t, err := scanTrip(rows)
		if err != nil {
			return nil, fmt.Errorf("repo.TripRepo.List: scan: %w", err)
		}
		trips = append(trips, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repo.TripRepo.List: rows: %w", err)
	}

	return trips, nil
}

// Finish flips the trip to finished and stamps ended_at.
func (r *pgTripRepo) Finish(ctx context.Context, id uuid.UUID) (domain.Trip, error) {
	const q = `
		UPDATE trips
		SET status     = @status,
		    ended_at   = now(),
		    updated_at = now()
		WHERE id = @id
		RETURNING id, convoy_id, name, status, started_at, ended_at, created_at, updated_at`

	row := r.db.QueryRow(ctx, q, pgx.NamedArgs{"id": id, "status": int(domain.TripFinished)})
	result, err := scanTrip(row)
	if err != nil {
		return domain.Trip{}, fmt.Errorf("repo.TripRepo.Finish: %w", err)
	}
	return result, nil
}

// scanner is satisfied by both pgx.Row and pgx.Rows, allowing the scan
// helpers to be reused for both QueryRow and Query calls.
type scanner interface {
	Scan(dest ...any) error
}

// scanTrip maps a single database row into a domain.Trip.
// It handles the UUID and nullable timestamp conversions.
func scanTrip(s scanner) (domain.Trip, error) {
	var (
		t         domain.Trip
		id        pgtype.UUID
		convoyID  pgtype.UUID
		status    int
		startedAt pgtype.Timestamptz
		endedAt   pgtype.Timestamptz
	)

	err := s.Scan(&id, &convoyID, &t.Name, &status, &startedAt, &endedAt, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Trip{}, domain.ErrNotFound
		}
		return domain.Trip{}, err
	}

	t.ID = uuid.UUID(id.Bytes)
	t.ConvoyID = uuid.UUID(convoyID.Bytes)
	t.Status = domain.TripStatus(status)
	if startedAt.Valid {
		st := startedAt.Time
		t.StartedAt = &st
	}
	if endedAt.Valid {
		et := endedAt.Time
		t.EndedAt = &et
	}

	return t, nil
}
