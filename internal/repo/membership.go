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

// MembershipRepo answers membership questions for a trip's convoy.
// The voting engine never loads a graph of related aggregates; it asks this
// provider explicitly whenever it needs the member count or a membership check.
type MembershipRepo interface {
	// MemberCount returns the number of members in the trip's convoy.
	// Returns domain.ErrNotFound if the trip does not exist.
	MemberCount(ctx context.Context, tripID uuid.UUID) (int, error)

	// IsMember reports whether userID belongs to the trip's convoy.
	// Returns domain.ErrNotFound if the trip does not exist.
	IsMember(ctx context.Context, tripID, userID uuid.UUID) (bool, error)

	// ListByTrip returns the trip's convoy members ordered by display name.
	ListByTrip(ctx context.Context, tripID uuid.UUID) ([]domain.Member, error)
}

// pgMembershipRepo is the Postgres implementation of MembershipRepo.
type pgMembershipRepo struct {
	db db
}

// NewMembershipRepo constructs a MembershipRepo backed by the provided db connection.
func NewMembershipRepo(db db) MembershipRepo {
	return &pgMembershipRepo{db: db}
}

// MemberCount counts convoy members through the trip join. The trip existence
// probe is part of the same query so a missing trip is distinguishable from an
// empty convoy.
func (r *pgMembershipRepo) MemberCount(ctx context.Context, tripID uuid.UUID) (int, error) {
	const q = `
		SELECT count(m.user_id)
		FROM trips t
		LEFT JOIN convoy_members m ON m.convoy_id = t.convoy_id
		WHERE t.id = @trip_id
		GROUP BY t.id`

	var count int
	err := r.db.QueryRow(ctx, q, pgx.NamedArgs{"trip_id": tripID}).Scan(&count)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, fmt.Errorf("repo.MembershipRepo.MemberCount: %w", domain.ErrNotFound)
		}
		return 0, fmt.Errorf("repo.MembershipRepo.MemberCount: %w", err)
	}
	return count, nil
}

// IsMember probes for a single membership row.
func (r *pgMembershipRepo) IsMember(ctx context.Context, tripID, userID uuid.UUID) (bool, error) {
	const q = `
		SELECT EXISTS (
			SELECT 1
			FROM trips t
			JOIN convoy_members m ON m.convoy_id = t.convoy_id
			WHERE t.id = @trip_id AND m.user_id = @user_id
		)`

	var exists bool
	err := r.db.QueryRow(ctx, q, pgx.NamedArgs{"trip_id": tripID, "user_id": userID}).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("repo.MembershipRepo.IsMember: %w", err)
	}
	return exists, nil
}

// ListByTrip returns all members of the trip's convoy.
func (r *pgMembershipRepo) ListByTrip(ctx context.Context, tripID uuid.UUID) ([]domain.Member, error) {
	const q = `
		SELECT m.convoy_id, m.user_id, m.display_name, m.joined_at
		FROM trips t
		JOIN convoy_members m ON m.convoy_id = t.convoy_id
		WHERE t.id = @trip_id
		ORDER BY m.display_name`

	rows, err := r.db.Query(ctx, q, pgx.NamedArgs{"trip_id": tripID})
	if err != nil {
		return nil, fmt.Errorf("repo.MembershipRepo.ListByTrip: %w", err)
	}
	defer rows.Close()

	var members []domain.Member
	for rows.Next() {
		var (
			m        domain.Member
			convoyID pgtype.UUID
			userID   pgtype.UUID
		)
		if err := rows.Scan(&convoyID, &userID, &m.DisplayName, &m.JoinedAt); err != nil {
			return nil, fmt.Errorf("repo.MembershipRepo.ListByTrip: scan: %w", err)
		}
		m.ConvoyID = uuid.UUID(convoyID.Bytes)
		m.UserID = uuid.UUID(userID.Bytes)
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repo.MembershipRepo.ListByTrip: rows: %w", err)
	}

	return members, nil
}
