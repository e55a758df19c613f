package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/convoyapp/convoy-api/internal/domain"
)

// uniqueViolation is the Postgres error code for a unique constraint breach.
// A breach of stop_votes_proposal_user_key means a concurrent duplicate vote.
const uniqueViolation = "23505"

// ProposalRepo defines the persistence operations for StopProposals and
// their votes. It is the concurrency arbiter for the voting engine: vote
// uniqueness is backed by a unique constraint, and resolution is a
// compare-and-set write that only one caller can win.
type ProposalRepo interface {
	// Create inserts a new proposal together with its initial votes (the
	// proposer's auto yes-vote) in one transaction.
	Create(ctx context.Context, p domain.StopProposal) (domain.StopProposal, error)

	// GetByID retrieves a proposal with its full vote list.
	// Returns domain.ErrNotFound if no proposal with that ID exists.
	GetByID(ctx context.Context, id uuid.UUID) (domain.StopProposal, error)

	// GetPendingByTrip returns the trip's single pending proposal, if any.
	// Returns domain.ErrNotFound when the trip has no pending proposal.
	GetPendingByTrip(ctx context.Context, tripID uuid.UUID) (domain.StopProposal, error)

	// ListByTrip returns a page of the trip's proposals, newest first, with
	// votes populated, plus the total proposal count for the trip.
	ListByTrip(ctx context.Context, tripID uuid.UUID, page domain.PaginationParams) ([]domain.StopProposal, int64, error)

	// ListExpiredPending returns every pending proposal whose voting window
	// has elapsed at the given instant. Used by the expiry sweep.
	ListExpiredPending(ctx context.Context, now time.Time) ([]domain.StopProposal, error)

	// AddVote persists one vote. Returns domain.ErrAlreadyVoted if the user
	// already has a vote on the proposal (unique constraint), letting two
	// concurrent casts from the same user collapse to one.
	AddVote(ctx context.Context, vote domain.Vote) (domain.Vote, error)

	// SaveResolution persists a resolved proposal with a conditional write:
	// the status flip only succeeds if the stored row is still pending. When
	// the proposal was accepted, pass the waypoint to create; it is inserted
	// and linked in the same transaction, so a lost race creates nothing.
	// Returns domain.ErrResolutionConflict if another path resolved first.
	SaveResolution(ctx context.Context, p domain.StopProposal, wp *domain.Waypoint) (*domain.Waypoint, error)
}

// pgProposalRepo is the Postgres implementation of ProposalRepo.
type pgProposalRepo struct {
	db db
}

// NewProposalRepo constructs a ProposalRepo backed by the provided db connection.
// In production pass *pgxpool.Pool; in tests pass a pgx.Tx for rollback isolation.
func NewProposalRepo(db db) ProposalRepo {
	return &pgProposalRepo{db: db}
}

const proposalColumns = `id, trip_id, proposer_id, stop_type, latitude, longitude,
		location_name, status, created_at, expires_at, resolved_at, waypoint_id`

// Create inserts the proposal row and its initial votes in one transaction.
// IDs and timestamps come from the aggregate, not the database, so the stored
// expiry matches the window the constructor computed.
func (r *pgProposalRepo) Create(ctx context.Context, p domain.StopProposal) (domain.StopProposal, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return domain.StopProposal{}, fmt.Errorf("repo.ProposalRepo.Create: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	const q = `
		INSERT INTO stop_proposals
			(id, trip_id, proposer_id, stop_type, latitude, longitude, location_name, status, created_at, expires_at)
		VALUES
			(@id, @trip_id, @proposer_id, @stop_type, @latitude, @longitude, @location_name, @status, @created_at, @expires_at)`

	args := pgx.NamedArgs{
		"id":            p.ID,
		"trip_id":       p.TripID,
		"proposer_id":   p.ProposerID,
		"stop_type":     int(p.Type),
		"latitude":      p.Latitude,
		"longitude":     p.Longitude,
		"location_name": p.LocationName,
		"status":        int(p.Status),
		"created_at":    p.CreatedAt,
		"expires_at":    p.ExpiresAt,
	}

	if _, err := tx.Exec(ctx, q, args); err != nil {
		return domain.StopProposal{}, fmt.Errorf("repo.ProposalRepo.Create: insert proposal: %w", err)
	}

	for _, v := range p.Votes {
		if err := insertVote(ctx, tx, v); err != nil {
			return domain.StopProposal{}, fmt.Errorf("repo.ProposalRepo.Create: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.StopProposal{}, fmt.Errorf("repo.ProposalRepo.Create: commit: %w", err)
	}

	return r.GetByID(ctx, p.ID)
}

// GetByID retrieves a proposal by primary key, votes included.
func (r *pgProposalRepo) GetByID(ctx context.Context, id uuid.UUID) (domain.StopProposal, error) {
	q := `SELECT ` + proposalColumns + ` FROM stop_proposals WHERE id = @id`

	row := r.db.QueryRow(ctx, q, pgx.NamedArgs{"id": id})
	p, err := scanProposal(row)
	if err != nil {
		return domain.StopProposal{}, fmt.Errorf("repo.ProposalRepo.GetByID: %w", err)
	}

	if err := r.attachVotes(ctx, []*domain.StopProposal{&p}); err != nil {
		return domain.StopProposal{}, fmt.Errorf("repo.ProposalRepo.GetByID: %w", err)
	}
	return p, nil
}

// GetPendingByTrip returns the single open proposal for a trip.
// The one-pending-per-trip invariant is enforced by the propose use case;
// LIMIT 1 is belt and braces against historic bad data.
func (r *pgProposalRepo) GetPendingByTrip(ctx context.Context, tripID uuid.UUID) (domain.StopProposal, error) {
	q := `SELECT ` + proposalColumns + `
		FROM stop_proposals
		WHERE trip_id = @trip_id AND status = @pending
		ORDER BY created_at DESC
		LIMIT 1`

	row := r.db.QueryRow(ctx, q, pgx.NamedArgs{"trip_id": tripID, "pending": int(domain.ProposalPending)})
	p, err := scanProposal(row)
	if err != nil {
		return domain.StopProposal{}, fmt.Errorf("repo.ProposalRepo.GetPendingByTrip: %w", err)
	}

	if err := r.attachVotes(ctx, []*domain.StopProposal{&p}); err != nil {
		return domain.StopProposal{}, fmt.Errorf("repo.ProposalRepo.GetPendingByTrip: %w", err)
	}
	return p, nil
}

// ListByTrip returns one page of the trip's proposal history, newest first.
func (r *pgProposalRepo) ListByTrip(ctx context.Context, tripID uuid.UUID, page domain.PaginationParams) ([]domain.StopProposal, int64, error) {
	q := `SELECT ` + proposalColumns + `
		FROM stop_proposals
		WHERE trip_id = @trip_id
		ORDER BY created_at DESC
		LIMIT @limit OFFSET @offset`

	args := pgx.NamedArgs{
		"trip_id": tripID,
		"limit":   page.Limit,
		"offset":  page.Offset(),
	}

	rows, err := r.db.Query(ctx, q, args)
	if err != nil {
		return nil, 0, fmt.Errorf("repo.ProposalRepo.ListByTrip: %w", err)
	}
	proposals, err := collectProposals(rows)
	if err != nil {
		return nil, 0, fmt.Errorf("repo.ProposalRepo.ListByTrip: %w", err)
	}

	refs := make([]*domain.StopProposal, len(proposals))
	for i := range proposals {
		refs[i] = &proposals[i]
	}
	if err := r.attachVotes(ctx, refs); err != nil {
		return nil, 0, fmt.Errorf("repo.ProposalRepo.ListByTrip: %w", err)
	}

	const countQ = `SELECT count(*) FROM stop_proposals WHERE trip_id = @trip_id`
	var total int64
	if err := r.db.QueryRow(ctx, countQ, pgx.NamedArgs{"trip_id": tripID}).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("repo.ProposalRepo.ListByTrip: count: %w", err)
	}

	return proposals, total, nil
}

// ListExpiredPending returns pending proposals whose window elapsed at now.
func (r *pgProposalRepo) ListExpiredPending(ctx context.Context, now time.Time) ([]domain.StopProposal, error) {
	q := `SELECT ` + proposalColumns + `
		FROM stop_proposals
		WHERE status = @pending AND expires_at <= @now
		ORDER BY expires_at`

	rows, err := r.db.Query(ctx, q, pgx.NamedArgs{"pending": int(domain.ProposalPending), "now": now})
	if err != nil {
		return nil, fmt.Errorf("repo.ProposalRepo.ListExpiredPending: %w", err)
	}
	proposals, err := collectProposals(rows)
	if err != nil {
		return nil, fmt.Errorf("repo.ProposalRepo.ListExpiredPending: %w", err)
	}

	refs := make([]*domain.StopProposal, len(proposals))
	for i := range proposals {
		refs[i] = &proposals[i]
	}
	if err := r.attachVotes(ctx, refs); err != nil {
		return nil, fmt.Errorf("repo.ProposalRepo.ListExpiredPending: %w", err)
	}

	return proposals, nil
}

// AddVote inserts one vote row. A unique-constraint breach maps to
// domain.ErrAlreadyVoted so concurrent duplicate casts surface as the same
// error the aggregate raises.
func (r *pgProposalRepo) AddVote(ctx context.Context, vote domain.Vote) (domain.Vote, error) {
	if err := insertVote(ctx, r.db, vote); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return domain.Vote{}, fmt.Errorf("repo.ProposalRepo.AddVote: %w", domain.ErrAlreadyVoted)
		}
		return domain.Vote{}, fmt.Errorf("repo.ProposalRepo.AddVote: %w", err)
	}
	return vote, nil
}

// SaveResolution is the exactly-once gate for the resolution race.
// The status flip is conditional on the stored row still being pending; the
// waypoint insert and link ride in the same transaction, so the losing path
// leaves no trace at all.
func (r *pgProposalRepo) SaveResolution(ctx context.Context, p domain.StopProposal, wp *domain.Waypoint) (*domain.Waypoint, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("repo.ProposalRepo.SaveResolution: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	const q = `
		UPDATE stop_proposals
		SET status      = @status,
		    resolved_at = @resolved_at
		WHERE id = @id AND status = @pending`

	args := pgx.NamedArgs{
		"id":          p.ID,
		"status":      int(p.Status),
		"resolved_at": p.ResolvedAt,
		"pending":     int(domain.ProposalPending),
	}

	tag, err := tx.Exec(ctx, q, args)
	if err != nil {
		return nil, fmt.Errorf("repo.ProposalRepo.SaveResolution: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, fmt.Errorf("repo.ProposalRepo.SaveResolution: %w", domain.ErrResolutionConflict)
	}

	var created *domain.Waypoint
	if wp != nil {
		result, err := NewWaypointRepo(tx).Append(ctx, *wp)
		if err != nil {
			return nil, fmt.Errorf("repo.ProposalRepo.SaveResolution: %w", err)
		}

		const linkQ = `UPDATE stop_proposals SET waypoint_id = @waypoint_id WHERE id = @id`
		if _, err := tx.Exec(ctx, linkQ, pgx.NamedArgs{"waypoint_id": result.ID, "id": p.ID}); err != nil {
			return nil, fmt.Errorf("repo.ProposalRepo.SaveResolution: link waypoint: %w", err)
		}
		created = &result
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("repo.ProposalRepo.SaveResolution: commit: %w", err)
	}
	return created, nil
}

// insertVote writes a single vote row on the given executor (pool or tx).
func insertVote(ctx context.Context, db db, v domain.Vote) error {
	const q = `
		INSERT INTO stop_votes (id, proposal_id, user_id, approve, cast_at)
		VALUES (@id, @proposal_id, @user_id, @approve, @cast_at)`

	args := pgx.NamedArgs{
		"id":          v.ID,
		"proposal_id": v.ProposalID,
		"user_id":     v.UserID,
		"approve":     v.Approve,
		"cast_at":     v.CastAt,
	}

	if _, err := db.Exec(ctx, q, args); err != nil {
		return fmt.Errorf("insert vote: %w", err)
	}
	return nil
}

// attachVotes loads the votes for every proposal in one query and distributes
// them. Display names are joined from the convoy membership so snapshots can
// be rendered without extra lookups.
func (r *pgProposalRepo) attachVotes(ctx context.Context, proposals []*domain.StopProposal) error {
	if len(proposals) == 0 {
		return nil
	}

	ids := make([]uuid.UUID, len(proposals))
	byID := make(map[uuid.UUID]*domain.StopProposal, len(proposals))
	for i, p := range proposals {
		ids[i] = p.ID
		byID[p.ID] = p
		p.Votes = nil
	}

	const q = `
		SELECT v.id, v.proposal_id, v.user_id, COALESCE(m.display_name, ''), v.approve, v.cast_at
		FROM stop_votes v
		JOIN stop_proposals p ON p.id = v.proposal_id
		JOIN trips t ON t.id = p.trip_id
		LEFT JOIN convoy_members m ON m.convoy_id = t.convoy_id AND m.user_id = v.user_id
		WHERE v.proposal_id = ANY(@proposal_ids)
		ORDER BY v.cast_at`

	rows, err := r.db.Query(ctx, q, pgx.NamedArgs{"proposal_ids": ids})
	if err != nil {
		return fmt.Errorf("load votes: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			v          domain.Vote
			id         pgtype.UUID
			proposalID pgtype.UUID
			userID     pgtype.UUID
		)
		if err := rows.Scan(&id, &proposalID, &userID, &v.DisplayName, &v.Approve, &v.CastAt); err != nil {
			return fmt.Errorf("load votes: scan: %w", err)
		}
		v.ID = uuid.UUID(id.Bytes)
		v.ProposalID = uuid.UUID(proposalID.Bytes)
		v.UserID = uuid.UUID(userID.Bytes)

		if p, ok := byID[v.ProposalID]; ok {
			p.Votes = append(p.Votes, v)
		}
	}
	return rows.Err()
}

// scanProposal maps a single database row into a domain.StopProposal.
// Votes are attached separately.
func scanProposal(s scanner) (domain.StopProposal, error) {
	var (
		p          domain.StopProposal
		id         pgtype.UUID
		tripID     pgtype.UUID
		proposerID pgtype.UUID
		stopType   int
		status     int
		resolvedAt pgtype.Timestamptz
		waypointID pgtype.UUID
	)

	err := s.Scan(&id, &tripID, &proposerID, &stopType, &p.Latitude, &p.Longitude,
		&p.LocationName, &status, &p.CreatedAt, &p.ExpiresAt, &resolvedAt, &waypointID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.StopProposal{}, domain.ErrNotFound
		}
		return domain.StopProposal{}, err
	}

	p.ID = uuid.UUID(id.Bytes)
	p.TripID = uuid.UUID(tripID.Bytes)
	p.ProposerID = uuid.UUID(proposerID.Bytes)
	p.Type = domain.StopType(stopType)
	p.Status = domain.ProposalStatus(status)
	if resolvedAt.Valid {
		rt := resolvedAt.Time
		p.ResolvedAt = &rt
	}
	if waypointID.Valid {
		wid := uuid.UUID(waypointID.Bytes)
		p.WaypointID = &wid
	}

	return p, nil
}

// collectProposals drains rows into a slice, closing them when done.
func collectProposals(rows pgx.Rows) ([]domain.StopProposal, error) {
	defer rows.Close()

	var proposals []domain.StopProposal
	for rows.Next() {
		p, err := scanProposal(rows)
		if err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		proposals = append(proposals, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return proposals, nil
}
