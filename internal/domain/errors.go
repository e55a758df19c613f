package domain

import "errors"

// ErrNotFound is returned by repo and service functions when the requested
// resource does not exist in the database.
// Handlers should map this to HTTP 404.
var ErrNotFound = errors.New("not found")

// ErrValidation is returned by service and constructor functions when input
// fails business rule validation (e.g. missing location name, latitude out
// of range). Handlers should map this to HTTP 422 Unprocessable Entity.
var ErrValidation = errors.New("validation error")

// ErrUnauthorized is returned when the acting user is not a member of the
// trip's convoy. It is deliberately distinct from ErrNotFound so clients can
// tell "does not exist" apart from "not allowed".
// Handlers should map this to HTTP 403.
var ErrUnauthorized = errors.New("not a convoy member")

// ErrTripFinished is returned when an operation requires an active trip but
// the trip has already been finished.
var ErrTripFinished = errors.New("cannot propose on a finished trip")

// ErrProposalInProgress is returned by Propose when the trip already has a
// pending proposal. At most one proposal may be open per trip at a time.
var ErrProposalInProgress = errors.New("a proposal is already in progress")

// ErrProposalNotPending is returned when a vote or resolution targets a
// proposal that has already been accepted or rejected.
var ErrProposalNotPending = errors.New("proposal not pending")

// ErrAlreadyVoted is returned when a user casts a second vote on the same
// proposal. Each member gets exactly one vote.
var ErrAlreadyVoted = errors.New("already voted")

// ErrWaypointNotAccepted is returned by SetCreatedWaypoint when the proposal
// is not in the Accepted state.
var ErrWaypointNotAccepted = errors.New("only an accepted proposal may be linked to a waypoint")

// ErrResolutionConflict is returned by the repo when a conditional resolution
// write finds the stored proposal no longer pending — the other resolution
// path (quorum vote vs. expiry sweep) won the race first. Callers must treat
// this as a benign no-op, not a failure.
var ErrResolutionConflict = errors.New("proposal was already resolved")
