package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/convoyapp/convoy-api/internal/domain"
	"github.com/convoyapp/convoy-api/internal/notify"
)

// proposeStopRequest is the JSON body for POST /api/trips/{tripID}/proposals.
// Type uses the integer stop-type codes.
type proposeStopRequest struct {
	Type         int     `json:"type"`
	Latitude     float64 `json:"latitude"`
	Longitude    float64 `json:"longitude"`
	LocationName string  `json:"location_name"`
}

// castVoteRequest is the JSON body for POST /api/proposals/{proposalID}/votes.
type castVoteRequest struct {
	Approve bool `json:"approve"`
}

// ProposeStop handles POST /api/trips/{tripID}/proposals.
// The proposer comes from the X-User-ID header; their yes-vote is implicit.
func (s *Server) ProposeStop(w http.ResponseWriter, r *http.Request) {
	tripID, err := pathID(r, "tripID")
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "validation_error", "invalid trip id")
		return
	}
	proposerID, err := callerID(r)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "validation_error", "missing or invalid X-User-ID header")
		return
	}

	var req proposeStopRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "validation_error", "invalid request body")
		return
	}

	proposal, err := s.proposals.Propose(r.Context(), tripID, proposerID,
		domain.StopType(req.Type), req.Latitude, req.Longitude, req.LocationName)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "trip not found")
			return
		}
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, notify.Snapshot(proposal))
}

// CastVote handles POST /api/proposals/{proposalID}/votes.
// The voter comes from the X-User-ID header. When the vote completes the
// quorum the response already carries the resolved proposal.
func (s *Server) CastVote(w http.ResponseWriter, r *http.Request) {
	proposalID, err := pathID(r, "proposalID")
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "validation_error", "invalid proposal id")
		return
	}
	userID, err := callerID(r)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "validation_error", "missing or invalid X-User-ID header")
		return
	}

	var req castVoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "validation_error", "invalid request body")
		return
	}

	proposal, err := s.proposals.CastVote(r.Context(), proposalID, userID, req.Approve)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "proposal not found")
			return
		}
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, notify.Snapshot(proposal))
}

// GetActiveProposal handles GET /api/trips/{tripID}/proposals/active.
func (s *Server) GetActiveProposal(w http.ResponseWriter, r *http.Request) {
	tripID, err := pathID(r, "tripID")
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "validation_error", "invalid trip id")
		return
	}

	proposal, err := s.proposals.GetActive(r.Context(), tripID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "no active proposal")
			return
		}
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, notify.Snapshot(proposal))
}

// ListProposals handles GET /api/trips/{tripID}/proposals.
// Supports ?page= and ?limit= query parameters (defaults: page=1, limit=20, max=100).
func (s *Server) ListProposals(w http.ResponseWriter, r *http.Request) {
	tripID, err := pathID(r, "tripID")
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "validation_error", "invalid trip id")
		return
	}

	params := domain.NewPaginationParams(queryInt(r, "page"), queryInt(r, "limit"))
	proposals, total, err := s.proposals.History(r.Context(), tripID, params)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	data := make([]notify.ProposalSnapshot, len(proposals))
	for i, p := range proposals {
		data[i] = notify.Snapshot(p)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"data": data,
		"pagination": map[string]int{
			"page":  params.Page,
			"limit": params.Limit,
			"total": int(total),
		},
	})
}

// queryInt parses an optional integer query parameter, returning nil when the
// parameter is absent or malformed.
func queryInt(r *http.Request, name string) *int {
	v := r.URL.Query().Get(name)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return nil
	}
	return &n
}
