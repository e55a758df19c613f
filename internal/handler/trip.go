package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/convoyapp/convoy-api/internal/domain"
	"github.com/convoyapp/convoy-api/internal/service"
)

// createTripRequest is the JSON body for POST /api/trips.
type createTripRequest struct {
	Name    string `json:"name"`
	Members []struct {
		UserID      uuid.UUID `json:"user_id"`
		DisplayName string    `json:"display_name"`
	} `json:"members"`
}

// CreateTrip handles POST /api/trips.
func (s *Server) CreateTrip(w http.ResponseWriter, r *http.Request) {
	var req createTripRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "validation_error", "invalid request body")
		return
	}

	members := make([]service.MemberInput, len(req.Members))
	for i, m := range req.Members {
		members[i] = service.MemberInput{UserID: m.UserID, DisplayName: m.DisplayName}
	}

	trip, err := s.trips.Create(r.Context(), req.Name, members)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, trip)
}

// ListTrips handles GET /api/trips.
func (s *Server) ListTrips(w http.ResponseWriter, r *http.Request) {
	trips, err := s.trips.List(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": trips})
}

// GetTrip handles GET /api/trips/{tripID}.
func (s *Server) GetTrip(w http.ResponseWriter, r *http.Request) {
	tripID, err := pathID(r, "tripID")
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "validation_error", "invalid trip id")
		return
	}

	trip, err := s.trips.GetByID(r.Context(), tripID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "trip not found")
			return
		}
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, trip)
}

// FinishTrip handles POST /api/trips/{tripID}/finish.
// The acting member comes from the X-User-ID header.
func (s *Server) FinishTrip(w http.ResponseWriter, r *http.Request) {
	tripID, err := pathID(r, "tripID")
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "validation_error", "invalid trip id")
		return
	}
	userID, err := callerID(r)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "validation_error", "missing or invalid X-User-ID header")
		return
	}

	trip, err := s.trips.Finish(r.Context(), tripID, userID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, trip)
}

// ListWaypoints handles GET /api/trips/{tripID}/waypoints.
func (s *Server) ListWaypoints(w http.ResponseWriter, r *http.Request) {
	tripID, err := pathID(r, "tripID")
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "validation_error", "invalid trip id")
		return
	}

	waypoints, err := s.trips.Waypoints(r.Context(), tripID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "trip not found")
			return
		}
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": waypoints})
}
