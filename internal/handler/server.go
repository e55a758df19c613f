// Package handler implements the HTTP handlers for the convoy API.
// Handlers are methods on Server, split into resource-specific files
// (trip.go, proposal.go, events.go) that all share the same struct.
// Handlers decode requests, call services, and map domain errors to HTTP —
// no business logic lives here.
package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/convoyapp/convoy-api/internal/domain"
	"github.com/convoyapp/convoy-api/internal/notify"
	"github.com/convoyapp/convoy-api/internal/service"
)

// TripServicer defines the business operations the trip handlers depend on.
// Defining the interface here (in the consumer package) follows the Go
// convention: "accept interfaces, return concrete types". It lets handler
// tests inject a mock without touching the database or service layer.
type TripServicer interface {
	Create(ctx context.Context, name string, members []service.MemberInput) (domain.Trip, error)
	GetByID(ctx context.Context, id uuid.UUID) (domain.Trip, error)
	List(ctx context.Context) ([]domain.Trip, error)
	Finish(ctx context.Context, id, userID uuid.UUID) (domain.Trip, error)
	Waypoints(ctx context.Context, tripID uuid.UUID) ([]domain.Waypoint, error)
}

// ProposalServicer defines the voting-engine operations the proposal
// handlers depend on.
type ProposalServicer interface {
	Propose(ctx context.Context, tripID, proposerID uuid.UUID, stopType domain.StopType, lat, lon float64, locationName string) (domain.StopProposal, error)
	CastVote(ctx context.Context, proposalID, userID uuid.UUID, approve bool) (domain.StopProposal, error)
	GetActive(ctx context.Context, tripID uuid.UUID) (domain.StopProposal, error)
	History(ctx context.Context, tripID uuid.UUID, page domain.PaginationParams) ([]domain.StopProposal, int64, error)
}

// EventSource is the subscription side of the notifier, consumed by the SSE
// endpoint. *notify.Broadcaster satisfies this.
type EventSource interface {
	Subscribe(tripID uuid.UUID) (<-chan notify.Event, func())
}

// Server holds the handler dependencies. Construct with NewServer and mount
// Routes on the application router.
type Server struct {
	trips     TripServicer
	proposals ProposalServicer
	events    EventSource
}

// NewServer constructs the Server with all its dependencies.
func NewServer(trips TripServicer, proposals ProposalServicer, events EventSource) *Server {
	return &Server{trips: trips, proposals: proposals, events: events}
}

// Routes returns the API route tree. Global middleware (request ID, logging,
// CORS, body limits) is applied by the caller in main.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/healthz", s.GetHealth)

	r.Route("/api", func(r chi.Router) {
		r.Route("/trips", func(r chi.Router) {
			r.Post("/", s.CreateTrip)
			r.Get("/", s.ListTrips)
			r.Route("/{tripID}", func(r chi.Router) {
				r.Get("/", s.GetTrip)
				r.Post("/finish", s.FinishTrip)
				r.Get("/waypoints", s.ListWaypoints)
				r.Get("/events", s.StreamEvents)
				r.Route("/proposals", func(r chi.Router) {
					r.Post("/", s.ProposeStop)
					r.Get("/", s.ListProposals)
					r.Get("/active", s.GetActiveProposal)
				})
			})
		})
		r.Post("/proposals/{proposalID}/votes", s.CastVote)
	})

	return r
}

// GetHealth handles GET /healthz.
// It returns HTTP 200 with {"status":"ok"} when the server is running.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// pathID parses the named chi URL parameter as a UUID.
func pathID(r *http.Request, name string) (uuid.UUID, error) {
	return uuid.Parse(chi.URLParam(r, name))
}

// callerID extracts the acting user from the X-User-ID header.
// Authentication is handled upstream; this server trusts the header.
func callerID(r *http.Request) (uuid.UUID, error) {
	return uuid.Parse(r.Header.Get("X-User-ID"))
}
