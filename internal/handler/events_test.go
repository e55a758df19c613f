package handler_test

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/convoyapp/convoy-api/internal/handler"
	"github.com/convoyapp/convoy-api/internal/notify"
)

// TestStreamEvents delivers one published event over a real HTTP connection
// and verifies the SSE framing.
func TestStreamEvents(t *testing.T) {
	tripID := uuid.New()
	broadcaster := notify.NewBroadcaster(nil)
	srv := handler.NewServer(&mockTripServicer{}, &mockProposalServicer{}, broadcaster).Routes()

	ts := httptest.NewServer(srv)
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/trips/"+tripID.String()+"/events", nil)
	require.NoError(t, err)
	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	// Publish after the subscription is live. The handler subscribes before
	// writing the response header, so once headers arrive we can publish.
	broadcaster.Publish(notify.Event{
		Kind:       notify.KindVoteUpdated,
		TripID:     tripID,
		ProposalID: uuid.New(),
		YesCount:   2,
		NoCount:    1,
	})

	reader := bufio.NewReader(resp.Body)
	eventLine, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "event: proposal.vote_updated", strings.TrimSpace(eventLine))

	dataLine, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(dataLine, "data: "), "got %q", dataLine)
	assert.Contains(t, dataLine, `"yes_count":2`)
}

func TestStreamEvents_BadTripID(t *testing.T) {
	srv := newTestServer(nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/trips/nope/events", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}
