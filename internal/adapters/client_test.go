package adapters

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulseengine/pulse/pkg/errors"
	"github.com/pulseengine/pulse/pkg/source"
)

func TestGetJSON_ClassifiesResponses(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		errType   errors.ErrorType
		transient bool
	}{
		{"rate limited", http.StatusTooManyRequests, `{}`, errors.ErrorTypeRateLimit, true},
		{"server error", http.StatusInternalServerError, `{}`, errors.ErrorTypeUpstream, true},
		{"bad gateway", http.StatusBadGateway, `{}`, errors.ErrorTypeUpstream, true},
		{"unauthorized", http.StatusUnauthorized, `{}`, errors.ErrorTypeAuthentication, false},
		{"forbidden", http.StatusForbidden, `{}`, errors.ErrorTypeAuthentication, false},
		{"bad request", http.StatusBadRequest, `{}`, errors.ErrorTypeValidation, false},
		{"malformed body", http.StatusOK, `{"broken`, errors.ErrorTypeValidation, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			var out map[string]interface{}
			err := NewClient(server.URL).GetJSON(context.Background(), "/v1/things", nil, &out)

			require.Error(t, err)
			assert.True(t, errors.IsType(err, tt.errType))
			assert.Equal(t, tt.transient, errors.IsTransient(err))
		})
	}
}

func TestGetJSON_TransportFailureIsNetworkError(t *testing.T) {
	// A closed server guarantees a connection failure.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	var out map[string]interface{}
	err := NewClient(server.URL).GetJSON(context.Background(), "/v1/things", nil, &out)

	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeNetwork))
	assert.True(t, errors.IsTransient(err))
}

func TestTrackerAdapter_Fetch(t *testing.T) {
	now := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/initiatives", r.URL.Path)
		assert.Equal(t, "e1,e2", r.URL.Query().Get("entity_ids"))

		// The registry is never windowed, even when the query carries Since.
		assert.Empty(t, r.URL.Query().Get("since"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"initiatives": [{
				"initiative_id": "e1",
				"name": "River Cleanup",
				"tags": ["water", "community"],
				"regions": ["riverside"],
				"owner_count": 2,
				"updated_at": "2026-08-20T12:00:00Z"
			}]
		}`))
	}))
	defer server.Close()

	adapter := NewTrackerAdapter(server.URL)
	assert.Equal(t, "tracker", adapter.SourceID())
	assert.Equal(t, source.TypeFast, adapter.SourceType())

	records, err := adapter.Fetch(context.Background(), source.Query{
		EntityIDs: []string{"e1", "e2"},
		Since:     now.Add(-90 * 24 * time.Hour),
	})
	require.NoError(t, err)
	require.Len(t, records, 1)

	r := records[0]
	assert.Equal(t, "e1", r.EntityID)
	assert.Equal(t, "River Cleanup", *r.Name)
	assert.Equal(t, []string{"water", "community"}, r.Tags)
	assert.Equal(t, []string{"riverside"}, r.Places)
	assert.Equal(t, 2, *r.OwnerCount)
	assert.Equal(t, now, r.ObservedAt)
	assert.Nil(t, r.FundingTarget)
}

func TestTrackerAdapter_RejectsPayloadMissingRequiredFields(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"initiatives": [{"name": "No ID"}]}`))
	}))
	defer server.Close()

	_, err := NewTrackerAdapter(server.URL).Fetch(context.Background(), source.Query{})

	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))
	assert.False(t, errors.IsTransient(err))
}

func TestLedgerAdapter_Fetch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/accounts", r.URL.Path)
		assert.Empty(t, r.URL.Query().Get("since"))
		_, _ = w.Write([]byte(`{
			"accounts": [{
				"initiative_id": "e1",
				"target_amount": "50000",
				"received_amount": "30000.50",
				"funding_orgs": ["org-a"],
				"last_posted_at": "2026-08-20T12:00:00Z"
			}]
		}`))
	}))
	defer server.Close()

	adapter := NewLedgerAdapter(server.URL)
	assert.Equal(t, source.TypeSlow, adapter.SourceType())

	records, err := adapter.Fetch(context.Background(), source.Query{Since: time.Now().Add(-time.Hour)})
	require.NoError(t, err)
	require.Len(t, records, 1)

	r := records[0]
	assert.Equal(t, "50000", r.FundingTarget.String())
	assert.Equal(t, "30000.5", r.FundingReceived.String())
	assert.Equal(t, []string{"org-a"}, r.ParticipantOrgs)
}

func TestCommsAndCalendarAdapters_Fetch(t *testing.T) {
	since := time.Date(2026, 5, 22, 12, 0, 0, 0, time.UTC)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Engagement-bearing providers receive the rolling window.
		assert.Equal(t, "2026-05-22T12:00:00Z", r.URL.Query().Get("since"))

		switch r.URL.Path {
		case "/v1/channels/activity":
			_, _ = w.Write([]byte(`{
				"channels": [{
					"initiative_id": "e1",
					"message_count": 14,
					"active_orgs": ["org-a", "org-b"],
					"sampled_at": "2026-08-20T12:00:00Z"
				}]
			}`))
		case "/v1/schedules":
			_, _ = w.Write([]byte(`{
				"schedules": [{
					"initiative_id": "e1",
					"event_count": 3,
					"venues": ["town hall"],
					"generated_at": "2026-08-20T12:00:00Z"
				}]
			}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	comms, err := NewCommsAdapter(server.URL).Fetch(context.Background(), source.Query{Since: since})
	require.NoError(t, err)
	require.Len(t, comms, 1)
	assert.Equal(t, 14, *comms[0].EngagementEvents)
	assert.Equal(t, []string{"org-a", "org-b"}, comms[0].ParticipantOrgs)

	calendar, err := NewCalendarAdapter(server.URL).Fetch(context.Background(), source.Query{Since: since})
	require.NoError(t, err)
	require.Len(t, calendar, 1)
	assert.Equal(t, 3, *calendar[0].EngagementEvents)
	assert.Equal(t, []string{"town hall"}, calendar[0].Places)
}
