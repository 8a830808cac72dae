package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/medsync/internal/models"
)

func TestWebhookNotifier_Notify(t *testing.T) {
	var got Event
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	n := NewWebhookNotifier(server.URL, time.Second)
	err := n.Notify(context.Background(), Event{
		Type:      EventConsultationSynced,
		Table:     models.TableConsultations,
		Operation: models.OperationInsert,
		RecordID:  "c-1",
		ScopeID:   "h-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "c-1", got.RecordID)
	assert.Equal(t, EventConsultationSynced, got.Type)
}

func TestWebhookNotifier_Errors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	err := NewWebhookNotifier(server.URL, time.Second).Notify(context.Background(), Event{})
	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusBadGateway, statusErr.StatusCode)

	server.Close()
	err = NewWebhookNotifier(server.URL, time.Second).Notify(context.Background(), Event{})
	assert.Error(t, err)
}

func TestNew(t *testing.T) {
	assert.IsType(t, NopNotifier{}, New("", 0))
	assert.IsType(t, &WebhookNotifier{}, New("http://hooks.local/x", 0))
	assert.NoError(t, NopNotifier{}.Notify(context.Background(), Event{}))
}
