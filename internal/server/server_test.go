package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	clientapi "github.com/iudanet/medsync/internal/client/api"
	"github.com/iudanet/medsync/internal/config"
	"github.com/iudanet/medsync/internal/models"
	"github.com/iudanet/medsync/internal/server/storage/sqlite"
	"github.com/iudanet/medsync/pkg/api"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	db, err := sqlite.New(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	cfg := &config.Server{
		Address:   "127.0.0.1:0",
		DBPath:    ":memory:",
		JWT:       config.JWTConfig{Secret: "0123456789abcdef0123456789abcdef", AccessTTL: time.Hour},
		RateLimit: config.RateLimitConfig{Requests: 1000, Window: time.Minute},
	}
	srv := New(cfg, db, slog.New(slog.NewTextHandler(io.Discard, nil)))
	t.Cleanup(srv.limiter.Stop)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

// loggedIn регистрирует сотрудника и возвращает клиент с его токеном
func loggedIn(t *testing.T, baseURL, username, hospital string) *clientapi.Client {
	t.Helper()
	ctx := context.Background()

	c := clientapi.NewClient(baseURL, 5*time.Second)
	_, err := c.Register(ctx, api.RegisterRequest{
		Username:   username,
		Password:   "correct-horse-battery",
		HospitalID: hospital,
	})
	require.NoError(t, err)

	resp, err := c.Login(ctx, api.LoginRequest{Username: username, Password: "correct-horse-battery"})
	require.NoError(t, err)
	assert.Equal(t, hospital, resp.HospitalID)
	assert.Equal(t, models.RoleDoctor, resp.Role)
	c.SetToken(resp.AccessToken)
	return c
}

func patient(id, scope, name string, updatedAt int64) *models.Record {
	data, _ := json.Marshal(models.Patient{FirstName: name, LastName: "Lovelace", Active: true})
	return &models.Record{
		ID:        id,
		Table:     models.TablePatients,
		ScopeID:   scope,
		Data:      data,
		UpdatedAt: updatedAt,
	}
}

func TestServer_RecordLifecycle(t *testing.T) {
	ctx := context.Background()
	ts := newTestServer(t)
	c := loggedIn(t, ts.URL, "dr.house", "st-mary")

	require.NoError(t, c.Health(ctx))

	created, err := c.Insert(ctx, patient("p-1", "st-mary", "Ada", 1000))
	require.NoError(t, err)
	assert.Equal(t, int64(1000), created.RemoteUpdatedAt)
	assert.True(t, created.Synced)

	// Повторная вставка того же id
	_, err = c.Insert(ctx, patient("p-1", "st-mary", "Ada", 1001))
	assert.ErrorIs(t, err, clientapi.ErrAlreadyExists)

	// Обновление от актуальной версии
	updated, err := c.Update(ctx, patient("p-1", "st-mary", "Grace", 2000), 1000)
	require.NoError(t, err)
	assert.Equal(t, int64(2000), updated.UpdatedAt)

	// Обновление от устаревшей версии
	_, err = c.Update(ctx, patient("p-1", "st-mary", "Stale", 3000), 1000)
	assert.ErrorIs(t, err, clientapi.ErrStale)

	// Обновление отсутствующей записи
	_, err = c.Update(ctx, patient("p-404", "st-mary", "Nobody", 3000), 1000)
	assert.ErrorIs(t, err, clientapi.ErrNotFound)

	got, err := c.Get(ctx, models.TablePatients, "p-1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"first_name":"Grace","last_name":"Lovelace","active":true}`, string(got.Data))

	list, err := c.List(ctx, models.TablePatients, clientapi.Query{ScopeID: "st-mary"})
	require.NoError(t, err)
	require.Len(t, list, 1)

	list, err = c.List(ctx, models.TablePatients, clientapi.Query{Since: 2000})
	require.NoError(t, err)
	assert.Empty(t, list)

	require.NoError(t, c.Delete(ctx, models.TablePatients, "p-1"))
	require.NoError(t, c.Delete(ctx, models.TablePatients, "p-1"), "delete is idempotent")

	_, err = c.Get(ctx, models.TablePatients, "p-1")
	assert.ErrorIs(t, err, clientapi.ErrNotFound)
}

func TestServer_ScopeIsolation(t *testing.T) {
	ctx := context.Background()
	ts := newTestServer(t)
	mary := loggedIn(t, ts.URL, "dr.house", "st-mary")
	general := loggedIn(t, ts.URL, "dr.grey", "seattle-grace")

	_, err := mary.Insert(ctx, patient("p-1", "st-mary", "Ada", 1000))
	require.NoError(t, err)

	_, err = general.Get(ctx, models.TablePatients, "p-1")
	assert.ErrorIs(t, err, clientapi.ErrForbidden)

	_, err = general.Update(ctx, patient("p-1", "seattle-grace", "Mallory", 2000), 1000)
	assert.ErrorIs(t, err, clientapi.ErrForbidden)

	err = general.Delete(ctx, models.TablePatients, "p-1")
	assert.ErrorIs(t, err, clientapi.ErrForbidden)

	_, err = general.List(ctx, models.TablePatients, clientapi.Query{ScopeID: "st-mary"})
	assert.ErrorIs(t, err, clientapi.ErrForbidden)

	list, err := general.List(ctx, models.TablePatients, clientapi.Query{})
	require.NoError(t, err)
	assert.Empty(t, list)

	// Запись в чужую больницу
	_, err = general.Insert(ctx, patient("p-2", "st-mary", "Eve", 1000))
	assert.ErrorIs(t, err, clientapi.ErrForbidden)
}

func TestServer_Unauthorized(t *testing.T) {
	ctx := context.Background()
	ts := newTestServer(t)

	c := clientapi.NewClient(ts.URL, 5*time.Second)
	_, err := c.List(ctx, models.TablePatients, clientapi.Query{})
	assert.ErrorIs(t, err, clientapi.ErrUnauthorized)

	c.SetToken("garbage")
	_, err = c.Get(ctx, models.TablePatients, "p-1")
	assert.ErrorIs(t, err, clientapi.ErrUnauthorized)

	_, err = c.Login(ctx, api.LoginRequest{Username: "nobody", Password: "whatever-password"})
	assert.ErrorIs(t, err, clientapi.ErrUnauthorized)
}

func TestServer_ValidationRejected(t *testing.T) {
	ctx := context.Background()
	ts := newTestServer(t)
	c := loggedIn(t, ts.URL, "dr.house", "st-mary")

	rec := patient("p-1", "st-mary", "", 1000)
	_, err := c.Insert(ctx, rec)
	require.Error(t, err)
	assert.ErrorIs(t, err, clientapi.ErrRejected)
	assert.False(t, clientapi.IsConnectivity(err))

	consultation := &models.Record{
		ID:        "c-1",
		Table:     models.TableConsultations,
		ScopeID:   "st-mary",
		Data:      json.RawMessage(`{"patient_id":"p-1"}`),
		UpdatedAt: 1000,
	}
	_, err = c.Insert(ctx, consultation)
	assert.ErrorIs(t, err, clientapi.ErrRejected, "parent_id is required")
}

func TestServer_Metrics(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/v1/health")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	resp, err = http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `medsync_http_requests_total{method="GET",route="GET /api/v1/health",status="200"} 1`)
}
