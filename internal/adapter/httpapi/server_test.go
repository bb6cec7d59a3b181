package httpapi_test

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/nycmobility/taxi-trip-etl/internal/adapter/httpapi"
	"github.com/nycmobility/taxi-trip-etl/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- mocks ---

type mockStore struct {
	trips     []store.Trip
	listErr   error
	pingErr   error
	lastLimit int
}

func (m *mockStore) ListTrips(_ context.Context, limit int) ([]store.Trip, error) {
	m.lastLimit = limit
	if m.listErr != nil {
		return nil, m.listErr
	}
	return m.trips, nil
}

func (m *mockStore) Ping(_ context.Context) error { return m.pingErr }

// --- helpers ---

func ptr[T any](v T) *T { return &v }

func sampleTrips() []store.Trip {
	return []store.Trip{
		{
			TripID:          7058871352338409,
			VendorID:        ptr(int64(2)),
			PickupDatetime:  "2016-03-14 17:24:55",
			DropoffDatetime: "2016-03-14 17:32:30",
			PassengerCount:  ptr(int64(1)),
			StoreAndFwdFlag: ptr("N"),
			TripDuration:    455,
			TripDistanceKm:  1.49852,
			SpeedKmph:       ptr(11.856),
			PickupHour:      17,
			PickupDayofweek: 0,
		},
		{
			TripID:          8214271253991853,
			PickupDatetime:  "2016-06-12 00:43:35",
			DropoffDatetime: "2016-06-12 00:54:38",
			TripDuration:    663,
			TripDistanceKm:  1.80551,
			PickupHour:      0,
			PickupDayofweek: 6,
		},
	}
}

func newTestServer(db *mockStore, opts httpapi.Options) *httpapi.Server {
	return httpapi.NewServer(":0", db, opts, slog.Default())
}

func get(srv *httpapi.Server, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	srv.ServeHTTP(rec, req)
	return rec
}

// --- tests ---

func TestTripsReturnsJSONArray(t *testing.T) {
	db := &mockStore{trips: sampleTrips()}
	srv := newTestServer(db, httpapi.Options{TripsLimit: 100})

	rec := get(srv, "/trips")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var got []store.Trip
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 2)
	assert.Equal(t, "2016-03-14 17:24:55", got[0].PickupDatetime)
	require.NotNil(t, got[0].SpeedKmph)
	assert.Equal(t, 11.856, *got[0].SpeedKmph)
	assert.EqualValues(t, 455, got[0].TripDuration)

	// Absent optional columns serialize as explicit nulls, not omissions.
	assert.Contains(t, rec.Body.String(), `"vendor_id":null`)
	assert.Contains(t, rec.Body.String(), `"speed_kmph":null`)
	assert.Contains(t, rec.Body.String(), `"store_and_fwd_flag":"N"`)
}

func TestTripsEmptyTableIsEmptyArray(t *testing.T) {
	db := &mockStore{trips: []store.Trip{}}
	srv := newTestServer(db, httpapi.Options{})

	rec := get(srv, "/trips")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())
}

func TestTripsUsesConfiguredLimit(t *testing.T) {
	db := &mockStore{}
	srv := newTestServer(db, httpapi.Options{TripsLimit: 25})

	get(srv, "/trips")
	assert.Equal(t, 25, db.lastLimit)
}

func TestTripsDefaultsLimitTo100(t *testing.T) {
	db := &mockStore{}
	srv := newTestServer(db, httpapi.Options{})

	get(srv, "/trips")
	assert.Equal(t, 100, db.lastLimit)
}

func TestTripsReturns500OnStoreError(t *testing.T) {
	db := &mockStore{listErr: fmt.Errorf("database is locked")}
	srv := newTestServer(db, httpapi.Options{})

	rec := get(srv, "/trips")

	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "failed to retrieve trips", body["error"])
}

func TestHealthzReturns200(t *testing.T) {
	srv := newTestServer(&mockStore{}, httpapi.Options{})

	rec := get(srv, "/healthz")

	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
}

func TestReadyzReturns200WhenStorePings(t *testing.T) {
	srv := newTestServer(&mockStore{}, httpapi.Options{})

	rec := get(srv, "/readyz")

	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ready", body["status"])
}

func TestReadyzReturns503WhenStoreDown(t *testing.T) {
	srv := newTestServer(&mockStore{pingErr: fmt.Errorf("connection refused")}, httpapi.Options{})

	rec := get(srv, "/readyz")

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "not ready", body["status"])
	assert.Equal(t, "connection refused", body["error"])
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(&mockStore{}, httpapi.Options{})

	rec := get(srv, "/metrics")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestStaticFrontendServedWhenConfigured(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(
		filepath.Join(dir, "index.html"), []byte("<h1>trips</h1>"), 0o644))

	db := &mockStore{trips: sampleTrips()}
	srv := newTestServer(db, httpapi.Options{StaticDir: dir})

	rec := get(srv, "/")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "<h1>trips</h1>")

	// API routes still win over the catch-all.
	rec = get(srv, "/trips")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"trip_id"`)
}

func TestNoStaticFrontendByDefault(t *testing.T) {
	srv := newTestServer(&mockStore{}, httpapi.Options{})

	rec := get(srv, "/")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCORSHeadersPresent(t *testing.T) {
	srv := newTestServer(&mockStore{}, httpapi.Options{})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/trips", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	srv.ServeHTTP(rec, req)

	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSRestrictedOrigin(t *testing.T) {
	srv := newTestServer(&mockStore{}, httpapi.Options{
		AllowedOrigins: []string{"http://localhost:5173"},
	})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/trips", nil)
	req.Header.Set("Origin", "http://evil.example")
	srv.ServeHTTP(rec, req)

	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}
