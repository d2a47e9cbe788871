// Package acceptance exercises the full HTTP surface against a real
// postgres database. Set DATABASE_URL to run; the suite skips otherwise.
package acceptance

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/civicmotion/bikeshare-backend/admin"
	"github.com/civicmotion/bikeshare-backend/api"
	"github.com/civicmotion/bikeshare-backend/bike"
	"github.com/civicmotion/bikeshare-backend/bill"
	"github.com/civicmotion/bikeshare-backend/dock"
	"github.com/civicmotion/bikeshare-backend/id"
	"github.com/civicmotion/bikeshare-backend/internal/database"
	"github.com/civicmotion/bikeshare-backend/internal/middleware"
	"github.com/civicmotion/bikeshare-backend/internal/o11y"
	"github.com/civicmotion/bikeshare-backend/loyalty"
	"github.com/civicmotion/bikeshare-backend/notify"
	"github.com/civicmotion/bikeshare-backend/rebalance"
	"github.com/civicmotion/bikeshare-backend/reservation"
	"github.com/civicmotion/bikeshare-backend/rider"
	"github.com/civicmotion/bikeshare-backend/station"
	"github.com/civicmotion/bikeshare-backend/trip"
)

type TestServer struct {
	DB     *database.DB
	Router *gin.Engine

	Reservations *reservation.Manager
	Trips        *trip.Manager
}

func NewTestServer(t *testing.T) *TestServer {
	t.Helper()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		t.Skip("DATABASE_URL not set")
	}

	gin.SetMode(gin.TestMode)

	ctx := context.Background()
	db, err := database.Connect(ctx, dbURL)
	if err != nil {
		t.Fatalf("failed to connect to database: %v", err)
	}
	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	cleanupTestData(t, db)

	logger := slog.New(slog.DiscardHandler)
	obs := &o11y.Observability{
		Logger:   logger,
		Registry: prometheus.NewRegistry(),
	}

	stations := station.NewRepository(db.DB)
	docks := dock.NewRepository(db.DB)
	bikes := bike.NewRepository(db.DB)
	riders := rider.NewRepository(db.DB)
	bills := bill.NewRepository(db.DB)
	reservations := reservation.NewRepository(db.DB)
	trips := trip.NewRepository(db.DB)
	events := notify.NewEventLog(db.DB)
	history := loyalty.NewRepository(db.DB)

	sink := notify.NewFanout(logger, events)

	resManager := reservation.NewManager(db, reservations, bikes, stations, riders, sink, logger)
	tripManager := trip.NewManager(db, trips, bikes, docks, stations, riders, bills, resManager, sink, logger)

	a, err := api.New(api.Deps{
		DB:                 db,
		Stations:           stations,
		Docks:              docks,
		Bikes:              bikes,
		Riders:             riders,
		Bills:              bills,
		Reservations:       resManager,
		Trips:              tripManager,
		Loyalty:            loyalty.NewEvaluator(history, riders, logger),
		Resetter:           admin.NewResetter(db, bills, reservations, trips, events, bikes, docks, stations, logger),
		Maintenance:        admin.NewMaintenance(db, bikes, docks, stations, sink, logger),
		Rebalancer:         rebalance.NewRunner(db, bikes, docks, stations, logger),
		ReservationHistory: reservations,
		TripHistory:        trips,
		Events:             events,
		Hub:                notify.NewHub(logger),
	}, obs, api.Config{
		Auth: fakeAuthMiddleware(),
	})
	if err != nil {
		t.Fatalf("failed to build api: %v", err)
	}

	ts := &TestServer{
		DB:           db,
		Router:       a.Router(),
		Reservations: resManager,
		Trips:        tripManager,
	}
	t.Cleanup(func() { db.Close() })
	return ts
}

// fakeAuthMiddleware maps the X-User-ID header straight to the auth
// subject, bypassing JWT validation.
func fakeAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		subject := c.GetHeader("X-User-ID")
		if subject == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"code": "UNAUTHORIZED", "message": "Authentication required"})
			c.Abort()
			return
		}
		c.Set(middleware.SubjectKey, subject)
		c.Next()
	}
}

func cleanupTestData(t *testing.T, db *database.DB) {
	t.Helper()

	// Delete in order of dependencies
	for _, table := range []string{"bills", "trips", "reservations", "events", "bikes", "docks", "stations", "riders"} {
		if _, err := db.Exec("DELETE FROM " + table); err != nil {
			t.Logf("warning: failed to clean %s: %v", table, err)
		}
	}
}

func (ts *TestServer) GET(path, userID string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
	}
	w := httptest.NewRecorder()
	ts.Router.ServeHTTP(w, req)
	return w
}

func (ts *TestServer) POST(path string, body any, userID string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
	}
	w := httptest.NewRecorder()
	ts.Router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("failed to decode response %q: %v", w.Body.String(), err)
	}
	return out
}

// CreateTestStation inserts a station and returns its id.
func (ts *TestServer) CreateTestStation(t *testing.T, name string, capacity int) id.Station {
	t.Helper()
	var stationID id.Station
	err := ts.DB.Get(&stationID, `
		INSERT INTO stations (name, capacity, bikes_docked)
		VALUES ($1, $2, 0)
		RETURNING id
	`, name, capacity)
	if err != nil {
		t.Fatalf("failed to create test station: %v", err)
	}
	return stationID
}

// CreateTestDock inserts an empty dock at the station.
func (ts *TestServer) CreateTestDock(t *testing.T, stationID id.Station) id.Dock {
	t.Helper()
	var dockID id.Dock
	err := ts.DB.Get(&dockID, `
		INSERT INTO docks (station_id, status) VALUES ($1, 'EMPTY') RETURNING id
	`, stationID)
	if err != nil {
		t.Fatalf("failed to create test dock: %v", err)
	}
	return dockID
}

// CreateTestBike docks an AVAILABLE bike in the given dock and fixes up
// the dock and station counters.
func (ts *TestServer) CreateTestBike(t *testing.T, dockID id.Dock) id.Bike {
	t.Helper()
	var bikeID id.Bike
	err := ts.DB.Get(&bikeID, `
		INSERT INTO bikes (dock_id, status, type) VALUES ($1, 'AVAILABLE', 'standard') RETURNING id
	`, dockID)
	if err != nil {
		t.Fatalf("failed to create test bike: %v", err)
	}
	if _, err := ts.DB.Exec(`UPDATE docks SET status = 'OCCUPIED' WHERE id = $1`, dockID); err != nil {
		t.Fatalf("failed to occupy dock: %v", err)
	}
	_, err = ts.DB.Exec(`
		UPDATE stations SET bikes_docked = bikes_docked + 1
		WHERE id = (SELECT station_id FROM docks WHERE id = $1)
	`, dockID)
	if err != nil {
		t.Fatalf("failed to bump station count: %v", err)
	}
	return bikeID
}

// CreateTestRider provisions a rider row directly.
func (ts *TestServer) CreateTestRider(t *testing.T, subject string, role rider.Role, tier rider.Tier) id.Rider {
	t.Helper()
	var riderID id.Rider
	err := ts.DB.Get(&riderID, `
		INSERT INTO riders (auth_subject, role, tier, created_at)
		VALUES ($1, $2, $3, now())
		RETURNING id
	`, subject, role, tier)
	if err != nil {
		t.Fatalf("failed to create test rider: %v", err)
	}
	return riderID
}
