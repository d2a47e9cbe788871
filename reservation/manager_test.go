package reservation

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civicmotion/bikeshare-backend/bike"
	"github.com/civicmotion/bikeshare-backend/id"
	"github.com/civicmotion/bikeshare-backend/notify"
	"github.com/civicmotion/bikeshare-backend/rider"
	"github.com/civicmotion/bikeshare-backend/station"
)

var testNow = time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)

// The in-memory fakes satisfy the store ports without a database; the
// queryer argument is unused and nil in tests.

type fakeTx struct{}

func (fakeTx) InTx(_ context.Context, fn func(q sqlx.ExtContext) error) error {
	return fn(nil)
}

type fakeResStore struct {
	byID   map[id.Reservation]*Reservation
	nextID id.Reservation
}

func newFakeResStore() *fakeResStore {
	return &fakeResStore{byID: map[id.Reservation]*Reservation{}, nextID: 1}
}

func (s *fakeResStore) Get(_ context.Context, _ sqlx.QueryerContext, resID id.Reservation) (Reservation, error) {
	if r, ok := s.byID[resID]; ok {
		return *r, nil
	}
	return Reservation{}, ErrNotFound
}

func (s *fakeResStore) GetForUpdate(ctx context.Context, q sqlx.QueryerContext, resID id.Reservation) (Reservation, error) {
	return s.Get(ctx, q, resID)
}

func (s *fakeResStore) ActiveForRider(_ context.Context, _ sqlx.QueryerContext, riderID id.Rider) (*Reservation, error) {
	for _, r := range s.byID {
		if r.RiderID == riderID && r.Status == StatusActive {
			out := *r
			return &out, nil
		}
	}
	return nil, nil
}

func (s *fakeResStore) Create(_ context.Context, _ sqlx.QueryerContext, res *Reservation) error {
	res.ID = s.nextID
	s.nextID++
	stored := *res
	s.byID[res.ID] = &stored
	return nil
}

func (s *fakeResStore) UpdateStatus(_ context.Context, _ sqlx.ExtContext, resID id.Reservation, status Status) error {
	s.byID[resID].Status = status
	return nil
}

type fakeBikeStore struct {
	byID map[id.Bike]*bike.Bike
}

func (s *fakeBikeStore) GetForUpdate(_ context.Context, _ sqlx.QueryerContext, bikeID id.Bike) (bike.Bike, error) {
	if b, ok := s.byID[bikeID]; ok {
		return *b, nil
	}
	return bike.Bike{}, bike.ErrNotFound
}

func (s *fakeBikeStore) Update(_ context.Context, _ sqlx.ExtContext, b bike.Bike) error {
	stored := b
	s.byID[b.ID] = &stored
	return nil
}

type fakeStationStore struct {
	byID map[id.Station]station.Station
}

func (s *fakeStationStore) Get(_ context.Context, _ sqlx.QueryerContext, stationID id.Station) (station.Station, error) {
	if st, ok := s.byID[stationID]; ok {
		return st, nil
	}
	return station.Station{}, station.ErrNotFound
}

type fakeRiderStore struct {
	byID map[id.Rider]rider.Rider
}

func (s *fakeRiderStore) Get(_ context.Context, _ sqlx.QueryerContext, riderID id.Rider) (rider.Rider, error) {
	if rd, ok := s.byID[riderID]; ok {
		return rd, nil
	}
	return rider.Rider{}, rider.ErrNotFound
}

type sinkRecorder struct {
	events []notify.Event
}

func (s *sinkRecorder) Notify(_ context.Context, ev notify.Event) error {
	s.events = append(s.events, ev)
	return nil
}

type fixture struct {
	m     *Manager
	res   *fakeResStore
	bikes *fakeBikeStore
	sink  *sinkRecorder
}

func newFixture(t *testing.T, tier rider.Tier) *fixture {
	t.Helper()

	dockID := id.Dock(11)
	f := &fixture{
		res: newFakeResStore(),
		bikes: &fakeBikeStore{byID: map[id.Bike]*bike.Bike{
			1: {ID: 1, DockID: &dockID, Status: bike.StatusAvailable},
		}},
		sink: &sinkRecorder{},
	}
	stations := &fakeStationStore{byID: map[id.Station]station.Station{
		1: {ID: 1, Name: "Market Square", Capacity: 4, BikesDocked: 1},
	}}
	riders := &fakeRiderStore{byID: map[id.Rider]rider.Rider{
		7: {ID: 7, Tier: tier},
	}}

	f.m = NewManager(fakeTx{}, f.res, f.bikes, stations, riders, f.sink, slog.New(slog.DiscardHandler))
	f.m.Now = func() time.Time { return testNow }
	return f
}

func TestCreateHoldsBikeForBaseWindow(t *testing.T) {
	f := newFixture(t, rider.TierNone)

	res, err := f.m.Create(context.Background(), 1, 1, 7)
	require.NoError(t, err)

	assert.Equal(t, StatusActive, res.Status)
	assert.Equal(t, testNow.Add(BaseHold), res.ExpiresAt)

	b := *f.bikes.byID[1]
	assert.Equal(t, bike.StatusReserved, b.Status)
	require.NotNil(t, b.ReservationExpiry)
	assert.Equal(t, res.ExpiresAt, *b.ReservationExpiry)
}

func TestCreateExtendsHoldForGoldTier(t *testing.T) {
	f := newFixture(t, rider.TierGold)

	res, err := f.m.Create(context.Background(), 1, 1, 7)
	require.NoError(t, err)
	assert.Equal(t, testNow.Add(BaseHold+5*time.Minute), res.ExpiresAt)
}

func TestCreateRejectsSecondActiveReservation(t *testing.T) {
	f := newFixture(t, rider.TierNone)

	_, err := f.m.Create(context.Background(), 1, 1, 7)
	require.NoError(t, err)

	_, err = f.m.Create(context.Background(), 1, 1, 7)
	assert.ErrorIs(t, err, ErrAlreadyReserved)
}

func TestCreateExpiresStaleReservationFirst(t *testing.T) {
	f := newFixture(t, rider.TierNone)

	first, err := f.m.Create(context.Background(), 1, 1, 7)
	require.NoError(t, err)

	// Jump past the hold window; the stale hold gives way to the new one.
	f.m.Now = func() time.Time { return testNow.Add(BaseHold + time.Minute) }

	second, err := f.m.Create(context.Background(), 1, 1, 7)
	require.NoError(t, err)

	assert.Equal(t, StatusExpired, f.res.byID[first.ID].Status)
	assert.Equal(t, StatusActive, f.res.byID[second.ID].Status)
	assert.Equal(t, bike.StatusReserved, f.bikes.byID[1].Status)
}

func TestCreateRejectsReservedBike(t *testing.T) {
	f := newFixture(t, rider.TierNone)
	f.bikes.byID[1].Status = bike.StatusReserved

	_, err := f.m.Create(context.Background(), 1, 1, 7)
	assert.ErrorIs(t, err, ErrBikeUnavailable)
}

func TestCancelFreesBikeAndIsIdempotent(t *testing.T) {
	f := newFixture(t, rider.TierNone)

	res, err := f.m.Create(context.Background(), 1, 1, 7)
	require.NoError(t, err)

	require.NoError(t, f.m.Cancel(context.Background(), res.ID))
	assert.Equal(t, StatusCancelled, f.res.byID[res.ID].Status)
	assert.Equal(t, bike.StatusAvailable, f.bikes.byID[1].Status)
	assert.Nil(t, f.bikes.byID[1].ReservationExpiry)

	// Second cancel is a no-op, not an error.
	require.NoError(t, f.m.Cancel(context.Background(), res.ID))
	assert.Equal(t, StatusCancelled, f.res.byID[res.ID].Status)
}

func TestActiveForRiderExpiresLapsedHold(t *testing.T) {
	f := newFixture(t, rider.TierNone)

	res, err := f.m.Create(context.Background(), 1, 1, 7)
	require.NoError(t, err)

	f.m.Now = func() time.Time { return testNow.Add(BaseHold + time.Second) }

	active, err := f.m.ActiveForRider(context.Background(), 7)
	require.NoError(t, err)
	assert.Nil(t, active)
	assert.Equal(t, StatusExpired, f.res.byID[res.ID].Status)
	assert.Equal(t, bike.StatusAvailable, f.bikes.byID[1].Status)

	// Expiry emits one reservation event and one bike event.
	require.Len(t, f.sink.events, 2)
	assert.Equal(t, notify.EntityReservation, f.sink.events[0].Entity)
	assert.Equal(t, string(StatusExpired), f.sink.events[0].New)
	assert.Equal(t, notify.EntityBike, f.sink.events[1].Entity)
}

func TestExpireBeforeWindowLapsesIsANoOp(t *testing.T) {
	f := newFixture(t, rider.TierNone)

	res, err := f.m.Create(context.Background(), 1, 1, 7)
	require.NoError(t, err)

	require.NoError(t, f.m.Expire(context.Background(), res.ID))
	assert.Equal(t, StatusActive, f.res.byID[res.ID].Status)
	assert.Equal(t, bike.StatusReserved, f.bikes.byID[1].Status)
	assert.Empty(t, f.sink.events)
}

func TestExpireLapsedHoldFreesBike(t *testing.T) {
	f := newFixture(t, rider.TierNone)

	res, err := f.m.Create(context.Background(), 1, 1, 7)
	require.NoError(t, err)

	f.m.Now = func() time.Time { return testNow.Add(BaseHold + time.Second) }

	require.NoError(t, f.m.Expire(context.Background(), res.ID))
	assert.Equal(t, StatusExpired, f.res.byID[res.ID].Status)
	assert.Equal(t, bike.StatusAvailable, f.bikes.byID[1].Status)
	assert.Nil(t, f.bikes.byID[1].ReservationExpiry)

	require.Len(t, f.sink.events, 2)
	assert.Equal(t, notify.EntityReservation, f.sink.events[0].Entity)
	assert.Equal(t, string(StatusExpired), f.sink.events[0].New)
	assert.Equal(t, notify.EntityBike, f.sink.events[1].Entity)

	// A second expiry finds the reservation terminal: no state change, no
	// second notification burst.
	require.NoError(t, f.m.Expire(context.Background(), res.ID))
	assert.Equal(t, StatusExpired, f.res.byID[res.ID].Status)
	assert.Equal(t, bike.StatusAvailable, f.bikes.byID[1].Status)
	assert.Len(t, f.sink.events, 2)
}

func TestCompleteActiveForBike(t *testing.T) {
	f := newFixture(t, rider.TierNone)

	res, err := f.m.Create(context.Background(), 1, 1, 7)
	require.NoError(t, err)

	completed, err := f.m.CompleteActiveForBike(context.Background(), nil, 7, 99)
	require.NoError(t, err)
	assert.False(t, completed, "different bike must not complete the hold")

	completed, err = f.m.CompleteActiveForBike(context.Background(), nil, 7, 1)
	require.NoError(t, err)
	assert.True(t, completed)
	assert.Equal(t, StatusCompleted, f.res.byID[res.ID].Status)
}
