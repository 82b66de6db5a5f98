package parking

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/usiu-smartnav/wayfinder/internal/clients/campus"
	"github.com/usiu-smartnav/wayfinder/internal/store"
)

type fakeService struct {
	registerCalls   int
	deregisterCalls int

	registerResult   *campus.RegisterResult
	registerErr      error
	deregisterResult *campus.DeregisterResult
	deregisterErr    error
	active           []campus.ActiveSession
	activeErr        error
}

func (f *fakeService) Register(ctx context.Context, lotID int64, deviceID string, reserved bool) (*campus.RegisterResult, error) {
	f.registerCalls++
	return f.registerResult, f.registerErr
}

func (f *fakeService) Deregister(ctx context.Context, lotID int64, deviceID, sessionID string, reserved bool) (*campus.DeregisterResult, error) {
	f.deregisterCalls++
	return f.deregisterResult, f.deregisterErr
}

func (f *fakeService) ActiveSessions(ctx context.Context, deviceID string) ([]campus.ActiveSession, error) {
	return f.active, f.activeErr
}

func testStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "state.json"))
	require.NoError(t, err)
	return s
}

func TestRegister_StoresTokenAndUpdatesSlots(t *testing.T) {
	service := &fakeService{
		registerResult: &campus.RegisterResult{SessionID: "tok-1", Remaining: 9},
	}
	st := testStore(t)

	var updatedLot int64
	var updatedSlots int
	r := NewReconciler(service, st, func(lotID int64, slots int) {
		updatedLot, updatedSlots = lotID, slots
	})

	token, err := r.Register(context.Background(), 5, false)
	require.NoError(t, err)
	assert.Equal(t, "tok-1", token)
	assert.True(t, r.Registered(5))
	assert.Equal(t, int64(5), updatedLot)
	assert.Equal(t, 9, updatedSlots)

	// Mutation persisted synchronously
	assert.Equal(t, map[int64]string{5: "tok-1"}, st.Sessions())
}

func TestRegister_DuplicateRejectedLocally(t *testing.T) {
	service := &fakeService{
		registerResult: &campus.RegisterResult{SessionID: "tok-1", Remaining: 9},
	}
	r := NewReconciler(service, testStore(t), nil)

	_, err := r.Register(context.Background(), 5, false)
	require.NoError(t, err)
	require.Equal(t, 1, service.registerCalls)

	_, err = r.Register(context.Background(), 5, true)
	assert.ErrorIs(t, err, ErrAlreadyRegistered)
	assert.Equal(t, 1, service.registerCalls, "second register must not reach the server")
}

func TestRegister_ServerErrorSurfaced(t *testing.T) {
	service := &fakeService{
		registerErr: &campus.APIError{StatusCode: 400, Message: "No available parking slots"},
	}
	r := NewReconciler(service, testStore(t), nil)

	_, err := r.Register(context.Background(), 5, false)
	assert.EqualError(t, err, "No available parking slots")
	assert.False(t, r.Registered(5))
}

func TestRegister_TransportErrorGetsGenericFallback(t *testing.T) {
	service := &fakeService{registerErr: errors.New("connection refused")}
	r := NewReconciler(service, testStore(t), nil)

	_, err := r.Register(context.Background(), 5, false)
	assert.ErrorContains(t, err, "failed to register for parking")
}

func TestDeregister_WithoutSessionRejectedLocally(t *testing.T) {
	service := &fakeService{}
	r := NewReconciler(service, testStore(t), nil)

	err := r.Deregister(context.Background(), 5, false)
	assert.ErrorIs(t, err, ErrNoSession)
	assert.Equal(t, 0, service.deregisterCalls)
}

func TestDeregister_RemovesSessionAndUpdatesSlots(t *testing.T) {
	service := &fakeService{
		registerResult:   &campus.RegisterResult{SessionID: "tok-1", Remaining: 9},
		deregisterResult: &campus.DeregisterResult{Available: 10},
	}
	st := testStore(t)

	var lastSlots int
	r := NewReconciler(service, st, func(_ int64, slots int) { lastSlots = slots })

	_, err := r.Register(context.Background(), 5, false)
	require.NoError(t, err)

	require.NoError(t, r.Deregister(context.Background(), 5, false))
	assert.False(t, r.Registered(5))
	assert.Equal(t, 10, lastSlots)
	assert.Empty(t, st.Sessions())
}

func TestReconcile_ServerTruthWins(t *testing.T) {
	st := testStore(t)
	// Persisted state claims lot 5; the server only knows about lot 7.
	require.NoError(t, st.PutSession(5, "stale-token"))

	service := &fakeService{
		active: []campus.ActiveSession{{ParkingLot: 7, SessionID: "live-token"}},
	}
	r := NewReconciler(service, st, nil)
	require.True(t, r.Registered(5), "persisted state loads optimistically")

	require.NoError(t, r.Reconcile(context.Background()))

	assert.False(t, r.Registered(5), "lot 5 dropped: server omits it")
	assert.True(t, r.Registered(7))
	assert.Equal(t, map[int64]string{7: "live-token"}, st.Sessions())
}

func TestReconcile_FetchFailureKeepsLocalState(t *testing.T) {
	st := testStore(t)
	require.NoError(t, st.PutSession(5, "tok"))

	service := &fakeService{activeErr: errors.New("backend down")}
	r := NewReconciler(service, st, nil)

	err := r.Reconcile(context.Background())
	assert.Error(t, err)
	assert.True(t, r.Registered(5), "local state survives a failed reconciliation")
}
