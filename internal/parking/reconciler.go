// Package parking keeps the device's parking sessions consistent between
// optimistic local state, persisted state and the server's authoritative
// view, guaranteeing at most one live session per lot per device.
package parking

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/usiu-smartnav/wayfinder/internal/clients/campus"
	"github.com/usiu-smartnav/wayfinder/internal/store"
)

// Local invariant violations, rejected before any remote call.
var (
	ErrAlreadyRegistered = errors.New("already registered for this parking lot")
	ErrNoSession         = errors.New("no session to deregister")
)

// RegistrationService is the remote side of parking session management.
// *campus.Client satisfies it.
type RegistrationService interface {
	Register(ctx context.Context, lotID int64, deviceID string, reserved bool) (*campus.RegisterResult, error)
	Deregister(ctx context.Context, lotID int64, deviceID, sessionID string, reserved bool) (*campus.DeregisterResult, error)
	ActiveSessions(ctx context.Context, deviceID string) ([]campus.ActiveSession, error)
}

// SlotUpdater pushes a slot count returned by the server back into the
// parking lot feature set.
type SlotUpdater func(lotID int64, availableSlots int)

// Reconciler owns the lot -> session token map. Every mutation is
// persisted synchronously before the call returns.
type Reconciler struct {
	service     RegistrationService
	store       *store.Store
	updateSlots SlotUpdater

	// sessions is only mutated by Register, Deregister and Reconcile.
	sessions map[int64]string
}

// NewReconciler creates a reconciler seeded with the persisted session
// map. updateSlots may be nil.
func NewReconciler(service RegistrationService, st *store.Store, updateSlots SlotUpdater) *Reconciler {
	return &Reconciler{
		service:     service,
		store:       st,
		updateSlots: updateSlots,
		sessions:    st.Sessions(),
	}
}

// Registered reports whether a live session exists for the lot.
func (r *Reconciler) Registered(lotID int64) bool {
	_, ok := r.sessions[lotID]
	return ok
}

// Sessions returns a copy of the current session map.
func (r *Reconciler) Sessions() map[int64]string {
	sessions := make(map[int64]string, len(r.sessions))
	for lot, token := range r.sessions {
		sessions[lot] = token
	}
	return sessions
}

// Register claims a slot at the lot. A second registration for the same
// lot is rejected locally without a remote call.
func (r *Reconciler) Register(ctx context.Context, lotID int64, reserved bool) (string, error) {
	if _, ok := r.sessions[lotID]; ok {
		return "", ErrAlreadyRegistered
	}

	deviceID, err := r.store.DeviceID()
	if err != nil {
		return "", fmt.Errorf("failed to load device identity: %w", err)
	}

	result, err := r.service.Register(ctx, lotID, deviceID, reserved)
	if err != nil {
		return "", remoteError(err, "failed to register for parking")
	}

	r.sessions[lotID] = result.SessionID
	if err := r.store.PutSession(lotID, result.SessionID); err != nil {
		return "", fmt.Errorf("failed to persist session: %w", err)
	}

	if r.updateSlots != nil {
		r.updateSlots(lotID, result.Remaining)
	}
	log.Printf("Registered for parking lot %d (remaining slots: %d)", lotID, result.Remaining)
	return result.SessionID, nil
}

// Deregister releases the lot's session. Deregistering without a live
// session is rejected locally without a remote call.
func (r *Reconciler) Deregister(ctx context.Context, lotID int64, reserved bool) error {
	sessionID, ok := r.sessions[lotID]
	if !ok {
		return ErrNoSession
	}

	deviceID, err := r.store.DeviceID()
	if err != nil {
		return fmt.Errorf("failed to load device identity: %w", err)
	}

	result, err := r.service.Deregister(ctx, lotID, deviceID, sessionID, reserved)
	if err != nil {
		return remoteError(err, "failed to deregister from parking")
	}

	delete(r.sessions, lotID)
	if err := r.store.DeleteSession(lotID); err != nil {
		return fmt.Errorf("failed to persist session removal: %w", err)
	}

	if r.updateSlots != nil {
		r.updateSlots(lotID, result.Available)
	}
	log.Printf("Deregistered from parking lot %d (available slots: %d)", lotID, result.Available)
	return nil
}

// Reconcile replaces the local session map with the server's authoritative
// view of this device's active sessions. Server truth always wins over
// stale persisted state.
func (r *Reconciler) Reconcile(ctx context.Context) error {
	deviceID, err := r.store.DeviceID()
	if err != nil {
		return fmt.Errorf("failed to load device identity: %w", err)
	}

	active, err := r.service.ActiveSessions(ctx, deviceID)
	if err != nil {
		return remoteError(err, "failed to fetch active sessions")
	}

	sessions := make(map[int64]string, len(active))
	for _, s := range active {
		sessions[s.ParkingLot] = s.SessionID
	}

	r.sessions = sessions
	if err := r.store.ReplaceSessions(sessions); err != nil {
		return fmt.Errorf("failed to persist reconciled sessions: %w", err)
	}
	return nil
}

// remoteError keeps a server-provided message intact and wraps transport
// failures in a generic fallback.
func remoteError(err error, fallback string) error {
	var apiErr *campus.APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	return fmt.Errorf("%s: %w", fallback, err)
}
