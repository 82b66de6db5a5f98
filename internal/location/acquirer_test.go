package location

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/usiu-smartnav/wayfinder/internal/lib/geo"
	"github.com/usiu-smartnav/wayfinder/internal/store"
)

type recorder struct {
	positions chan Position
	failures  chan *Error
	notices   chan string
}

func newRecorder() *recorder {
	return &recorder{
		positions: make(chan Position, 16),
		failures:  make(chan *Error, 16),
		notices:   make(chan string, 16),
	}
}

func (r *recorder) callbacks() Callbacks {
	return Callbacks{
		OnPosition: func(p Position) { r.positions <- p },
		OnFailure:  func(e *Error) { r.failures <- e },
		OnNotice:   func(msg string) { r.notices <- msg },
	}
}

func waitFor[T any](t *testing.T, ch chan T, what string) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
		panic("unreachable")
	}
}

func testStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "state.json"))
	require.NoError(t, err)
	return s
}

func TestAcquirer_WatchSuccess(t *testing.T) {
	source := NewManualSource()
	st := testStore(t)
	rec := newRecorder()
	acquirer := NewAcquirer(source, st, Options{HighAccuracy: true}, rec.callbacks())

	acquirer.Start(context.Background(), false)
	assert.Equal(t, StateAcquiring, acquirer.State())

	fix := Position{Point: geo.Point{Lat: -1.2197, Lng: 36.8784}}
	source.Emit(fix)

	got := waitFor(t, rec.positions, "position")
	assert.Equal(t, fix.Point, got.Point)
	assert.False(t, got.Cached)
	assert.Equal(t, StateActive, acquirer.State())

	// Success persists the last known good position
	require.Eventually(t, func() bool {
		last, ok := st.LastKnownLocation()
		return ok && last == fix.Point
	}, 2*time.Second, 10*time.Millisecond)

	acquirer.Stop()
	assert.Equal(t, StateIdle, acquirer.State())
}

func TestAcquirer_FailureClassification(t *testing.T) {
	source := NewManualSource()
	st := testStore(t)
	rec := newRecorder()
	// Short timeout so the one-shot leg of the fallback chain gives up fast
	acquirer := NewAcquirer(source, st, Options{Timeout: 100 * time.Millisecond}, rec.callbacks())

	source.FailWith(ErrPermissionDenied)
	acquirer.Start(context.Background(), false)

	failure := waitFor(t, rec.failures, "failure")
	assert.Equal(t, PermissionDenied, failure.Code)
	assert.Contains(t, failure.Message(), "permission denied")

	// No persisted fix exists, so the chain ends with a notice
	notice := waitFor(t, rec.notices, "notice")
	assert.Equal(t, "No previous location available.", notice)
	assert.Equal(t, StateFailed, acquirer.State())
}

func TestAcquirer_FallsBackToLastKnownGood(t *testing.T) {
	source := NewManualSource()
	st := testStore(t)
	lastKnown := geo.Point{Lat: -1.2200, Lng: 36.8790}
	require.NoError(t, st.SetLastKnownLocation(lastKnown))

	rec := newRecorder()
	acquirer := NewAcquirer(source, st, Options{Timeout: 100 * time.Millisecond}, rec.callbacks())

	source.FailWith(ErrTimeout)
	acquirer.Start(context.Background(), false)

	failure := waitFor(t, rec.failures, "failure")
	assert.Equal(t, Timeout, failure.Code)

	notice := waitFor(t, rec.notices, "notice")
	assert.Equal(t, "Using last known location.", notice)

	pos := waitFor(t, rec.positions, "fallback position")
	assert.True(t, pos.Cached)
	assert.Equal(t, lastKnown, pos.Point)
	assert.Equal(t, StateActive, acquirer.State())
}

func TestAcquirer_RetryDoesNotChainFallbacks(t *testing.T) {
	source := NewManualSource()
	st := testStore(t)
	require.NoError(t, st.SetLastKnownLocation(geo.Point{Lat: 1, Lng: 1}))

	rec := newRecorder()
	acquirer := NewAcquirer(source, st, Options{}, rec.callbacks())

	source.FailWith(ErrPositionUnavailable)
	acquirer.Start(context.Background(), true)

	failure := waitFor(t, rec.failures, "failure")
	assert.Equal(t, PositionUnavailable, failure.Code)

	// A retry must not fall back to the one-shot fix or the persisted
	// position.
	select {
	case pos := <-rec.positions:
		t.Fatalf("unexpected fallback position %+v on retry", pos)
	case notice := <-rec.notices:
		t.Fatalf("unexpected notice %q on retry", notice)
	case <-time.After(200 * time.Millisecond):
	}
	assert.Equal(t, StateFailed, acquirer.State())
}

func TestAcquirer_OneShotFallbackSucceeds(t *testing.T) {
	source := NewManualSource()
	st := testStore(t)
	rec := newRecorder()
	acquirer := NewAcquirer(source, st, Options{Timeout: 500 * time.Millisecond}, rec.callbacks())

	// The watch fails, but by the time the one-shot fix runs the sensor
	// has recovered.
	source.FailWith(errors.New("sensor glitch"))
	go func() {
		time.Sleep(50 * time.Millisecond)
		source.Emit(Position{Point: geo.Point{Lat: -1.2197, Lng: 36.8784}})
	}()

	acquirer.Start(context.Background(), false)

	failure := waitFor(t, rec.failures, "failure")
	assert.Equal(t, Unknown, failure.Code)

	pos := waitFor(t, rec.positions, "one-shot position")
	assert.Equal(t, geo.Point{Lat: -1.2197, Lng: 36.8784}, pos.Point)
	assert.Equal(t, StateActive, acquirer.State())
}

func TestAcquirer_RestartCancelsPreviousWatch(t *testing.T) {
	source := NewManualSource()
	st := testStore(t)
	rec := newRecorder()
	acquirer := NewAcquirer(source, st, Options{}, rec.callbacks())

	acquirer.Start(context.Background(), false)
	acquirer.Start(context.Background(), false)

	source.Emit(Position{Point: geo.Point{Lat: 1, Lng: 2}})

	// Only the replacement watch delivers
	waitFor(t, rec.positions, "position")
	select {
	case pos := <-rec.positions:
		t.Fatalf("superseded watch delivered position %+v", pos)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestClassify(t *testing.T) {
	assert.Equal(t, PermissionDenied, Classify(ErrPermissionDenied).Code)
	assert.Equal(t, PositionUnavailable, Classify(ErrPositionUnavailable).Code)
	assert.Equal(t, Timeout, Classify(ErrTimeout).Code)
	assert.Equal(t, Timeout, Classify(context.DeadlineExceeded).Code)
	assert.Equal(t, Unknown, Classify(errors.New("anything else")).Code)
}

func TestManualSource_CurrentWaitsOutSensorRecovery(t *testing.T) {
	source := NewManualSource()
	source.FailWith(ErrPositionUnavailable)

	go func() {
		time.Sleep(50 * time.Millisecond)
		source.Emit(Position{Point: geo.Point{Lat: -1.2197, Lng: 36.8784}})
	}()

	// The sticky failure must not short-circuit the one-shot fix; the
	// emission clears it within the timeout.
	pos, err := source.Current(context.Background(), Options{Timeout: time.Second})
	require.NoError(t, err)
	assert.Equal(t, geo.Point{Lat: -1.2197, Lng: 36.8784}, pos.Point)
}

func TestManualSource_CurrentReturnsFailureAfterTimeout(t *testing.T) {
	source := NewManualSource()
	source.FailWith(ErrPermissionDenied)

	_, err := source.Current(context.Background(), Options{Timeout: 50 * time.Millisecond})
	assert.ErrorIs(t, err, ErrPermissionDenied)
}
