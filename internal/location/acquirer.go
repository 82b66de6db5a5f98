package location

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/usiu-smartnav/wayfinder/internal/store"
)

// State is the acquirer's position in its lifecycle.
type State int

const (
	StateIdle State = iota
	StateAcquiring
	StateActive
	StateFailed
)

// Callbacks receives acquisition outcomes. All callbacks are optional and
// are invoked from the acquirer's watch goroutine.
type Callbacks struct {
	// OnPosition receives every acquired position, live or cached.
	OnPosition func(Position)
	// OnFailure receives a classified failure once per failed attempt.
	OnFailure func(*Error)
	// OnNotice receives user-facing progress messages, such as the
	// last-known-location fallback being used.
	OnNotice func(string)
}

// Acquirer runs the geolocation state machine: Idle -> Acquiring ->
// (Active | Failed), with the fallback chain continuous watch -> one-shot
// fix -> persisted last known good position. A caller-requested retry
// reattempts the watch only, without chaining further fallbacks.
type Acquirer struct {
	source    Source
	store     *store.Store
	opts      Options
	callbacks Callbacks

	mu      sync.Mutex
	state   State
	lastErr *Error
	watch   Watch
	gen     int
}

// NewAcquirer creates an acquirer over the given source. The store is used
// to persist and recover the last known good position.
func NewAcquirer(source Source, st *store.Store, opts Options, callbacks Callbacks) *Acquirer {
	if opts.Timeout == 0 {
		opts.Timeout = 10 * time.Second
	}
	return &Acquirer{
		source:    source,
		store:     st,
		opts:      opts,
		callbacks: callbacks,
	}
}

// Start begins a continuous position watch, cancelling any previous watch
// first. isRetry marks an explicit caller-requested reattempt, which does
// not chain into the one-shot and last-known-good fallbacks.
func (a *Acquirer) Start(ctx context.Context, isRetry bool) {
	a.mu.Lock()
	if a.watch != nil {
		a.watch.Stop()
		a.watch = nil
	}
	a.state = StateAcquiring
	a.lastErr = nil
	a.gen++
	gen := a.gen
	a.mu.Unlock()

	watch, err := a.source.Watch(ctx, a.opts)
	if err != nil {
		a.handleFailure(ctx, gen, Classify(err), isRetry)
		return
	}

	a.mu.Lock()
	if gen != a.gen {
		// A newer Start or Stop superseded this watch while it was being
		// created.
		a.mu.Unlock()
		watch.Stop()
		return
	}
	a.watch = watch
	a.mu.Unlock()

	go a.consume(ctx, gen, watch, isRetry)
}

// Stop cancels the active watch, if any, and returns to Idle.
func (a *Acquirer) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.watch != nil {
		a.watch.Stop()
		a.watch = nil
	}
	a.gen++
	a.state = StateIdle
}

// State returns the current lifecycle state.
func (a *Acquirer) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// LastError returns the most recent classified failure, or nil.
func (a *Acquirer) LastError() *Error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastErr
}

func (a *Acquirer) consume(ctx context.Context, gen int, watch Watch, isRetry bool) {
	for {
		select {
		case pos, ok := <-watch.Positions():
			if !ok {
				return
			}
			if !a.handleSuccess(gen, pos) {
				return
			}
		case err, ok := <-watch.Errors():
			if !ok {
				return
			}
			watch.Stop()
			a.handleFailure(ctx, gen, Classify(err), isRetry)
			return
		case <-ctx.Done():
			watch.Stop()
			return
		}
	}
}

// handleSuccess records an acquired position. Returns false when the event
// belongs to a superseded watch.
func (a *Acquirer) handleSuccess(gen int, pos Position) bool {
	a.mu.Lock()
	if gen != a.gen {
		a.mu.Unlock()
		return false
	}
	a.state = StateActive
	a.lastErr = nil
	a.mu.Unlock()

	if !pos.Cached {
		if err := a.store.SetLastKnownLocation(pos.Point); err != nil {
			log.Printf("Failed to persist last known location: %v", err)
		}
	}

	if a.callbacks.OnPosition != nil {
		a.callbacks.OnPosition(pos)
	}
	return true
}

func (a *Acquirer) handleFailure(ctx context.Context, gen int, failure *Error, isRetry bool) {
	a.mu.Lock()
	if gen != a.gen {
		a.mu.Unlock()
		return
	}
	a.state = StateFailed
	a.lastErr = failure
	a.watch = nil
	a.mu.Unlock()

	log.Printf("Location acquisition failed: %s", failure.Message())
	if a.callbacks.OnFailure != nil {
		a.callbacks.OnFailure(failure)
	}

	// An explicit retry reattempts the watch only.
	if isRetry {
		return
	}

	// Fallback 1: one-shot fix
	pos, err := a.source.Current(ctx, a.opts)
	if err == nil {
		a.handleSuccess(gen, pos)
		return
	}
	log.Printf("One-shot location fix failed: %v", err)

	// Fallback 2: persisted last known good position
	if last, ok := a.store.LastKnownLocation(); ok {
		a.notify("Using last known location.")
		a.handleSuccess(gen, Position{Point: last, Timestamp: time.Now(), Cached: true})
		return
	}

	a.notify("No previous location available.")
}

func (a *Acquirer) notify(msg string) {
	if a.callbacks.OnNotice != nil {
		a.callbacks.OnNotice(msg)
	}
}
