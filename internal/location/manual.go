package location

import (
	"context"
	"sync"
	"time"
)

// ManualSource is a Source fed programmatically. It backs the CLI (where
// positions are entered by hand) and tests. A watch delivers every position
// emitted after it starts; a one-shot fix returns the most recent emission,
// waiting up to the request timeout for the first one.
type ManualSource struct {
	mu       sync.Mutex
	last     *Position
	watchers map[*manualWatch]struct{}
	failure  error
}

// NewManualSource creates an empty manual source.
func NewManualSource() *ManualSource {
	return &ManualSource{watchers: make(map[*manualWatch]struct{})}
}

// Emit publishes a position to all active watches and records it as the
// source's current fix.
func (s *ManualSource) Emit(pos Position) {
	if pos.Timestamp.IsZero() {
		pos.Timestamp = time.Now()
	}

	s.mu.Lock()
	p := pos
	s.last = &p
	s.failure = nil
	watchers := make([]*manualWatch, 0, len(s.watchers))
	for w := range s.watchers {
		watchers = append(watchers, w)
	}
	s.mu.Unlock()

	for _, w := range watchers {
		w.deliver(pos)
	}
}

// FailWith makes subsequent watch and fix attempts fail with err until the
// next Emit. Use the package sentinels to exercise classification.
func (s *ManualSource) FailWith(err error) {
	s.mu.Lock()
	s.failure = err
	s.last = nil
	watchers := make([]*manualWatch, 0, len(s.watchers))
	for w := range s.watchers {
		watchers = append(watchers, w)
	}
	s.mu.Unlock()

	for _, w := range watchers {
		w.fail(err)
	}
}

// Watch implements Source.
func (s *ManualSource) Watch(ctx context.Context, opts Options) (Watch, error) {
	w := &manualWatch{
		source:    s,
		positions: make(chan Position, 16),
		errs:      make(chan error, 1),
	}

	s.mu.Lock()
	failure := s.failure
	s.watchers[w] = struct{}{}
	s.mu.Unlock()

	if failure != nil {
		w.fail(failure)
	}
	return w, nil
}

// Current implements Source: it returns the latest emission, waiting up to
// opts.Timeout for one to arrive. A sticky failure does not short-circuit
// the wait; the sensor may recover (Emit clears the failure) before the
// timeout, and only then is the stale failure returned.
func (s *ManualSource) Current(ctx context.Context, opts Options) (Position, error) {
	// Register the watcher under the same lock as the freshness check so
	// an Emit can never slip between them.
	w := &manualWatch{
		source:    s,
		positions: make(chan Position, 16),
		errs:      make(chan error, 1),
	}

	s.mu.Lock()
	if s.failure == nil && s.last != nil {
		pos := *s.last
		s.mu.Unlock()
		return pos, nil
	}
	failure := s.failure
	s.watchers[w] = struct{}{}
	s.mu.Unlock()
	defer w.Stop()

	timeout := opts.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case pos := <-w.positions:
		return pos, nil
	case err := <-w.errs:
		return Position{}, err
	case <-timer.C:
		if failure != nil {
			return Position{}, failure
		}
		return Position{}, ErrTimeout
	case <-ctx.Done():
		return Position{}, ctx.Err()
	}
}

func (s *ManualSource) remove(w *manualWatch) {
	s.mu.Lock()
	delete(s.watchers, w)
	s.mu.Unlock()
}

type manualWatch struct {
	source    *ManualSource
	mu        sync.Mutex
	stopped   bool
	positions chan Position
	errs      chan error
}

func (w *manualWatch) Positions() <-chan Position { return w.positions }
func (w *manualWatch) Errors() <-chan error       { return w.errs }

func (w *manualWatch) Stop() {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return
	}
	w.stopped = true
	close(w.positions)
	close(w.errs)
	w.mu.Unlock()

	w.source.remove(w)
}

func (w *manualWatch) deliver(pos Position) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return
	}
	select {
	case w.positions <- pos:
	default:
		// Drop when the consumer is behind; position samples are
		// replaceable.
	}
}

func (w *manualWatch) fail(err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return
	}
	select {
	case w.errs <- err:
	default:
	}
}
