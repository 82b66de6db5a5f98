// Package guidance advances spoken turn-by-turn instructions as position
// samples arrive. The cursor over the instruction list only ever moves
// forward, one step per sample, and each step is spoken exactly once.
package guidance

import (
	"sync"

	"github.com/usiu-smartnav/wayfinder/internal/clients/routing"
	"github.com/usiu-smartnav/wayfinder/internal/lib/geo"
)

// DefaultProximityMeters is the distance at which the next step triggers.
const DefaultProximityMeters = 20.0

// noStep marks the cursor before any instruction has been spoken.
const noStep = -1

// Speaker voices an instruction. Implementations cancel any utterance
// still in progress before starting a new one, so at most one utterance is
// audible at a time. Speak is fire-and-forget.
type Speaker interface {
	Speak(text string)
	// Cancel silences any in-flight utterance.
	Cancel()
}

// Engine is the step-advancement state machine. It holds the active
// route's instructions and coordinates and the index of the last spoken
// step.
type Engine struct {
	speaker   Speaker
	threshold float64

	mu           sync.Mutex
	instructions []routing.Instruction
	coords       []geo.Point
	cursor       int
}

// NewEngine creates an engine speaking through the given speaker. A
// non-positive threshold selects the default proximity.
func NewEngine(speaker Speaker, thresholdMeters float64) *Engine {
	if thresholdMeters <= 0 {
		thresholdMeters = DefaultProximityMeters
	}
	return &Engine{
		speaker:   speaker,
		threshold: thresholdMeters,
		cursor:    noStep,
	}
}

// SetRoute installs a new instruction sequence and coordinate list,
// resetting the cursor. Called on activation and on every route change
// while active.
func (e *Engine) SetRoute(instructions []routing.Instruction, coords []geo.Point) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.instructions = instructions
	e.coords = coords
	e.cursor = noStep
}

// Clear empties the instruction list. The cursor is left as-is; it is
// reset on the next activation rather than on deactivation.
func (e *Engine) Clear() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.instructions = nil
	e.coords = nil
}

// Active reports whether the engine has instructions to guide through.
func (e *Engine) Active() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.instructions) > 0
}

// Cursor returns the index of the last spoken instruction, or -1 when none
// has been spoken.
func (e *Engine) Cursor() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cursor
}

// DistanceFromRoute returns the minimum distance in meters from p to the
// active route geometry. The bool is false when no route is installed.
func (e *Engine) DistanceFromRoute(p geo.Point) (float64, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.coords) == 0 {
		return 0, false
	}
	return geo.PointToPath(p, e.coords), true
}

// OnPosition evaluates one position sample. Only the step immediately
// after the cursor is considered: if the sample is within the proximity
// threshold of that step's route point, the step is spoken and the cursor
// advances to it. A sample within range of several upcoming steps still
// advances by at most one.
func (e *Engine) OnPosition(p geo.Point) {
	e.mu.Lock()

	next := e.cursor + 1
	if next >= len(e.instructions) {
		e.mu.Unlock()
		return
	}

	step := e.instructions[next]
	if step.WayPointIndex < 0 || step.WayPointIndex >= len(e.coords) {
		e.mu.Unlock()
		return
	}

	stepPoint := e.coords[step.WayPointIndex]
	if geo.Distance(p, stepPoint) >= e.threshold {
		e.mu.Unlock()
		return
	}

	e.cursor = next
	speaker := e.speaker
	e.mu.Unlock()

	// Speech is fire-and-forget; the speaker cancels any previous
	// utterance itself.
	if speaker != nil {
		speaker.Speak(step.Text)
	}
}
