package events

import "sync"

// Emitter wraps the bus with the per-stage state machine: pending →
// active → complete|error. One emitter is shared across a run; stages set
// their name and total, report progress, and close out with CompleteStage,
// which guarantees the terminal i=n, pct=100 success event.
type Emitter struct {
	bus *Bus

	mu      sync.Mutex
	stage   string
	current int
	total   int
}

// NewEmitter returns an emitter over bus. A nil bus yields an emitter
// that swallows everything, which keeps library callers test-friendly.
func NewEmitter(bus *Bus) *Emitter {
	return &Emitter{bus: bus}
}

// SetStage opens a stage with an expected total. Progress resets to zero.
func (e *Emitter) SetStage(name string, total int) {
	e.mu.Lock()
	e.stage = name
	e.total = total
	e.current = 0
	e.mu.Unlock()
	e.emit(Event{Level: LevelInfo, Message: "stage started"})
}

// SetProgress advances the stage counter, optionally naming the item
// being worked on.
func (e *Emitter) SetProgress(i int, item string) {
	e.mu.Lock()
	e.current = i
	e.mu.Unlock()
	e.emit(Event{Level: LevelInfo, CurrentItem: item})
}

// Info emits an informational message at the current progress point.
func (e *Emitter) Info(msg string) { e.emit(Event{Level: LevelInfo, Message: msg}) }

// Warn emits a warning.
func (e *Emitter) Warn(msg string) { e.emit(Event{Level: LevelWarn, Message: msg}) }

// Error emits an error-severity event. It does not terminate the stage;
// the orchestrator owns error propagation.
func (e *Emitter) Error(msg string) { e.emit(Event{Level: LevelError, Message: msg}) }

// Success emits a success-severity message without closing the stage.
func (e *Emitter) Success(msg string) { e.emit(Event{Level: LevelSuccess, Message: msg}) }

// CompleteStage closes the stage. The emitted event always carries
// i=n and pct=100 regardless of where progress stood.
func (e *Emitter) CompleteStage(msg string) {
	e.mu.Lock()
	e.current = e.total
	e.mu.Unlock()
	if msg == "" {
		msg = "stage complete"
	}
	e.emit(Event{Level: LevelSuccess, Message: msg, Percent: 100})
}

// WithMetadata emits an info event carrying an opaque metadata bag.
func (e *Emitter) WithMetadata(msg string, md map[string]any) {
	e.emit(Event{Level: LevelInfo, Message: msg, Metadata: md})
}

func (e *Emitter) emit(ev Event) {
	if e.bus == nil {
		return
	}
	e.mu.Lock()
	ev.Stage = e.stage
	ev.Current = e.current
	ev.Total = e.total
	e.mu.Unlock()
	if ev.Total > 0 && ev.Percent == 0 {
		ev.Percent = 100 * float64(ev.Current) / float64(ev.Total)
	}
	e.bus.Emit(ev)
}
