package server

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/collectivehq/collectivist/pkg/pipeline"
)

// Run statuses, in lifecycle order.
const (
	RunQueued    = "queued"
	RunRunning   = "running"
	RunCompleted = "completed"
	RunFailed    = "failed"
)

// ErrUnknownRun is returned for lookups of unknown run ids.
var ErrUnknownRun = errors.New("unknown run")

// RunRecord is the externally visible state of one pipeline run.
type RunRecord struct {
	ID           string     `json:"run_id"`
	CollectionID string     `json:"collection_id"`
	Status       string     `json:"status"`
	QueuedAt     time.Time  `json:"queued_at"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
	Error        string     `json:"error,omitempty"`
}

// RunFunc executes one pipeline run for a collection root. The server
// injects the real pipeline; tests inject stubs.
type RunFunc func(ctx context.Context, root string, opts pipeline.Options) (*pipeline.Run, error)

// RunRegistry queues and tracks pipeline runs. Runs for different
// collections execute concurrently; runs for the same collection are
// serialized so two pipelines never fight over one index.
type RunRegistry struct {
	run RunFunc

	mu      sync.Mutex
	records map[string]*RunRecord
	perRoot map[string]*sync.Mutex
}

// NewRunRegistry returns a registry executing runs with fn.
func NewRunRegistry(fn RunFunc) *RunRegistry {
	return &RunRegistry{
		run:     fn,
		records: make(map[string]*RunRecord),
		perRoot: make(map[string]*sync.Mutex),
	}
}

func (r *RunRegistry) rootLock(root string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.perRoot[root] == nil {
		r.perRoot[root] = &sync.Mutex{}
	}
	return r.perRoot[root]
}

// Schedule queues a run and returns its record immediately. The run
// executes on its own goroutine; callers poll Get for progress.
func (r *RunRegistry) Schedule(ctx context.Context, c Collection, opts pipeline.Options) *RunRecord {
	rec := &RunRecord{
		ID:           uuid.NewString(),
		CollectionID: c.ID,
		Status:       RunQueued,
		QueuedAt:     time.Now().UTC(),
	}
	r.mu.Lock()
	r.records[rec.ID] = rec
	r.mu.Unlock()

	go func() {
		lock := r.rootLock(c.Path)
		lock.Lock()
		defer lock.Unlock()

		started := time.Now().UTC()
		r.update(rec, func(rr *RunRecord) {
			rr.Status = RunRunning
			rr.StartedAt = &started
		})

		_, err := r.run(ctx, c.Path, opts)

		finished := time.Now().UTC()
		r.update(rec, func(rr *RunRecord) {
			rr.FinishedAt = &finished
			if err != nil {
				rr.Status = RunFailed
				rr.Error = err.Error()
			} else {
				rr.Status = RunCompleted
			}
		})
	}()

	return r.snapshot(rec.ID)
}

func (r *RunRegistry) update(rec *RunRecord, fn func(*RunRecord)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn(rec)
}

// Get returns a copy of the record for id.
func (r *RunRegistry) Get(id string) (*RunRecord, error) {
	rec := r.snapshot(id)
	if rec == nil {
		return nil, ErrUnknownRun
	}
	return rec, nil
}

func (r *RunRegistry) snapshot(id string) *RunRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	if !ok {
		return nil
	}
	cp := *rec
	return &cp
}
