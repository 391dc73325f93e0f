package graph

import (
	"context"
	"sync"
	"time"
)

// Checkpoint is a snapshot of the run state taken after a merge.
type Checkpoint[S any] struct {
	RunID     string
	NodeName  string
	Sequence  int
	State     S
	Timestamp time.Time
}

// Checkpointer persists checkpoints. A failing checkpointer is logged and
// never fails the run.
type Checkpointer[S any] interface {
	Save(ctx context.Context, cp Checkpoint[S]) error
}

// CheckpointerFunc is a function adapter for Checkpointer.
type CheckpointerFunc[S any] func(ctx context.Context, cp Checkpoint[S]) error

// Save implements Checkpointer.
func (f CheckpointerFunc[S]) Save(ctx context.Context, cp Checkpoint[S]) error {
	return f(ctx, cp)
}

// MemoryCheckpointer keeps checkpoints in memory, grouped by run.
type MemoryCheckpointer[S any] struct {
	mu   sync.Mutex
	runs map[string][]Checkpoint[S]
}

// NewMemoryCheckpointer creates an empty in-memory checkpointer.
func NewMemoryCheckpointer[S any]() *MemoryCheckpointer[S] {
	return &MemoryCheckpointer[S]{runs: make(map[string][]Checkpoint[S])}
}

// Save implements Checkpointer.
func (m *MemoryCheckpointer[S]) Save(_ context.Context, cp Checkpoint[S]) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[cp.RunID] = append(m.runs[cp.RunID], cp)
	return nil
}

// List returns the checkpoints of a run in save order.
func (m *MemoryCheckpointer[S]) List(runID string) []Checkpoint[S] {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Checkpoint[S](nil), m.runs[runID]...)
}

// Latest returns the last checkpoint of a run.
func (m *MemoryCheckpointer[S]) Latest(runID string) (Checkpoint[S], bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cps := m.runs[runID]
	if len(cps) == 0 {
		return Checkpoint[S]{}, false
	}
	return cps[len(cps)-1], true
}
