package graph

import (
	"context"
	"sync"
	"time"
)

// NodeEvent represents different types of node events
type NodeEvent string

const (
	// NodeEventStart indicates a node has started execution
	NodeEventStart NodeEvent = "start"

	// NodeEventComplete indicates a node has completed and its patch was merged
	NodeEventComplete NodeEvent = "complete"

	// NodeEventError indicates a node failed
	NodeEventError NodeEvent = "error"

	// NodeEventSkipped indicates a node was never started
	NodeEventSkipped NodeEvent = "skipped"

	// NodeEventMerge indicates a patch was merged into the run state
	NodeEventMerge NodeEvent = "merge"

	// EventChainStart indicates the graph execution has started
	EventChainStart NodeEvent = "chain_start"

	// EventChainEnd indicates the graph execution has completed
	EventChainEnd NodeEvent = "chain_end"
)

// Event is delivered to listeners for every node and run transition.
type Event[S any] struct {
	RunID     string
	Event     NodeEvent
	NodeName  string
	State     S
	Error     error
	Duration  time.Duration
	Timestamp time.Time
}

// NodeListener receives engine events. Listeners are called from the
// executor goroutine and must not block for long.
type NodeListener[S any] interface {
	OnNodeEvent(ctx context.Context, event Event[S])
}

// NodeListenerFunc is a function adapter for NodeListener
type NodeListenerFunc[S any] func(ctx context.Context, event Event[S])

// OnNodeEvent implements the NodeListener interface
func (f NodeListenerFunc[S]) OnNodeEvent(ctx context.Context, event Event[S]) {
	f(ctx, event)
}

// EventRecorder is a NodeListener that keeps every event it sees.
type EventRecorder[S any] struct {
	mu     sync.Mutex
	events []Event[S]
}

// OnNodeEvent implements the NodeListener interface
func (r *EventRecorder[S]) OnNodeEvent(_ context.Context, event Event[S]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

// Events returns a copy of the recorded events.
func (r *EventRecorder[S]) Events() []Event[S] {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event[S], len(r.events))
	copy(out, r.events)
	return out
}

// Nodes returns the node names of recorded events of the given type, in order.
func (r *EventRecorder[S]) Nodes(kind NodeEvent) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var names []string
	for _, e := range r.events {
		if e.Event == kind {
			names = append(names, e.NodeName)
		}
	}
	return names
}

func notify[S any](ctx context.Context, listeners []NodeListener[S], event Event[S]) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	for _, l := range listeners {
		l.OnNodeEvent(ctx, event)
	}
}
