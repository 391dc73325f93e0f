package graph

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// TraceEvent is the kind of a trace span.
type TraceEvent string

const (
	TraceEventGraphStart    TraceEvent = "graph_start"
	TraceEventGraphEnd      TraceEvent = "graph_end"
	TraceEventNodeStart     TraceEvent = "node_start"
	TraceEventNodeEnd       TraceEvent = "node_end"
	TraceEventNodeError     TraceEvent = "node_error"
	TraceEventEdgeTraversal TraceEvent = "edge_traversal"
)

// TraceSpan records one run, one node execution or one edge traversal.
// A started span's Event moves to its end event when it is closed.
type TraceSpan struct {
	ID       string
	ParentID string
	RunID    string
	Event    TraceEvent

	NodeName string
	FromNode string
	ToNode   string

	// Attempts counts node function calls including retries.
	Attempts int

	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration
	Error     error
}

// Finished reports whether the span has been closed.
func (s *TraceSpan) Finished() bool {
	return !s.EndTime.IsZero()
}

// TraceHook receives spans when they start and when they end.
type TraceHook interface {
	OnEvent(ctx context.Context, span *TraceSpan)
}

// TraceHookFunc adapts a function to TraceHook.
type TraceHookFunc func(ctx context.Context, span *TraceSpan)

// OnEvent implements TraceHook.
func (f TraceHookFunc) OnEvent(ctx context.Context, span *TraceSpan) {
	f(ctx, span)
}

// Tracer collects spans and fans them out to hooks. It is safe for
// concurrent use; node spans are started from worker goroutines.
type Tracer struct {
	mu    sync.Mutex
	hooks []TraceHook
	spans map[string]*TraceSpan
}

func NewTracer() *Tracer {
	return &Tracer{spans: make(map[string]*TraceSpan)}
}

func (t *Tracer) AddHook(hook TraceHook) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.hooks = append(t.hooks, hook)
}

// StartSpan opens a span under the span carried by ctx, if any.
func (t *Tracer) StartSpan(ctx context.Context, event TraceEvent, nodeName string) *TraceSpan {
	span := &TraceSpan{
		ID:        uuid.NewString(),
		RunID:     RunIDFromContext(ctx),
		Event:     event,
		NodeName:  nodeName,
		StartTime: time.Now(),
	}
	if parent := SpanFromContext(ctx); parent != nil {
		span.ParentID = parent.ID
	}
	t.record(ctx, span)
	return span
}

// EndSpan closes span with err.
func (t *Tracer) EndSpan(ctx context.Context, span *TraceSpan, err error) {
	t.mu.Lock()
	span.EndTime = time.Now()
	span.Duration = span.EndTime.Sub(span.StartTime)
	span.Error = err
	switch span.Event {
	case TraceEventNodeStart:
		span.Event = TraceEventNodeEnd
		if err != nil {
			span.Event = TraceEventNodeError
		}
	case TraceEventGraphStart:
		span.Event = TraceEventGraphEnd
	}
	hooks := append([]TraceHook(nil), t.hooks...)
	t.mu.Unlock()

	for _, hook := range hooks {
		hook.OnEvent(ctx, span)
	}
}

// TraceEdgeTraversal records that from released to.
func (t *Tracer) TraceEdgeTraversal(ctx context.Context, from, to string) {
	now := time.Now()
	span := &TraceSpan{
		ID:        uuid.NewString(),
		RunID:     RunIDFromContext(ctx),
		Event:     TraceEventEdgeTraversal,
		FromNode:  from,
		ToNode:    to,
		StartTime: now,
		EndTime:   now,
	}
	if parent := SpanFromContext(ctx); parent != nil {
		span.ParentID = parent.ID
	}
	t.record(ctx, span)
}

func (t *Tracer) record(ctx context.Context, span *TraceSpan) {
	t.mu.Lock()
	t.spans[span.ID] = span
	hooks := append([]TraceHook(nil), t.hooks...)
	t.mu.Unlock()

	for _, hook := range hooks {
		hook.OnEvent(ctx, span)
	}
}

// GetSpans returns a snapshot of the collected spans keyed by ID.
func (t *Tracer) GetSpans() map[string]*TraceSpan {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]*TraceSpan, len(t.spans))
	for id, span := range t.spans {
		out[id] = span
	}
	return out
}

// NodeSpans returns the closed node spans in start order.
func (t *Tracer) NodeSpans() []*TraceSpan {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []*TraceSpan
	for _, span := range t.spans {
		if span.NodeName != "" && span.Finished() && span.Event != TraceEventEdgeTraversal {
			out = append(out, span)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out
}

func (t *Tracer) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.spans = make(map[string]*TraceSpan)
}

type spanKey struct{}

// ContextWithSpan returns ctx carrying span as the parent of new spans.
func ContextWithSpan(ctx context.Context, span *TraceSpan) context.Context {
	return context.WithValue(ctx, spanKey{}, span)
}

// SpanFromContext returns the span carried by ctx, or nil.
func SpanFromContext(ctx context.Context) *TraceSpan {
	span, _ := ctx.Value(spanKey{}).(*TraceSpan)
	return span
}
