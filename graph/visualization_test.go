package graph

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExporter(t *testing.T) {
	g := fanOutGraph(noop, noop, noop, noop)
	g.nodes["start"].Fatal = true
	exporter := NewExporter(g)

	t.Run("mermaid", func(t *testing.T) {
		mermaid := exporter.DrawMermaid()
		assert.Contains(t, mermaid, "flowchart TD")
		assert.Contains(t, mermaid, "START --> start")
		assert.Contains(t, mermaid, `start[["start"]]`)
		assert.Contains(t, mermaid, `a["a"]`)
		assert.Contains(t, mermaid, "start --> a")
		assert.Contains(t, mermaid, "c --> join")
		assert.Contains(t, mermaid, "join --> END")

		lr := exporter.DrawMermaidWithOptions(MermaidOptions{Direction: "LR"})
		assert.Contains(t, lr, "flowchart LR")
	})

	t.Run("dot", func(t *testing.T) {
		dot := exporter.DrawDOT()
		assert.Contains(t, dot, "digraph G {")
		assert.Contains(t, dot, "START -> start;")
		assert.Contains(t, dot, "b -> join;")
		assert.Contains(t, dot, "END [label=\"END\"")
	})
}

func TestTracer_ConcurrentSpans(t *testing.T) {
	tracer := NewTracer()
	var mu sync.Mutex
	var seen int
	tracer.AddHook(TraceHookFunc(func(context.Context, *TraceSpan) {
		mu.Lock()
		seen++
		mu.Unlock()
	}))

	root := tracer.StartSpan(context.Background(), TraceEventGraphStart, "")
	ctx := ContextWithSpan(context.Background(), root)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			span := tracer.StartSpan(ctx, TraceEventNodeStart, "n")
			tracer.EndSpan(ctx, span, nil)
		}()
	}
	wg.Wait()
	tracer.EndSpan(context.Background(), root, nil)

	spans := tracer.GetSpans()
	require.Len(t, spans, 21)
	for _, span := range spans {
		if span.ID != root.ID {
			assert.Equal(t, root.ID, span.ParentID)
			assert.Equal(t, TraceEventNodeEnd, span.Event)
		}
	}
	assert.Equal(t, TraceEventGraphEnd, root.Event)
	assert.Equal(t, 42, seen)

	tracer.Clear()
	assert.Empty(t, tracer.GetSpans())
}
