package graph

import "context"

type runIDKey struct{}

type nodeNameKey struct{}

type keepStatusKey struct{}

// WithRunID adds the run identifier to the context.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey{}, runID)
}

// RunIDFromContext returns the run identifier, or "" outside a run.
func RunIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(runIDKey{}).(string)
	return id
}

func withNodeName(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, nodeNameKey{}, name)
}

// NodeNameFromContext returns the name of the node being executed.
func NodeNameFromContext(ctx context.Context) string {
	name, _ := ctx.Value(nodeNameKey{}).(string)
	return name
}

// WithoutStatusPatch makes runs started with ctx leave the state's status
// alone. Callers that chain several invocations into one logical run use it
// to set the status once themselves.
func WithoutStatusPatch(ctx context.Context) context.Context {
	return context.WithValue(ctx, keepStatusKey{}, true)
}

func statusPatchDisabled(ctx context.Context) bool {
	off, _ := ctx.Value(keepStatusKey{}).(bool)
	return off
}
