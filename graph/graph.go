package graph

import (
	"context"
	"errors"
	"time"
)

// END is a special constant used to represent the end node in the graph.
// The node with an edge to END is the terminal node of the run.
const END = "END"

var (
	// ErrEntryPointNotSet is returned when the entry point of the graph is not set.
	ErrEntryPointNotSet = errors.New("entry point not set")

	// ErrNodeNotFound is returned when a node is not found in the graph.
	ErrNodeNotFound = errors.New("node not found")

	// ErrDuplicateNode is returned when a node name is registered twice.
	ErrDuplicateNode = errors.New("duplicate node")

	// ErrSchemaNotSet is returned when a graph is compiled without a state schema.
	ErrSchemaNotSet = errors.New("state schema not set")

	// ErrErrorPatchNotSet is returned when a graph is compiled without a way to record errors in state.
	ErrErrorPatchNotSet = errors.New("error patch not set")

	// ErrCycle is returned when the graph contains a cycle.
	ErrCycle = errors.New("graph contains a cycle")

	// ErrUnreachableNode is returned when a node cannot be reached from the entry point.
	ErrUnreachableNode = errors.New("node unreachable from entry point")

	// ErrTerminalNode is returned when the graph does not have exactly one edge to END.
	ErrTerminalNode = errors.New("graph must have exactly one terminal node")

	// ErrDeadEnd is returned when a node other than the terminal node has no outgoing edge.
	ErrDeadEnd = errors.New("node has no outgoing edge")

	// ErrWriteConflict is returned when two nodes that may run concurrently declare the same overwrite field.
	ErrWriteConflict = errors.New("concurrent nodes declare the same overwrite field")

	// ErrUndeclaredWrite is returned when a node touches an overwrite field it did not declare.
	ErrUndeclaredWrite = errors.New("node wrote an undeclared overwrite field")

	// ErrNodeTimeout is returned when a node body exceeds its timeout.
	ErrNodeTimeout = errors.New("node timed out")

	// ErrRunCancelled is recorded when the run context is cancelled.
	ErrRunCancelled = errors.New("run cancelled")
)

// NodeFunc is the body of a node. It receives a snapshot of the state and
// returns a sparse patch describing the change. It must not retain the
// snapshot after returning.
type NodeFunc[S, U any] func(ctx context.Context, state S) (U, error)

// Node represents a node in the graph.
type Node[S, U any] struct {
	// Name is the unique identifier for the node.
	Name string

	// Description describes the functionality of the node.
	Description string

	// Function is the node body.
	Function NodeFunc[S, U]

	// Fatal marks a node whose failure aborts the run.
	Fatal bool

	// Timeout bounds a single execution of the node, retries included. Zero uses the graph default.
	Timeout time.Duration

	// Retry configures retries for recoverable failures. Nil disables retries.
	Retry *RetryPolicy

	// Writes lists the overwrite fields this node may set. Nil means the node
	// may set any overwrite field, which is only allowed for nodes that never
	// run alongside another node.
	Writes []string
}

// NodeOption configures a node when it is added to a graph.
type NodeOption func(*nodeSettings)

type nodeSettings struct {
	fatal   bool
	timeout time.Duration
	retry   *RetryPolicy
	writes  []string
}

// AsFatal marks the node as fatal: any failure stops the run.
func AsFatal() NodeOption {
	return func(s *nodeSettings) {
		s.fatal = true
	}
}

// WithTimeout sets the node timeout.
func WithTimeout(d time.Duration) NodeOption {
	return func(s *nodeSettings) {
		s.timeout = d
	}
}

// WithRetry sets the node retry policy.
func WithRetry(policy *RetryPolicy) NodeOption {
	return func(s *nodeSettings) {
		s.retry = policy
	}
}

// Writes declares the overwrite fields the node may set. Writes() with no
// arguments declares a node that only appends.
func Writes(fields ...string) NodeOption {
	return func(s *nodeSettings) {
		if s.writes == nil {
			s.writes = []string{}
		}
		s.writes = append(s.writes, fields...)
	}
}

// Edge represents an edge in the graph.
type Edge struct {
	// From is the name of the node from which the edge originates.
	From string

	// To is the name of the node to which the edge points.
	To string
}

// RunStatus is the lifecycle status of a run.
type RunStatus string

const (
	StatusPending             RunStatus = "pending"
	StatusRunning             RunStatus = "running"
	StatusCompleted           RunStatus = "completed"
	StatusCompletedWithErrors RunStatus = "completed_with_errors"
	StatusFailed              RunStatus = "failed"
)

// Terminal reports whether the status ends a run.
func (s RunStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCompletedWithErrors || s == StatusFailed
}

// Set returns a pointer to v. It is the usual way to fill an overwrite field of a patch.
func Set[T any](v T) *T {
	return &v
}
