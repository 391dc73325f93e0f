package graph

import (
	"errors"
	"fmt"
	"time"
)

// ErrorKind classifies a recorded failure.
type ErrorKind string

const (
	// ErrorKindFatal is a failure that stopped the run.
	ErrorKindFatal ErrorKind = "fatal"
	// ErrorKindNode is a recoverable failure of a sequential node.
	ErrorKindNode ErrorKind = "node"
	// ErrorKindBranch is a recoverable failure of a node running alongside siblings.
	ErrorKindBranch ErrorKind = "branch"
	// ErrorKindCancelled records a run-level cancellation.
	ErrorKindCancelled ErrorKind = "cancelled"
)

// ErrorCause describes what went wrong inside a node.
type ErrorCause string

const (
	CauseCollaborator ErrorCause = "collaborator"
	CauseTimeout      ErrorCause = "timeout"
	CausePanic        ErrorCause = "panic"
	CauseContract     ErrorCause = "contract"
	CauseMerge        ErrorCause = "merge"
	CauseCancelled    ErrorCause = "cancelled"
)

// ErrorRecord is the structured form of a failure kept in state.
type ErrorRecord struct {
	Node      string     `json:"node"`
	Kind      ErrorKind  `json:"kind"`
	Cause     ErrorCause `json:"cause"`
	Detail    string     `json:"detail"`
	Timestamp time.Time  `json:"timestamp"`
}

func (r ErrorRecord) String() string {
	return fmt.Sprintf("[%s/%s] %s: %s", r.Kind, r.Cause, r.Node, r.Detail)
}

// NodeError wraps a failure produced by a node.
type NodeError struct {
	Node  string
	Cause ErrorCause
	Err   error
}

func (e *NodeError) Error() string {
	return fmt.Sprintf("error in node %s (%s): %v", e.Node, e.Cause, e.Err)
}

func (e *NodeError) Unwrap() error {
	return e.Err
}

// RunError is returned by Invoke when a run ends in StatusFailed.
type RunError struct {
	Node   string
	Record ErrorRecord
	Err    error
}

func (e *RunError) Error() string {
	if e.Node == "" {
		return fmt.Sprintf("run failed: %v", e.Err)
	}
	return fmt.Sprintf("run failed at node %s: %v", e.Node, e.Err)
}

func (e *RunError) Unwrap() error {
	return e.Err
}

type fatalError struct {
	err error
}

func (e *fatalError) Error() string { return e.err.Error() }
func (e *fatalError) Unwrap() error { return e.err }

// Fatal marks err as fatal. A node returning a fatal error stops the run
// even if the node itself is not marked fatal.
func Fatal(err error) error {
	if err == nil {
		return nil
	}
	return &fatalError{err: err}
}

// IsFatal reports whether err was marked with Fatal.
func IsFatal(err error) bool {
	var fe *fatalError
	return errors.As(err, &fe)
}
