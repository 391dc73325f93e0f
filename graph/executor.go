package graph

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/smallnest/reelgraph/log"
)

var errNotStarted = errors.New("node not started")

// StateRunnable is a compiled graph that can be invoked any number of times.
// Each invocation owns its own state.
type StateRunnable[S, U any] struct {
	graph        *StateGraph[S, U]
	successors   map[string][]string
	predecessors map[string][]string
	topo         []string
	terminal     string
	concurrent   map[string]bool
	logger       log.Logger
}

// Result describes a finished run. It is returned for every run, failed ones included.
type Result[S any] struct {
	RunID     string
	State     S
	Status    RunStatus
	Completed []string
	Failed    []string
	Skipped   []string
	// Abandoned lists nodes that were running when the run failed.
	Abandoned []string
	Errors    []ErrorRecord
	Durations map[string]time.Duration
	StartedAt time.Time
	Elapsed   time.Duration
}

// Ran reports whether the node was started during the run.
func (r *Result[S]) Ran(name string) bool {
	return slices.Contains(r.Completed, name) || slices.Contains(r.Failed, name) || slices.Contains(r.Abandoned, name)
}

// Graph returns the graph the runnable was compiled from.
func (r *StateRunnable[S, U]) Graph() *StateGraph[S, U] {
	return r.graph
}

// Order returns the nodes in the order a sequential run would visit them.
func (r *StateRunnable[S, U]) Order() []string {
	return slices.Clone(r.topo)
}

// Terminal returns the node with the edge to END.
func (r *StateRunnable[S, U]) Terminal() string {
	return r.terminal
}

// Concurrent reports whether a node may run alongside another node.
func (r *StateRunnable[S, U]) Concurrent(name string) bool {
	return r.concurrent[name]
}

// Invoke runs the graph from the entry point until the terminal node
// finishes or the run fails. The returned error is a *RunError and is
// non-nil only when the run status is StatusFailed.
func (r *StateRunnable[S, U]) Invoke(ctx context.Context, initial S) (*Result[S], error) {
	indegree := make(map[string]int, len(r.topo))
	for _, name := range r.topo {
		indegree[name] = len(r.predecessors[name])
	}
	return r.execute(ctx, initial, plan{
		start:      []string{r.graph.entryPoint},
		indegree:   indegree,
		successors: r.successors,
		nodes:      r.topo,
	})
}

// InvokeNode runs a single node against state through the same timeout,
// retry and merge path as a full run.
func (r *StateRunnable[S, U]) InvokeNode(ctx context.Context, name string, state S) (*Result[S], error) {
	if _, ok := r.graph.nodes[name]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrNodeNotFound, name)
	}
	return r.execute(ctx, state, plan{
		start:    []string{name},
		indegree: map[string]int{name: 0},
		nodes:    []string{name},
	})
}

type plan struct {
	start      []string
	indegree   map[string]int
	successors map[string][]string
	nodes      []string
}

type nodeState int

const (
	nodePending nodeState = iota
	nodeRunning
	nodeDone
	nodeFailed
	nodeAbandoned
)

type nodeResult[U any] struct {
	name     string
	patch    U
	err      error
	attempts int
	duration time.Duration
}

// execution holds the mutable bookkeeping of one run. Apart from the worker
// goroutines started by launch, it is only touched by the executor goroutine.
type execution[S, U any] struct {
	r       *StateRunnable[S, U]
	parent  context.Context
	ctx     context.Context
	cancel  context.CancelFunc
	plan    plan
	state   S
	result  *Result[S]
	status  map[string]nodeState
	results chan nodeResult[U]
	sem     chan struct{}
	running int
	seq     int
	failure *RunError
	records []ErrorRecord
}

func (r *StateRunnable[S, U]) execute(parent context.Context, initial S, p plan) (*Result[S], error) {
	g := r.graph
	runID := RunIDFromContext(parent)
	if runID == "" {
		runID = uuid.NewString()
		parent = WithRunID(parent, runID)
	}
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	ex := &execution[S, U]{
		r:       r,
		parent:  parent,
		ctx:     ctx,
		cancel:  cancel,
		plan:    p,
		state:   initial,
		status:  make(map[string]nodeState, len(p.nodes)),
		results: make(chan nodeResult[U], len(p.nodes)),
		result: &Result[S]{
			RunID:     runID,
			Durations: make(map[string]time.Duration, len(p.nodes)),
			StartedAt: time.Now(),
		},
	}
	if g.maxConcurrency > 0 {
		ex.sem = make(chan struct{}, g.maxConcurrency)
	}

	var graphSpan *TraceSpan
	if g.tracer != nil {
		graphSpan = g.tracer.StartSpan(ctx, TraceEventGraphStart, "")
		ex.ctx = ContextWithSpan(ex.ctx, graphSpan)
	}

	r.logger.Debug("run %s started with %d nodes", runID, len(p.nodes))
	ex.notify(Event[S]{Event: EventChainStart})
	ex.applyStatus(StatusRunning)

	for _, name := range p.start {
		ex.launch(name)
	}

	done := parent.Done()
	for ex.running > 0 {
		select {
		case res := <-ex.results:
			ex.running--
			ex.handle(res)
		case <-done:
			done = nil
			ex.cancelRun()
		}
	}

	res := ex.finish()
	if g.tracer != nil {
		var err error
		if ex.failure != nil {
			err = ex.failure
		}
		g.tracer.EndSpan(ex.ctx, graphSpan, err)
	}
	if ex.failure != nil {
		return res, ex.failure
	}
	return res, nil
}

func (ex *execution[S, U]) launch(name string) {
	node := ex.r.graph.nodes[name]
	snapshot := ex.state
	ex.status[name] = nodeRunning
	ex.running++
	ex.r.logger.Debug("node %s started", name)
	ex.notify(Event[S]{Event: NodeEventStart, NodeName: name, State: snapshot})
	go ex.runNode(node, snapshot)
}

// runNode executes on a worker goroutine and must only touch ex.results.
func (ex *execution[S, U]) runNode(node *Node[S, U], snapshot S) {
	if ex.sem != nil {
		select {
		case ex.sem <- struct{}{}:
			defer func() { <-ex.sem }()
		case <-ex.ctx.Done():
			ex.results <- nodeResult[U]{name: node.Name, err: errNotStarted}
			return
		}
	}

	g := ex.r.graph
	ctx := withNodeName(ex.ctx, node.Name)
	var span *TraceSpan
	if g.tracer != nil {
		span = g.tracer.StartSpan(ctx, TraceEventNodeStart, node.Name)
		ctx = ContextWithSpan(ctx, span)
	}

	timeout := node.Timeout
	if timeout == 0 {
		timeout = g.defaultTimeout
	}

	start := time.Now()
	patch, attempts, err := runWithTimeout(ctx, timeout, func(ctx context.Context) (U, int, error) {
		return runWithRetry(ctx, node.Retry, node.Function, snapshot)
	})
	if span != nil {
		span.Attempts = attempts
		g.tracer.EndSpan(ctx, span, err)
	}
	ex.results <- nodeResult[U]{
		name:     node.Name,
		patch:    patch,
		err:      err,
		attempts: attempts,
		duration: time.Since(start),
	}
}

func (ex *execution[S, U]) handle(res nodeResult[U]) {
	node := ex.r.graph.nodes[res.name]
	ex.result.Durations[res.name] = res.duration

	if ex.failure != nil {
		ex.status[res.name] = nodeAbandoned
		ex.r.logger.Debug("node %s finished after the run failed, result discarded", res.name)
		return
	}

	if res.err == nil {
		if err := ex.checkWrites(node, res.patch); err != nil {
			ex.nodeFailed(node, CauseContract, err, true)
			return
		}
		if err := ex.merge(res.name, res.patch); err != nil {
			ex.nodeFailed(node, CauseMerge, err, true)
			return
		}
		ex.status[res.name] = nodeDone
		ex.result.Completed = append(ex.result.Completed, res.name)
		ex.r.logger.Debug("node %s completed in %v after %d attempt(s)", res.name, res.duration, res.attempts)
		ex.notify(Event[S]{Event: NodeEventComplete, NodeName: res.name, State: ex.state, Duration: res.duration})
		ex.release(res.name)
		return
	}

	if ex.parent.Err() != nil || errors.Is(res.err, errNotStarted) {
		ex.cancelRun()
		ex.status[res.name] = nodeAbandoned
		return
	}

	cause := classify(res.err)
	var pe *panicError
	if errors.As(res.err, &pe) {
		ex.r.logger.Error("node %s panicked: %v\n%s", res.name, pe.value, pe.stack)
	}
	ex.nodeFailed(node, cause, res.err, node.Fatal || IsFatal(res.err))
}

func (ex *execution[S, U]) nodeFailed(node *Node[S, U], cause ErrorCause, err error, fatal bool) {
	kind := ErrorKindNode
	switch {
	case fatal:
		kind = ErrorKindFatal
	case ex.r.concurrent[node.Name]:
		kind = ErrorKindBranch
	}

	record := ErrorRecord{
		Node:      node.Name,
		Kind:      kind,
		Cause:     cause,
		Detail:    err.Error(),
		Timestamp: time.Now(),
	}
	ex.status[node.Name] = nodeFailed
	ex.result.Failed = append(ex.result.Failed, node.Name)
	ex.recordError(record)
	ex.notify(Event[S]{Event: NodeEventError, NodeName: node.Name, State: ex.state, Error: err})

	if fatal {
		ex.r.logger.Error("node %s failed fatally: %v", node.Name, err)
		ex.failure = &RunError{
			Node:   node.Name,
			Record: record,
			Err:    &NodeError{Node: node.Name, Cause: cause, Err: err},
		}
		ex.cancel()
		return
	}

	ex.r.logger.Warn("node %s failed, continuing: %v", node.Name, err)
	ex.release(node.Name)
}

func (ex *execution[S, U]) cancelRun() {
	if ex.failure != nil {
		return
	}
	cause := context.Cause(ex.parent)
	if cause == nil {
		cause = context.Canceled
	}
	record := ErrorRecord{
		Node:      "run",
		Kind:      ErrorKindCancelled,
		Cause:     CauseCancelled,
		Detail:    fmt.Sprintf("%v: %v", ErrRunCancelled, cause),
		Timestamp: time.Now(),
	}
	ex.recordError(record)
	ex.failure = &RunError{
		Record: record,
		Err:    fmt.Errorf("%w: %w", ErrRunCancelled, cause),
	}
	ex.r.logger.Warn("run %s cancelled: %v", ex.result.RunID, cause)
	ex.cancel()
}

func (ex *execution[S, U]) release(name string) {
	for _, next := range ex.plan.successors[name] {
		if ex.r.graph.tracer != nil {
			ex.r.graph.tracer.TraceEdgeTraversal(ex.ctx, name, next)
		}
		ex.plan.indegree[next]--
		if ex.plan.indegree[next] == 0 {
			ex.launch(next)
		}
	}
}

func (ex *execution[S, U]) checkWrites(node *Node[S, U], patch U) error {
	if node.Writes == nil {
		return nil
	}
	for _, field := range ex.r.graph.schema.Touched(patch) {
		policy, _ := ex.r.graph.schema.Policy(field)
		if policy == Overwrite && !slices.Contains(node.Writes, field) {
			return fmt.Errorf("%w: %s set %s", ErrUndeclaredWrite, node.Name, field)
		}
	}
	return nil
}

func (ex *execution[S, U]) merge(name string, patch U) error {
	next, err := ex.r.graph.schema.Update(ex.state, patch)
	if err != nil {
		return err
	}
	ex.state = next
	ex.seq++
	ex.notify(Event[S]{Event: NodeEventMerge, NodeName: name, State: next})

	if cp := ex.r.graph.checkpointer; cp != nil {
		err := cp.Save(context.WithoutCancel(ex.parent), Checkpoint[S]{
			RunID:     ex.result.RunID,
			NodeName:  name,
			Sequence:  ex.seq,
			State:     next,
			Timestamp: time.Now(),
		})
		if err != nil {
			ex.r.logger.Warn("checkpoint after %s failed: %v", name, err)
		}
	}
	return nil
}

func (ex *execution[S, U]) recordError(record ErrorRecord) {
	ex.records = append(ex.records, record)
	if err := ex.merge(record.Node, ex.r.graph.errorPatch(record)); err != nil {
		ex.r.logger.Error("recording error of %s failed: %v", record.Node, err)
	}
}

func (ex *execution[S, U]) applyStatus(status RunStatus) {
	if ex.r.graph.statusPatch == nil || statusPatchDisabled(ex.parent) {
		return
	}
	if err := ex.merge("", ex.r.graph.statusPatch(status)); err != nil {
		ex.r.logger.Error("setting run status %s failed: %v", status, err)
	}
}

func (ex *execution[S, U]) finish() *Result[S] {
	res := ex.result
	for _, name := range ex.plan.nodes {
		switch ex.status[name] {
		case nodePending:
			res.Skipped = append(res.Skipped, name)
			ex.notify(Event[S]{Event: NodeEventSkipped, NodeName: name, State: ex.state})
		case nodeAbandoned:
			res.Abandoned = append(res.Abandoned, name)
		}
	}

	errs := ex.errorRecords()
	switch {
	case ex.failure != nil:
		res.Status = StatusFailed
	case len(errs) > 0:
		res.Status = StatusCompletedWithErrors
	default:
		res.Status = StatusCompleted
	}
	ex.applyStatus(res.Status)

	res.State = ex.state
	res.Errors = ex.errorRecords()
	res.Elapsed = time.Since(res.StartedAt)
	ex.r.logger.Info("run %s finished: %s (%d completed, %d failed, %d skipped) in %v",
		res.RunID, res.Status, len(res.Completed), len(res.Failed), len(res.Skipped), res.Elapsed)
	ex.notify(Event[S]{Event: EventChainEnd, State: ex.state, Duration: res.Elapsed})
	return res
}

func (ex *execution[S, U]) errorRecords() []ErrorRecord {
	if ex.r.graph.errorReader != nil {
		return slices.Clone(ex.r.graph.errorReader(ex.state))
	}
	return slices.Clone(ex.records)
}

func (ex *execution[S, U]) notify(event Event[S]) {
	event.RunID = ex.result.RunID
	notify(ex.parent, ex.r.graph.listeners, event)
}

func classify(err error) ErrorCause {
	var pe *panicError
	switch {
	case errors.As(err, &pe):
		return CausePanic
	case errors.Is(err, ErrNodeTimeout):
		return CauseTimeout
	case errors.Is(err, ErrUndeclaredWrite):
		return CauseContract
	default:
		return CauseCollaborator
	}
}
