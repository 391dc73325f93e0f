package graph

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"time"

	"github.com/smallnest/reelgraph/log"
)

// StateGraph is a directed acyclic graph of nodes operating on a shared
// state S. Nodes return sparse patches of type U which are merged into the
// state by a StateSchema.
//
// Example usage:
//
//	type State struct {
//	    Topic    string
//	    Messages []string
//	}
//
//	type Update struct {
//	    Topic    *string  `merge:"overwrite"`
//	    Messages []string `merge:"append"`
//	}
//
//	g := graph.NewStateGraph[State, Update]()
//	g.SetSchema(graph.MustStructSchema[State, Update]())
//	g.AddNode("greet", "say hello", func(ctx context.Context, s State) (Update, error) {
//	    return Update{Messages: []string{"hello " + s.Topic}}, nil
//	}, graph.Writes())
type StateGraph[S, U any] struct {
	// nodes is a map of node names to their corresponding Node objects
	nodes map[string]*Node[S, U]

	// order keeps node names in registration order
	order []string

	// edges is a slice of Edge objects representing the connections between nodes
	edges []Edge

	// entryPoint is the name of the entry point node in the graph
	entryPoint string

	schema         StateSchema[S, U]
	errorPatch     func(ErrorRecord) U
	errorReader    func(S) []ErrorRecord
	statusPatch    func(RunStatus) U
	maxConcurrency int
	defaultTimeout time.Duration
	checkpointer   Checkpointer[S]
	listeners      []NodeListener[S]
	tracer         *Tracer
	logger         log.Logger

	buildErrs []error
}

// NewStateGraph creates a new, empty graph.
func NewStateGraph[S, U any]() *StateGraph[S, U] {
	return &StateGraph[S, U]{
		nodes: make(map[string]*Node[S, U]),
	}
}

// AddNode adds a node. Registration problems are reported by Compile.
func (g *StateGraph[S, U]) AddNode(name, description string, fn NodeFunc[S, U], opts ...NodeOption) {
	if name == "" || name == END {
		g.buildErrs = append(g.buildErrs, fmt.Errorf("invalid node name %q", name))
		return
	}
	if _, ok := g.nodes[name]; ok {
		g.buildErrs = append(g.buildErrs, fmt.Errorf("%w: %s", ErrDuplicateNode, name))
		return
	}
	if fn == nil {
		g.buildErrs = append(g.buildErrs, fmt.Errorf("node %s has no function", name))
		return
	}

	var settings nodeSettings
	for _, opt := range opts {
		opt(&settings)
	}
	g.nodes[name] = &Node[S, U]{
		Name:        name,
		Description: description,
		Function:    fn,
		Fatal:       settings.fatal,
		Timeout:     settings.timeout,
		Retry:       settings.retry,
		Writes:      settings.writes,
	}
	g.order = append(g.order, name)
}

// AddEdge adds a new edge to the state graph between the "from" and "to" nodes.
// Several edges leaving one node fan out; several edges entering one node
// make it a join that waits for all of them.
func (g *StateGraph[S, U]) AddEdge(from, to string) {
	g.edges = append(g.edges, Edge{
		From: from,
		To:   to,
	})
}

// SetEntryPoint sets the entry point node name for the state graph.
func (g *StateGraph[S, U]) SetEntryPoint(name string) {
	g.entryPoint = name
}

// SetSchema sets the state schema for the graph.
func (g *StateGraph[S, U]) SetSchema(schema StateSchema[S, U]) {
	g.schema = schema
}

// SetErrorPatch sets how an error record is turned into a patch.
func (g *StateGraph[S, U]) SetErrorPatch(fn func(ErrorRecord) U) {
	g.errorPatch = fn
}

// SetErrorReader sets how the error records held in state are read back.
// Records that nodes append on their own then count toward the run status.
func (g *StateGraph[S, U]) SetErrorReader(fn func(S) []ErrorRecord) {
	g.errorReader = fn
}

// SetStatusPatch sets how the run status is written into state.
func (g *StateGraph[S, U]) SetStatusPatch(fn func(RunStatus) U) {
	g.statusPatch = fn
}

// SetMaxConcurrency bounds how many node bodies run at once. Zero means no bound.
func (g *StateGraph[S, U]) SetMaxConcurrency(n int) {
	g.maxConcurrency = n
}

// SetDefaultTimeout sets the timeout of nodes that do not declare one.
func (g *StateGraph[S, U]) SetDefaultTimeout(d time.Duration) {
	g.defaultTimeout = d
}

// SetCheckpointer sets the hook called after every merge.
func (g *StateGraph[S, U]) SetCheckpointer(cp Checkpointer[S]) {
	g.checkpointer = cp
}

// AddListener registers an event listener.
func (g *StateGraph[S, U]) AddListener(l NodeListener[S]) {
	g.listeners = append(g.listeners, l)
}

// SetTracer sets the tracer used for spans.
func (g *StateGraph[S, U]) SetTracer(t *Tracer) {
	g.tracer = t
}

// SetLogger sets the logger. The package default logger is used otherwise.
func (g *StateGraph[S, U]) SetLogger(l log.Logger) {
	g.logger = l
}

// Nodes returns the node names in registration order.
func (g *StateGraph[S, U]) Nodes() []string {
	return slices.Clone(g.order)
}

// Edges returns a copy of the edges.
func (g *StateGraph[S, U]) Edges() []Edge {
	return slices.Clone(g.edges)
}

// EntryPoint returns the entry point node name.
func (g *StateGraph[S, U]) EntryPoint() string {
	return g.entryPoint
}

// Compile validates the graph and returns a runnable.
func (g *StateGraph[S, U]) Compile() (*StateRunnable[S, U], error) {
	if len(g.buildErrs) > 0 {
		return nil, errors.Join(g.buildErrs...)
	}
	if g.entryPoint == "" {
		return nil, ErrEntryPointNotSet
	}
	if _, ok := g.nodes[g.entryPoint]; !ok {
		return nil, fmt.Errorf("%w: entry point %s", ErrNodeNotFound, g.entryPoint)
	}
	if g.schema == nil {
		return nil, ErrSchemaNotSet
	}
	if g.errorPatch == nil {
		return nil, ErrErrorPatchNotSet
	}

	successors := make(map[string][]string, len(g.nodes))
	predecessors := make(map[string][]string, len(g.nodes))
	terminal := ""
	terminals := 0
	seen := make(map[Edge]bool)
	for _, e := range g.edges {
		if _, ok := g.nodes[e.From]; !ok {
			return nil, fmt.Errorf("%w: edge source %s", ErrNodeNotFound, e.From)
		}
		if e.To == END {
			terminal = e.From
			terminals++
			continue
		}
		if _, ok := g.nodes[e.To]; !ok {
			return nil, fmt.Errorf("%w: edge target %s", ErrNodeNotFound, e.To)
		}
		if seen[e] {
			continue
		}
		seen[e] = true
		successors[e.From] = append(successors[e.From], e.To)
		predecessors[e.To] = append(predecessors[e.To], e.From)
	}
	if terminals != 1 {
		return nil, fmt.Errorf("%w: found %d edges to %s", ErrTerminalNode, terminals, END)
	}
	if len(successors[terminal]) > 0 {
		return nil, fmt.Errorf("%w: terminal node %s has other successors", ErrTerminalNode, terminal)
	}

	topo, err := topologicalOrder(g.order, successors, predecessors)
	if err != nil {
		return nil, err
	}

	reached := reachableFrom(g.entryPoint, successors)
	for _, name := range g.order {
		if !reached[name] {
			return nil, fmt.Errorf("%w: %s", ErrUnreachableNode, name)
		}
		if name != terminal && len(successors[name]) == 0 {
			return nil, fmt.Errorf("%w: %s", ErrDeadEnd, name)
		}
	}

	ancestors := ancestorSets(topo, predecessors)
	concurrent := make(map[string]bool, len(g.nodes))
	for i, a := range topo {
		for _, b := range topo[i+1:] {
			if ancestors[b][a] || ancestors[a][b] {
				continue
			}
			concurrent[a] = true
			concurrent[b] = true
			if err := g.checkWriteConflict(g.nodes[a], g.nodes[b]); err != nil {
				return nil, err
			}
		}
	}

	for _, name := range g.order {
		for _, field := range g.nodes[name].Writes {
			policy, ok := g.schema.Policy(field)
			if !ok {
				return nil, fmt.Errorf("%w: node %s declares unknown field %s", ErrInvalidSchema, name, field)
			}
			if policy != Overwrite {
				return nil, fmt.Errorf("%w: node %s declares %s field %s as a write", ErrInvalidSchema, name, policy, field)
			}
		}
	}

	logger := g.logger
	if logger == nil {
		logger = log.GetDefaultLogger()
	}
	return &StateRunnable[S, U]{
		graph:        g,
		successors:   successors,
		predecessors: predecessors,
		topo:         topo,
		terminal:     terminal,
		concurrent:   concurrent,
		logger:       logger,
	}, nil
}

func (g *StateGraph[S, U]) checkWriteConflict(a, b *Node[S, U]) error {
	if a.Writes == nil || b.Writes == nil {
		undeclared := a.Name
		if a.Writes != nil {
			undeclared = b.Name
		}
		return fmt.Errorf("%w: %s and %s may run together but %s does not declare its writes",
			ErrWriteConflict, a.Name, b.Name, undeclared)
	}
	for _, field := range a.Writes {
		if slices.Contains(b.Writes, field) {
			return fmt.Errorf("%w: %s and %s both write %s", ErrWriteConflict, a.Name, b.Name, field)
		}
	}
	return nil
}

// topologicalOrder returns the nodes in a dependency respecting order,
// breaking ties by registration order.
func topologicalOrder(order []string, successors, predecessors map[string][]string) ([]string, error) {
	rank := make(map[string]int, len(order))
	indegree := make(map[string]int, len(order))
	for i, name := range order {
		rank[name] = i
		indegree[name] = len(predecessors[name])
	}

	var ready []string
	for _, name := range order {
		if indegree[name] == 0 {
			ready = append(ready, name)
		}
	}

	topo := make([]string, 0, len(order))
	for len(ready) > 0 {
		sort.Slice(ready, func(i, j int) bool { return rank[ready[i]] < rank[ready[j]] })
		name := ready[0]
		ready = ready[1:]
		topo = append(topo, name)
		for _, next := range successors[name] {
			indegree[next]--
			if indegree[next] == 0 {
				ready = append(ready, next)
			}
		}
	}

	if len(topo) != len(order) {
		var stuck []string
		for _, name := range order {
			if indegree[name] > 0 {
				stuck = append(stuck, name)
			}
		}
		return nil, fmt.Errorf("%w: %v", ErrCycle, stuck)
	}
	return topo, nil
}

func reachableFrom(start string, successors map[string][]string) map[string]bool {
	reached := map[string]bool{start: true}
	queue := []string{start}
	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		for _, next := range successors[name] {
			if !reached[next] {
				reached[next] = true
				queue = append(queue, next)
			}
		}
	}
	return reached
}

// ancestorSets returns, for every node, the set of nodes that must finish before it.
func ancestorSets(topo []string, predecessors map[string][]string) map[string]map[string]bool {
	ancestors := make(map[string]map[string]bool, len(topo))
	for _, name := range topo {
		set := make(map[string]bool)
		for _, p := range predecessors[name] {
			set[p] = true
			for a := range ancestors[p] {
				set[a] = true
			}
		}
		ancestors[name] = set
	}
	return ancestors
}
