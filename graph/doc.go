// Package graph provides the execution engine for reelgraph workflows.
//
// A workflow is a directed acyclic graph of nodes operating on a shared
// state. Each node receives a value snapshot of the state and returns a
// sparse patch. The executor merges patches one at a time, in completion
// order, so nodes that run concurrently never observe or lose each other's
// updates.
//
// # Core Concepts
//
// ## State and patches
// The state S and the patch U are plain structs. Every exported field of U
// declares its merge policy with a struct tag and must match a field of S
// by name and type:
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
// NewStructSchema checks the pairing when the graph is built, so a renamed
// or retyped field fails at construction instead of silently dropping data
// at runtime.
//
// ## Nodes and edges
// AddEdge connects nodes. A node with several outgoing edges fans out and
// its successors run concurrently; a node with several incoming edges is a
// join and only becomes ready once all of its predecessors have finished.
// Exactly one node has an edge to END.
//
// ## Failures
// A node failure becomes an ErrorRecord written into the state through the
// error patch. Failures of fatal nodes, or errors wrapped with Fatal, stop
// the run: nodes not yet started are skipped and the run ends with
// StatusFailed. Other failures are recorded and the run continues, ending
// with StatusCompletedWithErrors.
//
// # Example Usage
//
//	g := graph.NewStateGraph[State, Update]()
//	g.SetSchema(graph.MustStructSchema[State, Update]())
//	g.SetErrorPatch(func(r graph.ErrorRecord) Update {
//	    return Update{Messages: []string{r.String()}}
//	})
//
//	g.AddNode("greet", "say hello", func(ctx context.Context, s State) (Update, error) {
//	    return Update{Messages: []string{"hello " + s.Topic}}, nil
//	}, graph.AsFatal(), graph.Writes())
//
//	g.SetEntryPoint("greet")
//	g.AddEdge("greet", graph.END)
//
//	runnable, err := g.Compile()
//	if err != nil {
//	    return err
//	}
//	result, err := runnable.Invoke(ctx, State{Topic: "gophers"})
package graph
