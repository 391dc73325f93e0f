package workflow

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/smallnest/reelgraph/graph"
	"github.com/smallnest/reelgraph/log"
	"github.com/smallnest/reelgraph/store"
)

// ErrMissingCollaborator is returned when a node is run without the service it calls.
var ErrMissingCollaborator = errors.New("collaborator not configured")

// Options tunes a Workflow.
type Options struct {
	MaxCandidates  int
	PromptCount    int
	ImageCount     int
	MaxConcurrency int
	NodeTimeout    time.Duration
	VoiceTimeout   time.Duration
	Retry          *graph.RetryPolicy
	Logger         log.Logger
	Listeners      []graph.NodeListener[State]
	Tracer         *graph.Tracer
	Now            func() time.Time

	// Checkpoints saves the state after every merge to the datastore.
	Checkpoints bool
}

// DefaultOptions returns the options of a standard run.
func DefaultOptions() Options {
	return Options{
		MaxCandidates:  5,
		PromptCount:    5,
		ImageCount:     5,
		MaxConcurrency: 3,
		NodeTimeout:    2 * time.Minute,
		VoiceTimeout:   3 * time.Minute,
		Checkpoints:    true,
		Retry:          TemporaryRetry(),
	}
}

type temporary interface {
	Temporary() bool
}

// IsTemporary reports whether err says a retry may succeed.
func IsTemporary(err error) bool {
	var t temporary
	return errors.As(err, &t) && t.Temporary()
}

// TemporaryRetry retries rate limits and server errors of collaborators.
func TemporaryRetry() *graph.RetryPolicy {
	policy := graph.DefaultRetryPolicy()
	policy.Retryable = IsTemporary
	return policy
}

// Dependency names a collaborator a node calls.
type Dependency string

const (
	DependsSearch  Dependency = "search"
	DependsCrawl   Dependency = "crawl"
	DependsStore   Dependency = "datastore"
	DependsScripts Dependency = "scripts"
	DependsPrompts Dependency = "prompts"
	DependsImages  Dependency = "images"
	DependsVoice   Dependency = "voice"
	DependsAssets  Dependency = "assets"
	DependsTracker Dependency = "tracker"
)

var nodeDeps = map[string]Dependency{
	NodeSearch:          DependsSearch,
	NodeCrawl:           DependsCrawl,
	NodeStoreArticle:    DependsStore,
	NodeGenerateScript:  DependsScripts,
	NodeStoreScript:     DependsStore,
	NodeGeneratePrompts: DependsPrompts,
	NodeGenerateImages:  DependsImages,
	NodeGenerateVoice:   DependsVoice,
	NodeOrganizeAssets:  DependsAssets,
	NodeTrackProject:    DependsTracker,
}

// Uses returns the collaborators the named nodes call. No names means every node.
func Uses(names ...string) []Dependency {
	if len(names) == 0 {
		names = NodeNames()
	}
	var deps []Dependency
	for _, name := range names {
		if d, ok := nodeDeps[name]; ok && !slices.Contains(deps, d) {
			deps = append(deps, d)
		}
	}
	return deps
}

// NodeNames returns the nodes in graph order.
func NodeNames() []string {
	return []string{
		NodeSearch, NodeCrawl, NodeStoreArticle, NodeGenerateScript, NodeStoreScript,
		NodeGeneratePrompts, NodeGenerateImages, NodeGenerateVoice,
		NodeOrganizeAssets, NodeTrackProject, NodeFinalize,
	}
}

func (c Collaborators) has(d Dependency) bool {
	switch d {
	case DependsSearch:
		return c.Search != nil
	case DependsCrawl:
		return c.Crawl != nil
	case DependsStore:
		return c.Store != nil
	case DependsScripts:
		return c.Scripts != nil
	case DependsPrompts:
		return c.Prompts != nil
	case DependsImages:
		return c.Images != nil
	case DependsVoice:
		return c.Voice != nil
	case DependsAssets:
		return c.Assets != nil
	case DependsTracker:
		return c.Tracker != nil
	}
	return false
}

// Workflow is the compiled content production graph.
type Workflow struct {
	c        Collaborators
	opts     Options
	graph    *graph.StateGraph[State, Update]
	runnable *graph.StateRunnable[State, Update]
}

// New builds and compiles the production graph.
func New(c Collaborators, opts Options) (*Workflow, error) {
	defaults := DefaultOptions()
	if opts.MaxCandidates <= 0 {
		opts.MaxCandidates = defaults.MaxCandidates
	}
	if opts.PromptCount <= 0 {
		opts.PromptCount = defaults.PromptCount
	}
	if opts.ImageCount < 0 {
		opts.ImageCount = 0
	}
	if opts.Retry == nil {
		opts.Retry = defaults.Retry
	}
	if opts.Logger == nil {
		opts.Logger = log.GetDefaultLogger()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	g := Build(c, opts)
	r, err := g.Compile()
	if err != nil {
		return nil, fmt.Errorf("failed to compile workflow: %w", err)
	}
	return &Workflow{c: c, opts: opts, graph: g, runnable: r}, nil
}

// Build wires the production graph:
//
//	search -> crawl -> store_article -> generate_script -> store_script
//	  -> {generate_prompts, generate_images, generate_voice}
//	  -> organize_assets -> track_project -> finalize
func Build(c Collaborators, opts Options) *graph.StateGraph[State, Update] {
	n := &nodes{c: c, opts: opts}
	g := graph.NewStateGraph[State, Update]()
	g.SetSchema(graph.MustStructSchema[State, Update]())
	g.SetErrorPatch(errorPatch)
	g.SetErrorReader(errorReader)
	g.SetStatusPatch(statusPatch)
	g.SetMaxConcurrency(opts.MaxConcurrency)
	g.SetDefaultTimeout(opts.NodeTimeout)
	g.SetLogger(opts.Logger)
	if opts.Tracer != nil {
		g.SetTracer(opts.Tracer)
	}
	for _, l := range opts.Listeners {
		g.AddListener(l)
	}
	if opts.Checkpoints && c.Store != nil {
		g.SetCheckpointer(store.NewCheckpointer[State](c.Store))
	}

	g.AddNode(NodeSearch, "find candidate articles for the topic", n.search,
		graph.AsFatal(), graph.WithRetry(opts.Retry), graph.Writes("Phase", "Candidates"))
	g.AddNode(NodeCrawl, "extract the first crawlable candidate", n.crawl,
		graph.AsFatal(), graph.Writes("Phase", "Article"))
	g.AddNode(NodeStoreArticle, "upsert the article by URL hash", n.storeArticle,
		graph.WithRetry(opts.Retry), graph.Writes("Phase", "ArticleID"))
	g.AddNode(NodeGenerateScript, "write the video script", n.generateScript,
		graph.WithRetry(opts.Retry), graph.Writes("Phase", "Script"))
	g.AddNode(NodeStoreScript, "upsert the script by content hash", n.storeScript,
		graph.WithRetry(opts.Retry), graph.Writes("Phase", "ScriptID"))
	g.AddNode(NodeGeneratePrompts, "derive visual prompts", n.generatePrompts,
		graph.WithRetry(opts.Retry), graph.Writes())
	g.AddNode(NodeGenerateImages, "render scene images", n.generateImages,
		graph.Writes())
	g.AddNode(NodeGenerateVoice, "synthesize the voiceover", n.generateVoice,
		graph.WithTimeout(opts.VoiceTimeout), graph.Writes())
	g.AddNode(NodeOrganizeAssets, "lay out the project folder", n.organizeAssets,
		graph.Writes("Phase", "Folder", "FolderPath", "Organized"))
	g.AddNode(NodeTrackProject, "register the project", n.trackProject,
		graph.WithRetry(opts.Retry), graph.Writes("Phase", "ProjectID"))
	g.AddNode(NodeFinalize, "summarize the run", n.finalize,
		graph.Writes("Phase", "Summary"))

	g.SetEntryPoint(NodeSearch)
	g.AddEdge(NodeSearch, NodeCrawl)
	g.AddEdge(NodeCrawl, NodeStoreArticle)
	g.AddEdge(NodeStoreArticle, NodeGenerateScript)
	g.AddEdge(NodeGenerateScript, NodeStoreScript)
	for _, branch := range []string{NodeGeneratePrompts, NodeGenerateImages, NodeGenerateVoice} {
		g.AddEdge(NodeStoreScript, branch)
		g.AddEdge(branch, NodeOrganizeAssets)
	}
	g.AddEdge(NodeOrganizeAssets, NodeTrackProject)
	g.AddEdge(NodeTrackProject, NodeFinalize)
	g.AddEdge(NodeFinalize, graph.END)
	return g
}

// Graph returns the underlying graph.
func (w *Workflow) Graph() *graph.StateGraph[State, Update] {
	return w.graph
}

// Mermaid renders the graph as a Mermaid flowchart.
func (w *Workflow) Mermaid() string {
	return graph.NewExporter(w.graph).DrawMermaid()
}

// DOT renders the graph in Graphviz DOT format.
func (w *Workflow) DOT() string {
	return graph.NewExporter(w.graph).DrawDOT()
}

func (w *Workflow) require(names []string) error {
	var missing []string
	for _, d := range Uses(names...) {
		if !w.c.has(d) {
			missing = append(missing, string(d))
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %v", ErrMissingCollaborator, missing)
	}
	return nil
}

// Run executes the whole graph for topic. The result is returned even when
// the run fails; the error is non-nil only for failed runs and missing
// collaborators.
func (w *Workflow) Run(ctx context.Context, topic string) (*graph.Result[State], error) {
	if err := w.require(nil); err != nil {
		return nil, err
	}
	res, err := w.runnable.Invoke(ctx, NewState(topic, w.opts.Now()))
	w.saveRun(ctx, res)
	return res, err
}

// RunComponents runs only the named nodes, in the given order, against a
// fresh state. It is meant for exercising single collaborators.
func (w *Workflow) RunComponents(ctx context.Context, topic string, names []string) (*graph.Result[State], error) {
	for _, name := range names {
		if !slices.Contains(w.graph.Nodes(), name) {
			return nil, fmt.Errorf("%w: %s", graph.ErrNodeNotFound, name)
		}
	}
	if err := w.require(names); err != nil {
		return nil, err
	}

	state := NewState(topic, w.opts.Now())
	total := &graph.Result[State]{
		State:     state,
		Durations: make(map[string]time.Duration, len(names)),
		StartedAt: state.StartedAt,
	}
	total.RunID = "components-" + state.StartedAt.UTC().Format("20060102T150405.000")
	// The status is set once below, after the last node.
	ctx = graph.WithoutStatusPatch(ctx)
	var runErr error
	for i, name := range names {
		// Checkpoint sequences restart with every invocation.
		res, err := w.runnable.InvokeNode(graph.WithRunID(ctx, total.RunID+"/"+name), name, state)
		if res == nil {
			return nil, err
		}
		total.Completed = append(total.Completed, res.Completed...)
		total.Failed = append(total.Failed, res.Failed...)
		total.Abandoned = append(total.Abandoned, res.Abandoned...)
		for node, d := range res.Durations {
			total.Durations[node] = d
		}
		state = res.State
		if err != nil {
			runErr = err
			total.Skipped = append(total.Skipped, names[i+1:]...)
			break
		}
	}

	total.Errors = state.Errors
	switch {
	case runErr != nil:
		total.Status = graph.StatusFailed
	case len(state.Errors) > 0:
		total.Status = graph.StatusCompletedWithErrors
	default:
		total.Status = graph.StatusCompleted
	}
	state.Status = statusOf(total.Status)
	total.State = state
	total.Elapsed = w.opts.Now().Sub(total.StartedAt)
	w.saveRun(ctx, total)
	return total, runErr
}

// RunRecord is the stored outcome of a run.
type RunRecord struct {
	RunID     string        `json:"run_id"`
	Status    string        `json:"status"`
	State     State         `json:"state"`
	Completed []string      `json:"completed,omitempty"`
	Failed    []string      `json:"failed,omitempty"`
	Skipped   []string      `json:"skipped,omitempty"`
	Abandoned []string      `json:"abandoned,omitempty"`
	StartedAt time.Time     `json:"started_at"`
	Elapsed   time.Duration `json:"elapsed"`
}

func (w *Workflow) saveRun(ctx context.Context, res *graph.Result[State]) {
	if res == nil || w.c.Store == nil {
		return
	}
	rec := RunRecord{
		RunID:     res.RunID,
		Status:    res.State.Status,
		State:     res.State,
		Completed: res.Completed,
		Failed:    res.Failed,
		Skipped:   res.Skipped,
		Abandoned: res.Abandoned,
		StartedAt: res.StartedAt,
		Elapsed:   res.Elapsed,
	}
	if _, err := w.c.Store.Upsert(context.WithoutCancel(ctx), store.KindRun, res.RunID, rec); err != nil {
		w.opts.Logger.Warn("failed to save run %s: %v", res.RunID, err)
	}
}

// LoadRun reads a stored run.
func LoadRun(ctx context.Context, ds store.Datastore, runID string) (*RunRecord, error) {
	rec, err := ds.GetByKey(ctx, store.KindRun, runID)
	if err != nil {
		return nil, err
	}
	var run RunRecord
	if err := rec.Decode(&run); err != nil {
		return nil, err
	}
	return &run, nil
}
