// Reelgraph - a content-generation workflow for short-form videos.
//
// Reelgraph turns a topic into a ready-to-edit video project. It searches
// for a recent news article, crawls it, writes a narration script with an
// LLM, generates image prompts, images and a voiceover in parallel, lays the
// assets out in a project folder and records the project in a tracker.
//
// # Quick Start
//
// Install the commands:
//
//	go install github.com/smallnest/reelgraph/cmd/...@latest
//
// Run the whole workflow:
//
//	export BRAVE_API_KEY=...
//	export OPENAI_API_KEY=...
//	reelgraph run "quantum computing news"
//
// Watch for edited videos:
//
//	reelmonitor check-all
//
// # Workflow
//
//	search -> crawl -> store_article -> generate_script -> store_script
//	    -> generate_prompts -> generate_images --+
//	    -> generate_voice -----------------------+-> organize_assets
//	    -> track_project -> finalize
//
// search and crawl are fatal: without an article nothing else can run.
// The three generation branches run concurrently; a failing branch
// contributes nothing and the run completes with errors.
//
// # Package Structure
//
// graph/
// The DAG engine: typed state, sparse patches merged by declared policy,
// bounded parallel execution, retries, timeouts, listeners, tracing,
// checkpoints and Mermaid export.
//
//	g := graph.NewStateGraph[State, Patch]()
//	g.AddNode("fetch", "Fetch the page", fetch)
//	g.AddEdge("fetch", graph.END)
//	g.SetEntryPoint("fetch")
//	runnable, _ := g.Compile()
//	res, err := runnable.Invoke(ctx, State{URL: url})
//
// workflow/
// The production workflow built on graph: node functions, collaborator
// interfaces, component runs and the run summary.
//
// content/
// Articles, scripts, assets, projects and the naming rules for keys and
// folders.
//
// store/
// Datastores keyed by record kind and natural key, with memory, file,
// sqlite, postgres and redis backends and a graph checkpointer.
//
// tool/
// Collaborator adapters: Brave and Tavily search, the article crawler,
// LLM script and prompt writers, OpenAI image and voice generation, local
// or Google Drive asset storage and Notion or datastore project trackers.
//
// config/
// Defaults, an optional TOML file, environment overrides and validation.
//
// app/
// Assembles a configured workflow for the commands.
//
// monitor/
// Finds edited videos in project final_draft folders and marks their
// projects "Video Ready".
//
// log/
// The Logger interface and its golog backed implementation.
package reelgraph // import "github.com/smallnest/reelgraph"
