// Package app assembles a configured workflow: it opens the datastore,
// builds the collaborator adapters selected by the configuration and
// checks their credentials before anything runs.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"

	"google.golang.org/api/option"

	"github.com/smallnest/reelgraph/config"
	"github.com/smallnest/reelgraph/content"
	"github.com/smallnest/reelgraph/graph"
	"github.com/smallnest/reelgraph/log"
	"github.com/smallnest/reelgraph/store"
	"github.com/smallnest/reelgraph/store/file"
	"github.com/smallnest/reelgraph/store/memory"
	"github.com/smallnest/reelgraph/store/postgres"
	"github.com/smallnest/reelgraph/store/redis"
	"github.com/smallnest/reelgraph/store/sqlite"
	"github.com/smallnest/reelgraph/tool"
	"github.com/smallnest/reelgraph/workflow"
)

// NewLogger creates the CLI logger at the configured level.
func NewLogger(cfg *config.Config, out io.Writer) (log.Logger, error) {
	level, err := log.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return nil, &config.Error{Problems: []string{err.Error()}}
	}
	return log.NewCLILogger(out, level), nil
}

// OpenDatastore opens the configured datastore.
func OpenDatastore(ctx context.Context, cfg *config.Config) (store.Datastore, error) {
	dsn := cfg.Datastore.DSN
	switch cfg.Datastore.Driver {
	case "", "memory":
		return memory.New(), nil
	case "file":
		return file.New(dsn)
	case "sqlite":
		return sqlite.New(sqlite.Options{Path: dsn})
	case "postgres":
		return postgres.New(ctx, postgres.Options{ConnString: dsn})
	case "redis":
		if strings.Contains(dsn, "://") {
			return redis.NewFromURL(dsn, 0)
		}
		return redis.New(redis.Options{Addr: dsn}), nil
	default:
		return nil, &config.Error{Problems: []string{fmt.Sprintf("unknown datastore driver %q", cfg.Datastore.Driver)}}
	}
}

// Needs maps workflow dependencies to the collaborators whose credentials
// must be present. The datastore is always needed for run records.
func Needs(deps []workflow.Dependency) []config.Collaborator {
	needs := []config.Collaborator{config.NeedDatastore}
	add := func(c config.Collaborator) {
		if !slices.Contains(needs, c) {
			needs = append(needs, c)
		}
	}
	for _, d := range deps {
		switch d {
		case workflow.DependsSearch:
			add(config.NeedSearch)
		case workflow.DependsScripts, workflow.DependsPrompts, workflow.DependsImages, workflow.DependsVoice:
			add(config.NeedLLM)
		case workflow.DependsTracker:
			add(config.NeedTracker)
		case workflow.DependsAssets:
			add(config.NeedAssets)
		}
	}
	return needs
}

// NewSearcher creates the configured search provider.
func NewSearcher(cfg *config.Config) (workflow.Searcher, error) {
	switch cfg.Search.Provider {
	case "tavily":
		return tool.NewTavilySearch(cfg.Search.TavilyAPIKey)
	default:
		return tool.NewBraveSearch(cfg.Search.BraveAPIKey)
	}
}

// NewTracker creates the configured project tracker.
func NewTracker(cfg *config.Config, ds store.Datastore) (workflow.Tracker, error) {
	if cfg.Tracker.Driver == "notion" {
		return tool.NewNotionTracker(cfg.Tracker.NotionAPIKey, cfg.Tracker.NotionDatabaseID)
	}
	return tool.NewStoreTracker(ds), nil
}

// AssetStore is project storage the workflow writes to and the monitor reads.
type AssetStore interface {
	workflow.AssetStorage
	OpenFolder(ctx context.Context, name string) (content.Folder, error)
}

// NewAssetStore creates the configured asset store: a local drive under the
// asset root, or Google Drive.
func NewAssetStore(ctx context.Context, cfg *config.Config) (AssetStore, error) {
	if cfg.Assets.Driver != "gdrive" {
		d, err := tool.NewLocalDrive(cfg.Assets.Root)
		if err != nil {
			return nil, err
		}
		return d, nil
	}
	var opts []option.ClientOption
	if cfg.Assets.CredentialsFile != "" {
		opts = append(opts, tool.GoogleDriveCredentials(cfg.Assets.CredentialsFile))
	}
	d, err := tool.NewGoogleDrive(ctx, cfg.Assets.FolderID, opts...)
	if err != nil {
		return nil, err
	}
	return d, nil
}

// NewCollaborators builds the adapters for deps. Collaborators outside deps
// are left nil.
func NewCollaborators(ctx context.Context, cfg *config.Config, deps []workflow.Dependency, ds store.Datastore, logger log.Logger) (workflow.Collaborators, error) {
	c := workflow.Collaborators{Store: ds}
	var err error
	if slices.Contains(deps, workflow.DependsSearch) {
		if c.Search, err = NewSearcher(cfg); err != nil {
			return c, err
		}
	}
	if slices.Contains(deps, workflow.DependsCrawl) {
		c.Crawl = tool.NewCrawler()
	}

	needsModel := slices.Contains(deps, workflow.DependsScripts) || slices.Contains(deps, workflow.DependsPrompts)
	if needsModel {
		model, err := tool.NewOpenAIModel(cfg.LLM.APIKey, cfg.LLM.Model, cfg.LLM.BaseURL)
		if err != nil {
			return c, err
		}
		c.Scripts = tool.NewLLMScriptWriter(model,
			tool.WithScriptDuration(cfg.LLM.ScriptDuration),
			tool.WithScriptModelName(cfg.LLM.Model))
		prompts := tool.NewLLMPromptWriter(model)
		prompts.Logger = logger
		c.Prompts = prompts
	}
	if slices.Contains(deps, workflow.DependsImages) || slices.Contains(deps, workflow.DependsVoice) {
		client := tool.NewOpenAIClient(cfg.LLM.APIKey, cfg.LLM.BaseURL)
		c.Images = tool.NewOpenAIImageGenerator(client, cfg.LLM.ImageModel)
		c.Voice = tool.NewOpenAIVoiceGenerator(client, cfg.LLM.TTSModel, cfg.LLM.TTSVoice)
	}
	if slices.Contains(deps, workflow.DependsAssets) {
		if c.Assets, err = NewAssetStore(ctx, cfg); err != nil {
			return c, err
		}
	}
	if slices.Contains(deps, workflow.DependsTracker) {
		if c.Tracker, err = NewTracker(cfg, ds); err != nil {
			return c, err
		}
	}
	return c, nil
}

// WorkflowOptions derives workflow options from the configuration.
func WorkflowOptions(cfg *config.Config, logger log.Logger) workflow.Options {
	opts := workflow.DefaultOptions()
	opts.MaxCandidates = cfg.Search.MaxCandidates
	opts.PromptCount = cfg.Workflow.PromptCount
	opts.ImageCount = cfg.Workflow.ImageCount
	opts.MaxConcurrency = cfg.Workflow.MaxConcurrency
	opts.NodeTimeout = cfg.NodeTimeout()
	opts.VoiceTimeout = cfg.VoiceTimeout()
	opts.Logger = logger
	return opts
}

// App is an assembled workflow with the resources it owns.
type App struct {
	Config   *config.Config
	Logger   log.Logger
	Store    store.Datastore
	Workflow *workflow.Workflow
}

// Option adjusts workflow options after they are derived from the
// configuration.
type Option func(*workflow.Options)

// WithTracer records spans for every node the workflow runs.
func WithTracer(tracer *graph.Tracer) Option {
	return func(o *workflow.Options) { o.Tracer = tracer }
}

// Open checks credentials for the named nodes (all of them when empty),
// opens the datastore and builds the workflow.
func Open(ctx context.Context, cfg *config.Config, nodes []string, logger log.Logger, opts ...Option) (*App, error) {
	if logger == nil {
		logger = log.GetDefaultLogger()
	}
	deps := workflow.Uses(nodes...)
	if err := cfg.RequireCredentials(Needs(deps)...); err != nil {
		return nil, err
	}

	ds, err := OpenDatastore(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s datastore: %w", cfg.Datastore.Driver, err)
	}
	c, err := NewCollaborators(ctx, cfg, deps, ds, logger)
	if err != nil {
		return nil, errors.Join(err, ds.Close())
	}
	wopts := WorkflowOptions(cfg, logger)
	for _, opt := range opts {
		opt(&wopts)
	}
	w, err := workflow.New(c, wopts)
	if err != nil {
		return nil, errors.Join(err, ds.Close())
	}
	return &App{Config: cfg, Logger: logger, Store: ds, Workflow: w}, nil
}

// Close releases the datastore.
func (a *App) Close() error {
	return a.Store.Close()
}
