package app

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smallnest/reelgraph/config"
	"github.com/smallnest/reelgraph/graph"
	"github.com/smallnest/reelgraph/store"
	"github.com/smallnest/reelgraph/tool"
	"github.com/smallnest/reelgraph/workflow"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Assets.Root = t.TempDir()
	return &cfg
}

func TestNeeds(t *testing.T) {
	assert.Equal(t, []config.Collaborator{config.NeedDatastore}, Needs(workflow.Uses(workflow.NodeCrawl)))
	assert.Equal(t,
		[]config.Collaborator{config.NeedDatastore, config.NeedSearch, config.NeedLLM, config.NeedAssets, config.NeedTracker},
		Needs(workflow.Uses()))
	assert.Equal(t,
		[]config.Collaborator{config.NeedDatastore, config.NeedLLM},
		Needs(workflow.Uses(workflow.NodeGenerateImages, workflow.NodeGenerateVoice)))
}

func TestOpenDatastore(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)

	tests := []struct {
		driver string
		dsn    string
	}{
		{"memory", ""},
		{"file", filepath.Join(t.TempDir(), "records")},
		{"sqlite", filepath.Join(t.TempDir(), "reelgraph.db")},
		{"redis", mr.Addr()},
		{"redis", "redis://" + mr.Addr() + "/0"},
	}
	for _, tt := range tests {
		t.Run(tt.driver, func(t *testing.T) {
			cfg := testConfig(t)
			cfg.Datastore.Driver = tt.driver
			cfg.Datastore.DSN = tt.dsn

			ds, err := OpenDatastore(ctx, cfg)
			require.NoError(t, err)
			defer ds.Close()

			id, err := ds.Upsert(ctx, store.KindArticle, "k", map[string]string{"title": "qubits"})
			require.NoError(t, err)
			rec, err := ds.GetByKey(ctx, store.KindArticle, "k")
			require.NoError(t, err)
			assert.Equal(t, id, rec.ID)
		})
	}
}

func TestOpenDatastore_UnknownDriver(t *testing.T) {
	cfg := testConfig(t)
	cfg.Datastore.Driver = "mongo"
	_, err := OpenDatastore(context.Background(), cfg)
	assert.True(t, config.IsConfigError(err))
}

func TestNewCollaborators(t *testing.T) {
	cfg := testConfig(t)
	cfg.Search.BraveAPIKey = "brave"
	cfg.LLM.APIKey = "sk-test"
	ds, err := OpenDatastore(context.Background(), cfg)
	require.NoError(t, err)

	c, err := NewCollaborators(context.Background(), cfg, workflow.Uses(), ds, nil)
	require.NoError(t, err)
	assert.IsType(t, &tool.BraveSearch{}, c.Search)
	assert.IsType(t, &tool.Crawler{}, c.Crawl)
	assert.IsType(t, &tool.LLMScriptWriter{}, c.Scripts)
	assert.IsType(t, &tool.LLMPromptWriter{}, c.Prompts)
	assert.IsType(t, &tool.OpenAIImageGenerator{}, c.Images)
	assert.IsType(t, &tool.OpenAIVoiceGenerator{}, c.Voice)
	assert.IsType(t, &tool.LocalDrive{}, c.Assets)
	assert.IsType(t, &tool.StoreTracker{}, c.Tracker)
	assert.Equal(t, ds, c.Store)

	cfg.Search.Provider = "tavily"
	cfg.Search.TavilyAPIKey = "tv"
	cfg.Tracker.Driver = "notion"
	cfg.Tracker.NotionAPIKey = "secret"
	cfg.Tracker.NotionDatabaseID = "db"
	c, err = NewCollaborators(context.Background(), cfg, workflow.Uses(workflow.NodeSearch, workflow.NodeTrackProject), ds, nil)
	require.NoError(t, err)
	assert.IsType(t, &tool.TavilySearch{}, c.Search)
	assert.IsType(t, &tool.NotionTracker{}, c.Tracker)
	assert.Nil(t, c.Crawl)
	assert.Nil(t, c.Scripts)
}

func TestNewAssetStore(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)

	assets, err := NewAssetStore(ctx, cfg)
	require.NoError(t, err)
	assert.IsType(t, &tool.LocalDrive{}, assets)

	cfg.Assets.Driver = "gdrive"
	cfg.Assets.FolderID = "folder-1"
	cfg.Assets.CredentialsFile = filepath.Join(t.TempDir(), "missing.json")
	_, err = NewAssetStore(ctx, cfg)
	assert.Error(t, err)
}

func TestOpen_GoogleDriveNeedsCredentials(t *testing.T) {
	cfg := testConfig(t)
	cfg.Assets.Driver = "gdrive"

	_, err := Open(context.Background(), cfg, []string{workflow.NodeOrganizeAssets}, nil)
	var ce *config.Error
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, []string{"GDRIVE_CREDENTIALS is not set (required by the gdrive asset store)"}, ce.Problems)
}

func TestWorkflowOptions(t *testing.T) {
	cfg := testConfig(t)
	cfg.Search.MaxCandidates = 7
	cfg.Workflow.ImageCount = 0
	cfg.Workflow.VoiceTimeout = 45

	opts := WorkflowOptions(cfg, nil)
	assert.Equal(t, 7, opts.MaxCandidates)
	assert.Equal(t, 0, opts.ImageCount)
	assert.Equal(t, 45*time.Second, opts.VoiceTimeout)
	assert.Equal(t, 2*time.Minute, opts.NodeTimeout)
	assert.True(t, opts.Checkpoints)
}

func TestOpen_MissingCredentials(t *testing.T) {
	cfg := testConfig(t)

	_, err := Open(context.Background(), cfg, nil, nil)
	var ce *config.Error
	require.ErrorAs(t, err, &ce)
	assert.ElementsMatch(t, []string{"BRAVE_API_KEY is not set", "OPENAI_API_KEY is not set"}, ce.Problems)
}

func TestOpen_ComponentsNeedOnlyTheirCredentials(t *testing.T) {
	cfg := testConfig(t)

	tracer := graph.NewTracer()
	a, err := Open(context.Background(), cfg, []string{workflow.NodeCrawl, workflow.NodeOrganizeAssets}, nil, WithTracer(tracer))
	require.NoError(t, err)
	defer a.Close()
	assert.NotNil(t, a.Workflow)

	res, err := a.Workflow.RunComponents(context.Background(), "qubits", []string{workflow.NodeOrganizeAssets})
	require.NoError(t, err)
	assert.NotEmpty(t, res.State.FolderPath)
	assert.DirExists(t, filepath.Join(cfg.Assets.Root, filepath.FromSlash(res.State.FolderPath), "final_draft"))

	spans := tracer.NodeSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, workflow.NodeOrganizeAssets, spans[0].NodeName)
}

func TestNewLogger(t *testing.T) {
	cfg := testConfig(t)
	cfg.Logging.Level = "warn"
	var buf bytes.Buffer
	logger, err := NewLogger(cfg, &buf)
	require.NoError(t, err)
	logger.Info("hidden")
	logger.Warn("shown %d", 1)
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown 1")

	cfg.Logging.Level = "loud"
	_, err = NewLogger(cfg, &buf)
	assert.True(t, config.IsConfigError(err))
}
