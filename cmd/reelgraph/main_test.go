package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var envKeys = []string{
	"REELGRAPH_CONFIG", "LOG_LEVEL", "SEARCH_PROVIDER", "BRAVE_API_KEY", "TAVILY_API_KEY",
	"OPENAI_API_KEY", "OPENAI_BASE_URL", "DATASTORE", "DATASTORE_DSN", "ASSETS", "ASSET_ROOT", "GDRIVE_CREDENTIALS",
	"GOOGLE_APPLICATION_CREDENTIALS", "GDRIVE_FOLDER_ID", "TRACKER",
	"NOTION_API_KEY", "NOTION_DATABASE_ID",
}

func cleanEnv(t *testing.T) string {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
	}
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("ASSET_ROOT", filepath.Join(dir, "output"))
	t.Setenv("LOG_LEVEL", "error")
	return dir
}

func run(t *testing.T, stdin string, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := execute(context.Background(), args, strings.NewReader(stdin), &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestGraphCommand(t *testing.T) {
	code, out, _ := run(t, "", "graph")
	assert.Equal(t, exitOK, code)
	assert.True(t, strings.HasPrefix(out, "flowchart TD"))
	assert.Contains(t, out, "generate_voice")
	assert.Contains(t, out, `search[["search"]]`)
}

func TestGraphCommand_DOT(t *testing.T) {
	code, out, _ := run(t, "", "graph", "--format", "dot")
	assert.Equal(t, exitOK, code)
	assert.True(t, strings.HasPrefix(out, "digraph G {"))
	assert.Contains(t, out, "store_script -> generate_images;")

	code, _, stderr := run(t, "", "graph", "--format", "svg")
	assert.Equal(t, exitFailed, code)
	assert.Contains(t, stderr, "unknown graph format")
}

func TestRun_MissingCredentials(t *testing.T) {
	cleanEnv(t)

	code, _, stderr := run(t, "", "run", "quantum computing news")
	assert.Equal(t, exitConfig, code)
	assert.Contains(t, stderr, "BRAVE_API_KEY is not set")
	assert.Contains(t, stderr, "OPENAI_API_KEY is not set")
}

func TestRun_InvalidConfig(t *testing.T) {
	cleanEnv(t)
	t.Setenv("DATASTORE", "mongo")

	code, _, stderr := run(t, "", "run", "x")
	assert.Equal(t, exitConfig, code)
	assert.Contains(t, stderr, "datastore.driver")
}

func TestRun_Component(t *testing.T) {
	dir := cleanEnv(t)
	htmlPath := filepath.Join(dir, "summary.html")

	code, out, stderr := run(t, "", "run", "--component", "organize_assets", "--html", htmlPath, "quantum", "computing")
	require.Equal(t, exitOK, code, stderr)
	assert.Contains(t, out, "Run components-")
	assert.Contains(t, out, "completed")
	assert.Contains(t, out, "organize_assets:")

	page, err := os.ReadFile(htmlPath)
	require.NoError(t, err)
	assert.Contains(t, string(page), "Production summary: quantum computing")

	entries, err := os.ReadDir(filepath.Join(dir, "output", "RocketReelsAI"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, strings.HasPrefix(entries[0].Name(), "quantum_computing_"))
}

func TestRun_Trace(t *testing.T) {
	cleanEnv(t)

	code, out, stderr := run(t, "", "run", "--trace", "--component", "organize_assets", "fusion")
	require.Equal(t, exitOK, code, stderr)
	assert.Contains(t, out, "Trace")
	assert.Contains(t, out, "attempts=1")
}

func TestRun_FailedComponent(t *testing.T) {
	cleanEnv(t)

	code, out, stderr := run(t, "", "run", "--component", "crawl", "fusion")
	assert.Equal(t, exitFailed, code)
	assert.Contains(t, out, "failed")
	assert.Contains(t, stderr, "no candidate article")
}

func TestRun_UnknownComponent(t *testing.T) {
	cleanEnv(t)

	code, _, stderr := run(t, "", "run", "--component", "render_video", "fusion")
	assert.Equal(t, exitFailed, code)
	assert.Contains(t, stderr, "node not found")
}

func TestPromptTopic(t *testing.T) {
	var out bytes.Buffer
	assert.Equal(t, "fusion power", promptTopic(strings.NewReader("  fusion power \n"), &out))
	assert.Contains(t, out.String(), "Topic [latest AI breakthrough]")
	assert.Equal(t, defaultTopic, promptTopic(strings.NewReader("\n"), &out))
	assert.Equal(t, defaultTopic, promptTopic(strings.NewReader(""), &out))
}
