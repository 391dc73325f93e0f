package workflow

import (
	"context"

	"github.com/smallnest/reelgraph/content"
	"github.com/smallnest/reelgraph/store"
)

// Searcher finds candidate articles for a topic.
type Searcher interface {
	Search(ctx context.Context, query string, limit int) ([]content.SearchResult, error)
}

// Crawler fetches and extracts one article.
type Crawler interface {
	Crawl(ctx context.Context, url string) (content.Article, error)
}

// ScriptWriter turns an article into a short video script.
type ScriptWriter interface {
	WriteScript(ctx context.Context, article content.Article) (content.Script, error)
}

// PromptWriter derives visual prompts from a script.
type PromptWriter interface {
	WritePrompts(ctx context.Context, script content.Script, n int) ([]content.Prompt, error)
}

// ImageGenerator renders one image for a prompt.
type ImageGenerator interface {
	GenerateImage(ctx context.Context, prompt content.Prompt) (content.Asset, error)
}

// VoiceGenerator synthesizes narration audio.
type VoiceGenerator interface {
	GenerateVoice(ctx context.Context, text string) (content.Asset, error)
}

// AssetStorage organizes generated files into project folders.
type AssetStorage interface {
	CreateFolder(ctx context.Context, name string) (content.Folder, error)
	Put(ctx context.Context, folder content.Folder, subfolder string, asset content.Asset) (content.Asset, error)
	List(ctx context.Context, folder content.Folder, subfolder string) ([]content.Asset, error)
}

// Tracker records projects in a project-management tool. track_project
// retries CreateProject, so creating the same project twice must return the
// existing record.
type Tracker interface {
	CreateProject(ctx context.Context, project content.Project) (string, error)
	FindProjects(ctx context.Context, status string) ([]content.Project, error)
	UpdateStatus(ctx context.Context, projectID, status, videoURI string) error
}

// Collaborators bundles the external services a run depends on.
type Collaborators struct {
	Search  Searcher
	Crawl   Crawler
	Scripts ScriptWriter
	Prompts PromptWriter
	Images  ImageGenerator
	Voice   VoiceGenerator
	Assets  AssetStorage
	Tracker Tracker
	Store   store.Datastore
}
