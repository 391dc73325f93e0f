// Package content holds the artifacts that flow through a production run:
// search results, crawled articles, scripts, prompts and generated assets.
package content

import "time"

// SearchResult is one ranked hit returned by a search provider.
type SearchResult struct {
	URL     string  `json:"url"`
	Title   string  `json:"title"`
	Snippet string  `json:"snippet"`
	Score   float64 `json:"score"`
}

// Article is the extracted content of a crawled page.
type Article struct {
	URL       string    `json:"url"`
	Title     string    `json:"title"`
	Text      string    `json:"text"`
	Images    []string  `json:"images,omitempty"`
	ImageText []string  `json:"image_text,omitempty"`
	Summary   string    `json:"summary,omitempty"`
	KeyPoints []string  `json:"key_points,omitempty"`
	CrawledAt time.Time `json:"crawled_at"`
}

// Key returns the natural key of the article.
func (a Article) Key() string {
	return ArticleKey(a.URL)
}

// Script is a generated short-form video script.
type Script struct {
	Title     string    `json:"title"`
	Hook      string    `json:"hook"`
	Text      string    `json:"text"`
	Model     string    `json:"model,omitempty"`
	SourceURL string    `json:"source_url,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// WordCount returns the number of words in the script text.
func (s Script) WordCount() int {
	return len(words(s.Text))
}

// Prompt is a visual prompt derived from a script scene.
type Prompt struct {
	Index int    `json:"index"`
	Scene string `json:"scene"`
	Text  string `json:"text"`
	Style string `json:"style,omitempty"`
}

// AssetKind classifies generated assets.
type AssetKind string

const (
	AssetImage    AssetKind = "image"
	AssetVoice    AssetKind = "voice"
	AssetScript   AssetKind = "script"
	AssetPrompts  AssetKind = "prompts"
	AssetMetadata AssetKind = "metadata"
	AssetVideo    AssetKind = "video"
)

// Asset references a generated file. URI is either a local path or an
// http(s) URL; Data carries inline content that has not been written yet.
type Asset struct {
	Kind     AssetKind `json:"kind"`
	Name     string    `json:"name"`
	URI      string    `json:"uri,omitempty"`
	MimeType string    `json:"mime_type,omitempty"`
	Prompt   string    `json:"prompt,omitempty"`
	Data     []byte    `json:"-"`
}

// Project subfolders created for every run.
const (
	FolderImages     = "generated_images"
	FolderVoiceover  = "voiceover"
	FolderScripts    = "scripts"
	FolderFinalDraft = "final_draft"
	FolderResources  = "resources"
)

// Subfolders lists the project subfolders in creation order.
var Subfolders = []string{FolderImages, FolderVoiceover, FolderScripts, FolderFinalDraft, FolderResources}

// Folder is a handle to a project folder in asset storage.
type Folder struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

// Tracking statuses.
const (
	StatusAssetsReady = "Assets Ready"
	StatusVideoReady  = "Video Ready"
)

// Project is the metadata registered with the project tracker and written
// to project_metadata.json.
type Project struct {
	ID         string    `json:"id,omitempty"`
	Name       string    `json:"name"`
	Topic      string    `json:"topic"`
	Title      string    `json:"title"`
	Hook       string    `json:"hook,omitempty"`
	ArticleID  string    `json:"article_id"`
	ScriptID   string    `json:"script_id"`
	FolderPath string    `json:"folder_path"`
	Status     string    `json:"status"`
	Images     int       `json:"images"`
	VoiceFiles int       `json:"voice_files"`
	Prompts    int       `json:"prompts"`
	VideoFile  string    `json:"video_file,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}
