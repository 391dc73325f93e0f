package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/smallnest/reelgraph/content"
	"github.com/smallnest/reelgraph/graph"
	"github.com/smallnest/reelgraph/store"
)

// Node names.
const (
	NodeSearch          = "search"
	NodeCrawl           = "crawl"
	NodeStoreArticle    = "store_article"
	NodeGenerateScript  = "generate_script"
	NodeStoreScript     = "store_script"
	NodeGeneratePrompts = "generate_prompts"
	NodeGenerateImages  = "generate_images"
	NodeGenerateVoice   = "generate_voice"
	NodeOrganizeAssets  = "organize_assets"
	NodeTrackProject    = "track_project"
	NodeFinalize        = "finalize"
)

var (
	// ErrNoCandidate is returned when search yields nothing worth crawling.
	ErrNoCandidate = errors.New("no candidate article")

	// ErrNoArticle is returned when none of the candidates could be crawled.
	ErrNoArticle = errors.New("no candidate article could be crawled")

	// ErrEmptyTopic is returned when a run starts without a topic.
	ErrEmptyTopic = errors.New("empty topic")
)

// Files written into every project folder.
const (
	MetadataFile = "project_metadata.json"
	ScriptFile   = "script.txt"
	PromptsFile  = "prompts.json"
)

type nodes struct {
	c    Collaborators
	opts Options
}

func message(format string, args ...any) []string {
	return []string{fmt.Sprintf(format, args...)}
}

var skippedURLParts = []string{"/category/", "/author/", "/tag/", "/tags/", "/topics/"}

// usableCandidate drops listing pages and digests that never crawl into a
// single article.
func usableCandidate(r content.SearchResult) bool {
	u, err := url.Parse(r.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return false
	}
	lower := strings.ToLower(r.URL)
	for _, part := range skippedURLParts {
		if strings.Contains(lower, part) {
			return false
		}
	}
	title := strings.ToLower(r.Title)
	return !strings.Contains(title, "newsletter") && !strings.Contains(title, "digest")
}

func (n *nodes) search(ctx context.Context, s State) (Update, error) {
	query := strings.TrimSpace(s.Topic)
	if query == "" {
		return Update{}, ErrEmptyTopic
	}

	results, err := n.c.Search.Search(ctx, query, n.opts.MaxCandidates*2)
	if err != nil {
		return Update{}, fmt.Errorf("search %q: %w", query, err)
	}

	seen := make(map[string]bool)
	var candidates []content.SearchResult
	for _, r := range results {
		if len(candidates) == n.opts.MaxCandidates {
			break
		}
		key := content.ArticleKey(r.URL)
		if seen[key] || !usableCandidate(r) {
			continue
		}
		seen[key] = true
		candidates = append(candidates, r)
	}
	if len(candidates) == 0 {
		return Update{}, fmt.Errorf("%w for %q", ErrNoCandidate, query)
	}

	return Update{
		Phase:      graph.Set(NodeSearch),
		Candidates: &candidates,
		Messages:   message("search: %d candidate articles for %q", len(candidates), query),
	}, nil
}

func (n *nodes) crawl(ctx context.Context, s State) (Update, error) {
	var errs []error
	for i, candidate := range s.Candidates {
		if err := ctx.Err(); err != nil {
			return Update{}, err
		}
		article, err := n.c.Crawl.Crawl(ctx, candidate.URL)
		if err != nil {
			n.opts.Logger.Warn("crawl of candidate %d (%s) failed: %v", i+1, candidate.URL, err)
			errs = append(errs, err)
			continue
		}
		if article.Title == "" {
			article.Title = candidate.Title
		}
		if article.URL == "" {
			article.URL = candidate.URL
		}
		return Update{
			Phase:    graph.Set(NodeCrawl),
			Article:  &article,
			Messages: message("crawl: extracted %q (%d chars, %d images) from candidate %d", article.Title, len(article.Text), len(article.Images), i+1),
		}, nil
	}
	if len(errs) == 0 {
		return Update{}, ErrNoCandidate
	}
	return Update{}, fmt.Errorf("%w: %w", ErrNoArticle, errors.Join(errs...))
}

func (n *nodes) storeArticle(ctx context.Context, s State) (Update, error) {
	if s.Article.URL == "" {
		return Update{Messages: message("store_article: no article to store")}, nil
	}
	id, err := n.c.Store.Upsert(ctx, store.KindArticle, s.Article.Key(), s.Article)
	if err != nil {
		if errors.Is(err, store.ErrUnavailable) {
			return Update{}, graph.Fatal(err)
		}
		return Update{}, err
	}
	return Update{
		Phase:     graph.Set(NodeStoreArticle),
		ArticleID: &id,
		Messages:  message("store_article: stored article %s", id),
	}, nil
}

func (n *nodes) generateScript(ctx context.Context, s State) (Update, error) {
	if strings.TrimSpace(s.Article.Text) == "" {
		return Update{Messages: message("generate_script: no article text")}, nil
	}
	script, err := n.c.Scripts.WriteScript(ctx, s.Article)
	if err != nil {
		return Update{}, err
	}
	return Update{
		Phase:    graph.Set(NodeGenerateScript),
		Script:   &script,
		Messages: message("generate_script: %d words, hook %q", script.WordCount(), script.Hook),
	}, nil
}

// scriptRecord is the stored form of a script.
type scriptRecord struct {
	content.Script
	ArticleID  string `json:"article_id,omitempty"`
	ArticleKey string `json:"article_key"`
}

func (n *nodes) storeScript(ctx context.Context, s State) (Update, error) {
	if strings.TrimSpace(s.Script.Text) == "" {
		return Update{Messages: message("store_script: no script to store")}, nil
	}
	articleKey := s.Article.Key()
	rec := scriptRecord{Script: s.Script, ArticleID: s.ArticleID, ArticleKey: articleKey}
	id, err := n.c.Store.Upsert(ctx, store.KindScript, content.ScriptKey(articleKey, s.Script.Text), rec)
	if err != nil {
		return Update{}, err
	}
	return Update{
		Phase:    graph.Set(NodeStoreScript),
		ScriptID: &id,
		Messages: message("store_script: stored script %s", id),
	}, nil
}

func (n *nodes) generatePrompts(ctx context.Context, s State) (Update, error) {
	if strings.TrimSpace(s.Script.Text) == "" {
		return Update{Messages: message("generate_prompts: no script")}, nil
	}
	prompts, err := n.c.Prompts.WritePrompts(ctx, s.Script, n.opts.PromptCount)
	if err != nil {
		return Update{}, err
	}
	return Update{
		Prompts:  prompts,
		Messages: message("generate_prompts: %d prompts", len(prompts)),
	}, nil
}

func (n *nodes) generateImages(ctx context.Context, s State) (Update, error) {
	if strings.TrimSpace(s.Script.Text) == "" {
		return Update{Messages: message("generate_images: no script")}, nil
	}
	if n.opts.ImageCount == 0 {
		return Update{Messages: message("generate_images: disabled")}, nil
	}

	prompts := content.ScenePrompts(s.Script.Text, n.opts.ImageCount)
	var (
		images   []content.Asset
		failures []graph.ErrorRecord
		errs     []error
	)
	for _, p := range prompts {
		if err := ctx.Err(); err != nil {
			return Update{}, err
		}
		img, err := n.c.Images.GenerateImage(ctx, p)
		if err != nil {
			errs = append(errs, err)
			failures = append(failures, graph.ErrorRecord{
				Node:      NodeGenerateImages,
				Kind:      graph.ErrorKindBranch,
				Cause:     graph.CauseCollaborator,
				Detail:    fmt.Sprintf("image %d: %v", p.Index, err),
				Timestamp: time.Now(),
			})
			continue
		}
		images = append(images, img)
	}
	if len(prompts) > 0 && len(images) == 0 {
		return Update{}, fmt.Errorf("all %d images failed: %w", len(prompts), errors.Join(errs...))
	}
	return Update{
		Images:   images,
		Errors:   failures,
		Messages: message("generate_images: %d of %d images", len(images), len(prompts)),
	}, nil
}

func (n *nodes) generateVoice(ctx context.Context, s State) (Update, error) {
	text := content.CleanForVoice(s.Script.Text)
	if text == "" {
		return Update{Messages: message("generate_voice: no script")}, nil
	}
	voice, err := n.c.Voice.GenerateVoice(ctx, text)
	if err != nil {
		return Update{}, err
	}
	return Update{
		VoiceFiles: []content.Asset{voice},
		Messages:   message("generate_voice: %s", voice.Name),
	}, nil
}

func projectTitle(s State) string {
	for _, t := range []string{s.Script.Title, s.Article.Title, s.Topic} {
		if strings.TrimSpace(t) != "" {
			return t
		}
	}
	return ""
}

func (n *nodes) project(s State, folder content.Folder, images, voices int) content.Project {
	return content.Project{
		Name:       folder.Name,
		Topic:      s.Topic,
		Title:      projectTitle(s),
		Hook:       s.Script.Hook,
		ArticleID:  s.ArticleID,
		ScriptID:   s.ScriptID,
		FolderPath: folder.Path,
		Status:     content.StatusAssetsReady,
		Images:     images,
		VoiceFiles: voices,
		Prompts:    len(s.Prompts),
		CreatedAt:  n.opts.Now(),
	}
}

func (n *nodes) organizeAssets(ctx context.Context, s State) (Update, error) {
	started := s.StartedAt
	if started.IsZero() {
		started = n.opts.Now()
	}
	folder, err := n.c.Assets.CreateFolder(ctx, content.FolderName(projectTitle(s), started))
	if err != nil {
		return Update{}, err
	}

	var (
		placed   []content.Asset
		failures []graph.ErrorRecord
	)
	put := func(subfolder string, asset content.Asset) bool {
		stored, err := n.c.Assets.Put(ctx, folder, subfolder, asset)
		if err != nil {
			failures = append(failures, graph.ErrorRecord{
				Node:      NodeOrganizeAssets,
				Kind:      graph.ErrorKindNode,
				Cause:     graph.CauseCollaborator,
				Detail:    fmt.Sprintf("%s/%s: %v", subfolder, asset.Name, err),
				Timestamp: time.Now(),
			})
			return false
		}
		placed = append(placed, stored)
		return true
	}

	images, voices := 0, 0
	for _, img := range s.Images {
		if put(content.FolderImages, img) {
			images++
		}
	}
	for _, v := range s.VoiceFiles {
		if put(content.FolderVoiceover, v) {
			voices++
		}
	}
	if s.Script.Text != "" {
		put(content.FolderScripts, content.Asset{Kind: content.AssetScript, Name: ScriptFile, MimeType: "text/plain", Data: []byte(s.Script.Text)})
	}
	if len(s.Prompts) > 0 {
		data, err := json.MarshalIndent(s.Prompts, "", "  ")
		if err != nil {
			return Update{}, err
		}
		put(content.FolderScripts, content.Asset{Kind: content.AssetPrompts, Name: PromptsFile, MimeType: "application/json", Data: data})
	}

	meta, err := json.MarshalIndent(n.project(s, folder, images, voices), "", "  ")
	if err != nil {
		return Update{}, err
	}
	put("", content.Asset{Kind: content.AssetMetadata, Name: MetadataFile, MimeType: "application/json", Data: meta})

	return Update{
		Phase:      graph.Set(NodeOrganizeAssets),
		Folder:     &folder,
		FolderPath: &folder.Path,
		Organized:  &placed,
		Errors:     failures,
		Messages:   message("organize_assets: %d files in %s", len(placed), folder.Path),
	}, nil
}

func (n *nodes) trackProject(ctx context.Context, s State) (Update, error) {
	if s.FolderPath == "" {
		return Update{Messages: message("track_project: no project folder")}, nil
	}
	images, voices := 0, 0
	for _, a := range s.Organized {
		switch a.Kind {
		case content.AssetImage:
			images++
		case content.AssetVoice:
			voices++
		}
	}
	id, err := n.c.Tracker.CreateProject(ctx, n.project(s, s.Folder, images, voices))
	if err != nil {
		return Update{}, err
	}
	return Update{
		Phase:     graph.Set(NodeTrackProject),
		ProjectID: &id,
		Messages:  message("track_project: record %s is %s", id, content.StatusAssetsReady),
	}, nil
}

func (n *nodes) finalize(_ context.Context, s State) (Update, error) {
	var elapsed time.Duration
	if !s.StartedAt.IsZero() {
		elapsed = n.opts.Now().Sub(s.StartedAt)
	}
	summary := Summarize(s, elapsed)
	return Update{
		Phase:    graph.Set(NodeFinalize),
		Summary:  &summary,
		Messages: message("finalize: %s", FinalStatus(s)),
	}, nil
}
