package workflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/smallnest/reelgraph/content"
	"github.com/smallnest/reelgraph/log"
	"github.com/smallnest/reelgraph/store"
	"github.com/smallnest/reelgraph/store/memory"
)

const quantumScript = `[HOOK] Quantum computers just fixed their own mistakes.

Researchers ran a chip that corrects errors faster than they appear.

Longer calculations now stay clean instead of drowning in noise.

Drug discovery and materials science are the first in line.

Follow for the next breakthrough.`

var testNow = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

type fakeSearch struct {
	mu      sync.Mutex
	results []content.SearchResult
	err     error
	limits  []int
}

func (f *fakeSearch) Search(_ context.Context, _ string, limit int) ([]content.SearchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.limits = append(f.limits, limit)
	return f.results, f.err
}

type fakeCrawler struct {
	mu    sync.Mutex
	fail  map[string]error
	urls  []string
	title string
}

func (f *fakeCrawler) Crawl(_ context.Context, url string) (content.Article, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.urls = append(f.urls, url)
	if err := f.fail[url]; err != nil {
		return content.Article{}, err
	}
	return content.Article{
		URL:   url,
		Title: f.title,
		Text:  "Google's new quantum chip corrected errors below the threshold for the first time.",
	}, nil
}

type fakeScripts struct {
	text string
	err  error
}

func (f *fakeScripts) WriteScript(_ context.Context, a content.Article) (content.Script, error) {
	if f.err != nil {
		return content.Script{}, f.err
	}
	return content.Script{
		Title:     "Quantum chips fix their own errors",
		Hook:      content.ExtractHook(f.text),
		Text:      f.text,
		SourceURL: a.URL,
		CreatedAt: testNow,
	}, nil
}

type fakePrompts struct {
	err error
}

func (f *fakePrompts) WritePrompts(_ context.Context, s content.Script, n int) ([]content.Prompt, error) {
	if f.err != nil {
		return nil, f.err
	}
	return content.ScenePrompts(s.Text, n), nil
}

type fakeImages struct {
	mu   sync.Mutex
	fail map[int]bool
	done []int
}

func (f *fakeImages) GenerateImage(_ context.Context, p content.Prompt) (content.Asset, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail[p.Index] {
		return content.Asset{}, fmt.Errorf("content policy violation for prompt %d", p.Index)
	}
	f.done = append(f.done, p.Index)
	return content.Asset{
		Kind:     content.AssetImage,
		Name:     fmt.Sprintf("image_%02d.png", p.Index),
		MimeType: "image/png",
		Prompt:   p.Text,
		Data:     []byte("png"),
	}, nil
}

type fakeVoice struct {
	delay time.Duration
	err   error
}

func (f *fakeVoice) GenerateVoice(ctx context.Context, _ string) (content.Asset, error) {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return content.Asset{}, ctx.Err()
		}
	}
	if f.err != nil {
		return content.Asset{}, f.err
	}
	return content.Asset{Kind: content.AssetVoice, Name: "voiceover.mp3", MimeType: "audio/mpeg", Data: []byte("mp3")}, nil
}

type fakeAssets struct {
	mu      sync.Mutex
	folders []string
	files   map[string][]byte
	failSub string
}

func newFakeAssets() *fakeAssets {
	return &fakeAssets{files: make(map[string][]byte)}
}

func (f *fakeAssets) CreateFolder(_ context.Context, name string) (content.Folder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.folders = append(f.folders, name)
	return content.Folder{Name: name, Path: "projects/" + name}, nil
}

func (f *fakeAssets) Put(_ context.Context, folder content.Folder, sub string, a content.Asset) (content.Asset, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSub != "" && sub == f.failSub {
		return content.Asset{}, errors.New("disk full")
	}
	path := folder.Path + "/" + a.Name
	if sub != "" {
		path = folder.Path + "/" + sub + "/" + a.Name
	}
	f.files[path] = a.Data
	a.URI = path
	a.Data = nil
	return a, nil
}

func (f *fakeAssets) List(_ context.Context, folder content.Folder, sub string) ([]content.Asset, error) {
	return nil, nil
}

func (f *fakeAssets) has(path string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.files[path]
	return ok
}

type fakeTracker struct {
	mu       sync.Mutex
	projects []content.Project
	err      error
}

func (f *fakeTracker) CreateProject(_ context.Context, p content.Project) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.projects = append(f.projects, p)
	return fmt.Sprintf("page-%d", len(f.projects)), nil
}

func (f *fakeTracker) FindProjects(_ context.Context, status string) ([]content.Project, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []content.Project
	for _, p := range f.projects {
		if status == "" || p.Status == status {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeTracker) UpdateStatus(context.Context, string, string, string) error {
	return nil
}

// downStore fails every write as if the backend could not be reached.
type downStore struct {
	store.Datastore
}

func (downStore) Upsert(context.Context, string, string, any) (string, error) {
	return "", fmt.Errorf("dial tcp 127.0.0.1:5432: %w", store.ErrUnavailable)
}

type fakes struct {
	search  *fakeSearch
	crawler *fakeCrawler
	scripts *fakeScripts
	prompts *fakePrompts
	images  *fakeImages
	voice   *fakeVoice
	assets  *fakeAssets
	tracker *fakeTracker
	store   *memory.Store
}

func newFakes() *fakes {
	return &fakes{
		search: &fakeSearch{results: []content.SearchResult{
			{URL: "https://example.com/tag/quantum", Title: "Quantum archive"},
			{URL: "https://example.com/news/quantum-error-correction", Title: "Quantum chip corrects its own errors"},
			{URL: "https://example.com/news/quantum-error-correction?utm_source=x", Title: "Duplicate"},
			{URL: "https://physics.example.org/qubits", Title: "Logical qubits arrive"},
		}},
		crawler: &fakeCrawler{fail: map[string]error{}},
		scripts: &fakeScripts{text: quantumScript},
		prompts: &fakePrompts{},
		images:  &fakeImages{fail: map[int]bool{}},
		voice:   &fakeVoice{},
		assets:  newFakeAssets(),
		tracker: &fakeTracker{},
		store:   memory.New(),
	}
}

func (f *fakes) collaborators() Collaborators {
	return Collaborators{
		Search:  f.search,
		Crawl:   f.crawler,
		Scripts: f.scripts,
		Prompts: f.prompts,
		Images:  f.images,
		Voice:   f.voice,
		Assets:  f.assets,
		Tracker: f.tracker,
		Store:   f.store,
	}
}

func testOptions() Options {
	opts := DefaultOptions()
	opts.ImageCount = 3
	opts.PromptCount = 4
	opts.NodeTimeout = 5 * time.Second
	opts.VoiceTimeout = 5 * time.Second
	opts.Logger = &log.NoOpLogger{}
	opts.Now = func() time.Time { return testNow }
	return opts
}
