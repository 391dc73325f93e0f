package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/smallnest/reelgraph/content"
	"github.com/smallnest/reelgraph/log"
)

var (
	// ErrEmptyCompletion is returned when the model answers with no text.
	ErrEmptyCompletion = errors.New("model returned an empty completion")

	// ErrEmptyInput is returned when there is nothing to write from.
	ErrEmptyInput = errors.New("empty input")
)

// NewOpenAIModel creates a chat model for an OpenAI-compatible endpoint.
func NewOpenAIModel(apiKey, model, baseURL string) (llms.Model, error) {
	opts := []openai.Option{openai.WithToken(apiKey)}
	if model != "" {
		opts = append(opts, openai.WithModel(model))
	}
	if baseURL != "" {
		opts = append(opts, openai.WithBaseURL(baseURL))
	}
	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create llm: %w", err)
	}
	return llm, nil
}

var (
	decorations = regexp.MustCompile(`[🚀✅🔥📝📊🎬🎙️—–]`)
	jsonArray   = regexp.MustCompile(`(?s)\[.*\]`)
)

// LLMScriptWriter writes short video scripts with a language model.
type LLMScriptWriter struct {
	Model           llms.Model
	ModelName       string
	Duration        int // seconds
	Platform        string
	MaxArticleChars int
	Temperature     float64
}

// ScriptOption configures an LLMScriptWriter.
type ScriptOption func(*LLMScriptWriter)

// WithScriptDuration sets the target duration in seconds.
func WithScriptDuration(seconds int) ScriptOption {
	return func(w *LLMScriptWriter) { w.Duration = seconds }
}

// WithScriptModelName records the model name on generated scripts.
func WithScriptModelName(name string) ScriptOption {
	return func(w *LLMScriptWriter) { w.ModelName = name }
}

// NewLLMScriptWriter creates a script writer backed by model.
func NewLLMScriptWriter(model llms.Model, opts ...ScriptOption) *LLMScriptWriter {
	w := &LLMScriptWriter{
		Model:           model,
		Duration:        60,
		Platform:        "youtube shorts",
		MaxArticleChars: 8000,
		Temperature:     0.7,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

const scriptPromptTemplate = `You are an expert short-form video script writer with an engaging, conversational and energetic style, writing voiceover-friendly content for a tech-savvy audience.

Write a compelling %d-second %s script based on this article.

ARTICLE TITLE: %s

ARTICLE CONTENT:
%s

REQUIREMENTS:
- Target length: about %d words.
- Open with a strong hook in the first 5 seconds: a question or a bold statement.
- Short, punchy sentences that address the viewer directly.
- Base the script entirely on the article, using its specific details.
- Plain text only. No emoji, no bold, no bullet markers.
- No metadata such as links, timestamps or publication details.

Use exactly these section headers, each followed by at least two sentences:
%s

Return only the script.`

// WriteScript implements the workflow script writer.
func (w *LLMScriptWriter) WriteScript(ctx context.Context, article content.Article) (content.Script, error) {
	text := strings.TrimSpace(article.Text)
	if text == "" {
		return content.Script{}, fmt.Errorf("article %s: %w", article.URL, ErrEmptyInput)
	}
	if r := []rune(text); w.MaxArticleChars > 0 && len(r) > w.MaxArticleChars {
		text = string(r[:w.MaxArticleChars])
	}

	prompt := fmt.Sprintf(scriptPromptTemplate,
		w.Duration, w.Platform, article.Title, text,
		content.TargetWords(w.Duration), strings.Join(content.SectionHeaders, "\n"))

	completion, err := llms.GenerateFromSinglePrompt(ctx, w.Model, prompt,
		llms.WithTemperature(w.Temperature),
		llms.WithMaxTokens(content.TargetWords(w.Duration)*4),
	)
	if err != nil {
		return content.Script{}, fmt.Errorf("failed to generate script: %w", err)
	}

	script := strings.TrimSpace(decorations.ReplaceAllString(completion, ""))
	if script == "" {
		return content.Script{}, ErrEmptyCompletion
	}

	title := article.Title
	if title == "" {
		title = "Untitled"
	}
	return content.Script{
		Title:     title,
		Hook:      content.ExtractHook(script),
		Text:      script,
		Model:     w.ModelName,
		SourceURL: article.URL,
		CreatedAt: time.Now(),
	}, nil
}

// DefaultPromptStyle is used when the model does not name a style.
const DefaultPromptStyle = "dynamic, engaging"

// LLMPromptWriter derives visual prompts from a script with a language model.
// Unparseable completions fall back to prompts cut from the script itself.
type LLMPromptWriter struct {
	Model       llms.Model
	Temperature float64
	Logger      log.Logger
}

// NewLLMPromptWriter creates a prompt writer backed by model.
func NewLLMPromptWriter(model llms.Model) *LLMPromptWriter {
	return &LLMPromptWriter{Model: model, Temperature: 0.4}
}

const promptsTemplate = `Break this short video script into %d visual scenes for vertical 9:16 image generation.

SCRIPT:
%s

Return a JSON array of %d objects with these keys:
  "scene": a short scene label,
  "visual_description": a detailed image prompt with no text in the image,
  "mood_style": a few words describing mood and style.

Return only the JSON array.`

type promptItem struct {
	Scene             string `json:"scene"`
	VisualDescription string `json:"visual_description"`
	MoodStyle         string `json:"mood_style"`
}

// WritePrompts implements the workflow prompt writer.
func (w *LLMPromptWriter) WritePrompts(ctx context.Context, script content.Script, n int) ([]content.Prompt, error) {
	if strings.TrimSpace(script.Text) == "" {
		return nil, fmt.Errorf("script: %w", ErrEmptyInput)
	}
	if n <= 0 {
		n = 5
	}

	completion, err := llms.GenerateFromSinglePrompt(ctx, w.Model,
		fmt.Sprintf(promptsTemplate, n, script.Text, n),
		llms.WithTemperature(w.Temperature),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to generate prompts: %w", err)
	}

	prompts, err := parsePrompts(completion, n)
	if err != nil {
		w.logger().Warn("prompt completion not usable (%v), deriving prompts from script", err)
		return content.ScenePrompts(script.Text, n), nil
	}
	return prompts, nil
}

func (w *LLMPromptWriter) logger() log.Logger {
	if w.Logger != nil {
		return w.Logger
	}
	return log.GetDefaultLogger()
}

func parsePrompts(completion string, n int) ([]content.Prompt, error) {
	raw := jsonArray.FindString(completion)
	if raw == "" {
		return nil, errors.New("no JSON array in completion")
	}
	var items []promptItem
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return nil, fmt.Errorf("invalid prompt JSON: %w", err)
	}

	var prompts []content.Prompt
	for _, it := range items {
		if len(prompts) == n {
			break
		}
		desc := strings.TrimSpace(it.VisualDescription)
		if desc == "" {
			continue
		}
		idx := len(prompts) + 1
		scene := strings.TrimSpace(it.Scene)
		if scene == "" {
			scene = fmt.Sprintf("Scene %d", idx)
		}
		style := strings.TrimSpace(it.MoodStyle)
		if style == "" {
			style = DefaultPromptStyle
		}
		prompts = append(prompts, content.Prompt{Index: idx, Scene: scene, Text: desc, Style: style})
	}
	if len(prompts) == 0 {
		return nil, errors.New("no usable prompts")
	}
	return prompts, nil
}
