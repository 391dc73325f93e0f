package tool

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"strings"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/smallnest/reelgraph/content"
)

// NewOpenAIClient creates a go-openai client, optionally against a custom base URL.
func NewOpenAIClient(apiKey, baseURL string) *goopenai.Client {
	cfg := goopenai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return goopenai.NewClientWithConfig(cfg)
}

// ImageClient is the subset of the OpenAI client used for images.
type ImageClient interface {
	CreateImage(ctx context.Context, request goopenai.ImageRequest) (goopenai.ImageResponse, error)
}

// SpeechClient is the subset of the OpenAI client used for speech.
type SpeechClient interface {
	CreateSpeech(ctx context.Context, request goopenai.CreateSpeechRequest) (goopenai.RawResponse, error)
}

// OpenAIImageGenerator renders vertical images for prompts.
type OpenAIImageGenerator struct {
	Client  ImageClient
	Model   string
	Size    string
	Quality string
}

// NewOpenAIImageGenerator creates an image generator. An empty model uses dall-e-3.
func NewOpenAIImageGenerator(client ImageClient, model string) *OpenAIImageGenerator {
	if model == "" {
		model = goopenai.CreateImageModelDallE3
	}
	g := &OpenAIImageGenerator{Client: client, Model: model, Size: goopenai.CreateImageSize1024x1792}
	if model == goopenai.CreateImageModelGptImage1 {
		g.Size = goopenai.CreateImageSize1024x1536
	} else {
		g.Quality = goopenai.CreateImageQualityStandard
	}
	return g
}

// GenerateImage implements the workflow image generator.
func (g *OpenAIImageGenerator) GenerateImage(ctx context.Context, prompt content.Prompt) (content.Asset, error) {
	text := strings.TrimSpace(prompt.Text)
	if text == "" {
		return content.Asset{}, fmt.Errorf("image prompt %d: %w", prompt.Index, ErrEmptyInput)
	}
	if prompt.Style != "" {
		text += ". Style: " + prompt.Style
	}

	req := goopenai.ImageRequest{
		Prompt:  text,
		Model:   g.Model,
		N:       1,
		Size:    g.Size,
		Quality: g.Quality,
	}
	// gpt-image-1 always answers with base64 and rejects response_format
	if g.Model != goopenai.CreateImageModelGptImage1 {
		req.ResponseFormat = goopenai.CreateImageResponseFormatB64JSON
	}

	resp, err := g.Client.CreateImage(ctx, req)
	if err != nil {
		return content.Asset{}, fmt.Errorf("failed to generate image %d: %w", prompt.Index, err)
	}
	if len(resp.Data) == 0 {
		return content.Asset{}, fmt.Errorf("image %d: %w", prompt.Index, ErrEmptyCompletion)
	}

	asset := content.Asset{
		Kind:     content.AssetImage,
		Name:     fmt.Sprintf("image_%02d.png", prompt.Index),
		MimeType: "image/png",
		Prompt:   prompt.Text,
	}
	item := resp.Data[0]
	switch {
	case item.B64JSON != "":
		data, err := base64.StdEncoding.DecodeString(item.B64JSON)
		if err != nil {
			return content.Asset{}, fmt.Errorf("failed to decode image %d: %w", prompt.Index, err)
		}
		asset.Data = data
	case item.URL != "":
		asset.URI = item.URL
	default:
		return content.Asset{}, fmt.Errorf("image %d: %w", prompt.Index, ErrEmptyCompletion)
	}
	return asset, nil
}

// OpenAIVoiceGenerator synthesizes narration with the speech endpoint.
type OpenAIVoiceGenerator struct {
	Client SpeechClient
	Model  string
	Voice  string
	Speed  float64
}

// NewOpenAIVoiceGenerator creates a voice generator. Empty model and voice use tts-1 and alloy.
func NewOpenAIVoiceGenerator(client SpeechClient, model, voice string) *OpenAIVoiceGenerator {
	if model == "" {
		model = string(goopenai.TTSModel1)
	}
	if voice == "" {
		voice = string(goopenai.VoiceAlloy)
	}
	return &OpenAIVoiceGenerator{Client: client, Model: model, Voice: voice, Speed: 1.0}
}

// maxSpeechInput is the speech endpoint's input limit in characters.
const maxSpeechInput = 4096

// GenerateVoice implements the workflow voice generator. Text over the
// endpoint's limit is synthesized in sentence-aligned chunks whose MP3
// streams are concatenated in order.
func (g *OpenAIVoiceGenerator) GenerateVoice(ctx context.Context, text string) (content.Asset, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return content.Asset{}, fmt.Errorf("voice text: %w", ErrEmptyInput)
	}

	var data []byte
	chunks := splitSpeech(text, maxSpeechInput)
	for i, chunk := range chunks {
		audio, err := g.speak(ctx, chunk)
		if err != nil {
			if len(chunks) > 1 {
				return content.Asset{}, fmt.Errorf("voice chunk %d/%d: %w", i+1, len(chunks), err)
			}
			return content.Asset{}, err
		}
		data = append(data, audio...)
	}
	return content.Asset{
		Kind:     content.AssetVoice,
		Name:     "voiceover.mp3",
		MimeType: "audio/mpeg",
		Data:     data,
	}, nil
}

func (g *OpenAIVoiceGenerator) speak(ctx context.Context, text string) ([]byte, error) {
	resp, err := g.Client.CreateSpeech(ctx, goopenai.CreateSpeechRequest{
		Model:          goopenai.SpeechModel(g.Model),
		Input:          text,
		Voice:          goopenai.SpeechVoice(g.Voice),
		ResponseFormat: goopenai.SpeechResponseFormatMp3,
		Speed:          g.Speed,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to synthesize voice: %w", err)
	}
	defer resp.Close()

	data, err := io.ReadAll(resp)
	if err != nil {
		return nil, fmt.Errorf("failed to read voice audio: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("voice: %w", ErrEmptyCompletion)
	}
	return data, nil
}

// splitSpeech cuts text into pieces of at most limit runes, preferring to
// break after a paragraph, then a sentence, then a space.
func splitSpeech(text string, limit int) []string {
	var chunks []string
	for {
		r := []rune(text)
		if len(r) <= limit {
			if text != "" {
				chunks = append(chunks, text)
			}
			return chunks
		}
		window := string(r[:limit])
		cut := strings.LastIndex(window, "\n\n")
		if cut <= 0 {
			cut = lastSentenceEnd(window)
		}
		if cut <= 0 {
			cut = strings.LastIndexByte(window, ' ')
		}
		if cut <= 0 {
			cut = len(window)
		}
		chunks = append(chunks, strings.TrimSpace(text[:cut]))
		text = strings.TrimSpace(text[cut:])
	}
}

// lastSentenceEnd returns the byte offset just past the last ". ", "! " or
// "? " in s, or -1.
func lastSentenceEnd(s string) int {
	best := -1
	for _, mark := range []string{". ", "! ", "? "} {
		if i := strings.LastIndex(s, mark); i >= 0 && i+1 > best {
			best = i + 1
		}
	}
	return best
}
