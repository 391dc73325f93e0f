package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// Search configures the search provider.
type Search struct {
	Provider      string `toml:"provider" validate:"oneof=brave tavily"`
	BraveAPIKey   string `toml:"brave_api_key"`
	TavilyAPIKey  string `toml:"tavily_api_key"`
	MaxCandidates int    `toml:"max_candidates" validate:"min=1,max=20"`
}

// LLM configures the OpenAI-compatible endpoint used for text, images and speech.
type LLM struct {
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url" validate:"omitempty,url"`
	Model          string `toml:"model" validate:"required"`
	ImageModel     string `toml:"image_model" validate:"required"`
	TTSModel       string `toml:"tts_model" validate:"required"`
	TTSVoice       string `toml:"tts_voice" validate:"required"`
	ScriptDuration int    `toml:"script_duration" validate:"min=15,max=600"`
}

// Datastore selects the article and script store.
type Datastore struct {
	Driver string `toml:"driver" validate:"oneof=memory file sqlite postgres redis"`
	DSN    string `toml:"dsn"`
}

// Assets configures where project folders are created. The local driver
// writes under Root; gdrive creates them in Google Drive below FolderID, or
// below My Drive when FolderID is empty.
type Assets struct {
	Driver          string `toml:"driver" validate:"oneof=local gdrive"`
	Root            string `toml:"root" validate:"required"`
	CredentialsFile string `toml:"credentials_file"`
	FolderID        string `toml:"folder_id"`
}

// Tracker selects the project tracker.
type Tracker struct {
	Driver           string `toml:"driver" validate:"oneof=notion store"`
	NotionAPIKey     string `toml:"notion_api_key"`
	NotionDatabaseID string `toml:"notion_database_id"`
}

// Workflow tunes a run. Timeouts are in seconds.
type Workflow struct {
	NodeTimeout    int `toml:"node_timeout" validate:"min=1"`
	VoiceTimeout   int `toml:"voice_timeout" validate:"min=1"`
	PromptCount    int `toml:"prompt_count" validate:"min=1,max=20"`
	ImageCount     int `toml:"image_count" validate:"min=0,max=20"`
	MaxConcurrency int `toml:"max_concurrency" validate:"min=0"`
}

// Logging configures log output.
type Logging struct {
	Level string `toml:"level" validate:"oneof=debug info warn error"`
}

// Config holds all settings of a run.
type Config struct {
	Search    Search    `toml:"search"`
	LLM       LLM       `toml:"llm"`
	Datastore Datastore `toml:"datastore"`
	Assets    Assets    `toml:"assets"`
	Tracker   Tracker   `toml:"tracker"`
	Workflow  Workflow  `toml:"workflow"`
	Logging   Logging   `toml:"logging"`
}

// Error is a configuration problem detected before a run starts.
type Error struct {
	Problems []string
}

func (e *Error) Error() string {
	return "configuration error: " + strings.Join(e.Problems, "; ")
}

// IsConfigError reports whether err is a configuration error.
func IsConfigError(err error) bool {
	var ce *Error
	return errors.As(err, &ce)
}

// DefaultFile is read when no path is given and REELGRAPH_CONFIG is unset.
const DefaultFile = "reelgraph.toml"

// Load reads the optional TOML file at path, applies environment overrides
// and defaults, and validates the result. An empty path falls back to
// REELGRAPH_CONFIG and then to DefaultFile when it exists.
func Load(path string) (*Config, error) {
	cfg := Default()

	resolved, explicit := resolvePath(path)
	if resolved != "" {
		data, err := os.ReadFile(resolved)
		switch {
		case errors.Is(err, fs.ErrNotExist) && !explicit:
		case err != nil:
			return nil, &Error{Problems: []string{fmt.Sprintf("read %s: %v", resolved, err)}}
		default:
			if err := toml.Unmarshal(data, &cfg); err != nil {
				return nil, &Error{Problems: []string{fmt.Sprintf("parse %s: %v", resolved, err)}}
			}
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func resolvePath(path string) (string, bool) {
	if path != "" {
		return path, true
	}
	if env, ok := os.LookupEnv("REELGRAPH_CONFIG"); ok && strings.TrimSpace(env) != "" {
		return env, true
	}
	return DefaultFile, false
}
