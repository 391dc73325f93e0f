package config

import (
	"strings"
	"time"
)

const (
	defaultSearchProvider = "brave"
	defaultMaxCandidates  = 5
	defaultLLMModel       = "gpt-4o-mini"
	defaultImageModel     = "dall-e-3"
	defaultTTSModel       = "tts-1"
	defaultTTSVoice       = "alloy"
	defaultScriptDuration = 60
	defaultDatastore      = "memory"
	defaultFileDSN        = "reelgraph-data"
	defaultSQLiteDSN      = "reelgraph.db"
	defaultAssetDriver    = "local"
	defaultAssetRoot      = "output"
	defaultTracker        = "store"
	defaultNodeTimeout    = 120
	defaultVoiceTimeout   = 180
	defaultPromptCount    = 5
	defaultImageCount     = 5
	defaultConcurrency    = 3
	defaultLogLevel       = "info"
)

// Default returns a Config populated with defaults.
func Default() Config {
	return Config{
		Search: Search{
			Provider:      defaultSearchProvider,
			MaxCandidates: defaultMaxCandidates,
		},
		LLM: LLM{
			Model:          defaultLLMModel,
			ImageModel:     defaultImageModel,
			TTSModel:       defaultTTSModel,
			TTSVoice:       defaultTTSVoice,
			ScriptDuration: defaultScriptDuration,
		},
		Datastore: Datastore{Driver: defaultDatastore},
		Assets:    Assets{Driver: defaultAssetDriver, Root: defaultAssetRoot},
		Tracker:   Tracker{Driver: defaultTracker},
		Workflow: Workflow{
			NodeTimeout:    defaultNodeTimeout,
			VoiceTimeout:   defaultVoiceTimeout,
			PromptCount:    defaultPromptCount,
			ImageCount:     defaultImageCount,
			MaxConcurrency: defaultConcurrency,
		},
		Logging: Logging{Level: defaultLogLevel},
	}
}

func (c *Config) normalize() {
	c.Search.Provider = strings.ToLower(strings.TrimSpace(c.Search.Provider))
	c.Datastore.Driver = strings.ToLower(strings.TrimSpace(c.Datastore.Driver))
	c.Tracker.Driver = strings.ToLower(strings.TrimSpace(c.Tracker.Driver))
	c.Assets.Driver = strings.ToLower(strings.TrimSpace(c.Assets.Driver))
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))

	if c.Datastore.DSN == "" {
		switch c.Datastore.Driver {
		case "file":
			c.Datastore.DSN = defaultFileDSN
		case "sqlite":
			c.Datastore.DSN = defaultSQLiteDSN
		}
	}
	if strings.TrimSpace(c.Assets.Root) == "" {
		c.Assets.Root = defaultAssetRoot
	}
	if c.Assets.Driver == "" {
		c.Assets.Driver = defaultAssetDriver
	}
}

// NodeTimeout returns the default node timeout.
func (c *Config) NodeTimeout() time.Duration {
	return time.Duration(c.Workflow.NodeTimeout) * time.Second
}

// VoiceTimeout returns the voice generation timeout.
func (c *Config) VoiceTimeout() time.Duration {
	return time.Duration(c.Workflow.VoiceTimeout) * time.Second
}
