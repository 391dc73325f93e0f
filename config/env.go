package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

type lookupFunc func(key string) (string, bool)

// applyEnv overrides file values with environment variables.
func (c *Config) applyEnv(lookup lookupFunc) error {
	strs := map[string]*string{
		"LOG_LEVEL":          &c.Logging.Level,
		"SEARCH_PROVIDER":    &c.Search.Provider,
		"BRAVE_API_KEY":      &c.Search.BraveAPIKey,
		"TAVILY_API_KEY":     &c.Search.TavilyAPIKey,
		"OPENAI_API_KEY":     &c.LLM.APIKey,
		"OPENAI_BASE_URL":    &c.LLM.BaseURL,
		"LLM_MODEL":          &c.LLM.Model,
		"IMAGE_MODEL":        &c.LLM.ImageModel,
		"TTS_MODEL":          &c.LLM.TTSModel,
		"TTS_VOICE":          &c.LLM.TTSVoice,
		"DATASTORE":          &c.Datastore.Driver,
		"DATASTORE_DSN":      &c.Datastore.DSN,
		"ASSETS":             &c.Assets.Driver,
		"ASSET_ROOT":         &c.Assets.Root,
		"GDRIVE_FOLDER_ID":   &c.Assets.FolderID,
		"TRACKER":            &c.Tracker.Driver,
		"NOTION_API_KEY":     &c.Tracker.NotionAPIKey,
		"NOTION_DATABASE_ID": &c.Tracker.NotionDatabaseID,
	}
	for key, dst := range strs {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	for _, key := range []string{"GOOGLE_APPLICATION_CREDENTIALS", "GDRIVE_CREDENTIALS"} {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			c.Assets.CredentialsFile = strings.TrimSpace(v)
		}
	}

	var problems []string
	ints := map[string]*int{
		"MAX_CANDIDATES":  &c.Search.MaxCandidates,
		"PROMPT_COUNT":    &c.Workflow.PromptCount,
		"IMAGE_COUNT":     &c.Workflow.ImageCount,
		"MAX_CONCURRENCY": &c.Workflow.MaxConcurrency,
		"SCRIPT_DURATION": &c.LLM.ScriptDuration,
	}
	for key, dst := range ints {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			problems = append(problems, fmt.Sprintf("%s: %q is not an integer", key, v))
			continue
		}
		*dst = n
	}

	secs := map[string]*int{
		"NODE_TIMEOUT":  &c.Workflow.NodeTimeout,
		"VOICE_TIMEOUT": &c.Workflow.VoiceTimeout,
	}
	for key, dst := range secs {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			continue
		}
		n, err := parseSeconds(strings.TrimSpace(v))
		if err != nil {
			problems = append(problems, fmt.Sprintf("%s: %v", key, err))
			continue
		}
		*dst = n
	}

	if len(problems) > 0 {
		return &Error{Problems: problems}
	}
	return nil
}

// parseSeconds accepts a plain number of seconds or a Go duration such as "90s".
func parseSeconds(v string) (int, error) {
	if n, err := strconv.Atoi(v); err == nil {
		return n, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%q is neither seconds nor a duration", v)
	}
	return int(d.Round(time.Second) / time.Second), nil
}
