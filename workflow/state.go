package workflow

import (
	"time"

	"github.com/smallnest/reelgraph/content"
	"github.com/smallnest/reelgraph/graph"
)

// Run status values kept in State.Status.
const (
	StatusInProgress         = "in-progress"
	StatusComplete           = "complete"
	StatusCompleteWithErrors = "complete-with-errors"
	StatusFailed             = "failed"
)

// State is the record threaded through a production run. Nodes receive a
// copy and describe their changes with an Update.
type State struct {
	Topic     string    `json:"topic"`
	Phase     string    `json:"phase"`
	StartedAt time.Time `json:"started_at"`
	Status    string    `json:"status"`

	Candidates []content.SearchResult `json:"candidates,omitempty"`
	Article    content.Article        `json:"article"`
	ArticleID  string                 `json:"article_id,omitempty"`
	Script     content.Script         `json:"script"`
	ScriptID   string                 `json:"script_id,omitempty"`
	Folder     content.Folder         `json:"folder"`
	FolderPath string                 `json:"folder_path,omitempty"`
	Organized  []content.Asset        `json:"organized,omitempty"`
	ProjectID  string                 `json:"project_id,omitempty"`
	Summary    string                 `json:"summary,omitempty"`

	Messages   []string            `json:"messages,omitempty"`
	Prompts    []content.Prompt    `json:"prompts,omitempty"`
	Images     []content.Asset     `json:"images,omitempty"`
	VoiceFiles []content.Asset     `json:"voice_files,omitempty"`
	Errors     []graph.ErrorRecord `json:"errors,omitempty"`
}

// Update is a sparse patch of State.
type Update struct {
	Phase      *string                 `merge:"overwrite"`
	Status     *string                 `merge:"overwrite"`
	Candidates *[]content.SearchResult `merge:"overwrite"`
	Article    *content.Article        `merge:"overwrite"`
	ArticleID  *string                 `merge:"overwrite"`
	Script     *content.Script         `merge:"overwrite"`
	ScriptID   *string                 `merge:"overwrite"`
	Folder     *content.Folder         `merge:"overwrite"`
	FolderPath *string                 `merge:"overwrite"`
	Organized  *[]content.Asset        `merge:"overwrite"`
	ProjectID  *string                 `merge:"overwrite"`
	Summary    *string                 `merge:"overwrite"`

	Messages   []string            `merge:"append"`
	Prompts    []content.Prompt    `merge:"append"`
	Images     []content.Asset     `merge:"append"`
	VoiceFiles []content.Asset     `merge:"append"`
	Errors     []graph.ErrorRecord `merge:"append"`
}

// NewState returns the initial state of a run.
func NewState(topic string, now time.Time) State {
	return State{
		Topic:     topic,
		StartedAt: now,
		Status:    StatusInProgress,
	}
}

func statusOf(s graph.RunStatus) string {
	switch s {
	case graph.StatusCompleted:
		return StatusComplete
	case graph.StatusCompletedWithErrors:
		return StatusCompleteWithErrors
	case graph.StatusFailed:
		return StatusFailed
	default:
		return StatusInProgress
	}
}

// statusPatch records terminal statuses only; a new state already starts in progress.
func statusPatch(s graph.RunStatus) Update {
	if !s.Terminal() {
		return Update{}
	}
	return Update{Status: graph.Set(statusOf(s))}
}

func errorPatch(r graph.ErrorRecord) Update {
	return Update{Errors: []graph.ErrorRecord{r}}
}

func errorReader(s State) []graph.ErrorRecord {
	return s.Errors
}
