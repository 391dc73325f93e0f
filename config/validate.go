package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func validatorInstance() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("toml"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
	})
	return validate
}

// Validate checks field ranges and enumerations.
func (c *Config) Validate() error {
	err := validatorInstance().Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return &Error{Problems: []string{err.Error()}}
	}
	problems := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := fe.Namespace()
		if i := strings.Index(field, "."); i >= 0 {
			field = field[i+1:]
		}
		problems = append(problems, describe(field, fe))
	}
	return &Error{Problems: problems}
}

func describe(field string, fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s], got %q", field, fe.Param(), fe.Value())
	case "min", "max":
		return fmt.Sprintf("%s must be %s %s, got %v", field, map[string]string{"min": ">=", "max": "<="}[fe.Tag()], fe.Param(), fe.Value())
	default:
		return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
	}
}

// Collaborator names an external service that needs credentials.
type Collaborator string

const (
	NeedSearch    Collaborator = "search"
	NeedLLM       Collaborator = "llm"
	NeedDatastore Collaborator = "datastore"
	NeedTracker   Collaborator = "tracker"
	NeedAssets    Collaborator = "assets"
)

// AllCollaborators lists every collaborator of a full run.
var AllCollaborators = []Collaborator{NeedSearch, NeedLLM, NeedDatastore, NeedTracker, NeedAssets}

// RequireCredentials reports every missing credential of the given
// collaborators as a single *Error. No arguments checks all of them.
func (c *Config) RequireCredentials(needs ...Collaborator) error {
	if len(needs) == 0 {
		needs = AllCollaborators
	}
	var problems []string
	missing := func(env string) {
		problems = append(problems, env+" is not set")
	}

	for _, need := range needs {
		switch need {
		case NeedSearch:
			switch c.Search.Provider {
			case "brave":
				if c.Search.BraveAPIKey == "" {
					missing("BRAVE_API_KEY")
				}
			case "tavily":
				if c.Search.TavilyAPIKey == "" {
					missing("TAVILY_API_KEY")
				}
			}
		case NeedLLM:
			if c.LLM.APIKey == "" {
				missing("OPENAI_API_KEY")
			}
		case NeedDatastore:
			if (c.Datastore.Driver == "postgres" || c.Datastore.Driver == "redis") && c.Datastore.DSN == "" {
				problems = append(problems, fmt.Sprintf("DATASTORE_DSN is not set (required by the %s datastore)", c.Datastore.Driver))
			}
		case NeedTracker:
			if c.Tracker.Driver == "notion" {
				if c.Tracker.NotionAPIKey == "" {
					missing("NOTION_API_KEY")
				}
				if c.Tracker.NotionDatabaseID == "" {
					missing("NOTION_DATABASE_ID")
				}
			}
		case NeedAssets:
			if c.Assets.Driver == "gdrive" && c.Assets.CredentialsFile == "" {
				problems = append(problems, "GDRIVE_CREDENTIALS is not set (required by the gdrive asset store)")
			}
		}
	}
	if len(problems) > 0 {
		return &Error{Problems: problems}
	}
	return nil
}
