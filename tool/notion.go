package tool

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/jomei/notionapi"

	"github.com/smallnest/reelgraph/content"
)

// Notion database property names.
const (
	notionTopic        = "Topic name"
	notionArticleID    = "Article Id"
	notionScriptID     = "Script Id"
	notionComments     = "Comments"
	notionCreated      = "Created date and time"
	notionDeployStatus = "Deploy status"
	notionStatus       = "Status"
	notionFolderLink   = "Folder Link"
	notionVideoLink    = "Final Video Link"
)

const notionTitlePrefix = "🎬 "

// NotionTracker records projects as rows of a Notion database.
type NotionTracker struct {
	DatabaseID notionapi.DatabaseID
	client     *notionapi.Client
}

type notionSettings struct {
	httpClient *http.Client
}

type NotionOption func(*notionSettings)

// WithNotionHTTPClient sets the HTTP client used for requests.
func WithNotionHTTPClient(c *http.Client) NotionOption {
	return func(s *notionSettings) { s.httpClient = c }
}

// NewNotionTracker creates a tracker for one database. Empty arguments fall
// back to NOTION_API_KEY and NOTION_DATABASE_ID.
func NewNotionTracker(apiKey, databaseID string, opts ...NotionOption) (*NotionTracker, error) {
	if apiKey == "" {
		apiKey = os.Getenv("NOTION_API_KEY")
	}
	if databaseID == "" {
		databaseID = os.Getenv("NOTION_DATABASE_ID")
	}
	if apiKey == "" || databaseID == "" {
		return nil, errors.New("NOTION_API_KEY and NOTION_DATABASE_ID must be set")
	}
	var s notionSettings
	for _, opt := range opts {
		opt(&s)
	}
	var clientOpts []notionapi.ClientOption
	if s.httpClient != nil {
		clientOpts = append(clientOpts, notionapi.WithHTTPClient(s.httpClient))
	}
	return &NotionTracker{
		DatabaseID: notionapi.DatabaseID(databaseID),
		client:     notionapi.NewClient(notionapi.Token(apiKey), clientOpts...),
	}, nil
}

// notionError turns API errors into StatusErrors so callers can tell
// throttling and outages from rejected requests.
func notionError(err error) error {
	var apiErr *notionapi.Error
	if errors.As(err, &apiErr) {
		return &StatusError{Service: "notion", Code: apiErr.Status, Body: apiErr.Message}
	}
	return err
}

func textValue(s string) []notionapi.RichText {
	return []notionapi.RichText{{Text: &notionapi.Text{Content: s}}}
}

// ProjectTitle returns the tracker title of a project name.
func ProjectTitle(name string) string {
	name = strings.NewReplacer("/", "-", `\`, "-").Replace(name)
	if r := []rune(name); len(r) > 100 {
		name = string(r[:100])
	}
	return name
}

// CreateProject adds a row for the project and returns the page ID. A row
// already holding the project's folder path, or its title when the project
// has no folder, is returned instead, so retried calls do not duplicate it.
func (n *NotionTracker) CreateProject(ctx context.Context, p content.Project) (string, error) {
	title := notionTitlePrefix + ProjectTitle(p.Name)
	if id, err := n.findExisting(ctx, title, p.FolderPath); err != nil {
		return "", err
	} else if id != "" {
		return id, nil
	}

	created := p.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	status := p.Status
	if status == "" {
		status = content.StatusAssetsReady
	}
	start := notionapi.Date(created)

	props := notionapi.Properties{
		notionTopic:        &notionapi.TitleProperty{Title: textValue(title)},
		notionArticleID:    &notionapi.RichTextProperty{RichText: textValue(p.ArticleID)},
		notionScriptID:     &notionapi.RichTextProperty{RichText: textValue(p.ScriptID)},
		notionComments:     &notionapi.RichTextProperty{RichText: textValue(p.FolderPath)},
		notionCreated:      &notionapi.DateProperty{Date: &notionapi.DateObject{Start: &start}},
		notionDeployStatus: &notionapi.MultiSelectProperty{MultiSelect: []notionapi.Option{{Name: status}}},
		notionStatus:       &notionapi.StatusProperty{Status: notionapi.Status{Name: "In Progress"}},
	}
	if strings.HasPrefix(p.FolderPath, "http") {
		props[notionFolderLink] = &notionapi.URLProperty{URL: p.FolderPath}
	}

	page, err := n.client.Page.Create(ctx, &notionapi.PageCreateRequest{
		Parent: notionapi.Parent{
			Type:       notionapi.ParentTypeDatabaseID,
			DatabaseID: n.DatabaseID,
		},
		Properties: props,
	})
	if err != nil {
		return "", fmt.Errorf("failed to create notion page: %w", notionError(err))
	}
	if page.ID == "" {
		return "", errors.New("notion returned a page without id")
	}
	return string(page.ID), nil
}

func (n *NotionTracker) findExisting(ctx context.Context, title, folderPath string) (string, error) {
	filter := &notionapi.PropertyFilter{
		Property: notionComments,
		RichText: &notionapi.TextFilterCondition{Equals: folderPath},
	}
	if folderPath == "" {
		filter = &notionapi.PropertyFilter{
			Property: notionTopic,
			RichText: &notionapi.TextFilterCondition{Equals: title},
		}
	}
	resp, err := n.client.Database.Query(ctx, n.DatabaseID, &notionapi.DatabaseQueryRequest{
		Filter:   filter,
		PageSize: 1,
	})
	if err != nil {
		return "", fmt.Errorf("failed to look up notion page: %w", notionError(err))
	}
	if len(resp.Results) == 0 {
		return "", nil
	}
	return string(resp.Results[0].ID), nil
}

func plainText(ts []notionapi.RichText) string {
	var sb strings.Builder
	for _, t := range ts {
		switch {
		case t.PlainText != "":
			sb.WriteString(t.PlainText)
		case t.Text != nil:
			sb.WriteString(t.Text.Content)
		}
	}
	return sb.String()
}

func propertyText(p notionapi.Property) string {
	switch v := p.(type) {
	case *notionapi.TitleProperty:
		return plainText(v.Title)
	case notionapi.TitleProperty:
		return plainText(v.Title)
	case *notionapi.RichTextProperty:
		return plainText(v.RichText)
	case notionapi.RichTextProperty:
		return plainText(v.RichText)
	case *notionapi.URLProperty:
		return v.URL
	case notionapi.URLProperty:
		return v.URL
	}
	return ""
}

func propertyOptions(p notionapi.Property) []notionapi.Option {
	switch v := p.(type) {
	case *notionapi.MultiSelectProperty:
		return v.MultiSelect
	case notionapi.MultiSelectProperty:
		return v.MultiSelect
	}
	return nil
}

func propertyDate(p notionapi.Property) time.Time {
	var d *notionapi.DateObject
	switch v := p.(type) {
	case *notionapi.DateProperty:
		d = v.Date
	case notionapi.DateProperty:
		d = v.Date
	}
	if d == nil || d.Start == nil {
		return time.Time{}
	}
	return time.Time(*d.Start)
}

func pageProject(page notionapi.Page) content.Project {
	props := page.Properties
	proj := content.Project{
		ID:         string(page.ID),
		Name:       strings.TrimPrefix(propertyText(props[notionTopic]), notionTitlePrefix),
		ArticleID:  propertyText(props[notionArticleID]),
		ScriptID:   propertyText(props[notionScriptID]),
		FolderPath: propertyText(props[notionComments]),
		VideoFile:  propertyText(props[notionVideoLink]),
		CreatedAt:  propertyDate(props[notionCreated]),
	}
	if ms := propertyOptions(props[notionDeployStatus]); len(ms) > 0 {
		proj.Status = ms[len(ms)-1].Name
	}
	return proj
}

// FindProjects returns the rows whose deploy status includes status, or
// every row when status is empty.
func (n *NotionTracker) FindProjects(ctx context.Context, status string) ([]content.Project, error) {
	var projects []content.Project
	req := &notionapi.DatabaseQueryRequest{PageSize: 100}
	if status != "" {
		req.Filter = &notionapi.PropertyFilter{
			Property:    notionDeployStatus,
			MultiSelect: &notionapi.MultiSelectFilterCondition{Contains: status},
		}
	}
	for {
		resp, err := n.client.Database.Query(ctx, n.DatabaseID, req)
		if err != nil {
			return nil, fmt.Errorf("failed to query notion: %w", notionError(err))
		}
		for _, page := range resp.Results {
			projects = append(projects, pageProject(page))
		}
		if !resp.HasMore || resp.NextCursor == "" {
			return projects, nil
		}
		req.StartCursor = resp.NextCursor
	}
}

// UpdateStatus sets the deploy status of a row. Moving to "Video Ready" also
// completes the row and records the video link.
func (n *NotionTracker) UpdateStatus(ctx context.Context, projectID, status, videoURI string) error {
	props := notionapi.Properties{
		notionDeployStatus: &notionapi.MultiSelectProperty{MultiSelect: []notionapi.Option{{Name: status}}},
	}
	if status == content.StatusVideoReady {
		props[notionStatus] = &notionapi.StatusProperty{Status: notionapi.Status{Name: "Done"}}
	}
	if videoURI != "" {
		props[notionVideoLink] = &notionapi.URLProperty{URL: videoURI}
	}
	_, err := n.client.Page.Update(ctx, notionapi.PageID(projectID), &notionapi.PageUpdateRequest{Properties: props})
	if err != nil {
		return fmt.Errorf("failed to update notion page %s: %w", projectID, notionError(err))
	}
	return nil
}
