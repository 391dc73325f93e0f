package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smallnest/reelgraph/content"
)

// redirectTransport sends every request to target, keeping the path.
type redirectTransport struct {
	target *url.URL
}

func (rt redirectTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	r = r.Clone(r.Context())
	r.URL.Scheme = rt.target.Scheme
	r.URL.Host = rt.target.Host
	r.Host = rt.target.Host
	return http.DefaultTransport.RoundTrip(r)
}

func newNotionServer(t *testing.T, handler http.HandlerFunc) *NotionTracker {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.NotEmpty(t, r.Header.Get("Notion-Version"))
		w.Header().Set("Content-Type", "application/json")
		handler(w, r)
	}))
	t.Cleanup(server.Close)

	target, err := url.Parse(server.URL)
	require.NoError(t, err)
	n, err := NewNotionTracker("secret", "db-1", WithNotionHTTPClient(&http.Client{Transport: redirectTransport{target: target}}))
	require.NoError(t, err)
	return n
}

func decodeBody(t *testing.T, r io.Reader) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.NewDecoder(r).Decode(&body))
	return body
}

func notionErrorBody(w http.ResponseWriter, status int, message string) {
	w.WriteHeader(status)
	fmt.Fprintf(w, `{"object":"error","status":%d,"code":"error","message":%q}`, status, message)
}

// fakeNotion is an in-memory database answering query, create and update.
type fakeNotion struct {
	mu          sync.Mutex
	pages       []map[string]any
	creates     int
	failCreates int
}

// typedProperty adds the type and plain_text fields Notion returns to a
// property as it was sent.
func typedProperty(prop map[string]any) map[string]any {
	out := map[string]any{}
	for kind, value := range prop {
		if kind == "id" || kind == "type" {
			continue
		}
		out["type"] = kind
		if kind == "title" || kind == "rich_text" {
			var texts []any
			for _, item := range value.([]any) {
				text := item.(map[string]any)["text"].(map[string]any)
				texts = append(texts, map[string]any{"type": "text", "text": text, "plain_text": text["content"]})
			}
			value = texts
		}
		out[kind] = value
	}
	return out
}

func textOf(prop any) string {
	p, _ := prop.(map[string]any)
	for _, key := range []string{"title", "rich_text"} {
		if items, ok := p[key].([]any); ok {
			var sb strings.Builder
			for _, item := range items {
				sb.WriteString(fmt.Sprint(item.(map[string]any)["plain_text"]))
			}
			return sb.String()
		}
	}
	return ""
}

func (f *fakeNotion) matches(page map[string]any, filter map[string]any) bool {
	if filter == nil {
		return true
	}
	prop := page["properties"].(map[string]any)[filter["property"].(string)]
	if cond, ok := filter["rich_text"].(map[string]any); ok {
		return textOf(prop) == cond["equals"]
	}
	if cond, ok := filter["multi_select"].(map[string]any); ok {
		p, _ := prop.(map[string]any)
		options, _ := p["multi_select"].([]any)
		for _, o := range options {
			if o.(map[string]any)["name"] == cond["contains"] {
				return true
			}
		}
	}
	return false
}

func (f *fakeNotion) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	body := map[string]any{}
	if r.Body != nil {
		json.NewDecoder(r.Body).Decode(&body)
	}

	switch {
	case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/databases/db-1/query"):
		filter, _ := body["filter"].(map[string]any)
		results := []any{}
		for _, page := range f.pages {
			if f.matches(page, filter) {
				results = append(results, page)
			}
		}
		json.NewEncoder(w).Encode(map[string]any{"object": "list", "results": results, "has_more": false, "next_cursor": nil})

	case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/pages"):
		f.creates++
		props := map[string]any{}
		for name, prop := range body["properties"].(map[string]any) {
			props[name] = typedProperty(prop.(map[string]any))
		}
		page := map[string]any{"object": "page", "id": fmt.Sprintf("page-%d", f.creates), "properties": props}
		f.pages = append(f.pages, page)
		if f.failCreates > 0 {
			f.failCreates--
			notionErrorBody(w, http.StatusBadGateway, "upstream timeout")
			return
		}
		json.NewEncoder(w).Encode(page)

	case r.Method == http.MethodPatch && strings.Contains(r.URL.Path, "/pages/"):
		id := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]
		for _, page := range f.pages {
			if page["id"] != id {
				continue
			}
			props := page["properties"].(map[string]any)
			for name, prop := range body["properties"].(map[string]any) {
				props[name] = typedProperty(prop.(map[string]any))
			}
			json.NewEncoder(w).Encode(page)
			return
		}
		notionErrorBody(w, http.StatusNotFound, "page not found")

	default:
		notionErrorBody(w, http.StatusBadRequest, "unexpected "+r.Method+" "+r.URL.Path)
	}
}

func TestNotionTracker_CreateProject(t *testing.T) {
	fake := &fakeNotion{}
	n := newNotionServer(t, fake.ServeHTTP)

	id, err := n.CreateProject(context.Background(), content.Project{
		Name:       "Quantum/Leap",
		ArticleID:  "A1",
		ScriptID:   "S1",
		FolderPath: "RocketReelsAI/Quantum_Leap_20250307_1405",
		CreatedAt:  time.Date(2025, 3, 7, 14, 5, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.Equal(t, "page-1", id)
	require.Len(t, fake.pages, 1)

	props := fake.pages[0]["properties"].(map[string]any)
	assert.Equal(t, "🎬 Quantum-Leap", textOf(props["Topic name"]))
	assert.Equal(t, "RocketReelsAI/Quantum_Leap_20250307_1405", textOf(props["Comments"]))
	deploy := props["Deploy status"].(map[string]any)["multi_select"].([]any)[0].(map[string]any)["name"]
	assert.Equal(t, content.StatusAssetsReady, deploy)
	start := props["Created date and time"].(map[string]any)["date"].(map[string]any)["start"]
	assert.True(t, strings.HasPrefix(fmt.Sprint(start), "2025-03-07"))
	assert.NotContains(t, props, "Folder Link")
}

func TestNotionTracker_CreateProjectIsIdempotent(t *testing.T) {
	fake := &fakeNotion{}
	n := newNotionServer(t, fake.ServeHTTP)
	p := content.Project{Name: "Quantum", FolderPath: "RocketReelsAI/Quantum_20250307_1405"}

	first, err := n.CreateProject(context.Background(), p)
	require.NoError(t, err)
	second, err := n.CreateProject(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, fake.creates)

	// Without a folder path the title identifies the row.
	third, err := n.CreateProject(context.Background(), content.Project{Name: "Folderless"})
	require.NoError(t, err)
	again, err := n.CreateProject(context.Background(), content.Project{Name: "Folderless"})
	require.NoError(t, err)
	assert.Equal(t, third, again)
	assert.Equal(t, 2, fake.creates)
}

func TestNotionTracker_CreateProjectRetryAfterBadGateway(t *testing.T) {
	// The page is written but the response is lost.
	fake := &fakeNotion{failCreates: 1}
	n := newNotionServer(t, fake.ServeHTTP)
	p := content.Project{Name: "Quantum", FolderPath: "RocketReelsAI/Quantum_20250307_1405"}

	_, err := n.CreateProject(context.Background(), p)
	require.Error(t, err)
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "notion", se.Service)
	assert.Equal(t, http.StatusBadGateway, se.Code)
	assert.True(t, IsTemporary(err))

	id, err := n.CreateProject(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, "page-1", id)
	assert.Equal(t, 1, fake.creates)
	assert.Len(t, fake.pages, 1)
}

func TestNotionTracker_CreateProjectFailure(t *testing.T) {
	n := newNotionServer(t, func(w http.ResponseWriter, r *http.Request) {
		notionErrorBody(w, http.StatusBadRequest, "validation")
	})
	_, err := n.CreateProject(context.Background(), content.Project{Name: "x"})
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "notion", se.Service)
	assert.Equal(t, "validation", se.Body)
	assert.False(t, se.Temporary())
}

func TestNotionTracker_FindProjects(t *testing.T) {
	calls := 0
	n := newNotionServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/databases/db-1/query"))
		body := decodeBody(t, r.Body)
		filter := body["filter"].(map[string]any)
		assert.Equal(t, "Deploy status", filter["property"])
		assert.Equal(t, map[string]any{"contains": content.StatusAssetsReady}, filter["multi_select"])

		calls++
		if calls == 1 {
			assert.Empty(t, body["start_cursor"])
			w.Write([]byte(`{"object":"list","results":[{"object":"page","id":"p1","properties":{
				"Topic name":{"type":"title","title":[{"type":"text","plain_text":"🎬 First"}]},
				"Article Id":{"type":"rich_text","rich_text":[{"type":"text","plain_text":"A1"}]},
				"Script Id":{"type":"rich_text","rich_text":[{"type":"text","plain_text":"S1"}]},
				"Comments":{"type":"rich_text","rich_text":[{"type":"text","plain_text":"RocketReelsAI/First"}]},
				"Deploy status":{"type":"multi_select","multi_select":[{"name":"Assets Ready"}]},
				"Created date and time":{"type":"date","date":{"start":"2025-03-07T14:05:00Z"}}
			}}],"has_more":true,"next_cursor":"c2"}`))
			return
		}
		assert.Equal(t, "c2", body["start_cursor"])
		w.Write([]byte(`{"object":"list","results":[{"object":"page","id":"p2","properties":{
			"Topic name":{"type":"title","title":[{"type":"text","plain_text":"Second"}]},
			"Final Video Link":{"type":"url","url":"https://videos.example.com/2.mp4"}
		}}],"has_more":false,"next_cursor":null}`))
	})

	projects, err := n.FindProjects(context.Background(), content.StatusAssetsReady)
	require.NoError(t, err)
	require.Len(t, projects, 2)
	assert.Equal(t, 2, calls)

	first := projects[0]
	assert.Equal(t, "p1", first.ID)
	assert.Equal(t, "First", first.Name)
	assert.Equal(t, "A1", first.ArticleID)
	assert.Equal(t, "S1", first.ScriptID)
	assert.Equal(t, "RocketReelsAI/First", first.FolderPath)
	assert.Equal(t, content.StatusAssetsReady, first.Status)
	assert.True(t, first.CreatedAt.Equal(time.Date(2025, 3, 7, 14, 5, 0, 0, time.UTC)))
	assert.Equal(t, "Second", projects[1].Name)
	assert.Equal(t, "https://videos.example.com/2.mp4", projects[1].VideoFile)
}

func TestNotionTracker_UpdateStatus(t *testing.T) {
	fake := &fakeNotion{}
	n := newNotionServer(t, fake.ServeHTTP)
	id, err := n.CreateProject(context.Background(), content.Project{Name: "p", FolderPath: "RocketReelsAI/p"})
	require.NoError(t, err)

	require.NoError(t, n.UpdateStatus(context.Background(), id, "Editing", ""))
	props := fake.pages[0]["properties"].(map[string]any)
	assert.Equal(t, "In Progress", props["Status"].(map[string]any)["status"].(map[string]any)["name"])
	assert.NotContains(t, props, "Final Video Link")

	require.NoError(t, n.UpdateStatus(context.Background(), id, content.StatusVideoReady, "RocketReelsAI/p/final_draft/final.mp4"))
	assert.Equal(t, "Done", props["Status"].(map[string]any)["status"].(map[string]any)["name"])
	assert.Equal(t, "RocketReelsAI/p/final_draft/final.mp4", props["Final Video Link"].(map[string]any)["url"])

	ready, err := n.FindProjects(context.Background(), content.StatusVideoReady)
	require.NoError(t, err)
	require.Len(t, ready, 1)
	assert.Equal(t, "RocketReelsAI/p/final_draft/final.mp4", ready[0].VideoFile)

	err = n.UpdateStatus(context.Background(), "missing", content.StatusVideoReady, "")
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusNotFound, se.Code)
}

func TestNewNotionTracker_RequiresCredentials(t *testing.T) {
	t.Setenv("NOTION_API_KEY", "")
	t.Setenv("NOTION_DATABASE_ID", "")
	_, err := NewNotionTracker("", "")
	assert.Error(t, err)

	t.Setenv("NOTION_API_KEY", "k")
	t.Setenv("NOTION_DATABASE_ID", "db")
	n, err := NewNotionTracker("", "")
	require.NoError(t, err)
	assert.EqualValues(t, "db", n.DatabaseID)
}
