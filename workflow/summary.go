package workflow

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
	"github.com/microcosm-cc/bluemonday"

	"github.com/smallnest/reelgraph/content"
)

// FinalStatus is the status a run reaching finalize ends with.
func FinalStatus(s State) string {
	if len(s.Errors) > 0 {
		return StatusCompleteWithErrors
	}
	return StatusComplete
}

func orNone(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// Summarize renders the markdown summary of a run.
func Summarize(s State, elapsed time.Duration) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# Production summary: %s\n\n", s.Topic)

	sb.WriteString("| Field | Value |\n|---|---|\n")
	rows := [][2]string{
		{"Status", FinalStatus(s)},
		{"Article", orNone(s.Article.Title)},
		{"Article ID", orNone(s.ArticleID)},
		{"Script ID", orNone(s.ScriptID)},
		{"Project folder", orNone(s.FolderPath)},
		{"Tracking record", orNone(s.ProjectID)},
		{"Elapsed", elapsed.Round(time.Millisecond).String()},
	}
	for _, r := range rows {
		fmt.Fprintf(&sb, "| %s | %s |\n", r[0], strings.ReplaceAll(r[1], "|", `\|`))
	}

	articles, scripts := 0, 0
	if s.ArticleID != "" {
		articles = 1
	}
	if s.ScriptID != "" {
		scripts = 1
	}
	sb.WriteString("\n## Produced\n\n")
	fmt.Fprintf(&sb, "- Articles: %d\n", articles)
	fmt.Fprintf(&sb, "- Scripts: %d\n", scripts)
	fmt.Fprintf(&sb, "- Prompts: %d\n", len(s.Prompts))
	fmt.Fprintf(&sb, "- Images: %d\n", len(s.Images))
	fmt.Fprintf(&sb, "- Voice files: %d\n", len(s.VoiceFiles))
	fmt.Fprintf(&sb, "- Organized files: %d\n", len(s.Organized))

	if s.Script.Hook != "" {
		fmt.Fprintf(&sb, "\n## Hook\n\n> %s\n", s.Script.Hook)
	}
	if s.Article.URL != "" {
		fmt.Fprintf(&sb, "\nSource: <%s>\n", s.Article.URL)
	}

	sb.WriteString("\n## Errors\n\n")
	if len(s.Errors) == 0 {
		sb.WriteString("None.\n")
	}
	for _, e := range s.Errors {
		fmt.Fprintf(&sb, "- **%s** (%s/%s): %s\n", e.Node, e.Kind, e.Cause, e.Detail)
	}

	if s.FolderPath != "" {
		fmt.Fprintf(&sb, "\n## Next step\n\nEdit the video and drop it into `%s/%s`, then mark it %q.\n",
			s.FolderPath, content.FolderFinalDraft, content.StatusVideoReady)
	}
	return sb.String()
}

var page = template.Must(template.New("summary").Parse(`<!doctype html>
<html>
<head><meta charset="utf-8"><title>{{.Title}}</title></head>
<body>
{{.Body}}
</body>
</html>
`))

// RenderHTML converts a markdown summary into a sanitized HTML page.
func RenderHTML(title, md string) ([]byte, error) {
	extensions := parser.CommonExtensions | parser.AutoHeadingIDs
	p := parser.NewWithExtensions(extensions)
	doc := p.Parse([]byte(md))

	renderer := html.NewRenderer(html.RendererOptions{Flags: html.CommonFlags | html.HrefTargetBlank})
	body := bluemonday.UGCPolicy().SanitizeBytes(markdown.Render(doc, renderer))

	var buf bytes.Buffer
	err := page.Execute(&buf, struct {
		Title string
		Body  template.HTML
	}{
		Title: title,
		Body:  template.HTML(body), // #nosec G203 -- sanitized above
	})
	if err != nil {
		return nil, fmt.Errorf("failed to render summary: %w", err)
	}
	return buf.Bytes(), nil
}
