package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/smallnest/reelgraph/graph"
	"github.com/smallnest/reelgraph/workflow"
)

type styles struct {
	title lipgloss.Style
	ok    lipgloss.Style
	warn  lipgloss.Style
	fail  lipgloss.Style
	faint lipgloss.Style
}

// newStyles degrades to plain text when out is not a terminal.
func newStyles(out io.Writer) styles {
	r := lipgloss.NewRenderer(out)
	return styles{
		title: r.NewStyle().Bold(true),
		ok:    r.NewStyle().Bold(true).Foreground(lipgloss.Color("2")),
		warn:  r.NewStyle().Bold(true).Foreground(lipgloss.Color("3")),
		fail:  r.NewStyle().Bold(true).Foreground(lipgloss.Color("1")),
		faint: r.NewStyle().Faint(true),
	}
}

func (s styles) status(status graph.RunStatus) string {
	switch status {
	case graph.StatusCompleted:
		return s.ok.Render(string(status))
	case graph.StatusCompletedWithErrors:
		return s.warn.Render(string(status))
	default:
		return s.fail.Render(string(status))
	}
}

func renderResult(out io.Writer, res *graph.Result[workflow.State]) {
	st := newStyles(out)
	fmt.Fprintf(out, "%s %s %s\n", st.title.Render("Run"), res.RunID, st.status(res.Status))

	for _, msg := range res.State.Messages {
		fmt.Fprintf(out, "  %s\n", st.faint.Render(msg))
	}
	if len(res.Skipped) > 0 {
		fmt.Fprintf(out, "  skipped: %s\n", strings.Join(res.Skipped, ", "))
	}
	for _, e := range res.Errors {
		fmt.Fprintf(out, "  %s %s (%s/%s): %s\n", st.fail.Render("error"), e.Node, e.Kind, e.Cause, e.Detail)
	}
	if res.State.Summary != "" {
		fmt.Fprintf(out, "\n%s\n", res.State.Summary)
	}
}

func renderTrace(out io.Writer, spans []*graph.TraceSpan) {
	st := newStyles(out)
	fmt.Fprintf(out, "\n%s\n", st.title.Render("Trace"))
	for _, span := range spans {
		result := st.ok.Render("ok")
		if span.Error != nil {
			result = st.fail.Render("error")
		}
		fmt.Fprintf(out, "  %-18s %8s  attempts=%d  %s\n",
			span.NodeName, span.Duration.Round(time.Millisecond), span.Attempts, result)
	}
}
