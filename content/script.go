package content

import (
	"fmt"
	"regexp"
	"strings"
)

const hookPreview = 150

// SectionHeaders are the bracketed headers a generated script is asked to use.
var SectionHeaders = []string{
	"[0-5s: HOOK]",
	"[5-15s: INTRODUCTION]",
	"[15-45s: MAIN CONTENT]",
	"[45-60s: CONCLUSION/CTA]",
}

var (
	sectionMarkers = regexp.MustCompile(`(?i)\b(HOOK|ACT [0-9]+|CONCLUSION/CTA|CONCLUSION|CTA|SCENE [0-9]+)\s*:`)
	bracketHeader  = regexp.MustCompile(`\[[^\]]*\]`)
)

// TargetWords returns the approximate word count of a script lasting the
// given number of seconds.
func TargetWords(seconds int) int {
	switch {
	case seconds <= 30:
		return 75
	case seconds <= 60:
		return 150
	case seconds <= 180:
		return 450
	default:
		return 900
	}
}

// ExtractHook returns the hook line of a script. Scripts without a marked
// hook fall back to their first characters.
func ExtractHook(script string) string {
	lines := strings.Split(script, "\n")
	for i, line := range lines {
		upper := strings.ToUpper(line)
		if bracketHeader.MatchString(line) && strings.Contains(upper, "HOOK") {
			if rest := strings.TrimSpace(bracketHeader.ReplaceAllString(line, "")); rest != "" {
				return rest
			}
			for _, next := range lines[i+1:] {
				next = strings.TrimSpace(next)
				if next == "" {
					continue
				}
				if bracketHeader.MatchString(next) {
					break
				}
				return next
			}
			continue
		}
		if !strings.Contains(upper, "HOOK:") && !strings.Contains(upper, "**HOOK**") {
			continue
		}
		hook := strings.ReplaceAll(line, "**", "")
		if i := strings.Index(strings.ToUpper(hook), "HOOK"); i >= 0 {
			hook = hook[i+len("HOOK"):]
		}
		hook = strings.TrimSpace(strings.TrimLeft(hook, ": "))
		if hook != "" {
			return hook
		}
	}

	text := strings.TrimSpace(script)
	if r := []rune(text); len(r) > hookPreview {
		return string(r[:hookPreview]) + "..."
	}
	return text
}

// CleanForVoice strips markdown emphasis and section markers so the text
// can be read aloud.
func CleanForVoice(script string) string {
	s := strings.ReplaceAll(script, "**", "")
	s = strings.ReplaceAll(s, "*", "")
	s = bracketHeader.ReplaceAllString(s, "")
	s = sectionMarkers.ReplaceAllString(s, "")

	var lines []string
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(strings.TrimLeft(line, "#-> "))
		if line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}

// Scenes splits a script into narrated scenes: one per non-empty paragraph
// once markers are removed.
func Scenes(script string) []string {
	var scenes []string
	for _, para := range strings.Split(CleanForVoice(script), "\n") {
		if len(words(para)) >= 3 {
			scenes = append(scenes, para)
		}
	}
	return scenes
}

// DefaultImageStyle is the style appended to derived image prompts.
const DefaultImageStyle = "vertical 9:16, cinematic lighting, high detail, no text"

// ScenePrompts derives up to n image prompts directly from the script.
func ScenePrompts(script string, n int) []Prompt {
	scenes := Scenes(script)
	if n > 0 && len(scenes) > n {
		scenes = scenes[:n]
	}
	prompts := make([]Prompt, 0, len(scenes))
	for i, scene := range scenes {
		prompts = append(prompts, Prompt{
			Index: i + 1,
			Scene: fmt.Sprintf("Scene %d", i+1),
			Text:  fmt.Sprintf("Illustration of: %s", truncateWords(scene, 40)),
			Style: DefaultImageStyle,
		})
	}
	return prompts
}

func words(s string) []string {
	return strings.Fields(s)
}

func truncateWords(s string, n int) string {
	w := words(s)
	if len(w) <= n {
		return strings.Join(w, " ")
	}
	return strings.Join(w[:n], " ") + "..."
}
