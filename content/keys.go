package content

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"regexp"
	"sort"
	"strings"
	"time"
)

var trackingParams = map[string]bool{
	"utm_source": true, "utm_medium": true, "utm_campaign": true,
	"utm_term": true, "utm_content": true, "fbclid": true, "gclid": true,
}

// NormalizeURL canonicalizes a URL so that trivially different spellings of
// the same page share a natural key. Unparseable input is returned trimmed.
func NormalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Host = strings.TrimSuffix(u.Host, ":80")
	if u.Scheme == "https" {
		u.Host = strings.TrimSuffix(u.Host, ":443")
	}
	u.Fragment = ""
	u.Path = strings.TrimSuffix(u.Path, "/")

	q := u.Query()
	for k := range q {
		if trackingParams[strings.ToLower(k)] {
			q.Del(k)
		}
	}
	keys := make([]string, 0, len(q))
	for k := range q {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var parts []string
	for _, k := range keys {
		for _, v := range q[k] {
			parts = append(parts, url.QueryEscape(k)+"="+url.QueryEscape(v))
		}
	}
	u.RawQuery = strings.Join(parts, "&")
	return u.String()
}

// ArticleKey is the natural key of an article: the hex SHA-256 of its normalized URL.
func ArticleKey(rawURL string) string {
	return hash(NormalizeURL(rawURL))
}

// ScriptKey is the natural key of a script generated from an article.
func ScriptKey(articleKey, text string) string {
	return hash(articleKey + "\n" + strings.TrimSpace(text))
}

func hash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

var (
	unsafeChars = regexp.MustCompile(`[<>:"/\\|?*]`)
	whitespace  = regexp.MustCompile(`\s+`)
)

const maxFolderName = 100

// SanitizeName makes a string safe to use as a folder name.
func SanitizeName(name string) string {
	s := unsafeChars.ReplaceAllString(name, "_")
	s = whitespace.ReplaceAllString(s, "_")
	if r := []rune(s); len(r) > maxFolderName {
		s = string(r[:maxFolderName])
	}
	return s
}

// FolderName returns the project folder name for a script title created at t.
func FolderName(title string, t time.Time) string {
	if strings.TrimSpace(title) == "" {
		title = "Untitled"
	}
	return SanitizeName(strings.TrimSpace(title) + "_" + t.Format("20060102_1504"))
}
