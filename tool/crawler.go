package tool

import (
	"context"
	"errors"
	"fmt"
	"html"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/microcosm-cc/bluemonday"

	"github.com/smallnest/reelgraph/content"
)

// ErrNoContent is returned when a page has no extractable article text.
var ErrNoContent = errors.New("no article content found")

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"

var (
	titleSelectors = []string{
		`h1[data-testid="headline"]`,
		"h1.article-title",
		"h1.headline",
		".headline h1",
		"article h1",
		".post-title",
		".entry-title",
		"h1",
		"title",
	}

	contentSelectors = []string{
		"article .content",
		`[role="main"] article`,
		`[data-module="ArticleBody"]`,
		".article-content",
		".article-body",
		".post-content",
		".entry-content",
		".c-entry-content",
		"article",
		"main",
	}

	boilerplate = strings.Join([]string{
		"script", "style", "noscript", "nav", "footer", "aside", "form", "iframe",
		".advertisement", ".ad", ".social-share", ".newsletter", ".related-articles", ".sidebar",
	}, ", ")

	skipPhrases = []string{"cookie", "privacy", "newsletter", "subscribe", "advertisement", "follow us", "share this"}

	skipImages = []string{"icon", "logo", "avatar", "thumb", "sprite", "pixel"}

	spaces = regexp.MustCompile(`\s+`)

	strictPolicy = bluemonday.StrictPolicy()
)

// stripTags removes markup from an HTML fragment and returns plain text.
func stripTags(s string) string {
	return strings.TrimSpace(spaces.ReplaceAllString(html.UnescapeString(strictPolicy.Sanitize(s)), " "))
}

// Crawler downloads a page and extracts its article text and media.
type Crawler struct {
	HTTPClient    *http.Client
	UserAgent     string
	MinParagraph  int
	MinTextLength int
	MaxParagraphs int
	MaxImages     int
}

// CrawlerOption configures a Crawler.
type CrawlerOption func(*Crawler)

// WithCrawlerHTTPClient sets the HTTP client used to fetch pages.
func WithCrawlerHTTPClient(c *http.Client) CrawlerOption {
	return func(cr *Crawler) { cr.HTTPClient = c }
}

// WithMaxImages caps the number of image URLs kept per article.
func WithMaxImages(n int) CrawlerOption {
	return func(cr *Crawler) { cr.MaxImages = n }
}

// NewCrawler creates a crawler with defaults tuned for news articles.
func NewCrawler(opts ...CrawlerOption) *Crawler {
	c := &Crawler{
		HTTPClient:    &http.Client{Timeout: 30 * time.Second},
		UserAgent:     defaultUserAgent,
		MinParagraph:  50,
		MinTextLength: 100,
		MaxParagraphs: 15,
		MaxImages:     10,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Crawl fetches rawURL and extracts the article.
func (c *Crawler) Crawl(ctx context.Context, rawURL string) (content.Article, error) {
	base, err := url.Parse(rawURL)
	if err != nil || base.Host == "" {
		return content.Article{}, fmt.Errorf("invalid url %q", rawURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return content.Article{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", c.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := defaultClient(c.HTTPClient).Do(req)
	if err != nil {
		return content.Article{}, fmt.Errorf("failed to fetch %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if err := checkStatus("crawl", resp); err != nil {
		return content.Article{}, err
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return content.Article{}, fmt.Errorf("failed to parse %s: %w", rawURL, err)
	}

	article := c.extract(doc, base)
	if len(article.Text) < c.MinTextLength {
		return content.Article{}, fmt.Errorf("%s: %w", rawURL, ErrNoContent)
	}
	return article, nil
}

func (c *Crawler) extract(doc *goquery.Document, base *url.URL) content.Article {
	article := content.Article{
		URL:       base.String(),
		Title:     extractTitle(doc),
		CrawledAt: time.Now(),
	}

	// media is collected before boilerplate removal so figures inside asides survive
	article.Images, article.ImageText = c.extractImages(doc, base)

	doc.Find(boilerplate).Remove()

	paragraphs := c.extractParagraphs(doc)
	article.Text = strings.Join(paragraphs, "\n\n")

	if desc, ok := doc.Find(`meta[name="description"], meta[property="og:description"]`).First().Attr("content"); ok {
		article.Summary = stripTags(desc)
	}
	if article.Summary == "" && len(paragraphs) > 0 {
		article.Summary = firstSentence(paragraphs[0])
	}
	for _, p := range paragraphs {
		if len(article.KeyPoints) == 3 {
			break
		}
		article.KeyPoints = append(article.KeyPoints, firstSentence(p))
	}
	return article
}

func extractTitle(doc *goquery.Document) string {
	var fallback string
	for _, sel := range titleSelectors {
		title := cleanText(doc.Find(sel).First().Text())
		if title == "" {
			continue
		}
		if len(title) > 10 {
			return title
		}
		if fallback == "" {
			fallback = title
		}
	}
	return fallback
}

func (c *Crawler) extractParagraphs(doc *goquery.Document) []string {
	for _, sel := range contentSelectors {
		root := doc.Find(sel).First()
		if root.Length() == 0 {
			continue
		}
		paragraphs := c.collect(root.Find("p"))
		if len(strings.Join(paragraphs, " ")) >= 200 {
			return c.limit(paragraphs)
		}
	}
	return c.limit(c.collect(doc.Find("p")))
}

func (c *Crawler) collect(sel *goquery.Selection) []string {
	var out []string
	sel.Each(func(_ int, s *goquery.Selection) {
		text := cleanText(s.Text())
		if len(text) < c.MinParagraph {
			return
		}
		lower := strings.ToLower(text)
		for _, skip := range skipPhrases {
			if strings.Contains(lower, skip) {
				return
			}
		}
		out = append(out, text)
	})
	return out
}

func (c *Crawler) limit(paragraphs []string) []string {
	if c.MaxParagraphs > 0 && len(paragraphs) > c.MaxParagraphs {
		return paragraphs[:c.MaxParagraphs]
	}
	return paragraphs
}

func (c *Crawler) extractImages(doc *goquery.Document, base *url.URL) (images, alts []string) {
	seen := make(map[string]bool)
	doc.Find("img").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if c.MaxImages > 0 && len(images) >= c.MaxImages {
			return false
		}
		src := firstAttr(s, "src", "data-src", "data-lazy-src", "data-original")
		if src == "" || strings.HasPrefix(src, "data:") {
			return true
		}
		ref, err := url.Parse(src)
		if err != nil {
			return true
		}
		abs := base.ResolveReference(ref)
		if abs.Scheme != "http" && abs.Scheme != "https" {
			return true
		}
		lower := strings.ToLower(abs.String())
		if strings.HasSuffix(lower, ".svg") {
			return true
		}
		for _, skip := range skipImages {
			if strings.Contains(lower, skip) {
				return true
			}
		}
		if seen[abs.String()] {
			return true
		}
		seen[abs.String()] = true
		images = append(images, abs.String())
		if alt := stripTags(s.AttrOr("alt", "")); alt != "" {
			alts = append(alts, alt)
		}
		return true
	})
	return images, alts
}

func firstAttr(s *goquery.Selection, names ...string) string {
	for _, n := range names {
		if v := strings.TrimSpace(s.AttrOr(n, "")); v != "" {
			return v
		}
	}
	return ""
}

func cleanText(s string) string {
	return strings.TrimSpace(spaces.ReplaceAllString(s, " "))
}

func firstSentence(p string) string {
	if i := strings.IndexAny(p, ".!?"); i > 0 {
		return strings.TrimSpace(p[:i+1])
	}
	return p
}
