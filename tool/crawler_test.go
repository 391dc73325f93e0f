package tool

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const articlePage = `<!doctype html>
<html>
<head>
  <title>Site name</title>
  <meta name="description" content="Researchers hit a new &lt;b&gt;milestone&lt;/b&gt; in error correction.">
</head>
<body>
  <nav><p>Home | News | Science | Technology | Opinion | Video | Podcasts</p></nav>
  <article>
    <h1>Quantum chips cross the error correction threshold</h1>
    <img src="/media/chip.jpg" alt="A quantum chip">
    <img src="/static/logo.png" alt="Logo">
    <img src="https://cdn.example.com/icon.svg">
    <img data-src="https://cdn.example.com/lab.jpg" alt="The lab">
    <img src="/media/chip.jpg" alt="duplicate">
    <div class="article-content">
      <p>A team of physicists reported on Tuesday that their processor kept a logical qubit alive longer than any physical qubit.</p>
      <p>Short line.</p>
      <p>Subscribe to our newsletter to get stories like this one delivered every morning to your inbox.</p>
      <p>The result suggests that scaling up error correction is now an engineering problem rather than a physics one, experts said.</p>
      <p>Commercial machines are still years away, but the roadmap just got a lot more concrete for every major lab.</p>
    </div>
  </article>
  <footer><p>Copyright notice and a long footer paragraph that should never reach the article text at all.</p></footer>
  <script>var x = "tracking code that is long enough to be a paragraph if it were one";</script>
</body>
</html>`

func TestCrawler_Crawl(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NotEmpty(t, r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(articlePage))
	}))
	defer server.Close()

	c := NewCrawler(WithCrawlerHTTPClient(server.Client()))
	article, err := c.Crawl(context.Background(), server.URL+"/news/quantum")
	require.NoError(t, err)

	assert.Equal(t, server.URL+"/news/quantum", article.URL)
	assert.Equal(t, "Quantum chips cross the error correction threshold", article.Title)
	assert.Contains(t, article.Text, "logical qubit alive")
	assert.Contains(t, article.Text, "engineering problem")
	assert.NotContains(t, article.Text, "Short line")
	assert.NotContains(t, article.Text, "newsletter")
	assert.NotContains(t, article.Text, "Copyright")
	assert.Len(t, strings.Split(article.Text, "\n\n"), 3)

	assert.Equal(t, []string{server.URL + "/media/chip.jpg", "https://cdn.example.com/lab.jpg"}, article.Images)
	assert.Equal(t, []string{"A quantum chip", "The lab"}, article.ImageText)

	assert.Equal(t, "Researchers hit a new milestone in error correction.", article.Summary)
	require.Len(t, article.KeyPoints, 3)
	assert.True(t, strings.HasPrefix(article.KeyPoints[0], "A team of physicists"))
	assert.False(t, article.CrawledAt.IsZero())
}

func TestCrawler_MaxImages(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(articlePage))
	}))
	defer server.Close()

	c := NewCrawler(WithMaxImages(1))
	article, err := c.Crawl(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Len(t, article.Images, 1)
}

func TestCrawler_NoContent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body><h1>Empty page here</h1><p>tiny</p></body></html>`))
	}))
	defer server.Close()

	_, err := NewCrawler().Crawl(context.Background(), server.URL)
	assert.True(t, errors.Is(err, ErrNoContent))
}

func TestCrawler_Errors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer server.Close()

	c := NewCrawler()
	_, err := c.Crawl(context.Background(), server.URL)
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusNotFound, se.Code)

	_, err = c.Crawl(context.Background(), "not a url")
	assert.Error(t, err)
}

func TestStripTags(t *testing.T) {
	assert.Equal(t, "a b & c", stripTags("<p>a  <em>b</em></p> &amp; c"))
	assert.Equal(t, "", stripTags("<script></script>"))
}
