package mcpcore

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"sync"
	"time"

	readability "codeberg.org/readeck/go-readability/v2"
	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"
)

// defaultFetchTimeout bounds index_url fetches; kept short since it runs
// synchronously inside a tool call rather than a background job.
const defaultFetchTimeout = 20 * time.Second

// fetchURLText retrieves a URL with a Colly collector (the teacher's
// fetch primitive, stripped of its bot-protection detection layer, which
// has no role here) and reduces the response to readable plain text via
// go-readability, falling back to a goquery text dump if readability
// can't find an article body.
func fetchURLText(ctx context.Context, rawURL string) (string, error) {
	base, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}

	var (
		mu       sync.Mutex
		body     []byte
		fetchErr error
	)

	c := colly.NewCollector(colly.UserAgent("deepresearch-mcp/1.0"))
	c.SetRequestTimeout(defaultFetchTimeout)

	c.OnResponse(func(r *colly.Response) {
		mu.Lock()
		defer mu.Unlock()
		body = append([]byte(nil), r.Body...)
	})
	c.OnError(func(r *colly.Response, err error) {
		mu.Lock()
		defer mu.Unlock()
		fetchErr = err
	})

	if err := c.Visit(rawURL); err != nil {
		return "", err
	}
	c.Wait()

	if fetchErr != nil {
		return "", fetchErr
	}
	if len(body) == 0 {
		return "", errors.New("empty response body")
	}

	if article, err := readability.FromReader(strings.NewReader(string(body)), base); err == nil && strings.TrimSpace(article.TextContent) != "" {
		return article.TextContent, nil
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(body)))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(doc.Text()), nil
}
