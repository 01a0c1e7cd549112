package analyzer

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"golang.org/x/net/html"
)

const (
	fetchAttempts  = 3
	fetchRetryWait = 2 * time.Second
	maxBodyBytes   = 4 << 20
	userAgent      = "stylist-api/1.0"
)

// fetchPage downloads the target page, retrying transient failures.
// Non-2xx statuses are not retried; a page that answers 404 now will
// answer 404 in two seconds too.
func (a *Analyzer) fetchPage(ctx context.Context, url string) (string, error) {
	var body string
	err := retry.Do(
		func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
			if err != nil {
				return retry.Unrecoverable(fmt.Errorf("invalid target url: %w", err))
			}
			req.Header.Set("User-Agent", userAgent)

			resp, err := a.httpClient.Do(req)
			if err != nil {
				return fmt.Errorf("failed to fetch %s: %w", url, err)
			}
			defer resp.Body.Close()

			if resp.StatusCode < 200 || resp.StatusCode >= 300 {
				return retry.Unrecoverable(fmt.Errorf("fetch %s: unexpected status %d", url, resp.StatusCode))
			}

			raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", url, err)
			}
			body = string(raw)
			return nil
		},
		retry.Attempts(fetchAttempts),
		retry.Delay(fetchRetryWait),
		retry.DelayType(retry.FixedDelay),
		retry.Context(ctx),
		retry.LastErrorOnly(true),
	)
	return body, err
}

// skippedElements are subtrees that never contribute readable text.
var skippedElements = map[string]bool{
	"script":   true,
	"style":    true,
	"noscript": true,
	"iframe":   true,
	"svg":      true,
	"head":     true,
}

// cleanHTML reduces an HTML document to whitespace-normalized readable
// text.
func cleanHTML(document string) string {
	root, err := html.Parse(strings.NewReader(document))
	if err != nil {
		// Tolerant parser; a hard failure means the input is not HTML
		// at all, so pass it through as-is.
		return strings.Join(strings.Fields(document), " ")
	}

	var parts []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && skippedElements[n.Data] {
			return
		}
		if n.Type == html.TextNode {
			if text := strings.TrimSpace(n.Data); text != "" {
				parts = append(parts, text)
			}
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(root)

	return strings.Join(strings.Fields(strings.Join(parts, " ")), " ")
}
