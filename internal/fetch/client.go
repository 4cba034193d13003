package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"fundamental/crawler/internal/page"
)

// browserHeaders mimic a regular desktop browser. The source serves the
// challenge page to anything that looks like a script.
var browserHeaders = map[string]string{
	"User-Agent":      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8",
	"Accept-Language": "nl-NL,nl;q=0.9,en-US;q=0.8,en;q=0.7",
	"Sec-Fetch-Dest":  "document",
	"Sec-Fetch-Mode":  "navigate",
	"Sec-Fetch-Site":  "none",
	"Sec-Fetch-User":  "?1",
}

// Client fetches pages with a politeness delay between requests. Redirects
// are not followed so a 302 to the challenge page is visible to the caller.
type Client struct {
	http   *http.Client
	delay  time.Duration
	logger *logrus.Logger

	mu       sync.Mutex
	lastSent time.Time
}

func NewClient(delay, timeout time.Duration, logger *logrus.Logger) *Client {
	return &Client{
		http: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		delay:  delay,
		logger: logger,
	}
}

// Get fetches one URL and returns the parsed page. Any HTTP status is
// returned as a page rather than an error; block detection happens on the
// page itself.
func (c *Client) Get(ctx context.Context, pageURL string) (*page.Page, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("building request for %s: %w", pageURL, err)
	}
	for key, value := range browserHeaders {
		req.Header.Set(key, value)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", pageURL, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", pageURL, err)
	}

	c.logger.WithFields(logrus.Fields{
		"url":    pageURL,
		"status": resp.StatusCode,
		"bytes":  len(body),
	}).Debug("fetched page")

	return page.New(pageURL, resp.StatusCode, body)
}

// wait enforces the politeness delay across all callers of this client.
func (c *Client) wait(ctx context.Context) error {
	c.mu.Lock()
	next := c.lastSent.Add(c.delay)
	now := time.Now()
	if next.Before(now) {
		next = now
	}
	c.lastSent = next
	c.mu.Unlock()

	d := time.Until(next)
	if d <= 0 {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
