package crawl

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fundamental/crawler/internal/discovery"
	"fundamental/crawler/internal/extractor"
	"fundamental/crawler/internal/models"
	"fundamental/crawler/internal/page"
)

// fakeFetcher serves synthetic search and detail pages. Search pages carry
// whatever listing links the per-page function returns.
type fakeFetcher struct {
	listingsOn func(pageNum int) []string
	blockPage  int // search page served as blocked, 0 disables
}

func (f *fakeFetcher) Get(_ context.Context, pageURL string) (*page.Page, error) {
	if strings.Contains(pageURL, "/detail/koop/") {
		body := `<html><body>
		<dl><dt>Vraagprijs</dt><dd><span>€ 450.000</span></dd></dl>
		</body></html>`
		return page.New(pageURL, 200, []byte(body))
	}

	pageNum := 1
	if u, err := url.Parse(pageURL); err == nil {
		if v := u.Query().Get("search_result"); v != "" {
			pageNum, _ = strconv.Atoi(v)
		}
	}
	if f.blockPage != 0 && pageNum == f.blockPage {
		return page.New(pageURL, 403, []byte("<html></html>"))
	}

	var b strings.Builder
	b.WriteString("<html><body>")
	for _, link := range f.listingsOn(pageNum) {
		fmt.Fprintf(&b, `<div data-test-id="search-result-item"><a href="%s">x</a></div>`, link)
	}
	b.WriteString("</body></html>")
	return page.New(pageURL, 200, []byte(b.String()))
}

type fakeDispatcher struct {
	mu     sync.Mutex
	props  []*models.Property
	closed bool
}

func (d *fakeDispatcher) Dispatch(p *models.Property) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.props = append(d.props, p)
	return nil
}

func (d *fakeDispatcher) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

type fakeKnown struct{ urls map[string]bool }

func (k *fakeKnown) URLsWithStatus(...string) (map[string]bool, error) {
	if k.urls == nil {
		return map[string]bool{}, nil
	}
	return k.urls, nil
}

func detailURL(pageNum, i int) string {
	return fmt.Sprintf("https://www.funda.nl/detail/koop/amsterdam/appartement-straat-%d-%d/%d%d/", pageNum, i, pageNum, i)
}

func newTestRunner(f Fetcher, d Dispatcher, known KnownURLSource, opts Options) *Runner {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	opts.Place = "amsterdam"
	if opts.MaxEmptyPages == 0 {
		opts.MaxEmptyPages = 3
	}
	if opts.MaxPagesWithoutNew == 0 {
		opts.MaxPagesWithoutNew = 3
	}
	if opts.ConcurrentRequests == 0 {
		opts.ConcurrentRequests = 2
	}
	return NewRunner(f, discovery.New(logger), extractor.New("amsterdam", logger),
		d, known, nil, logger, opts)
}

func TestRunStopsAfterConsecutiveEmptyPages(t *testing.T) {
	fetcher := &fakeFetcher{listingsOn: func(pageNum int) []string {
		if pageNum <= 3 {
			return []string{detailURL(pageNum, 1), detailURL(pageNum, 2)}
		}
		return nil
	}}
	dispatcher := &fakeDispatcher{}

	summary, err := newTestRunner(fetcher, dispatcher, &fakeKnown{}, Options{Mode: ModeActive}).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StopEmptyPages, summary.StopReason)
	assert.Equal(t, 6, summary.PagesCrawled)
	assert.Equal(t, 6, summary.ListingsSeen)
	assert.Equal(t, 6, summary.ItemsDispatched)
	assert.Len(t, summary.SeenURLs, 6)
	assert.True(t, dispatcher.closed)
}

func TestRunStopsAtPageBudget(t *testing.T) {
	fetcher := &fakeFetcher{listingsOn: func(pageNum int) []string {
		links := make([]string, 10)
		for i := range links {
			links[i] = detailURL(pageNum, i)
		}
		return links
	}}
	dispatcher := &fakeDispatcher{}

	summary, err := newTestRunner(fetcher, dispatcher, &fakeKnown{}, Options{Mode: ModeActive, MaxPages: 2}).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StopMaxPages, summary.StopReason)
	assert.Equal(t, 2, summary.PagesCrawled)
	assert.Equal(t, 20, summary.ItemsDispatched)
	assert.Len(t, dispatcher.props, 20)
}

func TestRunStopsWhenNothingNew(t *testing.T) {
	same := []string{detailURL(1, 1), detailURL(1, 2)}
	fetcher := &fakeFetcher{listingsOn: func(int) []string { return same }}
	dispatcher := &fakeDispatcher{}

	summary, err := newTestRunner(fetcher, dispatcher, &fakeKnown{}, Options{Mode: ModeActive}).Run(context.Background())
	require.NoError(t, err)

	// Page 1 introduces both URLs; pages 2-4 repeat them.
	assert.Equal(t, StopNoNewListings, summary.StopReason)
	assert.Equal(t, 4, summary.PagesCrawled)
	assert.Equal(t, 2, summary.ItemsDispatched)
}

func TestRunSkipsKnownURLs(t *testing.T) {
	fetcher := &fakeFetcher{listingsOn: func(pageNum int) []string {
		if pageNum == 1 {
			return []string{detailURL(1, 1), detailURL(1, 2)}
		}
		return nil
	}}
	dispatcher := &fakeDispatcher{}
	known := &fakeKnown{urls: map[string]bool{detailURL(1, 1): true}}

	summary, err := newTestRunner(fetcher, dispatcher, known, Options{Mode: ModeActive}).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, summary.ItemsDispatched)
	assert.Equal(t, 1, summary.ItemsScraped, "known listings must not count as scraped")
	assert.Equal(t, 2, summary.ListingsSeen)
	require.Len(t, dispatcher.props, 1)
	assert.Equal(t, detailURL(1, 2), dispatcher.props[0].URL)
}

func TestRunStopsOnBlockedSearchPage(t *testing.T) {
	fetcher := &fakeFetcher{
		listingsOn: func(pageNum int) []string { return []string{detailURL(pageNum, 1)} },
		blockPage:  2,
	}
	dispatcher := &fakeDispatcher{}

	summary, err := newTestRunner(fetcher, dispatcher, &fakeKnown{}, Options{Mode: ModeActive}).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StopBlocked, summary.StopReason)
	assert.Equal(t, 1, summary.PagesCrawled)
	assert.True(t, dispatcher.closed)
}

func TestRunObservedStatusFollowsMode(t *testing.T) {
	fetcher := &fakeFetcher{listingsOn: func(pageNum int) []string {
		if pageNum == 1 {
			return []string{detailURL(1, 1)}
		}
		return nil
	}}
	dispatcher := &fakeDispatcher{}

	_, err := newTestRunner(fetcher, dispatcher, &fakeKnown{}, Options{Mode: ModeSold}).Run(context.Background())
	require.NoError(t, err)
	require.Len(t, dispatcher.props, 1)
	assert.Equal(t, models.StatusSold, dispatcher.props[0].Status)
}
