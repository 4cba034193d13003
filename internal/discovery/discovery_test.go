package discovery

import (
	"net/url"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fundamental/crawler/internal/page"
)

const searchURL = "https://www.funda.nl/zoeken/koop?selected_area=%5B%22amsterdam%22%5D"

func newTestDiscoverer() *Discoverer {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return New(logger)
}

func mustPage(t *testing.T, url string, status int, body string) *page.Page {
	t.Helper()
	p, err := page.New(url, status, []byte(body))
	require.NoError(t, err)
	return p
}

func TestListingsUnionsBothSources(t *testing.T) {
	// One URL only in structured data, one only in markup, one in both.
	body := `<html><head>
	<script type="application/ld+json">
	{"@type":"ItemList","itemListElement":[
	  {"@type":"ListItem","url":"https://www.funda.nl/detail/koop/amsterdam/appartement-a-1/1/"},
	  {"@type":"ListItem","url":"https://www.funda.nl/detail/koop/amsterdam/huis-b-2/2/"}
	]}
	</script>
	</head><body>
	<div data-test-id="search-result-item">
	  <a href="/detail/koop/amsterdam/huis-b-2/2/">B</a>
	</div>
	<div data-test-id="search-result-item">
	  <a href="/detail/koop/amsterdam/appartement-c-3/3/">C</a>
	</div>
	</body></html>`

	p := mustPage(t, searchURL, 200, body)
	urls, err := newTestDiscoverer().Listings(p)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"https://www.funda.nl/detail/koop/amsterdam/appartement-a-1/1/",
		"https://www.funda.nl/detail/koop/amsterdam/huis-b-2/2/",
		"https://www.funda.nl/detail/koop/amsterdam/appartement-c-3/3/",
	}, urls)
}

func TestListingsFiltersNonDetailLinks(t *testing.T) {
	body := `<html><body>
	<div data-test-id="search-result-item">
	  <a href="/detail/koop/amsterdam/appartement-a-1/1/">listing</a>
	  <a href="/makelaar/12345-agency/">agent</a>
	  <a href="/nieuwbouw/project/">project</a>
	</div>
	</body></html>`

	p := mustPage(t, searchURL, 200, body)
	urls, err := newTestDiscoverer().Listings(p)
	require.NoError(t, err)
	require.Len(t, urls, 1)
	assert.Contains(t, urls[0], "/detail/koop/")
}

func TestListingsLegacyMarkup(t *testing.T) {
	body := `<html><body>
	<div class="search-result__header-title-col">
	  <a href="/detail/koop/amsterdam/huis-oud-1/9/">old layout</a>
	</div>
	</body></html>`

	p := mustPage(t, searchURL, 200, body)
	urls, err := newTestDiscoverer().Listings(p)
	require.NoError(t, err)
	assert.Len(t, urls, 1)
}

func TestListingsBlockedPage(t *testing.T) {
	p := mustPage(t, searchURL, 403, "<html></html>")
	_, err := newTestDiscoverer().Listings(p)
	assert.ErrorIs(t, err, page.ErrBlocked)
}

func TestNextPagePrefersButton(t *testing.T) {
	body := `<html><body>
	<a data-test-id="next-page-button" href="/zoeken/koop?selected_area=%5B%22amsterdam%22%5D&search_result=2">volgende</a>
	</body></html>`

	p := mustPage(t, searchURL, 200, body)
	next, ok := newTestDiscoverer().NextPage(p, "amsterdam", "", 1)
	require.True(t, ok)
	assert.Contains(t, next, "search_result=2")
	assert.True(t, strings.HasPrefix(next, "https://www.funda.nl/"))
}

func TestNextPageFallsBackToConstruction(t *testing.T) {
	p := mustPage(t, searchURL, 200, "<html><body>geen knop</body></html>")
	next, ok := newTestDiscoverer().NextPage(p, "amsterdam", AvailabilityUnavailable, 4)
	require.True(t, ok)

	u, err := url.Parse(next)
	require.NoError(t, err)
	q := u.Query()
	assert.Equal(t, `["amsterdam"]`, q.Get("selected_area"))
	assert.Equal(t, `["unavailable"]`, q.Get("availability"))
	assert.Equal(t, "5", q.Get("search_result"))
}

func TestNextPageBlockedPage(t *testing.T) {
	p := mustPage(t, searchURL, 403, "<html></html>")
	next, ok := newTestDiscoverer().NextPage(p, "amsterdam", "", 1)
	assert.False(t, ok)
	assert.Empty(t, next)
}

func TestSearchURLFirstPage(t *testing.T) {
	u, err := url.Parse(SearchURL("Amsterdam", "", 1))
	require.NoError(t, err)
	q := u.Query()
	assert.Equal(t, `["amsterdam"]`, q.Get("selected_area"))
	assert.Empty(t, q.Get("availability"))
	assert.Empty(t, q.Get("search_result"))
}
