package discovery

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"

	"fundamental/crawler/internal/page"
)

// Availability filter values understood by the search endpoint.
const (
	AvailabilityAvailable   = "available"
	AvailabilityUnavailable = "unavailable"
)

// detailPathMarker distinguishes listing detail links from ads, projects and
// agent pages that share the result markup.
const detailPathMarker = "/detail/koop/"

// resultSelectors are the anchor chains the search page has used across
// layout revisions. All of them are tried; the layouts overlap during
// rollouts.
var resultSelectors = []string{
	`div[data-test-id="search-result-item"] a`,
	`div.search-result__header-title-col a`,
}

const nextButtonSelector = `a[data-test-id="next-page-button"]`

// Discoverer finds listing detail URLs and follow-up search pages in search
// result pages.
type Discoverer struct {
	logger *logrus.Logger
}

func New(logger *logrus.Logger) *Discoverer {
	return &Discoverer{logger: logger}
}

// Listings returns the detail URLs found on a search page, drawing from both
// the embedded structured data and the result markup. The two sources are
// unioned because either can lag the other after a layout change. Order is
// first-seen, duplicates are removed, and only detail links survive the
// filter. Returns page.ErrBlocked for block/challenge pages.
func (d *Discoverer) Listings(p *page.Page) ([]string, error) {
	if p.Blocked() {
		return nil, page.ErrBlocked
	}

	seen := make(map[string]bool)
	var urls []string
	add := func(href string) {
		resolved := p.ResolveURL(href)
		if !strings.Contains(resolved, detailPathMarker) {
			return
		}
		if seen[resolved] {
			return
		}
		seen[resolved] = true
		urls = append(urls, resolved)
	}

	structured := 0
	for _, block := range p.StructuredBlocks() {
		if !page.TypeMatches(block, "ItemList") {
			continue
		}
		items, ok := block["itemListElement"].([]interface{})
		if !ok {
			continue
		}
		for _, item := range items {
			entry, ok := item.(map[string]interface{})
			if !ok {
				continue
			}
			if href, ok := page.StringField(entry, "url"); ok {
				add(href)
				structured++
			}
		}
	}

	markup := 0
	doc := p.Doc()
	for _, sel := range resultSelectors {
		doc.Find(sel).Each(func(_ int, s *goquery.Selection) {
			if href, ok := s.Attr("href"); ok {
				add(href)
				markup++
			}
		})
	}

	if d.logger != nil {
		d.logger.WithFields(logrus.Fields{
			"url":        p.URL,
			"structured": structured,
			"markup":     markup,
			"unique":     len(urls),
		}).Debug("discovered listings")
	}
	return urls, nil
}

// NextPage returns the URL of the following search page, or false when the
// crawl has nowhere left to go. The rendered next button is preferred; when
// it is missing (the source omits it past a certain depth even when more
// pages exist) the URL is constructed from the current page number instead.
// A block/challenge page yields no next page: its markup is the
// interstitial, not the result list.
func (d *Discoverer) NextPage(p *page.Page, place, availability string, currentPage int) (string, bool) {
	if p.Blocked() {
		return "", false
	}
	href, ok := p.Doc().Find(nextButtonSelector).First().Attr("href")
	if ok && strings.TrimSpace(href) != "" {
		return p.ResolveURL(href), true
	}
	return SearchURL(place, availability, currentPage+1), true
}

// SearchURL builds a search page URL. The endpoint expects its area and
// availability filters as JSON-encoded string arrays in the query.
func SearchURL(place, availability string, pageNum int) string {
	q := url.Values{}
	q.Set("selected_area", fmt.Sprintf(`["%s"]`, strings.ToLower(place)))
	if availability != "" {
		q.Set("availability", fmt.Sprintf(`["%s"]`, availability))
	}
	if pageNum > 1 {
		q.Set("search_result", fmt.Sprintf("%d", pageNum))
	}
	return "https://www.funda.nl/zoeken/koop?" + q.Encode()
}
