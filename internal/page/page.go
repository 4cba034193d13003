package page

import (
	"bytes"
	"errors"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"
)

// ErrBlocked signals that the source served a block or verification challenge
// instead of the requested page.
var ErrBlocked = errors.New("blocked or verification required")

// challengePhrase appears in the interstitial page funda serves before a
// verification challenge.
const challengePhrase = "Je bent bijna op de pagina die je zoekt"

// blockedStatuses are HTTP statuses treated as a block/challenge redirect.
var blockedStatuses = map[int]bool{302: true, 403: true, 503: true}

// Page is one fetched and parsed HTML page. The same document is exposed as a
// goquery document (CSS selectors) and an html.Node tree (xpath), since the
// extraction code uses both.
type Page struct {
	URL        string
	StatusCode int
	Body       string

	doc  *goquery.Document
	root *html.Node

	structured []map[string]interface{}
	scanned    bool
}

// New parses a response body into a Page. Parsing is tolerant: real pages are
// rarely valid HTML and html.Parse never fails on plain text.
func New(pageURL string, statusCode int, body []byte) (*Page, error) {
	root, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	return &Page{
		URL:        pageURL,
		StatusCode: statusCode,
		Body:       string(body),
		doc:        doc,
		root:       root,
	}, nil
}

// Doc returns the goquery document for CSS selector lookups.
func (p *Page) Doc() *goquery.Document {
	return p.doc
}

// Blocked reports whether the response looks like a block or verification
// challenge rather than a content page.
func (p *Page) Blocked() bool {
	if blockedStatuses[p.StatusCode] {
		return true
	}
	return strings.Contains(p.Body, challengePhrase)
}

// StructuredBlocks returns every parseable JSON-LD object embedded in the
// page. Malformed blocks are skipped; a block holding a top-level array is
// flattened into its object elements.
func (p *Page) StructuredBlocks() []map[string]interface{} {
	if p.scanned {
		return p.structured
	}
	p.scanned = true

	nodes, err := htmlquery.QueryAll(p.root, `//script[@type="application/ld+json"]`)
	if err != nil {
		return nil
	}
	for _, node := range nodes {
		raw := htmlquery.InnerText(node)
		for _, block := range decodeBlocks(raw) {
			p.structured = append(p.structured, block)
		}
	}
	return p.structured
}

// RawStructuredBlocks returns the unparsed JSON-LD script contents. Used by
// extraction paths that pattern-match the raw text (e.g. energy data buried
// in vendor-specific keys).
func (p *Page) RawStructuredBlocks() []string {
	nodes, err := htmlquery.QueryAll(p.root, `//script[@type="application/ld+json"]`)
	if err != nil {
		return nil
	}
	var raw []string
	for _, node := range nodes {
		raw = append(raw, htmlquery.InnerText(node))
	}
	return raw
}

// ResolveURL resolves a possibly-relative href against the page URL.
func (p *Page) ResolveURL(href string) string {
	base, err := url.Parse(p.URL)
	if err != nil {
		return href
	}
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return href
	}
	return base.ResolveReference(ref).String()
}

func decodeBlocks(raw string) []map[string]interface{} {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}

	var asObject map[string]interface{}
	if err := jsonUnmarshal(raw, &asObject); err == nil {
		return []map[string]interface{}{asObject}
	}

	var asList []interface{}
	if err := jsonUnmarshal(raw, &asList); err == nil {
		var blocks []map[string]interface{}
		for _, item := range asList {
			if obj, ok := item.(map[string]interface{}); ok {
				blocks = append(blocks, obj)
			}
		}
		return blocks
	}

	return nil
}
