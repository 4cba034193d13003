package extractor

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"

	"fundamental/crawler/internal/models"
	"fundamental/crawler/internal/page"
)

// listingTypes are the @type values under which the source publishes the
// listing's structured-data block.
var listingTypes = []string{"Product", "Place", "RealEstateListing", "Appartement"}

// Selector fallback chains per field, tried in order. The first selector that
// yields usable text wins.
var (
	priceSelectors = []string{
		`dt:contains('Vraagprijs') + dd span`,
		`dt:contains('Prijs') + dd span`,
		`div[class*='price'] span`,
		`span[class*='price']`,
	}
	yearSelectors = []string{
		`dt:contains('Bouwjaar') + dd span`,
		`dt:contains('Bouwjaar') + dd`,
	}
	roomsSelectors = []string{
		`dt:contains('Aantal kamers') + dd span`,
		`dt:contains('Aantal kamers') + dd`,
	}
	areaSelectors = []string{
		`dt:contains('Woonoppervlakte') + dd span`,
		`dt:contains('Woonoppervlakte') + dd`,
		`dt:contains('Gebruiksoppervlakte wonen') + dd span`,
		`dt:contains('Oppervlakte') + dd span`,
	}
	energySelectors = []string{
		`dt:contains('Energielabel') + dd span`,
		`dt:contains('Energielabel') + dd`,
		`div[class*='energy-label']`,
		`span[class*='energy-label']`,
	}
	listingDateSelectors = []string{
		`dt:contains('Aangeboden sinds') + dd span`,
		`dt:contains('Aangeboden sinds') + dd`,
		`[data-testid='listing-date']`,
	}
	sellingDateSelectors = []string{
		`dt:contains('Verkoopdatum') + dd span`,
		`dt:contains('Verkocht op') + dd span`,
		`dt:contains('Verkoopdatum') + dd`,
		`[data-testid='sale-date']`,
	}
	streetSelectors = []string{
		`span.object-header__street`,
		`h1 span.block`,
		`h1.object-header__container span`,
	}
)

var (
	urlSegmentRe    = regexp.MustCompile(`^(appartement|huis)-(.+)$`)
	rawEnergyRe     = regexp.MustCompile(`(?i)["']energy(?:Label|Data)["']\s*:\s*["']([A-G]\+{0,2})["']`)
	descEnergyRe    = regexp.MustCompile(`(?i)energi(?:elabel|eklasse)\s*:?\s*([A-G]\+{0,2})\b`)
	postalCityRe    = regexp.MustCompile(`(\d{4}\s?[A-Z]{2})\s+(.+)`)
	trailingDigitRe = regexp.MustCompile(`-\d+$`)
)

// outcome is the result of one extraction strategy.
type outcome int

const (
	outcomeMiss outcome = iota
	outcomeMatched
	outcomeMalformed
)

// strategy is one way to obtain a field, paired with a name for diagnostics.
type strategy struct {
	name string
	run  func(b *builder) outcome
}

// Note records which strategy produced a field, or why the field is absent.
// Notes are diagnostics only; absent fields stay nil on the property.
type Note struct {
	Field  string `json:"field"`
	Source string `json:"source"`
	Detail string `json:"detail,omitempty"`
}

// Extractor turns parsed listing pages into properties. One extractor is
// built per crawl target so the place name can back-fill the city field the
// way the structured data never does.
type Extractor struct {
	place  string
	logger *logrus.Logger
}

func New(place string, logger *logrus.Logger) *Extractor {
	return &Extractor{place: strings.ToLower(strings.TrimSpace(place)), logger: logger}
}

// Extract builds a property from a detail page. The observed status is
// supplied by the caller, since whether a page was reached through the active
// or the sold search is not visible on the page itself. Returns
// page.ErrBlocked when the page is a block or verification challenge.
func (e *Extractor) Extract(p *page.Page, observedStatus string) (*models.Property, []Note, error) {
	if p.Blocked() {
		return nil, nil, page.ErrBlocked
	}

	b := &builder{
		page: p,
		prop: &models.Property{
			URL:       p.URL,
			Status:    observedStatus,
			ScrapedAt: time.Now().UTC(),
		},
	}
	b.block = e.listingBlock(p)

	// Field order is fixed so partial results are always comparable.
	b.try("street", strategy{"structured", structuredStreet},
		strategy{"header", headerStreet},
		strategy{"url", urlStreet})
	b.try("property_type", strategy{"url", urlPropertyType},
		strategy{"breadcrumb", breadcrumbPropertyType})
	e.extractAddress(b)
	b.try("price", strategy{"structured", structuredPrice},
		strategy{"markup", markupPrice})
	b.try("year_built", strategy{"markup", markupYear})
	b.try("energy_label", strategy{"markup", markupEnergy},
		strategy{"structured-raw", rawEnergy},
		strategy{"description", descriptionEnergy})
	b.try("num_rooms", strategy{"markup", markupRooms})
	b.try("living_area", strategy{"structured", structuredArea},
		strategy{"description", descriptionArea},
		strategy{"markup", markupArea})
	b.try("listing_date", strategy{"structured", structuredListingDate},
		strategy{"markup", markupListingDate})
	b.try("selling_date", strategy{"structured", structuredSellingDate},
		strategy{"markup", markupSellingDate})

	b.enforceDateOrder()

	if e.logger != nil {
		for _, n := range b.notes {
			if n.Detail != "" {
				e.logger.WithFields(logrus.Fields{
					"url":    p.URL,
					"field":  n.Field,
					"detail": n.Detail,
				}).Debug("field extraction fallback")
			}
		}
	}
	return b.prop, b.notes, nil
}

// listingBlock finds the structured-data block describing the listing itself,
// as opposed to breadcrumbs, organization info and other embedded blocks.
func (e *Extractor) listingBlock(p *page.Page) map[string]interface{} {
	for _, block := range p.StructuredBlocks() {
		if page.TypeMatches(block, listingTypes...) {
			return block
		}
	}
	return nil
}

// extractAddress fills neighborhood, postal code and city together, since
// every source for one of them carries the others.
func (e *Extractor) extractAddress(b *builder) {
	if b.block != nil {
		locality, hasLocality := page.StringField(b.block, "address", "addressLocality")
		postal, hasPostal := page.StringField(b.block, "address", "postalCode")
		if hasLocality || hasPostal {
			if hasLocality {
				b.prop.Neighborhood = strings.TrimSpace(strings.Split(locality, ",")[0])
			}
			if hasPostal {
				b.prop.PostalCode = strings.TrimSpace(postal)
			}
			b.prop.City = titleCase(e.place)
			b.note("address", "structured", "")
			return
		}
	}

	// Sold pages render "1234 AB Amsterdam" in the header.
	header := b.firstText(`h1.object-header__container span.text-neutral-40`, `span.object-header__subtitle`)
	if header != "" {
		if m := postalCityRe.FindStringSubmatch(header); m != nil {
			b.prop.PostalCode = strings.TrimSpace(m[1])
			b.prop.City = titleCase(strings.TrimSpace(m[2]))
			b.note("address", "header", "")
			return
		}
	}

	// Last resort: the final breadcrumb is the neighborhood and the page
	// title usually repeats the postal code.
	crumb := b.page.Doc().Find(`nav[aria-label='Breadcrumb'] span`).Last().Text()
	title := b.page.Doc().Find("title").Text()
	if crumb != "" || title != "" {
		if crumb != "" {
			b.prop.Neighborhood = strings.TrimSpace(crumb)
		}
		if m := postalCodeRe.FindString(title); m != "" {
			b.prop.PostalCode = m
		}
		b.prop.City = titleCase(e.place)
		b.note("address", "breadcrumb", "")
		return
	}
	b.note("address", "", "absent")
}

type builder struct {
	page  *page.Page
	prop  *models.Property
	block map[string]interface{}
	notes []Note
}

func (b *builder) note(field, source, detail string) {
	b.notes = append(b.notes, Note{Field: field, Source: source, Detail: detail})
}

// try runs strategies in order until one matches. Malformed values are
// recorded and skipped so a later strategy can still fill the field.
func (b *builder) try(field string, strategies ...strategy) {
	for _, s := range strategies {
		switch s.run(b) {
		case outcomeMatched:
			b.note(field, s.name, "")
			return
		case outcomeMalformed:
			b.note(field, s.name, "malformed")
		}
	}
	b.note(field, "", "absent")
}

// firstText returns the first non-empty trimmed text among the selectors.
func (b *builder) firstText(selectors ...string) string {
	doc := b.page.Doc()
	for _, sel := range selectors {
		text := strings.TrimSpace(doc.Find(sel).First().Text())
		if text != "" {
			return text
		}
	}
	return ""
}

// enforceDateOrder drops a selling date that precedes the listing date. The
// dates are ISO strings, so string comparison is chronological.
func (b *builder) enforceDateOrder() {
	if b.prop.ListingDate != "" && b.prop.SellingDate != "" && b.prop.SellingDate < b.prop.ListingDate {
		b.prop.SellingDate = ""
		b.note("selling_date", "", "precedes listing date, dropped")
	}
}

func structuredStreet(b *builder) outcome {
	if b.block == nil {
		return outcomeMiss
	}
	street, ok := page.StringField(b.block, "address", "streetAddress")
	if !ok {
		return outcomeMiss
	}
	b.prop.Street = strings.TrimSpace(street)
	return outcomeMatched
}

func headerStreet(b *builder) outcome {
	text := b.firstText(streetSelectors...)
	if text == "" {
		return outcomeMiss
	}
	b.prop.Street = text
	return outcomeMatched
}

// urlStreet recovers the street from the detail URL path, whose listing
// segment looks like "appartement-van-beuningenstraat-144-3".
func urlStreet(b *builder) outcome {
	_, street, ok := parseListingSegment(b.page.URL)
	if !ok || street == "" {
		return outcomeMiss
	}
	b.prop.Street = street
	return outcomeMatched
}

func urlPropertyType(b *builder) outcome {
	ptype, _, ok := parseListingSegment(b.page.URL)
	if !ok {
		return outcomeMiss
	}
	b.prop.PropertyType = ptype
	return outcomeMatched
}

func breadcrumbPropertyType(b *builder) outcome {
	found := ""
	b.page.Doc().Find(`nav[aria-label='Breadcrumb'] span`).Each(func(_ int, s *goquery.Selection) {
		text := strings.ToLower(strings.TrimSpace(s.Text()))
		if strings.Contains(text, "appartement") {
			found = "appartement"
		} else if strings.Contains(text, "huis") {
			found = "huis"
		}
	})
	if found == "" {
		return outcomeMiss
	}
	b.prop.PropertyType = found
	return outcomeMatched
}

func structuredPrice(b *builder) outcome {
	if b.block == nil {
		return outcomeMiss
	}
	value, ok := page.NumberField(b.block, "offers", "price")
	if !ok {
		return outcomeMiss
	}
	price := int(value)
	b.prop.Price = &price
	return outcomeMatched
}

func markupPrice(b *builder) outcome {
	text := b.firstText(priceSelectors...)
	if text == "" {
		return outcomeMiss
	}
	price, ok := NormalizePrice(text)
	if !ok {
		return outcomeMalformed
	}
	b.prop.Price = &price
	return outcomeMatched
}

func markupYear(b *builder) outcome {
	text := b.firstText(yearSelectors...)
	if text == "" {
		return outcomeMiss
	}
	m := yearRe.FindString(text)
	if m == "" {
		return outcomeMalformed
	}
	year, err := strconv.Atoi(m)
	if err != nil || !PlausibleYear(year) {
		return outcomeMalformed
	}
	b.prop.YearBuilt = &year
	return outcomeMatched
}

func markupEnergy(b *builder) outcome {
	text := b.firstText(energySelectors...)
	if text == "" {
		return outcomeMiss
	}
	label := strings.ToUpper(strings.Fields(text)[0])
	if !ValidEnergyLabel(label) {
		return outcomeMalformed
	}
	b.prop.EnergyLabel = label
	return outcomeMatched
}

func rawEnergy(b *builder) outcome {
	for _, raw := range b.page.RawStructuredBlocks() {
		if m := rawEnergyRe.FindStringSubmatch(raw); m != nil {
			label := strings.ToUpper(m[1])
			if ValidEnergyLabel(label) {
				b.prop.EnergyLabel = label
				return outcomeMatched
			}
		}
	}
	return outcomeMiss
}

func descriptionEnergy(b *builder) outcome {
	doc := b.page.Doc()
	for _, sel := range []string{`div.object-description__features li`, `div.object-description-body`} {
		text := doc.Find(sel).Text()
		if m := descEnergyRe.FindStringSubmatch(text); m != nil {
			label := strings.ToUpper(m[1])
			if ValidEnergyLabel(label) {
				b.prop.EnergyLabel = label
				return outcomeMatched
			}
		}
	}
	return outcomeMiss
}

func markupRooms(b *builder) outcome {
	text := b.firstText(roomsSelectors...)
	if text == "" {
		return outcomeMiss
	}
	m := roomsRe.FindStringSubmatch(text)
	if m == nil {
		return outcomeMalformed
	}
	rooms, err := strconv.Atoi(m[1])
	if err != nil {
		return outcomeMalformed
	}
	b.prop.NumRooms = &rooms
	return outcomeMatched
}

func structuredArea(b *builder) outcome {
	if b.block == nil {
		return outcomeMiss
	}
	value, ok := page.NumberField(b.block, "floorSize", "value")
	if !ok {
		return outcomeMiss
	}
	area := int(value)
	b.prop.LivingArea = &area
	return outcomeMatched
}

func descriptionArea(b *builder) outcome {
	if b.block == nil {
		return outcomeMiss
	}
	desc, ok := page.StringField(b.block, "description")
	if !ok {
		return outcomeMiss
	}
	area, ok := AreaFromDescription(desc)
	if !ok {
		return outcomeMiss
	}
	b.prop.LivingArea = &area
	return outcomeMatched
}

func markupArea(b *builder) outcome {
	text := b.firstText(areaSelectors...)
	if text == "" {
		return outcomeMiss
	}
	area, ok := ParseArea(text)
	if !ok {
		return outcomeMalformed
	}
	b.prop.LivingArea = &area
	return outcomeMatched
}

func structuredListingDate(b *builder) outcome {
	return structuredDate(b, "datePosted", &b.prop.ListingDate)
}

func structuredSellingDate(b *builder) outcome {
	return structuredDate(b, "dateSold", &b.prop.SellingDate)
}

// structuredDate scans every block for the key, not just the listing block:
// the source sometimes publishes dates in a separate event block.
func structuredDate(b *builder, key string, dst *string) outcome {
	for _, block := range b.page.StructuredBlocks() {
		raw, ok := page.StringField(block, key)
		if !ok {
			continue
		}
		date, ok := NormalizeDate(raw)
		if !ok {
			return outcomeMalformed
		}
		*dst = date
		return outcomeMatched
	}
	return outcomeMiss
}

func markupListingDate(b *builder) outcome {
	return markupDate(b, listingDateSelectors, &b.prop.ListingDate)
}

func markupSellingDate(b *builder) outcome {
	return markupDate(b, sellingDateSelectors, &b.prop.SellingDate)
}

func markupDate(b *builder, selectors []string, dst *string) outcome {
	text := b.firstText(selectors...)
	if text == "" {
		return outcomeMiss
	}
	date, ok := NormalizeDate(text)
	if !ok {
		return outcomeMalformed
	}
	*dst = date
	return outcomeMatched
}

// parseListingSegment splits the listing path segment of a detail URL into
// property type and street. The trailing house-number suffix stays attached
// to the street, but the listing id does not.
func parseListingSegment(detailURL string) (ptype, street string, ok bool) {
	u, err := url.Parse(detailURL)
	if err != nil {
		return "", "", false
	}
	for _, part := range strings.Split(u.Path, "/") {
		m := urlSegmentRe.FindStringSubmatch(part)
		if m == nil {
			continue
		}
		rest := trailingDigitRe.ReplaceAllString(m[2], "")
		return m[1], strings.ReplaceAll(rest, "-", " "), true
	}
	return "", "", false
}

func titleCase(s string) string {
	if s == "" {
		return ""
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
