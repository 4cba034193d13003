package extractor

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// dutchMonths maps the month names funda renders to two-digit month numbers.
var dutchMonths = map[string]string{
	"januari": "01", "februari": "02", "maart": "03", "april": "04",
	"mei": "05", "juni": "06", "juli": "07", "augustus": "08",
	"september": "09", "oktober": "10", "november": "11", "december": "12",
}

var (
	priceRe       = regexp.MustCompile(`€?\s*([\d.,]+)`)
	areaRe        = regexp.MustCompile(`(\d+(?:[.,]\d+)?)\s*(?:m²|m2)?`)
	areaUnitRe    = regexp.MustCompile(`(\d+(?:[.,]\d+)?)\s*m²`)
	dayMonthYear  = regexp.MustCompile(`(\d{1,2})\s+(\d{2})\s+(\d{4})`)
	isoDateRe     = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}`)
	energyLabelRe = regexp.MustCompile(`^[A-G]\+{0,2}$`)
	yearRe        = regexp.MustCompile(`\d{4}`)
	roomsRe       = regexp.MustCompile(`(\d+)\s*kamers?`)
	postalCodeRe  = regexp.MustCompile(`\b\d{4}\s?[A-Z]{2}\b`)
)

// NormalizePrice converts a rendered price like "€ 450.000" into a whole
// number. The source locale uses '.' as thousands separator and ',' as
// decimal separator; when both appear the dots are stripped and the comma
// becomes the decimal point.
func NormalizePrice(text string) (int, bool) {
	m := priceRe.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	s := m[1]
	hasDot := strings.Contains(s, ".")
	hasComma := strings.Contains(s, ",")
	switch {
	case hasDot && hasComma:
		s = strings.ReplaceAll(s, ".", "")
		s = strings.ReplaceAll(s, ",", ".")
	case hasComma:
		s = strings.ReplaceAll(s, ",", ".")
	case hasDot:
		s = strings.ReplaceAll(s, ".", "")
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return int(f), true
}

// ParseArea extracts a surface in whole square meters. Decimal values are
// accepted but truncated.
func ParseArea(text string) (int, bool) {
	m := areaRe.FindStringSubmatch(strings.TrimSpace(text))
	if m == nil {
		return 0, false
	}
	return parseTruncated(m[1])
}

// AreaFromDescription finds the first number immediately followed by an area
// unit in free text. Unlike ParseArea the unit is mandatory here, otherwise
// any number in a description would match.
func AreaFromDescription(text string) (int, bool) {
	m := areaUnitRe.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	return parseTruncated(m[1])
}

func parseTruncated(s string) (int, bool) {
	f, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", "."), 64)
	if err != nil {
		return 0, false
	}
	return int(f), true
}

// NormalizeDate converts a localized rendered date ("12 maart 2024") to
// YYYY-MM-DD. Day and month are taken in the order they appear. Already
// ISO-formatted input passes through unchanged.
func NormalizeDate(text string) (string, bool) {
	text = strings.ToLower(strings.TrimSpace(text))
	if m := isoDateRe.FindString(text); m != "" {
		return m, true
	}
	for name, num := range dutchMonths {
		text = strings.ReplaceAll(text, name, num)
	}
	m := dayMonthYear.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	day, err := strconv.Atoi(m[1])
	if err != nil {
		return "", false
	}
	return fmt.Sprintf("%s-%s-%02d", m[3], m[2], day), true
}

// ValidEnergyLabel reports whether a label matches A..G with up to two plus
// signs. Anything else is rejected even if a selector produced it, so
// corrupted values never reach the store.
func ValidEnergyLabel(label string) bool {
	return energyLabelRe.MatchString(label)
}

// PlausibleYear bounds construction years to something a real building can
// have.
func PlausibleYear(year int) bool {
	return year >= 1000 && year <= time.Now().Year()
}
