package scraper

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

// LocaleParser understands both 1,234.56 and 1.234,56 style prices
type LocaleParser struct {
	number *regexp.Regexp
}

// NewLocaleParser creates a new locale-aware parser
func NewLocaleParser() *LocaleParser {
	return &LocaleParser{
		number: regexp.MustCompile(`\d[\d.,\s\x{00a0}\x{202f}']*`),
	}
}

var currencyGlyphs = []struct{ glyph, code string }{
	{"₹", "INR"},
	{"$", "USD"},
	{"€", "EUR"},
	{"£", "GBP"},
	{"¥", "JPY"},
}

// ParsePrice extracts the first number in text and the currency its glyph names
func (lp *LocaleParser) ParsePrice(text string) (decimal.Decimal, string, error) {
	currency := ""
	for _, c := range currencyGlyphs {
		if strings.Contains(text, c.glyph) {
			currency = c.code
			break
		}
	}

	raw := lp.number.FindString(text)
	if raw == "" {
		return decimal.Zero, currency, fmt.Errorf("no valid price pattern found in: %s", text)
	}

	value, err := decimal.NewFromString(normalizeSeparators(raw))
	if err != nil {
		return decimal.Zero, currency, fmt.Errorf("failed to parse price %q: %w", raw, err)
	}
	return value, currency, nil
}

// Parse implements PriceParser
func (lp *LocaleParser) Parse(text string) (float64, bool) {
	value, _, err := lp.ParsePrice(text)
	if err != nil {
		return 0, false
	}
	return value.InexactFloat64(), true
}

// normalizeSeparators rewrites a grouped number to plain "1234.56" form.
// With both '.' and ',' present the last one is the decimal mark. With only one
// kind, a single occurrence followed by one or two digits is the decimal mark.
func normalizeSeparators(raw string) string {
	s := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) || r == '\'' {
			return -1
		}
		return r
	}, raw)
	s = strings.TrimRight(s, ".,")

	lastDot := strings.LastIndex(s, ".")
	lastComma := strings.LastIndex(s, ",")

	switch {
	case lastDot >= 0 && lastComma >= 0:
		if lastComma > lastDot {
			s = strings.ReplaceAll(s, ".", "")
			return strings.Replace(s, ",", ".", 1)
		}
		return strings.ReplaceAll(s, ",", "")
	case lastComma >= 0:
		return groupOrDecimal(s, ",")
	case lastDot >= 0:
		return groupOrDecimal(s, ".")
	}
	return s
}

func groupOrDecimal(s, sep string) string {
	if strings.Count(s, sep) == 1 {
		if frac := len(s) - strings.Index(s, sep) - 1; frac == 1 || frac == 2 {
			return strings.Replace(s, sep, ".", 1)
		}
	}
	return strings.ReplaceAll(s, sep, "")
}
