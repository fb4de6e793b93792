package scraper

import (
	"regexp"
	"strconv"
)

// PriceParser turns a raw price label into a number
type PriceParser interface {
	Parse(text string) (float64, bool)
}

var nonPriceChars = regexp.MustCompile(`[^\d.]`)

// ParsePrice strips every character that is not a digit or '.' and parses the rest.
// "₹1,234.50" gives 1234.50. Empty input or more than one '.' is unparseable.
func ParsePrice(text string) (float64, bool) {
	cleaned := nonPriceChars.ReplaceAllString(text, "")
	if cleaned == "" {
		return 0, false
	}
	value, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, false
	}
	return value, true
}

// LegacyParser is the default PriceParser backed by ParsePrice
type LegacyParser struct{}

func (LegacyParser) Parse(text string) (float64, bool) {
	return ParsePrice(text)
}

// NewPriceParser returns the parser named by PRICE_PARSER
func NewPriceParser(kind string) PriceParser {
	if kind == "locale" {
		return NewLocaleParser()
	}
	return LegacyParser{}
}
