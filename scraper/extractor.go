package scraper

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/url"
	"strings"
	"unicode/utf8"

	"pricepulse/models"

	"github.com/PuerkitoBio/goquery"
)

var nameSelectors = []string{
	"#productTitle",
	"#title_feature_div span",
	"h1[itemprop='name']",
	"[itemprop='name']",
	"meta[property='og:title']",
	"h1",
}

var priceSelectors = []string{
	"#corePrice_feature_div span.a-offscreen",
	".priceToPay span.a-offscreen",
	"span.a-offscreen",
	".a-price-whole",
	"#priceblock_ourprice",
	"#priceblock_dealprice",
	"[itemprop='price']",
	"meta[property='product:price:amount']",
	"meta[property='og:price:amount']",
	".price",
}

var imageSelectors = []struct {
	selector string
	attrs    []string
}{
	{"#landingImage", []string{"data-old-hires", "src"}},
	{"#imgTagWrapperId img", []string{"data-old-hires", "src"}},
	{"img[itemprop='image']", []string{"src"}},
	{"meta[property='og:image']", []string{"content"}},
}

const currencyChars = "₹$€£¥"

// Extractor recovers name, price and image from a product page
type Extractor struct {
	parser   PriceParser
	detector *BotDetector
}

// NewExtractor creates an extractor that normalises prices with parser
func NewExtractor(parser PriceParser) *Extractor {
	if parser == nil {
		parser = LegacyParser{}
	}
	return &Extractor{parser: parser, detector: NewBotDetector()}
}

// Extract parses markup and fills every field, falling back to placeholders
func (e *Extractor) Extract(r io.Reader, pageURL string) (*models.ProductDetails, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse page: %w", err)
	}

	details := &models.ProductDetails{
		Name:     e.extractName(doc),
		Price:    e.extractPrice(doc),
		ImageURL: e.extractImage(doc),
		URL:      pageURL,
	}

	if details.Price <= 0 {
		title := strings.TrimSpace(doc.Find("title").First().Text())
		if wall, reason := e.detector.DetectBotWall(doc.Find("body").Text(), title); wall {
			log.Printf("🤖 No price on %s, page looks like a bot wall: %s", pageURL, reason)
		} else {
			log.Printf("⚠️  No price found on %s", pageURL)
		}
	}
	return details, nil
}

func (e *Extractor) extractName(doc *goquery.Document) string {
	for _, selector := range nameSelectors {
		var name string
		doc.Find(selector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			text := selectionText(s)
			if text == "" || strings.EqualFold(text, "back to results") {
				return true
			}
			name = text
			return false
		})
		if name != "" {
			return name
		}
	}
	return models.NotAvailable
}

func (e *Extractor) extractPrice(doc *goquery.Document) float64 {
	for _, selector := range priceSelectors {
		var price float64
		doc.Find(selector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			if v, ok := e.parser.Parse(selectionText(s)); ok && v > 0 {
				price = v
				return false
			}
			return true
		})
		if price > 0 {
			return price
		}
	}
	return e.scanCurrencyText(doc)
}

// scanCurrencyText looks for any text node carrying a currency glyph and walks
// up to three ancestors for a short label that parses to a positive price.
func (e *Extractor) scanCurrencyText(doc *goquery.Document) float64 {
	var price float64
	doc.Find("body *").Not("script, style, noscript").EachWithBreak(func(_ int, el *goquery.Selection) bool {
		hasGlyph := false
		el.Contents().Each(func(_ int, c *goquery.Selection) {
			if goquery.NodeName(c) == "#text" && strings.ContainsAny(c.Text(), currencyChars) {
				hasGlyph = true
			}
		})
		if !hasGlyph {
			return true
		}

		node := el
		for level := 0; level <= 3 && node.Length() > 0; level++ {
			text := strings.TrimSpace(node.Text())
			if utf8.RuneCountInString(text) < 50 && strings.ContainsAny(text, "0123456789") {
				if v, ok := e.parser.Parse(text); ok && v > 0 {
					price = v
					return false
				}
			}
			node = node.Parent()
		}
		return true
	})
	return price
}

func (e *Extractor) extractImage(doc *goquery.Document) string {
	for _, candidate := range imageSelectors {
		s := doc.Find(candidate.selector).First()
		if s.Length() == 0 {
			continue
		}
		for _, attr := range candidate.attrs {
			if v, ok := s.Attr(attr); ok && isAbsoluteHTTP(v) {
				return strings.TrimSpace(v)
			}
		}
	}

	if raw, ok := doc.Find("img[data-a-dynamic-image]").First().Attr("data-a-dynamic-image"); ok {
		if first := firstJSONKey(raw); isAbsoluteHTTP(first) {
			return first
		}
	}
	return models.NotAvailable
}

// firstJSONKey returns the first key of a JSON object in document order
func firstJSONKey(raw string) string {
	dec := json.NewDecoder(strings.NewReader(raw))
	if tok, err := dec.Token(); err != nil || tok != json.Delim('{') {
		return ""
	}
	tok, err := dec.Token()
	if err != nil {
		return ""
	}
	key, _ := tok.(string)
	return key
}

func selectionText(s *goquery.Selection) string {
	if text := strings.TrimSpace(s.Text()); text != "" {
		return text
	}
	if content, ok := s.Attr("content"); ok {
		return strings.TrimSpace(content)
	}
	return ""
}

func isAbsoluteHTTP(raw string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
