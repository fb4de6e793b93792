package scraper

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"time"

	"pricepulse/models"
)

const maxPageBytes = 10 << 20

var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Safari/605.1.15",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:121.0) Gecko/20100101 Firefox/121.0",
}

// RandomUserAgent picks one of the browser User-Agent strings
func RandomUserAgent() string {
	return userAgents[rand.Intn(len(userAgents))]
}

// BrowserHeaders sets a browser-plausible header set with a rotated User-Agent
func BrowserHeaders(req *http.Request) {
	req.Header.Set("User-Agent", RandomUserAgent())
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9,hi;q=0.8")
	req.Header.Set("Referer", "https://www.google.com/")
	req.Header.Set("DNT", "1")
	req.Header.Set("Connection", "keep-alive")
}

// Loader returns the markup of a page
type Loader interface {
	Load(ctx context.Context, url string) ([]byte, error)
}

// HTTPLoader fetches pages with a single plain GET
type HTTPLoader struct {
	client *http.Client
}

// NewHTTPLoader creates a loader whose requests give up after timeout
func NewHTTPLoader(timeout time.Duration) *HTTPLoader {
	return &HTTPLoader{client: &http.Client{Timeout: timeout}}
}

func (l *HTTPLoader) Load(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	BrowserHeaders(req)

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read body: %w", err)
	}
	return body, nil
}

// Scraper couples a page loader with the extractor
type Scraper struct {
	loader    Loader
	extractor *Extractor
}

// NewScraper creates a scraper
func NewScraper(loader Loader, parser PriceParser) *Scraper {
	return &Scraper{loader: loader, extractor: NewExtractor(parser)}
}

// FetchProduct loads a product page and extracts its details. Any transport,
// status or parse failure comes back as an error and never as partial details.
func (s *Scraper) FetchProduct(ctx context.Context, url string) (details *models.ProductDetails, err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("❌ Panic while scraping %s: %v", url, r)
			details, err = nil, fmt.Errorf("failed to scrape %s: %v", url, r)
		}
	}()

	body, err := s.loader.Load(ctx, url)
	if err != nil {
		log.Printf("❌ Failed to fetch %s: %v", url, err)
		return nil, fmt.Errorf("failed to fetch %s: %w", url, err)
	}

	details, err = s.extractor.Extract(bytes.NewReader(body), url)
	if err != nil {
		log.Printf("❌ Failed to extract details from %s: %v", url, err)
		return nil, err
	}

	log.Printf("Scraped %s: name=%q price=%.2f", url, details.Name, details.Price)
	return details, nil
}
