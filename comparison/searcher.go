package comparison

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"pricepulse/models"
	"pricepulse/scraper"

	"github.com/PuerkitoBio/goquery"
	"github.com/lithammer/fuzzysearch/fuzzy"
	"golang.org/x/sync/errgroup"
)

const (
	Flipkart = "Flipkart"
	Meesho   = "Meesho"
)

var flipkartBlockSelectors = []string{
	"div._1AtVbE div._13oc-S",
	"div._2kHMtA",
	"div.cPHDOP",
	"div[data-id]",
}

const (
	flipkartNameSelector  = "div._4rR01T, a.s1Q9rs, a.IRpwTa, div.KzDlHZ, a.wjcEIp"
	flipkartPriceSelector = "div._30jeq3, div.Nx9bqj"
)

// Searcher looks a product up on other marketplaces
type Searcher struct {
	client       *http.Client
	flipkartBase string
	meeshoBase   string
}

// NewSearcher creates a searcher against the live marketplaces
func NewSearcher(timeout time.Duration) *Searcher {
	return NewSearcherWithBase(timeout, "https://www.flipkart.com", "https://www.meesho.com")
}

// NewSearcherWithBase creates a searcher against the given site roots
func NewSearcherWithBase(timeout time.Duration, flipkartBase, meeshoBase string) *Searcher {
	return &Searcher{
		client:       &http.Client{Timeout: timeout},
		flipkartBase: strings.TrimRight(flipkartBase, "/"),
		meeshoBase:   strings.TrimRight(meeshoBase, "/"),
	}
}

// SearchAll runs every platform whose query is present concurrently.
// Results come back in platform order.
func (s *Searcher) SearchAll(ctx context.Context, queries map[string]string) []models.ComparisonResult {
	platforms := []struct {
		name   string
		search func(context.Context, string) models.ComparisonResult
	}{
		{Flipkart, s.SearchFlipkart},
		{Meesho, s.SearchMeesho},
	}

	results := make([]models.ComparisonResult, len(platforms))
	g, gctx := errgroup.WithContext(ctx)
	for i, p := range platforms {
		query := strings.TrimSpace(queries[p.name])
		if query == "" {
			continue
		}
		i, p := i, p
		g.Go(func() error {
			results[i] = p.search(gctx, query)
			return nil
		})
	}
	g.Wait()

	out := results[:0]
	for _, r := range results {
		if r.Platform != "" {
			out = append(out, r)
		}
	}
	return out
}

// SearchFlipkart returns the search result that best matches query
func (s *Searcher) SearchFlipkart(ctx context.Context, query string) models.ComparisonResult {
	searchURL := s.flipkartBase + "/search?q=" + url.QueryEscape(query)
	result := models.ComparisonResult{Platform: Flipkart, Name: query, URL: searchURL}

	body, err := s.get(ctx, searchURL)
	if err != nil {
		log.Printf("❌ Flipkart search failed for %q: %v", query, err)
		result.Error = fmt.Sprintf("Request failed: %v", err)
		return result
	}
	defer body.Close()

	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		result.Error = fmt.Sprintf("Scraping error: %v", err)
		return result
	}

	var blocks *goquery.Selection
	for _, selector := range flipkartBlockSelectors {
		if found := doc.Find(selector); found.Length() > 0 {
			blocks = found
			break
		}
	}
	if blocks == nil {
		log.Printf("Flipkart: no product blocks found for %q", query)
		result.Error = "No product blocks found"
		return result
	}

	block := bestMatch(query, blocks)

	result.Name = "Name not found on Flipkart"
	if name := strings.TrimSpace(block.Find(flipkartNameSelector).First().Text()); name != "" {
		result.Name = name
	}
	if href, ok := block.Find("a[href]").First().Attr("href"); ok {
		result.URL = s.resolve(href)
	}
	if price, ok := scraper.ParsePrice(block.Find(flipkartPriceSelector).First().Text()); ok {
		result.Price = &price
		log.Printf("Flipkart: found %q at ₹%.2f", result.Name, price)
	} else {
		result.Error = "Price not found"
	}
	return result
}

// SearchMeesho only confirms the search page answers; its listings are rendered
// client side and cannot be read from the raw markup.
func (s *Searcher) SearchMeesho(ctx context.Context, query string) models.ComparisonResult {
	searchURL := s.meeshoBase + "/search?q=" + url.QueryEscape(query)

	if body, err := s.get(ctx, searchURL); err != nil {
		log.Printf("❌ Meesho search failed for %q: %v", query, err)
	} else {
		body.Close()
	}

	return models.ComparisonResult{
		Platform: Meesho,
		Name:     fmt.Sprintf("Search results for '%s' (details not reliably extractable)", query),
		URL:      searchURL,
		Error:    "Meesho scraping requires advanced techniques.",
	}
}

func (s *Searcher) get(ctx context.Context, target string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	scraper.BrowserHeaders(req)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return resp.Body, nil
}

func (s *Searcher) resolve(href string) string {
	base, err := url.Parse(s.flipkartBase + "/")
	if err != nil {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return base.ResolveReference(ref).String()
}

// bestMatch picks the block whose title is the closest fuzzy match to query,
// or the first block when no title matches at all.
func bestMatch(query string, blocks *goquery.Selection) *goquery.Selection {
	titles := make([]string, blocks.Length())
	blocks.Each(func(i int, b *goquery.Selection) {
		titles[i] = strings.TrimSpace(b.Find(flipkartNameSelector).First().Text())
	})

	ranks := fuzzy.RankFindNormalizedFold(query, titles)
	if len(ranks) == 0 {
		return blocks.First()
	}
	sort.Sort(ranks)
	return blocks.Eq(ranks[0].OriginalIndex)
}
