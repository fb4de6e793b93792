package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"math"
	"strings"
	"time"

	"pricepulse/cache"
	"pricepulse/database"
	"pricepulse/llm"
	"pricepulse/models"
	"pricepulse/repository"
)

// ProductFetcher loads and extracts a product page
type ProductFetcher interface {
	FetchProduct(ctx context.Context, url string) (*models.ProductDetails, error)
}

// QueryGenerator turns a product name into per-platform search queries
type QueryGenerator interface {
	GenerateQueries(ctx context.Context, productName, productURL string) llm.QueryResult
}

// ComparisonSearcher searches other marketplaces
type ComparisonSearcher interface {
	SearchAll(ctx context.Context, queries map[string]string) []models.ComparisonResult
}

// ComparisonCache stores recent comparisons
type ComparisonCache interface {
	Get(ctx context.Context, productID int64) (*models.Comparison, error)
	Set(ctx context.Context, cmp *models.Comparison) error
	Delete(ctx context.Context, productID int64) error
}

// Scheduler owns the per-product refresh timers
type Scheduler interface {
	Schedule(productID int64)
	Unschedule(productID int64)
}

// TrackerDeps groups the collaborators of a Tracker. Queries, Searcher, Cache
// and Scheduler are optional.
type TrackerDeps struct {
	DB        *sql.DB
	Fetcher   ProductFetcher
	Notifier  Notifier
	Queries   QueryGenerator
	Searcher  ComparisonSearcher
	Cache     ComparisonCache
	Scheduler Scheduler
}

// Tracker is the entry point for tracking products, alerts and comparisons
type Tracker struct {
	products  *repository.ProductRepository
	alerts    *repository.AlertRepository
	fetcher   ProductFetcher
	evaluator *AlertEvaluator
	queries   QueryGenerator
	searcher  ComparisonSearcher
	cache     ComparisonCache
	scheduler Scheduler
}

func NewTracker(deps TrackerDeps) *Tracker {
	alerts := repository.NewAlertRepository(deps.DB)
	return &Tracker{
		products:  repository.NewProductRepository(deps.DB),
		alerts:    alerts,
		fetcher:   deps.Fetcher,
		evaluator: NewAlertEvaluator(alerts, deps.Notifier),
		queries:   deps.Queries,
		searcher:  deps.Searcher,
		cache:     deps.Cache,
		scheduler: deps.Scheduler,
	}
}

// SetScheduler attaches the scheduler once it has been built around this tracker
func (t *Tracker) SetScheduler(s Scheduler) {
	t.scheduler = s
}

// TrackProduct starts tracking url. An already tracked URL returns the existing
// product with created=false. A first scrape without a usable price stores nothing.
func (t *Tracker) TrackProduct(ctx context.Context, url string) (*models.Product, bool, error) {
	url = strings.TrimSpace(url)

	existing, err := t.products.GetByURL(ctx, url)
	if err == nil {
		t.schedule(existing.ID)
		return existing, false, nil
	}
	if !errors.Is(err, repository.ErrProductNotFound) {
		return nil, false, err
	}

	details, err := t.fetcher.FetchProduct(ctx, url)
	if err != nil {
		log.Printf("❌ Initial scrape failed for %s: %v", url, err)
		return nil, false, ErrCouldNotRetrieveDetails
	}
	if !details.HasUsablePrice() {
		log.Printf("❌ Initial scrape of %s found no usable price", url)
		return nil, false, ErrCouldNotRetrieveDetails
	}
	details.URL = url

	product, err := t.products.CreateWithPrice(ctx, details)
	if err != nil {
		if database.IsUniqueViolation(err) {
			// tracked concurrently by another request
			existing, getErr := t.products.GetByURL(ctx, url)
			if getErr != nil {
				return nil, false, getErr
			}
			return existing, false, nil
		}
		return nil, false, err
	}

	log.Printf("✅ Now tracking %s (product %d) at ₹%.2f", product.DisplayName(), product.ID, details.Price)
	t.schedule(product.ID)
	return product, true, nil
}

// GetProduct returns a product with its current price
func (t *Tracker) GetProduct(ctx context.Context, id int64) (*models.Product, error) {
	return t.products.GetByID(ctx, id)
}

// ListProducts returns every tracked product with its current price
func (t *Tracker) ListProducts(ctx context.Context) ([]models.Product, error) {
	return t.products.List(ctx)
}

// DeleteProduct cancels the timer of a product and removes it with its history and alerts
func (t *Tracker) DeleteProduct(ctx context.Context, id int64) error {
	if t.scheduler != nil {
		t.scheduler.Unschedule(id)
	}

	if err := t.products.Delete(ctx, id); err != nil {
		return err
	}

	if t.cache != nil {
		if err := t.cache.Delete(ctx, id); err != nil {
			log.Printf("⚠️  Failed to drop cached comparison for product %d: %v", id, err)
		}
	}
	log.Printf("🗑️  Product %d deleted", id)
	return nil
}

// AddAlert subscribes email to a price drop to or below targetPrice
func (t *Tracker) AddAlert(ctx context.Context, productID int64, email string, targetPrice float64) (*models.Alert, error) {
	if targetPrice <= 0 || math.IsNaN(targetPrice) || math.IsInf(targetPrice, 0) {
		return nil, ErrInvalidTargetPrice
	}
	email = strings.TrimSpace(email)

	if _, err := t.products.GetByID(ctx, productID); err != nil {
		return nil, err
	}

	exists, err := t.alerts.ActiveExists(ctx, productID, email, targetPrice)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrAlertAlreadyExists
	}

	alert, err := t.alerts.Create(ctx, productID, email, targetPrice)
	if err != nil {
		return nil, err
	}
	log.Printf("🔔 Alert %d set for product %d: %s at ₹%.2f", alert.ID, productID, email, targetPrice)
	return alert, nil
}

// ListAlerts returns every alert of a product
func (t *Tracker) ListAlerts(ctx context.Context, productID int64) ([]models.Alert, error) {
	if _, err := t.products.GetByID(ctx, productID); err != nil {
		return nil, err
	}
	return t.alerts.ListForProduct(ctx, productID)
}

// ListPriceHistory returns the observations of a product, oldest first
func (t *Tracker) ListPriceHistory(ctx context.Context, productID int64) ([]models.PriceObservation, error) {
	if _, err := t.products.GetByID(ctx, productID); err != nil {
		return nil, err
	}
	return t.products.PriceHistory(ctx, productID)
}

// RefreshProduct re-scrapes a product, records a usable price and evaluates
// its alerts. A missing product yields ErrProductNotFound; a failed scrape is
// logged and leaves the product untouched.
func (t *Tracker) RefreshProduct(ctx context.Context, productID int64) error {
	product, err := t.products.GetByID(ctx, productID)
	if err != nil {
		return err
	}

	log.Printf("Checking price for: %s (%s)", product.DisplayName(), product.URL)

	details, err := t.fetcher.FetchProduct(ctx, product.URL)
	if err != nil {
		log.Printf("❌ Failed to scrape price for %s: %v", product.URL, err)
		return nil
	}
	if !details.HasUsablePrice() {
		log.Printf("⚠️  No usable price for %s this cycle (got %.2f)", product.URL, details.Price)
		return nil
	}

	if err := t.backfillDetails(ctx, product, details); err != nil {
		log.Printf("❌ Failed to update details of product %d: %v", product.ID, err)
	}

	if _, err := t.products.AddPrice(ctx, product.ID, details.Price); err != nil {
		return err
	}
	logPriceChange(product, details.Price)

	t.evaluator.Evaluate(ctx, product, details.Price)
	return nil
}

// backfillDetails replaces an unknown name or image with what the scrape found
func (t *Tracker) backfillDetails(ctx context.Context, product *models.Product, details *models.ProductDetails) error {
	var name, image sql.NullString
	if !product.HasKnownName() && !models.IsPlaceholder(details.Name) {
		name = sql.NullString{String: details.Name, Valid: true}
	}
	if !product.HasKnownImage() && !models.IsPlaceholder(details.ImageURL) {
		image = sql.NullString{String: details.ImageURL, Valid: true}
	}
	if !name.Valid && !image.Valid {
		return nil
	}

	if err := t.products.UpdateDetails(ctx, product.ID, name, image); err != nil {
		return err
	}
	if name.Valid {
		product.Name = name
	}
	if image.Valid {
		product.ImageURL = image
	}
	return nil
}

func logPriceChange(product *models.Product, price float64) {
	if !product.CurrentPrice.Valid || product.CurrentPrice.Float64 == price {
		log.Printf("Current price for %s: ₹%.2f", product.DisplayName(), price)
		return
	}

	old := product.CurrentPrice.Float64
	change := (price - old) / old * 100
	if price < old {
		log.Printf("📉 Price DROPPED for %s: ₹%.2f → ₹%.2f (%.1f%%)", product.DisplayName(), old, price, change)
	} else {
		log.Printf("📈 Price INCREASED for %s: ₹%.2f → ₹%.2f (+%.1f%%)", product.DisplayName(), old, price, change)
	}
}

// TriggerComparison looks the product up on other marketplaces using
// generated queries, falling back to the product name for missing platforms.
func (t *Tracker) TriggerComparison(ctx context.Context, productID int64) (*models.Comparison, error) {
	product, err := t.products.GetByID(ctx, productID)
	if err != nil {
		return nil, err
	}
	if !product.HasKnownName() {
		return nil, ErrProductNameUnknown
	}
	if t.searcher == nil {
		return nil, fmt.Errorf("comparison search is not configured")
	}

	if t.cache != nil {
		cached, err := t.cache.Get(ctx, productID)
		if err == nil {
			log.Printf("Comparison for product %d served from cache", productID)
			return cached, nil
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			log.Printf("⚠️  Comparison cache read failed: %v", err)
		}
	}

	name := product.Name.String
	result := llm.QueryResult{Metadata: map[string]any{}, SearchQueries: map[string]string{}}
	if t.queries != nil {
		result = t.queries.GenerateQueries(ctx, name, product.URL)
	}

	queries := make(map[string]string, len(llm.Platforms))
	for _, platform := range llm.Platforms {
		q := strings.TrimSpace(result.SearchQueries[platform])
		if q == "" {
			q = name
		}
		queries[platform] = q
	}

	cmp := &models.Comparison{
		ProductID: productID,
		Metadata:  result.Metadata,
		Queries:   queries,
		Results:   t.searcher.SearchAll(ctx, queries),
		CreatedAt: time.Now().UTC(),
	}

	if t.cache != nil {
		if err := t.cache.Set(ctx, cmp); err != nil {
			log.Printf("⚠️  Failed to cache comparison for product %d: %v", productID, err)
		}
	}
	return cmp, nil
}

func (t *Tracker) schedule(productID int64) {
	if t.scheduler != nil {
		t.scheduler.Schedule(productID)
	}
}
