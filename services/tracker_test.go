package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"pricepulse/cache"
	"pricepulse/database/dbtest"
	"pricepulse/llm"
	"pricepulse/models"
	"pricepulse/notifier"
	"pricepulse/repository"
)

type fakeFetcher struct {
	details map[string]*models.ProductDetails
	err     error
	calls   int
}

func (f *fakeFetcher) FetchProduct(_ context.Context, url string) (*models.ProductDetails, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	d, ok := f.details[url]
	if !ok {
		return nil, errors.New("404")
	}
	cp := *d
	return &cp, nil
}

type fakeNotifier struct {
	mu   sync.Mutex
	ok   bool
	sent []notifier.PriceAlertEmail
}

func (n *fakeNotifier) Send(_ context.Context, e notifier.PriceAlertEmail) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, e)
	return n.ok
}

type fakeScheduler struct {
	scheduled   map[int64]bool
	unscheduled []int64
}

func newFakeScheduler() *fakeScheduler { return &fakeScheduler{scheduled: map[int64]bool{}} }

func (s *fakeScheduler) Schedule(id int64) { s.scheduled[id] = true }
func (s *fakeScheduler) Unschedule(id int64) {
	delete(s.scheduled, id)
	s.unscheduled = append(s.unscheduled, id)
}

type fixture struct {
	tracker   *Tracker
	fetcher   *fakeFetcher
	notifier  *fakeNotifier
	scheduler *fakeScheduler
	products  *repository.ProductRepository
	alerts    *repository.AlertRepository
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := dbtest.New(t)
	f := &fixture{
		fetcher:   &fakeFetcher{details: map[string]*models.ProductDetails{}},
		notifier:  &fakeNotifier{ok: true},
		scheduler: newFakeScheduler(),
		products:  repository.NewProductRepository(db),
		alerts:    repository.NewAlertRepository(db),
	}
	f.tracker = NewTracker(TrackerDeps{
		DB:        db,
		Fetcher:   f.fetcher,
		Notifier:  f.notifier,
		Scheduler: f.scheduler,
	})
	return f
}

const kettleURL = "https://shop.test/kettle"

func (f *fixture) track(t *testing.T, price float64) *models.Product {
	t.Helper()
	f.fetcher.details[kettleURL] = &models.ProductDetails{Name: "Steel Kettle", Price: price, ImageURL: "https://img.test/k.jpg"}
	p, created, err := f.tracker.TrackProduct(context.Background(), kettleURL)
	if err != nil || !created {
		t.Fatalf("TrackProduct() = %v, %v", created, err)
	}
	return p
}

func TestTrackProductPersistsFirstObservation(t *testing.T) {
	f := newFixture(t)
	p := f.track(t, 199.0)

	history, err := f.tracker.ListPriceHistory(context.Background(), p.ID)
	if err != nil {
		t.Fatalf("ListPriceHistory() error = %v", err)
	}
	if len(history) != 1 || history[0].Price != 199.0 {
		t.Errorf("history = %+v, want one observation of 199", history)
	}
	if !f.scheduler.scheduled[p.ID] {
		t.Error("new product was not scheduled")
	}
}

func TestTrackProductWithoutPricePersistsNothing(t *testing.T) {
	tests := []struct {
		name    string
		details *models.ProductDetails
		err     error
	}{
		{"zero price", &models.ProductDetails{Name: "Kettle", Price: 0}, nil},
		{"fetch failed", nil, errors.New("timeout")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			if tt.details != nil {
				f.fetcher.details[kettleURL] = tt.details
			}
			f.fetcher.err = tt.err

			_, _, err := f.tracker.TrackProduct(context.Background(), kettleURL)
			if !errors.Is(err, ErrCouldNotRetrieveDetails) {
				t.Fatalf("TrackProduct() error = %v, want ErrCouldNotRetrieveDetails", err)
			}

			products, err := f.tracker.ListProducts(context.Background())
			if err != nil {
				t.Fatalf("ListProducts() error = %v", err)
			}
			if len(products) != 0 {
				t.Errorf("ListProducts() = %+v, want none", products)
			}
			if len(f.scheduler.scheduled) != 0 {
				t.Error("scheduler touched for failed track")
			}
		})
	}
}

func TestTrackProductExistingURL(t *testing.T) {
	f := newFixture(t)
	first := f.track(t, 199.0)

	again, created, err := f.tracker.TrackProduct(context.Background(), "  "+kettleURL+" ")
	if err != nil {
		t.Fatalf("TrackProduct() error = %v", err)
	}
	if created || again.ID != first.ID {
		t.Errorf("TrackProduct() = %d, created=%v; want existing %d", again.ID, created, first.ID)
	}
	if f.fetcher.calls != 1 {
		t.Errorf("fetcher called %d times, want 1", f.fetcher.calls)
	}
}

func TestEvaluateFiresOnlyBreachedAlerts(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	p := f.track(t, 150.0)

	high, err := f.tracker.AddAlert(ctx, p.ID, "high@mail.test", 100.0)
	if err != nil {
		t.Fatalf("AddAlert(100) error = %v", err)
	}
	low, err := f.tracker.AddAlert(ctx, p.ID, "low@mail.test", 50.0)
	if err != nil {
		t.Fatalf("AddAlert(50) error = %v", err)
	}

	if n := f.tracker.evaluator.Evaluate(ctx, p, 99.0); n != 1 {
		t.Errorf("Evaluate() = %d, want 1", n)
	}

	if len(f.notifier.sent) != 1 {
		t.Fatalf("sent %d emails, want 1", len(f.notifier.sent))
	}
	mail := f.notifier.sent[0]
	if mail.Recipient != "high@mail.test" || mail.CurrentPrice != 99.0 || mail.TargetPrice != 100.0 {
		t.Errorf("email = %+v", mail)
	}

	active, err := f.alerts.ActiveForProduct(ctx, p.ID)
	if err != nil {
		t.Fatalf("ActiveForProduct() error = %v", err)
	}
	if len(active) != 1 || active[0].ID != low.ID {
		t.Errorf("active alerts = %+v, want only %d", active, low.ID)
	}

	// a fired alert never fires again
	f.tracker.evaluator.Evaluate(ctx, p, 90.0)
	if len(f.notifier.sent) != 1 {
		t.Errorf("alert %d fired twice", high.ID)
	}
}

func TestEvaluateBreachIsInclusive(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	p := f.track(t, 150.0)
	if _, err := f.tracker.AddAlert(ctx, p.ID, "a@mail.test", 100.0); err != nil {
		t.Fatalf("AddAlert() error = %v", err)
	}

	if n := f.tracker.evaluator.Evaluate(ctx, p, 100.0); n != 1 {
		t.Errorf("Evaluate(target) = %d, want 1", n)
	}
}

func TestEvaluateFailedSendKeepsAlertActive(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.notifier.ok = false
	p := f.track(t, 150.0)
	if _, err := f.tracker.AddAlert(ctx, p.ID, "a@mail.test", 100.0); err != nil {
		t.Fatalf("AddAlert() error = %v", err)
	}

	if n := f.tracker.evaluator.Evaluate(ctx, p, 80.0); n != 0 {
		t.Errorf("Evaluate() = %d, want 0", n)
	}
	active, _ := f.alerts.ActiveForProduct(ctx, p.ID)
	if len(active) != 1 {
		t.Errorf("active alerts = %d, want 1", len(active))
	}
}

func TestAddAlertValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	p := f.track(t, 150.0)

	if _, err := f.tracker.AddAlert(ctx, p.ID, "a@mail.test", 0); !errors.Is(err, ErrInvalidTargetPrice) {
		t.Errorf("AddAlert(0) error = %v, want ErrInvalidTargetPrice", err)
	}
	if _, err := f.tracker.AddAlert(ctx, p.ID, "a@mail.test", -5); !errors.Is(err, ErrInvalidTargetPrice) {
		t.Errorf("AddAlert(-5) error = %v, want ErrInvalidTargetPrice", err)
	}
	if _, err := f.tracker.AddAlert(ctx, 999, "a@mail.test", 10); !errors.Is(err, ErrProductNotFound) {
		t.Errorf("AddAlert(missing product) error = %v, want ErrProductNotFound", err)
	}

	if _, err := f.tracker.AddAlert(ctx, p.ID, "a@mail.test", 120); err != nil {
		t.Fatalf("AddAlert() error = %v", err)
	}
	if _, err := f.tracker.AddAlert(ctx, p.ID, "a@mail.test", 120); !errors.Is(err, ErrAlertAlreadyExists) {
		t.Errorf("duplicate AddAlert() error = %v, want ErrAlertAlreadyExists", err)
	}
	if _, err := f.tracker.AddAlert(ctx, p.ID, "b@mail.test", 120); err != nil {
		t.Errorf("AddAlert(other email) error = %v", err)
	}
}

func TestRefreshProduct(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.fetcher.details[kettleURL] = &models.ProductDetails{Name: models.NotAvailable, Price: 199, ImageURL: models.NotAvailable}
	p, _, err := f.tracker.TrackProduct(ctx, kettleURL)
	if err != nil {
		t.Fatalf("TrackProduct() error = %v", err)
	}
	if _, err := f.tracker.AddAlert(ctx, p.ID, "a@mail.test", 150); err != nil {
		t.Fatalf("AddAlert() error = %v", err)
	}

	f.fetcher.details[kettleURL] = &models.ProductDetails{Name: "Steel Kettle", Price: 149, ImageURL: "https://img.test/k.jpg"}
	if err := f.tracker.RefreshProduct(ctx, p.ID); err != nil {
		t.Fatalf("RefreshProduct() error = %v", err)
	}

	got, err := f.tracker.GetProduct(ctx, p.ID)
	if err != nil {
		t.Fatalf("GetProduct() error = %v", err)
	}
	if got.Name.String != "Steel Kettle" || got.ImageURL.String != "https://img.test/k.jpg" {
		t.Errorf("details not backfilled: %+v", got)
	}
	if got.CurrentPrice.Float64 != 149 {
		t.Errorf("CurrentPrice = %v, want 149", got.CurrentPrice.Float64)
	}
	if len(f.notifier.sent) != 1 || f.notifier.sent[0].ProductName != "Steel Kettle" {
		t.Errorf("sent = %+v, want one mail for Steel Kettle", f.notifier.sent)
	}
}

func TestRefreshProductKeepsKnownDetails(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	p := f.track(t, 199)

	f.fetcher.details[kettleURL] = &models.ProductDetails{Name: "Other Name", Price: 189, ImageURL: "https://img.test/other.jpg"}
	if err := f.tracker.RefreshProduct(ctx, p.ID); err != nil {
		t.Fatalf("RefreshProduct() error = %v", err)
	}

	got, _ := f.tracker.GetProduct(ctx, p.ID)
	if got.Name.String != "Steel Kettle" || got.ImageURL.String != "https://img.test/k.jpg" {
		t.Errorf("known details overwritten: %+v", got)
	}
}

func TestRefreshProductUnusablePriceChangesNothing(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	p := f.track(t, 199)

	f.fetcher.details[kettleURL] = &models.ProductDetails{Name: "Steel Kettle", Price: 0}
	if err := f.tracker.RefreshProduct(ctx, p.ID); err != nil {
		t.Fatalf("RefreshProduct() error = %v", err)
	}
	f.fetcher.err = errors.New("connection reset")
	if err := f.tracker.RefreshProduct(ctx, p.ID); err != nil {
		t.Fatalf("RefreshProduct() error = %v", err)
	}

	history, _ := f.tracker.ListPriceHistory(ctx, p.ID)
	if len(history) != 1 {
		t.Errorf("history = %+v, want only the initial observation", history)
	}
}

func TestRefreshProductMissing(t *testing.T) {
	f := newFixture(t)
	if err := f.tracker.RefreshProduct(context.Background(), 404); !errors.Is(err, ErrProductNotFound) {
		t.Errorf("RefreshProduct() error = %v, want ErrProductNotFound", err)
	}
}

func TestDeleteProduct(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	p := f.track(t, 199)
	if _, err := f.tracker.AddAlert(ctx, p.ID, "a@mail.test", 150); err != nil {
		t.Fatalf("AddAlert() error = %v", err)
	}

	if err := f.tracker.DeleteProduct(ctx, p.ID); err != nil {
		t.Fatalf("DeleteProduct() error = %v", err)
	}

	if f.scheduler.scheduled[p.ID] {
		t.Error("timer still scheduled after delete")
	}
	history, _ := f.products.PriceHistory(ctx, p.ID)
	alerts, _ := f.alerts.ListForProduct(ctx, p.ID)
	if len(history) != 0 || len(alerts) != 0 {
		t.Errorf("children left behind: %d observations, %d alerts", len(history), len(alerts))
	}

	if err := f.tracker.DeleteProduct(ctx, p.ID); !errors.Is(err, ErrProductNotFound) {
		t.Errorf("second DeleteProduct() error = %v, want ErrProductNotFound", err)
	}
}

type fakeQueries struct{ result llm.QueryResult }

func (q fakeQueries) GenerateQueries(context.Context, string, string) llm.QueryResult { return q.result }

type fakeSearcher struct{ got map[string]string }

func (s *fakeSearcher) SearchAll(_ context.Context, queries map[string]string) []models.ComparisonResult {
	s.got = queries
	price := 95.0
	return []models.ComparisonResult{{Platform: "Flipkart", Name: queries["Flipkart"], Price: &price}}
}

type memoryCache struct{ items map[int64]*models.Comparison }

func (c *memoryCache) Get(_ context.Context, id int64) (*models.Comparison, error) {
	if cmp, ok := c.items[id]; ok {
		return cmp, nil
	}
	return nil, cache.ErrCacheMiss
}
func (c *memoryCache) Set(_ context.Context, cmp *models.Comparison) error {
	c.items[cmp.ProductID] = cmp
	return nil
}
func (c *memoryCache) Delete(_ context.Context, id int64) error {
	delete(c.items, id)
	return nil
}

func TestTriggerComparison(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	searcher := &fakeSearcher{}
	mem := &memoryCache{items: map[int64]*models.Comparison{}}
	f.tracker.queries = fakeQueries{result: llm.QueryResult{
		Metadata:      map[string]any{"brand": "Prestige"},
		SearchQueries: map[string]string{"Flipkart": "Prestige steel kettle 1.5L"},
	}}
	f.tracker.searcher = searcher
	f.tracker.cache = mem
	p := f.track(t, 199)

	cmp, err := f.tracker.TriggerComparison(ctx, p.ID)
	if err != nil {
		t.Fatalf("TriggerComparison() error = %v", err)
	}
	if searcher.got["Flipkart"] != "Prestige steel kettle 1.5L" {
		t.Errorf("Flipkart query = %q", searcher.got["Flipkart"])
	}
	if searcher.got["Meesho"] != "Steel Kettle" {
		t.Errorf("Meesho query = %q, want product name fallback", searcher.got["Meesho"])
	}
	if cmp.Metadata["brand"] != "Prestige" || len(cmp.Results) != 1 {
		t.Errorf("comparison = %+v", cmp)
	}
	if _, ok := mem.items[p.ID]; !ok {
		t.Error("comparison not cached")
	}

	searcher.got = nil
	if _, err := f.tracker.TriggerComparison(ctx, p.ID); err != nil {
		t.Fatalf("cached TriggerComparison() error = %v", err)
	}
	if searcher.got != nil {
		t.Error("searcher called despite cached comparison")
	}

	if err := f.tracker.DeleteProduct(ctx, p.ID); err != nil {
		t.Fatalf("DeleteProduct() error = %v", err)
	}
	if _, ok := mem.items[p.ID]; ok {
		t.Error("cached comparison survived delete")
	}
}

func TestTriggerComparisonLLMFailureFallsBackToName(t *testing.T) {
	f := newFixture(t)
	searcher := &fakeSearcher{}
	f.tracker.queries = fakeQueries{result: llm.QueryResult{
		Metadata:      map[string]any{"Error": "LLM API key not configured"},
		SearchQueries: map[string]string{},
		Err:           errors.New("no key"),
	}}
	f.tracker.searcher = searcher
	p := f.track(t, 199)

	cmp, err := f.tracker.TriggerComparison(context.Background(), p.ID)
	if err != nil {
		t.Fatalf("TriggerComparison() error = %v", err)
	}
	for _, platform := range llm.Platforms {
		if cmp.Queries[platform] != "Steel Kettle" {
			t.Errorf("query for %s = %q, want product name", platform, cmp.Queries[platform])
		}
	}
	if cmp.Metadata["Error"] == nil {
		t.Errorf("Metadata = %v, want Error entry", cmp.Metadata)
	}
}

func TestTriggerComparisonNeedsName(t *testing.T) {
	f := newFixture(t)
	f.tracker.searcher = &fakeSearcher{}
	f.fetcher.details[kettleURL] = &models.ProductDetails{Name: models.NotAvailable, Price: 10}
	p, _, err := f.tracker.TrackProduct(context.Background(), kettleURL)
	if err != nil {
		t.Fatalf("TrackProduct() error = %v", err)
	}

	if _, err := f.tracker.TriggerComparison(context.Background(), p.ID); !errors.Is(err, ErrProductNameUnknown) {
		t.Errorf("TriggerComparison() error = %v, want ErrProductNameUnknown", err)
	}
}
