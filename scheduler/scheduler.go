package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"pricepulse/repository"

	"github.com/robfig/cron/v3"
)

// Refresher runs one refresh-and-alert pass for a product
type Refresher interface {
	RefreshProduct(ctx context.Context, productID int64) error
}

// ProductLister lists the ids of every stored product
type ProductLister interface {
	IDs(ctx context.Context) ([]int64, error)
}

// JobKey names the timer of a product
func JobKey(productID int64) string {
	return fmt.Sprintf("scrape_product_%d", productID)
}

// Scheduler keeps one recurring refresh timer per tracked product
type Scheduler struct {
	cron      *cron.Cron
	refresher Refresher
	products  ProductLister
	interval  time.Duration

	reconcileInterval time.Duration
	stopChan          chan struct{}
	done              chan struct{}

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	entries map[int64]cron.EntryID
	started bool
}

const defaultReconcileInterval = 5 * time.Minute

// New creates a scheduler firing every interval per product and syncing its
// timers with the store every reconcileInterval
func New(refresher Refresher, products ProductLister, interval, reconcileInterval time.Duration) *Scheduler {
	if reconcileInterval <= 0 {
		reconcileInterval = defaultReconcileInterval
	}
	logger := cron.PrintfLogger(log.New(os.Stdout, "cron: ", log.LstdFlags))
	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		cron: cron.New(
			cron.WithLogger(logger),
			cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
		),
		refresher:         refresher,
		products:          products,
		interval:          interval,
		reconcileInterval: reconcileInterval,
		stopChan:          make(chan struct{}),
		done:              make(chan struct{}),
		ctx:               ctx,
		cancel:            cancel,
		entries:           make(map[int64]cron.EntryID),
	}
}

// Schedule registers the timer of a product unless it already has one
func (s *Scheduler) Schedule(productID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[productID]; ok {
		return
	}

	id := s.cron.Schedule(cron.Every(s.interval), cron.FuncJob(func() { s.tick(productID) }))
	s.entries[productID] = id
	log.Printf("⏰ Scheduled %s every %v", JobKey(productID), s.interval)
}

// Unschedule cancels the timer of a product; an unknown product is ignored
func (s *Scheduler) Unschedule(productID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.entries[productID]
	if !ok {
		return
	}
	s.cron.Remove(id)
	delete(s.entries, productID)
	log.Printf("Removed %s", JobKey(productID))
}

// Scheduled reports whether a product has a live timer
func (s *Scheduler) Scheduled(productID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entries[productID]
	return ok
}

// Len returns the number of live timers
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Reconcile makes the live timers match ids exactly
func (s *Scheduler) Reconcile(ids []int64) {
	want := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
		s.Schedule(id)
	}

	s.mu.Lock()
	var stale []int64
	for id := range s.entries {
		if _, ok := want[id]; !ok {
			stale = append(stale, id)
		}
	}
	s.mu.Unlock()

	for _, id := range stale {
		s.Unschedule(id)
	}
}

// Start runs the timers and the periodic store reconciliation
func (s *Scheduler) Start() {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.mu.Unlock()

	s.cron.Start()
	s.reconcileFromStore()

	go func() {
		defer close(s.done)

		ticker := time.NewTicker(s.reconcileInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				s.reconcileFromStore()
			case <-s.stopChan:
				return
			}
		}
	}()

	log.Printf("🚀 Scheduler started: refresh every %v, reconcile every %v", s.interval, s.reconcileInterval)
}

// Stop cancels running ticks and waits for the cron runner to finish
func (s *Scheduler) Stop() {
	log.Println("🛑 Scheduler stopping...")
	s.mu.Lock()
	started := s.started
	s.mu.Unlock()

	s.cancel()
	if !started {
		return
	}
	close(s.stopChan)
	<-s.done
	<-s.cron.Stop().Done()
	log.Println("🛑 Scheduler stopped")
}

func (s *Scheduler) reconcileFromStore() {
	ids, err := s.products.IDs(s.ctx)
	if err != nil {
		log.Printf("❌ Failed to list products for reconciliation: %v", err)
		return
	}
	s.Reconcile(ids)
}

// tick refreshes one product; a product that is gone removes its own timer
func (s *Scheduler) tick(productID int64) {
	err := s.refresher.RefreshProduct(s.ctx, productID)
	switch {
	case err == nil:
	case errors.Is(err, repository.ErrProductNotFound):
		s.Unschedule(productID)
	default:
		log.Printf("❌ %s failed: %v", JobKey(productID), err)
	}
}
