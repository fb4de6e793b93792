package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"pricepulse/cache"
	"pricepulse/comparison"
	"pricepulse/config"
	"pricepulse/database"
	"pricepulse/handlers"
	"pricepulse/llm"
	"pricepulse/middleware"
	"pricepulse/notifier"
	"pricepulse/repository"
	"pricepulse/scheduler"
	"pricepulse/scraper"
	"pricepulse/services"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/rs/cors"
)

func main() {
	mode := flag.String("mode", config.ModeAll, "process mode: web, worker or all")
	flag.Parse()

	if !config.ValidMode(*mode) {
		log.Fatalf("Unknown mode %q (want web, worker or all)", *mode)
	}

	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(cfg.Database.Driver, cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	if err := database.CreateTables(db, cfg.Database.Driver); err != nil {
		log.Fatalf("Failed to create tables: %v", err)
	}

	var loader scraper.Loader = scraper.NewHTTPLoader(cfg.Scraper.Timeout)
	if cfg.Scraper.Loader == "browser" {
		browser := scraper.NewBrowserLoader(cfg.Scraper.ChromiumBin, cfg.Scraper.Timeout)
		defer browser.Close()
		loader = browser
	}

	if !cfg.SMTP.MailEnabled() {
		log.Println("⚠️  SMTP credentials not set, price alert emails will not be sent")
	}

	deps := services.TrackerDeps{
		DB:       db,
		Fetcher:  scraper.NewScraper(loader, scraper.NewPriceParser(cfg.Scraper.PriceParser)),
		Notifier: notifier.NewEmailNotifier(cfg.SMTP),
		Queries:  llm.NewGeminiClient(cfg.LLM),
		Searcher: comparison.NewSearcher(cfg.Scraper.Timeout),
	}

	if cfg.Redis.Addr != "" {
		comparisons, err := cache.NewComparisonCache(ctx, cfg.Redis.Addr, cfg.Redis.DB, cfg.Redis.CacheTTL)
		if err != nil {
			log.Printf("⚠️  Comparison cache disabled: %v", err)
		} else {
			defer comparisons.Close()
			deps.Cache = comparisons
		}
	}

	tracker := services.NewTracker(deps)

	if *mode == config.ModeWorker || *mode == config.ModeAll {
		sched := scheduler.New(
			tracker,
			repository.NewProductRepository(db),
			cfg.Scheduler.CheckInterval,
			cfg.Scheduler.ReconcileInterval,
		)
		tracker.SetScheduler(sched)
		sched.Start()
		defer sched.Stop()
	}

	if *mode == config.ModeWorker {
		log.Printf("⏰ Worker running, checking prices every %v", cfg.Scheduler.CheckInterval)
		<-ctx.Done()
		log.Println("🛑 Shutting down worker")
		return
	}

	// Setup router
	r := mux.NewRouter()
	r.Use(middleware.LoggingMiddleware)
	r.Use(middleware.RateLimitMiddleware(cfg.HTTPServer.RateLimitPerSecond))
	handlers.NewHandlers(tracker).Register(r)

	c := cors.New(cors.Options{
		AllowedOrigins:   cfg.HTTPServer.Origins(),
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPServer.Addr(),
		Handler:           c.Handler(http.TimeoutHandler(r, cfg.HTTPServer.RequestTimeout, `{"error":"request timed out"}`)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("🚀 Server starting on %s (mode: %s)", srv.Addr, *mode)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("❌ Server failed: %v", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Println("🛑 Shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("❌ Server shutdown failed: %v", err)
	}
}
