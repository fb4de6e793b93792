package scraper

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

// BrowserLoader renders pages in headless Chromium before extraction
type BrowserLoader struct {
	bin     string
	timeout time.Duration

	mu      sync.Mutex
	browser *rod.Browser
}

// NewBrowserLoader creates a loader; the browser starts on first use
func NewBrowserLoader(bin string, timeout time.Duration) *BrowserLoader {
	return &BrowserLoader{bin: bin, timeout: timeout}
}

func (l *BrowserLoader) connect() (*rod.Browser, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.browser != nil {
		return l.browser, nil
	}

	launch := launcher.New().
		Headless(true).
		NoSandbox(true).
		Leakless(false)

	bin := l.bin
	if bin == "" {
		if _, err := os.Stat("/usr/bin/chromium-browser"); err == nil {
			bin = "/usr/bin/chromium-browser"
		}
	}
	if bin != "" {
		launch = launch.Bin(bin)
		log.Printf("Using Chromium at %s", bin)
	} else {
		log.Printf("Using auto-detected Chromium")
	}

	controlURL, err := launch.Launch()
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("failed to connect to browser: %w", err)
	}
	l.browser = browser
	return browser, nil
}

func (l *BrowserLoader) Load(ctx context.Context, url string) ([]byte, error) {
	browser, err := l.connect()
	if err != nil {
		return nil, err
	}

	page, err := browser.Context(ctx).Timeout(l.timeout).Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, fmt.Errorf("failed to open page: %w", err)
	}
	defer page.Close()

	if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{
		UserAgent:      RandomUserAgent(),
		AcceptLanguage: "en-US,en;q=0.9,hi;q=0.8",
	}); err != nil {
		return nil, fmt.Errorf("failed to set user agent: %w", err)
	}

	if err := page.Navigate(url); err != nil {
		return nil, fmt.Errorf("failed to navigate: %w", err)
	}
	if err := page.WaitLoad(); err != nil {
		return nil, fmt.Errorf("failed to wait for load: %w", err)
	}
	// prices on JS-heavy pages settle after the load event
	if err := page.WaitStable(time.Second); err != nil {
		log.Printf("⚠️  Page %s did not settle: %v", url, err)
	}

	html, err := page.HTML()
	if err != nil {
		return nil, fmt.Errorf("failed to read page HTML: %w", err)
	}
	return []byte(html), nil
}

// Close shuts the browser down if it was started
func (l *BrowserLoader) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.browser == nil {
		return nil
	}
	err := l.browser.Close()
	l.browser = nil
	return err
}
