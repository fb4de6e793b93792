package scraper

import (
	"strings"
	"testing"

	"pricepulse/models"
)

func extract(t *testing.T, html string) *models.ProductDetails {
	t.Helper()
	d, err := NewExtractor(nil).Extract(strings.NewReader(html), "https://shop.test/p")
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	return d
}

func TestExtractAmazonStylePage(t *testing.T) {
	d := extract(t, `<html><body>
		<span id="productTitle">  Steel Kettle 1.5L </span>
		<div id="corePrice_feature_div"><span class="a-offscreen">₹1,299.00</span></div>
		<img id="landingImage" src="https://img.test/kettle.jpg">
	</body></html>`)

	if d.Name != "Steel Kettle 1.5L" {
		t.Errorf("Name = %q", d.Name)
	}
	if d.Price != 1299 {
		t.Errorf("Price = %v, want 1299", d.Price)
	}
	if d.ImageURL != "https://img.test/kettle.jpg" {
		t.Errorf("ImageURL = %q", d.ImageURL)
	}
	if d.URL != "https://shop.test/p" {
		t.Errorf("URL = %q", d.URL)
	}
}

func TestExtractSkipsBackToResults(t *testing.T) {
	d := extract(t, `<html><body>
		<h1>Back to results</h1>
		<h1>Desk Lamp</h1>
	</body></html>`)

	if d.Name != "Desk Lamp" {
		t.Errorf("Name = %q, want Desk Lamp", d.Name)
	}
}

func TestExtractFirstPositivePriceWins(t *testing.T) {
	d := extract(t, `<html><body>
		<span class="a-offscreen">₹0.00</span>
		<span class="a-offscreen">N/A</span>
		<span class="a-price-whole">749.</span>
	</body></html>`)

	if d.Price != 749 {
		t.Errorf("Price = %v, want 749", d.Price)
	}
}

func TestExtractPriceFromContentAttr(t *testing.T) {
	d := extract(t, `<html><head>
		<meta property="product:price:amount" content="89.50">
	</head><body></body></html>`)

	if d.Price != 89.5 {
		t.Errorf("Price = %v, want 89.5", d.Price)
	}
}

func TestExtractCurrencyTextFallback(t *testing.T) {
	d := extract(t, `<html><body>
		<div class="offer"><span class="symbol">₹</span><span class="amount">2,499</span></div>
	</body></html>`)

	if d.Price != 2499 {
		t.Errorf("Price = %v, want 2499", d.Price)
	}
}

func TestExtractDynamicImageFallback(t *testing.T) {
	d := extract(t, `<html><body>
		<img id="landingImage" src="/relative.jpg"
			data-a-dynamic-image='{"https://img.test/large.jpg":[500,500],"https://img.test/small.jpg":[100,100]}'>
	</body></html>`)

	if d.ImageURL != "https://img.test/large.jpg" {
		t.Errorf("ImageURL = %q, want first dynamic image key", d.ImageURL)
	}
}

func TestExtractDefaults(t *testing.T) {
	d := extract(t, `<html><body><p>nothing to see</p></body></html>`)

	if d.Name != models.NotAvailable || d.ImageURL != models.NotAvailable {
		t.Errorf("placeholders = %q / %q, want N/A", d.Name, d.ImageURL)
	}
	if d.Price != 0 {
		t.Errorf("Price = %v, want 0", d.Price)
	}
}

func TestFirstJSONKey(t *testing.T) {
	tests := map[string]string{
		`{"b":1,"a":2}`: "b",
		`{}`:            "",
		`[1,2]`:         "",
		`not json`:      "",
	}
	for in, want := range tests {
		if got := firstJSONKey(in); got != want {
			t.Errorf("firstJSONKey(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestDetectBotWall(t *testing.T) {
	bd := NewBotDetector()

	wall, reason := bd.DetectBotWall("Enter the characters you see below. Type the characters you see in this image. captcha", "Amazon.in")
	if !wall || reason == "" {
		t.Errorf("DetectBotWall(captcha page) = %v, %q", wall, reason)
	}

	wall, _ = bd.DetectBotWall("A perfectly normal product description", "Kettle")
	if wall {
		t.Error("DetectBotWall(normal page) = true")
	}
}
