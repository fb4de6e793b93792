package models

import (
	"database/sql"
	"encoding/json"
	"strings"
	"time"
)

// Placeholder values written by the extractor when a field could not be found.
const (
	NotAvailable  = "N/A"
	NameNotFound  = "Name not found"
	ImageNotFound = "Image not found"
)

// Product represents a marketplace item being tracked for price changes
type Product struct {
	ID        int64          `json:"id" db:"id"`
	URL       string         `json:"url" db:"url"`
	Name      sql.NullString `json:"name" db:"name"`
	ImageURL  sql.NullString `json:"image_url" db:"image_url"`
	CreatedAt time.Time      `json:"created_at" db:"created_at"`

	// CurrentPrice is the most recent observation, filled by read paths only.
	CurrentPrice sql.NullFloat64 `json:"current_price" db:"-"`
}

// DisplayName returns the product name, or "N/A" if it is still unknown
func (p *Product) DisplayName() string {
	if p.Name.Valid && p.Name.String != "" {
		return p.Name.String
	}
	return NotAvailable
}

// HasKnownName reports whether the stored name is a real name rather than a placeholder
func (p *Product) HasKnownName() bool {
	return p.Name.Valid && !IsPlaceholder(p.Name.String)
}

// HasKnownImage reports whether the stored image URL is a real value rather than a placeholder
func (p *Product) HasKnownImage() bool {
	return p.ImageURL.Valid && !IsPlaceholder(p.ImageURL.String)
}

// MarshalJSON flattens the nullable columns into plain JSON values
func (p *Product) MarshalJSON() ([]byte, error) {
	type Alias Product
	return json.Marshal(&struct {
		*Alias
		Name         *string  `json:"name"`
		ImageURL     *string  `json:"image_url"`
		CurrentPrice *float64 `json:"current_price"`
	}{
		Alias:        (*Alias)(p),
		Name:         nullStringPtr(p.Name),
		ImageURL:     nullStringPtr(p.ImageURL),
		CurrentPrice: nullFloatPtr(p.CurrentPrice),
	})
}

// IsPlaceholder reports whether a scraped name or image value means "unknown"
func IsPlaceholder(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "n/a", "name not found", "image not found":
		return true
	}
	return false
}

func nullStringPtr(s sql.NullString) *string {
	if s.Valid {
		v := s.String
		return &v
	}
	return nil
}

func nullFloatPtr(f sql.NullFloat64) *float64 {
	if f.Valid {
		v := f.Float64
		return &v
	}
	return nil
}

// PriceObservation represents a price point in time. Rows are append-only.
type PriceObservation struct {
	ID        int64     `json:"-" db:"id"`
	ProductID int64     `json:"-" db:"product_id"`
	Price     float64   `json:"price" db:"price"`
	Timestamp time.Time `json:"timestamp" db:"timestamp"`
}

// Alert represents a one-shot price drop subscription
type Alert struct {
	ID          int64     `json:"id" db:"id"`
	ProductID   int64     `json:"product_id" db:"product_id"`
	Email       string    `json:"email" db:"email"`
	TargetPrice float64   `json:"target_price" db:"target_price"`
	IsActive    bool      `json:"is_active" db:"is_active"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// IsBreachedBy reports whether the given price is at or below the alert target
func (a *Alert) IsBreachedBy(price float64) bool {
	return price <= a.TargetPrice
}

// ProductDetails represents what the extractor recovered from a product page
type ProductDetails struct {
	Name     string  `json:"name"`
	Price    float64 `json:"price"`
	ImageURL string  `json:"image_url"`
	URL      string  `json:"url"`
}

// HasUsablePrice returns true if the extractor found a strictly positive price
func (d *ProductDetails) HasUsablePrice() bool {
	return d != nil && d.Price > 0
}

// TrackProductRequest represents the request to start tracking a URL
type TrackProductRequest struct {
	URL string `json:"url" validate:"required,url"`
}

// AddAlertRequest represents the request to set a price alert
type AddAlertRequest struct {
	Email       string  `json:"email" validate:"required,email"`
	TargetPrice float64 `json:"target_price" validate:"required,gt=0"`
}

// ComparisonResult is the best-effort top search result on another platform
type ComparisonResult struct {
	Platform string   `json:"platform"`
	Name     string   `json:"name"`
	Price    *float64 `json:"price"`
	URL      string   `json:"url"`
	Error    string   `json:"error,omitempty"`
}

// Comparison bundles the generated queries with per-platform results
type Comparison struct {
	ProductID int64              `json:"product_id"`
	Metadata  map[string]any     `json:"metadata"`
	Queries   map[string]string  `json:"queries"`
	Results   []ComparisonResult `json:"results"`
	CreatedAt time.Time          `json:"created_at"`
}
