package services

import (
	"context"
	"log"

	"pricepulse/models"
	"pricepulse/notifier"
	"pricepulse/repository"
)

// Notifier delivers a price-drop notification and reports success
type Notifier interface {
	Send(ctx context.Context, email notifier.PriceAlertEmail) bool
}

// AlertEvaluator fires the active alerts of a product that a new price breaches
type AlertEvaluator struct {
	alerts   *repository.AlertRepository
	notifier Notifier
}

func NewAlertEvaluator(alerts *repository.AlertRepository, n Notifier) *AlertEvaluator {
	return &AlertEvaluator{alerts: alerts, notifier: n}
}

// Evaluate notifies every active alert whose target is at or above price and
// deactivates each one as soon as its mail went out. A failed send leaves the
// alert active for the next tick. It returns how many alerts fired.
func (e *AlertEvaluator) Evaluate(ctx context.Context, product *models.Product, price float64) int {
	active, err := e.alerts.ActiveForProduct(ctx, product.ID)
	if err != nil {
		log.Printf("❌ Failed to load alerts for product %d: %v", product.ID, err)
		return 0
	}
	if len(active) == 0 {
		return 0
	}

	log.Printf("Checking %d active alert(s) for %s at ₹%.2f", len(active), product.DisplayName(), price)

	notified := 0
	for _, alert := range active {
		if !alert.IsBreachedBy(price) {
			continue
		}

		log.Printf("🚨 ALERT TRIGGERED for %s: ₹%.2f <= target ₹%.2f (%s)", product.DisplayName(), price, alert.TargetPrice, alert.Email)

		sent := e.notifier.Send(ctx, notifier.PriceAlertEmail{
			Recipient:    alert.Email,
			ProductName:  product.DisplayName(),
			ProductURL:   product.URL,
			CurrentPrice: price,
			TargetPrice:  alert.TargetPrice,
			ImageURL:     product.ImageURL.String,
		})
		if !sent {
			log.Printf("❌ Email failed for alert %d, alert stays active", alert.ID)
			continue
		}

		ok, err := e.alerts.Deactivate(ctx, alert.ID)
		if err != nil {
			log.Printf("❌ Failed to deactivate alert %d after notifying: %v", alert.ID, err)
			continue
		}
		if !ok {
			log.Printf("⚠️  Alert %d was already inactive", alert.ID)
			continue
		}
		notified++
		log.Printf("✅ Alert %d for %s processed and deactivated", alert.ID, alert.Email)
	}
	return notified
}
