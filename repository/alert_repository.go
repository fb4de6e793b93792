package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"pricepulse/models"
)

const alertColumns = `id, product_id, email, target_price, is_active, created_at`

type AlertRepository struct {
	db *sql.DB
}

func NewAlertRepository(db *sql.DB) *AlertRepository {
	return &AlertRepository{db: db}
}

// Create stores a new active alert
func (r *AlertRepository) Create(ctx context.Context, productID int64, email string, targetPrice float64) (*models.Alert, error) {
	alert := models.Alert{
		ProductID:   productID,
		Email:       email,
		TargetPrice: targetPrice,
		IsActive:    true,
		CreatedAt:   time.Now().UTC(),
	}
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO alerts (product_id, email, target_price, is_active, created_at) VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		productID, email, targetPrice, true, alert.CreatedAt,
	).Scan(&alert.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to set price alert: %w", err)
	}
	return &alert, nil
}

// ActiveExists reports whether an identical alert is still waiting to fire
func (r *AlertRepository) ActiveExists(ctx context.Context, productID int64, email string, targetPrice float64) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM alerts WHERE product_id = $1 AND email = $2 AND target_price = $3 AND is_active = TRUE`,
		productID, email, targetPrice,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to look up alert: %w", err)
	}
	return n > 0, nil
}

// ActiveForProduct returns the alerts of a product that have not fired yet
func (r *AlertRepository) ActiveForProduct(ctx context.Context, productID int64) ([]models.Alert, error) {
	return r.query(ctx,
		`SELECT `+alertColumns+` FROM alerts WHERE product_id = $1 AND is_active = TRUE ORDER BY id`,
		productID)
}

// ListForProduct returns every alert of a product, fired or not
func (r *AlertRepository) ListForProduct(ctx context.Context, productID int64) ([]models.Alert, error) {
	return r.query(ctx,
		`SELECT `+alertColumns+` FROM alerts WHERE product_id = $1 ORDER BY created_at DESC, id DESC`,
		productID)
}

// Deactivate flips an active alert to inactive. It reports false when the alert
// was already inactive or gone, so a second caller never fires it again.
func (r *AlertRepository) Deactivate(ctx context.Context, alertID int64) (bool, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE alerts SET is_active = FALSE WHERE id = $1 AND is_active = TRUE`, alertID)
	if err != nil {
		return false, fmt.Errorf("failed to deactivate alert: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to deactivate alert: %w", err)
	}
	return n == 1, nil
}

func (r *AlertRepository) query(ctx context.Context, query string, args ...any) ([]models.Alert, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get price alerts: %w", err)
	}
	defer rows.Close()

	alerts := []models.Alert{}
	for rows.Next() {
		var a models.Alert
		if err := rows.Scan(&a.ID, &a.ProductID, &a.Email, &a.TargetPrice, &a.IsActive, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan price alert: %w", err)
		}
		alerts = append(alerts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to get price alerts: %w", err)
	}
	return alerts, nil
}
