package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"pricepulse/models"
)

var ErrProductNotFound = errors.New("product not found")

const productColumns = `p.id, p.url, p.name, p.image_url, p.created_at,
	(SELECT ph.price FROM price_history ph WHERE ph.product_id = p.id ORDER BY ph.observed_at DESC, ph.id DESC LIMIT 1)`

type ProductRepository struct {
	db *sql.DB
}

func NewProductRepository(db *sql.DB) *ProductRepository {
	return &ProductRepository{db: db}
}

// CreateWithPrice inserts a product and its first price observation in one transaction
func (r *ProductRepository) CreateWithPrice(ctx context.Context, details *models.ProductDetails) (*models.Product, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	product := models.Product{
		URL:          details.URL,
		Name:         sql.NullString{String: details.Name, Valid: details.Name != ""},
		ImageURL:     sql.NullString{String: details.ImageURL, Valid: details.ImageURL != ""},
		CreatedAt:    now,
		CurrentPrice: sql.NullFloat64{Float64: details.Price, Valid: true},
	}

	err = tx.QueryRowContext(ctx,
		`INSERT INTO products (url, name, image_url, created_at) VALUES ($1, $2, $3, $4) RETURNING id`,
		product.URL, product.Name, product.ImageURL, now,
	).Scan(&product.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to add product: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO price_history (product_id, price, observed_at) VALUES ($1, $2, $3)`,
		product.ID, details.Price, now,
	); err != nil {
		return nil, fmt.Errorf("failed to add initial price: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit product: %w", err)
	}
	return &product, nil
}

// GetByID returns a product with its current price
func (r *ProductRepository) GetByID(ctx context.Context, id int64) (*models.Product, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products p WHERE p.id = $1`, id)
	return scanProduct(row)
}

// GetByURL returns the product tracking the given URL
func (r *ProductRepository) GetByURL(ctx context.Context, url string) (*models.Product, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products p WHERE p.url = $1`, url)
	return scanProduct(row)
}

// List returns every tracked product, newest first
func (r *ProductRepository) List(ctx context.Context) ([]models.Product, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+productColumns+` FROM products p ORDER BY p.created_at DESC, p.id DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	defer rows.Close()

	products := []models.Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	return products, nil
}

// IDs returns the id of every stored product
func (r *ProductRepository) IDs(ctx context.Context) ([]int64, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id FROM products ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list product ids: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan product id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// UpdateDetails overwrites name and image URL; invalid values leave the column untouched
func (r *ProductRepository) UpdateDetails(ctx context.Context, id int64, name, imageURL sql.NullString) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE products SET name = COALESCE($1, name), image_url = COALESCE($2, image_url) WHERE id = $3`,
		name, imageURL, id,
	)
	if err != nil {
		return fmt.Errorf("failed to update product details: %w", err)
	}
	return nil
}

// Delete removes a product; price history and alerts go with it
func (r *ProductRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete product: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete product: %w", err)
	}
	if n == 0 {
		return ErrProductNotFound
	}
	return nil
}

// AddPrice appends a price observation
func (r *ProductRepository) AddPrice(ctx context.Context, productID int64, price float64) (*models.PriceObservation, error) {
	obs := models.PriceObservation{ProductID: productID, Price: price, Timestamp: time.Now().UTC()}
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO price_history (product_id, price, observed_at) VALUES ($1, $2, $3) RETURNING id`,
		productID, price, obs.Timestamp,
	).Scan(&obs.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to add price history: %w", err)
	}
	return &obs, nil
}

// PriceHistory returns every observation of a product, oldest first
func (r *ProductRepository) PriceHistory(ctx context.Context, productID int64) ([]models.PriceObservation, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, product_id, price, observed_at
		FROM price_history
		WHERE product_id = $1
		ORDER BY observed_at ASC, id ASC
	`, productID)
	if err != nil {
		return nil, fmt.Errorf("failed to get price history: %w", err)
	}
	defer rows.Close()

	history := []models.PriceObservation{}
	for rows.Next() {
		var obs models.PriceObservation
		if err := rows.Scan(&obs.ID, &obs.ProductID, &obs.Price, &obs.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan price history: %w", err)
		}
		history = append(history, obs)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to get price history: %w", err)
	}
	return history, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (*models.Product, error) {
	var p models.Product
	err := row.Scan(&p.ID, &p.URL, &p.Name, &p.ImageURL, &p.CreatedAt, &p.CurrentPrice)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("failed to scan product: %w", err)
	}
	return &p, nil
}
