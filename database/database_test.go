package database_test

import (
	"errors"
	"testing"

	"pricepulse/database"
	"pricepulse/database/dbtest"
)

func TestCreateTablesIsIdempotent(t *testing.T) {
	db := dbtest.New(t)

	if err := database.CreateTables(db, "sqlite3"); err != nil {
		t.Fatalf("second CreateTables() error = %v", err)
	}
}

func TestDeleteProductCascades(t *testing.T) {
	db := dbtest.New(t)

	var id int64
	err := db.QueryRow(`INSERT INTO products (url, name) VALUES ($1, $2) RETURNING id`,
		"https://example.test/p/1", "Kettle").Scan(&id)
	if err != nil {
		t.Fatalf("insert product: %v", err)
	}
	if _, err := db.Exec(`INSERT INTO price_history (product_id, price) VALUES ($1, $2)`, id, 10.5); err != nil {
		t.Fatalf("insert price: %v", err)
	}
	if _, err := db.Exec(`INSERT INTO alerts (product_id, email, target_price) VALUES ($1, $2, $3)`, id, "a@b.test", 9.0); err != nil {
		t.Fatalf("insert alert: %v", err)
	}

	if _, err := db.Exec(`DELETE FROM products WHERE id = $1`, id); err != nil {
		t.Fatalf("delete product: %v", err)
	}

	for _, table := range []string{"price_history", "alerts"} {
		var n int
		if err := db.QueryRow(`SELECT COUNT(*) FROM ` + table).Scan(&n); err != nil {
			t.Fatalf("count %s: %v", table, err)
		}
		if n != 0 {
			t.Errorf("%s has %d rows after cascade, want 0", table, n)
		}
	}
}

func TestIsUniqueViolation(t *testing.T) {
	db := dbtest.New(t)

	const q = `INSERT INTO products (url) VALUES ($1)`
	if _, err := db.Exec(q, "https://example.test/dup"); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	_, err := db.Exec(q, "https://example.test/dup")
	if !database.IsUniqueViolation(err) {
		t.Errorf("IsUniqueViolation(%v) = false, want true", err)
	}

	if database.IsUniqueViolation(nil) {
		t.Error("IsUniqueViolation(nil) = true")
	}
	if database.IsUniqueViolation(errors.New("boom")) {
		t.Error("IsUniqueViolation(plain error) = true")
	}
}

func TestTargetPriceCheckConstraint(t *testing.T) {
	db := dbtest.New(t)

	var id int64
	if err := db.QueryRow(`INSERT INTO products (url) VALUES ($1) RETURNING id`, "https://example.test/c").Scan(&id); err != nil {
		t.Fatalf("insert product: %v", err)
	}
	if _, err := db.Exec(`INSERT INTO alerts (product_id, email, target_price) VALUES ($1, $2, $3)`, id, "a@b.test", 0); err == nil {
		t.Error("alert with zero target accepted, want CHECK failure")
	}
}
