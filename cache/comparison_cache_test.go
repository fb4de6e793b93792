package cache

import (
	"context"
	"testing"
	"time"
)

func TestComparisonKey(t *testing.T) {
	if got := comparisonKey(42); got != "comparison:42" {
		t.Errorf("comparisonKey(42) = %q", got)
	}
}

func TestNewComparisonCacheUnreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	c, err := NewComparisonCache(ctx, "127.0.0.1:1", 0, time.Hour)
	if err == nil {
		c.Close()
		t.Fatal("NewComparisonCache() error = nil for unreachable server")
	}
}
