//go:build integration

package postgres

import (
	"context"
	"os"
	"testing"

	"chronicle/internal/store"
	"chronicle/internal/store/storetest"
)

func TestStoreConformance(t *testing.T) {
	dsn := os.Getenv("CHRONICLE_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("CHRONICLE_TEST_POSTGRES_DSN not set")
	}

	storetest.Run(t, func(t *testing.T) store.Store {
		ctx := context.Background()
		c, err := New(ctx, dsn, nil)
		if err != nil {
			t.Fatalf("open postgres: %v", err)
		}
		t.Cleanup(func() { c.Close(ctx) })

		if err := c.EnsureSchema(ctx); err != nil {
			t.Fatalf("ensure schema: %v", err)
		}
		if _, err := c.pool.Exec(ctx, `TRUNCATE story_sessions RESTART IDENTITY CASCADE`); err != nil {
			t.Fatalf("truncate: %v", err)
		}
		return c
	})
}
