package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"chronicle/internal/store"
)

var (
	_ store.Store    = (*Client)(nil)
	_ store.Executor = (*Client)(nil)
)

type Client struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func New(ctx context.Context, dsn string, logger *slog.Logger) (*Client, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("creating postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Client{pool: pool, logger: logger}, nil
}

func (c *Client) Close(ctx context.Context) error {
	c.pool.Close()
	return nil
}

func (c *Client) Capabilities() store.Capabilities {
	return store.Capabilities{Backend: "postgres", Relationships: true, Statements: true}
}

func parseID(kind, id string) (int64, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(id), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s %q: %w", kind, id, store.ErrRecordNotFound)
	}
	return n, nil
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}
