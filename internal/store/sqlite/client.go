package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"chronicle/internal/store"

	_ "modernc.org/sqlite"
)

var (
	_ store.Store    = (*Client)(nil)
	_ store.Executor = (*Client)(nil)
)

const timeLayout = "2006-01-02T15:04:05.000000Z"

type Client struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time
}

func New(ctx context.Context, dsn string, logger *slog.Logger) (*Client, error) {
	driverDSN, err := parseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("parsing sqlite DSN: %w", err)
	}

	db, err := sql.Open("sqlite", driverDSN)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database: %w", err)
	}
	// One connection: pragmas are per connection and :memory: databases
	// are private to the connection that created them.
	db.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging sqlite: %w", err)
	}

	pragmas := []string{
		"PRAGMA busy_timeout = 30000;",
		"PRAGMA journal_mode = WAL;",
		"PRAGMA foreign_keys = ON;",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("setting pragma %q: %w", pragma, err)
		}
	}

	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Client{db: db, logger: logger, now: time.Now}, nil
}

func (c *Client) Close(ctx context.Context) error {
	return c.db.Close()
}

func (c *Client) Capabilities() store.Capabilities {
	return store.Capabilities{Backend: "sqlite", Relationships: true, Statements: true}
}

func (c *Client) timestamp() string {
	return c.now().UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	for _, layout := range []string{timeLayout, time.RFC3339Nano, "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
