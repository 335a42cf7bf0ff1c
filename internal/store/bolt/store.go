// Package bolt stores every collection as a JSON document list inside a
// single BoltDB bucket. It mirrors the key-value storage available to the
// web build, so relationships are not persisted here.
package bolt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"go.etcd.io/bbolt"

	"chronicle/internal/store"
)

const (
	bucketName = "chronicle"
	keyPrefix  = "chronicle:"
)

var _ store.Store = (*Store)(nil)

// Store provides a BoltDB-backed story store.
type Store struct {
	db     *bbolt.DB
	logger *slog.Logger
	now    func() time.Time
}

// Open opens a BoltDB-backed store at the provided path.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	cleanPath := filepath.Clean(path)
	db, err := bbolt.Open(cleanPath, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open storage db: %w", err)
	}

	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Store{db: db, logger: logger, now: time.Now}, nil
}

// Close closes the underlying BoltDB database.
func (s *Store) Close(ctx context.Context) error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) Capabilities() store.Capabilities {
	return store.Capabilities{Backend: "bolt"}
}

func (s *Store) EnsureSchema(ctx context.Context) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketName))
		if err != nil {
			return fmt.Errorf("create %s bucket: %w", bucketName, err)
		}
		return nil
	})
}

func collectionKey(c store.Collection) []byte {
	return []byte(keyPrefix + string(c))
}

func bucket(tx *bbolt.Tx) (*bbolt.Bucket, error) {
	b := tx.Bucket([]byte(bucketName))
	if b == nil {
		return nil, fmt.Errorf("%s bucket is missing", bucketName)
	}
	return b, nil
}

// loadList reads the raw document list of a collection. A list that is not
// valid JSON is an error so writers never overwrite it.
func loadList(tx *bbolt.Tx, c store.Collection) ([]json.RawMessage, error) {
	b, err := bucket(tx)
	if err != nil {
		return nil, err
	}
	payload := b.Get(collectionKey(c))
	if len(payload) == 0 {
		return nil, nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(payload, &items); err != nil {
		return nil, fmt.Errorf("%s list: %w: %w", c, store.ErrMalformedEmbeddedData, err)
	}
	return items, nil
}

func saveList(tx *bbolt.Tx, c store.Collection, items []json.RawMessage) error {
	b, err := bucket(tx)
	if err != nil {
		return err
	}
	if items == nil {
		items = []json.RawMessage{}
	}
	payload, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", c, err)
	}
	return b.Put(collectionKey(c), payload)
}

// decodeAll decodes each document, skipping the malformed ones.
func decodeAll[T any](logger *slog.Logger, c store.Collection, items []json.RawMessage) []T {
	out := make([]T, 0, len(items))
	for i, raw := range items {
		var v T
		if !store.DecodeEmbedded(logger, fmt.Sprintf("%s[%d]", c, i), "document", raw, &v) {
			continue
		}
		out = append(out, v)
	}
	return out
}

func encode(v any) (json.RawMessage, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal document: %w", err)
	}
	return b, nil
}

// view loads a collection in a read transaction. A malformed list is
// logged and read as empty.
func (s *Store) view(ctx context.Context, c store.Collection) ([]json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var items []json.RawMessage
	err := s.db.View(func(tx *bbolt.Tx) error {
		var err error
		items, err = loadList(tx, c)
		return err
	})
	if errors.Is(err, store.ErrMalformedEmbeddedData) {
		s.logger.Warn("malformed embedded data", "entity", string(c), "field", "list", "error", err)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return items, nil
}
