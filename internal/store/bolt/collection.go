package bolt

import (
	"context"
	"encoding/json"
	"fmt"

	"go.etcd.io/bbolt"

	"chronicle/internal/store"
)

func (s *Store) ReadCollection(ctx context.Context, c store.Collection) ([]store.Record, error) {
	if _, ok := store.Columns[c]; !ok {
		return nil, fmt.Errorf("unknown collection %q", c)
	}
	if c == store.CollectionRelationships {
		return []store.Record{}, nil
	}
	items, err := s.view(ctx, c)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", c, err)
	}
	records := decodeAll[store.Record](s.logger, c, items)
	return records, nil
}

// WriteCollection merges records into the stored list by id.
func (s *Store) WriteCollection(ctx context.Context, c store.Collection, records []store.Record) error {
	cols, ok := store.Columns[c]
	if !ok {
		return fmt.Errorf("unknown collection %q", c)
	}
	if c == store.CollectionRelationships || len(records) == 0 {
		return nil
	}

	err := s.update(ctx, func(tx *bbolt.Tx) error {
		items, err := loadList(tx, c)
		if err != nil {
			return err
		}
		for _, rec := range records {
			id := fmt.Sprint(rec["id"])
			if rec["id"] == nil || id == "" {
				return fmt.Errorf("%s record without id", c)
			}
			doc := make(store.Record, len(cols))
			for _, col := range cols {
				if v, present := rec[col]; present {
					doc[col] = v
				}
			}
			doc["id"] = id
			if sid, present := doc["session_id"]; present {
				doc["session_id"] = fmt.Sprint(sid)
			}

			i := indexByID(items, id)
			if i >= 0 && store.AppendOnly(c) {
				continue
			}
			if i >= 0 {
				var prev store.Record
				if err := json.Unmarshal(items[i], &prev); err == nil && prev != nil {
					doc = store.MergeRecord(c, prev, doc)
				}
			}
			raw, err := encode(doc)
			if err != nil {
				return err
			}
			if i >= 0 {
				items[i] = raw
			} else {
				items = append(items, raw)
			}
		}
		return saveList(tx, c, items)
	})
	if err != nil {
		return fmt.Errorf("writing %s: %w", c, err)
	}
	return nil
}
