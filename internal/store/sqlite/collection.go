package sqlite

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"chronicle/internal/store"
)

// Execute runs a raw statement with positional parameters.
func (c *Client) Execute(ctx context.Context, statement string, params ...any) ([]store.Record, error) {
	rows, err := c.db.QueryContext(ctx, statement, params...)
	if err != nil {
		return nil, fmt.Errorf("running sql: %w", err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("getting columns: %w", err)
	}

	results := make([]store.Record, 0)

	for rows.Next() {
		values := make([]any, len(columns))
		valuePtrs := make([]any, len(columns))
		for i := range values {
			valuePtrs[i] = &values[i]
		}

		if err := rows.Scan(valuePtrs...); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}

		row := make(store.Record, len(columns))
		for i, col := range columns {
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
				continue
			}
			row[col] = values[i]
		}
		results = append(results, row)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating sql rows: %w", err)
	}

	return results, nil
}

func (c *Client) ReadCollection(ctx context.Context, coll store.Collection) ([]store.Record, error) {
	cols, ok := store.Columns[coll]
	if !ok {
		return nil, fmt.Errorf("unknown collection %q", coll)
	}

	rows, err := c.Execute(ctx, fmt.Sprintf("SELECT %s FROM %s ORDER BY id", strings.Join(cols, ", "), coll))
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", coll, err)
	}

	for _, r := range rows {
		for k, v := range r {
			switch {
			case k == "id" || k == "session_id":
				if n, ok := v.(int64); ok {
					r[k] = strconv.FormatInt(n, 10)
				}
			case k == "is_active":
				if n, ok := v.(int64); ok {
					r[k] = n != 0
				}
			case store.EmbeddedFields[k]:
				s, _ := v.(string)
				var decoded any
				store.DecodeEmbedded(c.logger, fmt.Sprintf("%s %v", coll, r["id"]), k, []byte(s), &decoded)
				r[k] = decoded
			}
		}
	}
	return rows, nil
}

func (c *Client) WriteCollection(ctx context.Context, coll store.Collection, records []store.Record) error {
	cols, ok := store.Columns[coll]
	if !ok {
		return fmt.Errorf("unknown collection %q", coll)
	}
	if len(records) == 0 {
		return nil
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	for _, rec := range records {
		names := make([]string, 0, len(cols)+1)
		args := make([]any, 0, len(cols)+1)
		for _, col := range cols {
			v, present := rec[col]
			if !present {
				continue
			}
			sv, err := sqlValue(col, v)
			if err != nil {
				return fmt.Errorf("%s record %v: %w", coll, rec["id"], err)
			}
			names = append(names, col)
			args = append(args, sv)
		}
		if _, ok := rec["id"]; !ok {
			return fmt.Errorf("%s record without id", coll)
		}

		switch coll {
		case store.CollectionCharacters:
			name, _ := rec["name"].(string)
			names = append(names, "name_normalized")
			args = append(args, store.NormalizeName(name))
		case store.CollectionRelationships:
			a, _ := rec["character_a"].(string)
			b, _ := rec["character_b"].(string)
			names = append(names, "pair_key")
			args = append(args, store.PairKey(a, b))
		}

		updates := make([]string, 0, len(names))
		for _, n := range names {
			if n != "id" {
				updates = append(updates, store.UpsertAssignment(coll, n))
			}
		}
		placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(names)), ", ")

		query := fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (id) DO UPDATE SET %s`,
			coll, strings.Join(names, ", "), placeholders, strings.Join(updates, ", "))
		if store.AppendOnly(coll) {
			query = fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (id) DO NOTHING`,
				coll, strings.Join(names, ", "), placeholders)
		}
		if len(updates) == 0 {
			query = fmt.Sprintf(`INSERT INTO %s (id) VALUES (?) ON CONFLICT (id) DO NOTHING`, coll)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("writing %s record %v: %w", coll, rec["id"], err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing %s: %w", coll, err)
	}
	return nil
}

// sqlValue converts a decoded record value to its column representation.
func sqlValue(col string, v any) (any, error) {
	if col == "id" || col == "session_id" {
		switch t := v.(type) {
		case string:
			n, err := strconv.ParseInt(t, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("%s %q is not numeric", col, t)
			}
			return n, nil
		case float64:
			return int64(t), nil
		}
		return v, nil
	}
	if store.EmbeddedFields[col] {
		if s, ok := v.(string); ok {
			return s, nil
		}
		b, err := store.EncodeEmbedded(v)
		if err != nil {
			return nil, err
		}
		return string(b), nil
	}
	switch t := v.(type) {
	case bool:
		if t {
			return 1, nil
		}
		return 0, nil
	case time.Time:
		return t.UTC().Format(timeLayout), nil
	case string:
		if strings.HasSuffix(col, "_at") {
			if ts := parseTime(t); !ts.IsZero() {
				return ts.UTC().Format(timeLayout), nil
			}
		}
	case float64:
		if t == math.Trunc(t) && !isRealColumn(col) {
			return int64(t), nil
		}
	}
	return v, nil
}

func isRealColumn(col string) bool {
	switch col {
	case "emotion_intensity", "confidence", "stress", "persona_score":
		return true
	}
	return false
}
