package postgres

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"chronicle/internal/store"
)

// Execute runs a raw statement with positional ($n) parameters.
func (c *Client) Execute(ctx context.Context, statement string, params ...any) ([]store.Record, error) {
	rows, err := c.pool.Query(ctx, statement, params...)
	if err != nil {
		return nil, fmt.Errorf("running sql: %w", err)
	}
	defer rows.Close()

	fieldDescriptions := rows.FieldDescriptions()
	results := make([]store.Record, 0)

	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("getting row values: %w", err)
		}

		row := make(store.Record, len(fieldDescriptions))
		for i, fd := range fieldDescriptions {
			row[string(fd.Name)] = values[i]
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
		for _, k := range []string{"id", "session_id"} {
			if n, ok := r[k].(int64); ok {
				r[k] = strconv.FormatInt(n, 10)
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

	tx, err := c.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, rec := range records {
		if _, ok := rec["id"]; !ok {
			return fmt.Errorf("%s record without id", coll)
		}
		names := make([]string, 0, len(cols)+1)
		args := make([]any, 0, len(cols)+1)
		for _, col := range cols {
			v, present := rec[col]
			if !present {
				continue
			}
			pv, err := pgValue(col, v)
			if err != nil {
				return fmt.Errorf("%s record %v: %w", coll, rec["id"], err)
			}
			names = append(names, col)
			args = append(args, pv)
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

		placeholders := make([]string, len(names))
		updates := make([]string, 0, len(names))
		for i, n := range names {
			placeholders[i] = "$" + strconv.Itoa(i+1)
			if n != "id" {
				updates = append(updates, store.UpsertAssignment(coll, n))
			}
		}
		conflict := "DO NOTHING"
		if len(updates) > 0 && !store.AppendOnly(coll) {
			conflict = "DO UPDATE SET " + strings.Join(updates, ", ")
		}
		query := fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (id) %s`,
			coll, strings.Join(names, ", "), strings.Join(placeholders, ", "), conflict)
		if _, err := tx.Exec(ctx, query, args...); err != nil {
			return fmt.Errorf("writing %s record %v: %w", coll, rec["id"], err)
		}
	}

	// Explicit ids bypass the identity sequence.
	_, err = tx.Exec(ctx, fmt.Sprintf(
		`SELECT setval(pg_get_serial_sequence('%s', 'id'), GREATEST((SELECT MAX(id) FROM %s), 1))`, coll, coll))
	if err != nil {
		return fmt.Errorf("advancing %s sequence: %w", coll, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing %s: %w", coll, err)
	}
	return nil
}

func pgValue(col string, v any) (any, error) {
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
	if f, ok := v.(float64); ok {
		switch col {
		case "emotion_intensity", "confidence", "stress", "persona_score":
			return f, nil
		}
		return int64(f), nil
	}
	return v, nil
}
