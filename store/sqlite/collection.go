package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/jacentio/docrepo/store"
)

// Collection is a SQLite table holding one collection.
type Collection struct {
	db    *sql.DB
	name  string
	table string
}

// Name implements store.Collection.
func (c *Collection) Name() string {
	return c.name
}

// Find implements store.Collection. Documents without a sort come back in
// insertion order.
func (c *Collection) Find(ctx context.Context, q store.Query) ([]store.Record, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	where, args, err := translateFilter(q.Filter)
	if err != nil {
		return nil, err
	}
	orderBy, orderArgs := translateSort(q.Sort)
	args = append(args, orderArgs...)

	query := fmt.Sprintf("SELECT data FROM %s WHERE %s ORDER BY %s", c.table, where, orderBy)
	if q.Limit > 0 || q.Skip > 0 {
		limit := q.Limit
		if limit == 0 {
			limit = -1
		}
		query += " LIMIT ? OFFSET ?"
		args = append(args, limit, q.Skip)
	}

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", c.name, err)
	}
	defer rows.Close()

	var out []store.Record
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", c.name, err)
		}
		out = append(out, record(data))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating %s: %w", c.name, err)
	}
	return out, nil
}

// FindOne implements store.Collection.
func (c *Collection) FindOne(ctx context.Context, f store.Filter) (store.Record, error) {
	recs, err := c.Find(ctx, store.Query{Filter: f, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, store.ErrNotFound
	}
	return recs[0], nil
}

// FindByID implements store.Collection.
func (c *Collection) FindByID(ctx context.Context, id string) (store.Record, error) {
	var data []byte
	err := c.db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT data FROM %s WHERE id = ?", c.table), id,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s/%s: %w", c.name, id, err)
	}
	return record(data), nil
}

func encode(id string, doc any) ([]byte, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s: %w", id, err)
	}
	return data, nil
}

// InsertOne implements store.Collection.
func (c *Collection) InsertOne(ctx context.Context, id string, doc any) error {
	data, err := encode(id, doc)
	if err != nil {
		return err
	}
	_, err = c.db.ExecContext(ctx,
		fmt.Sprintf("INSERT INTO %s (id, data) VALUES (?, json_set(?, '$.id', ?))", c.table),
		id, string(data), id,
	)
	if isUniqueViolation(err) {
		return store.ErrAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("failed to insert %s/%s: %w", c.name, id, err)
	}
	return nil
}

// ReplaceOne implements store.Collection. A replaced document keeps its
// insertion position.
func (c *Collection) ReplaceOne(ctx context.Context, id string, doc any) error {
	data, err := encode(id, doc)
	if err != nil {
		return err
	}
	_, err = c.db.ExecContext(ctx, fmt.Sprintf(`
		INSERT INTO %s (id, data) VALUES (?, json_set(?, '$.id', ?))
		ON CONFLICT(id) DO UPDATE SET
			data = excluded.data,
			updated_at = CURRENT_TIMESTAMP`, c.table),
		id, string(data), id,
	)
	if err != nil {
		return fmt.Errorf("failed to replace %s/%s: %w", c.name, id, err)
	}
	return nil
}

// DeleteOne implements store.Collection.
func (c *Collection) DeleteOne(ctx context.Context, id string) error {
	_, err := c.db.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE id = ?", c.table), id)
	if err != nil {
		return fmt.Errorf("failed to delete %s/%s: %w", c.name, id, err)
	}
	return nil
}

// DeleteMany implements store.Collection.
func (c *Collection) DeleteMany(ctx context.Context, f store.Filter) (int64, error) {
	if err := f.Validate(); err != nil {
		return 0, err
	}
	where, args, err := translateFilter(f)
	if err != nil {
		return 0, err
	}
	res, err := c.db.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE %s", c.table, where), args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete from %s: %w", c.name, err)
	}
	return res.RowsAffected()
}

// Count implements store.Collection.
func (c *Collection) Count(ctx context.Context, f store.Filter) (int64, error) {
	if err := f.Validate(); err != nil {
		return 0, err
	}
	where, args, err := translateFilter(f)
	if err != nil {
		return 0, err
	}
	var n int64
	err = c.db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s", c.table, where), args...,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", c.name, err)
	}
	return n, nil
}

// Exists implements store.Collection.
func (c *Collection) Exists(ctx context.Context, f store.Filter) (bool, error) {
	if err := f.Validate(); err != nil {
		return false, err
	}
	where, args, err := translateFilter(f)
	if err != nil {
		return false, err
	}
	var exists bool
	err = c.db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT EXISTS(SELECT 1 FROM %s WHERE %s)", c.table, where), args...,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check %s: %w", c.name, err)
	}
	return exists, nil
}

var _ store.Collection = (*Collection)(nil)
