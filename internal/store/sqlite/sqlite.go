package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// fixed width so stored_at compares correctly as text
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

type Cache struct {
	db  *sql.DB
	now func() time.Time
}

func New(path string) (*Cache, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite: path is required")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	cache := &Cache{db: db, now: time.Now}
	if err := cache.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return cache, nil
}

func (c *Cache) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	return c.db.Close()
}

// Lookup returns the body stored under key. Entries older than maxAge are
// treated as missing; maxAge <= 0 accepts any age.
func (c *Cache) Lookup(ctx context.Context, key string, maxAge time.Duration) ([]byte, bool, error) {
	var (
		body     []byte
		storedAt string
	)
	err := c.db.QueryRowContext(ctx,
		`SELECT body, stored_at FROM responses WHERE request_key = ?`, key,
	).Scan(&body, &storedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	if maxAge > 0 {
		when, err := time.Parse(timeLayout, storedAt)
		if err != nil {
			return nil, false, fmt.Errorf("sqlite: parse stored_at: %w", err)
		}
		if c.now().UTC().Sub(when) > maxAge {
			return nil, false, nil
		}
	}
	return body, true, nil
}

func (c *Cache) Save(ctx context.Context, key string, body []byte) error {
	if body == nil {
		body = []byte{}
	}
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO responses (request_key, body, stored_at)
		VALUES (?, ?, ?)
		ON CONFLICT(request_key)
		DO UPDATE SET
			body = excluded.body,
			stored_at = excluded.stored_at
	`, key, body, c.now().UTC().Format(timeLayout))
	if err != nil {
		_ = tx.Rollback()
		return err
	}

	return tx.Commit()
}

// Purge removes entries stored more than maxAge ago.
func (c *Cache) Purge(ctx context.Context, maxAge time.Duration) (int64, error) {
	cutoff := c.now().UTC().Add(-maxAge).Format(timeLayout)
	result, err := c.db.ExecContext(ctx, `DELETE FROM responses WHERE stored_at < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (c *Cache) migrate() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS responses (
			request_key TEXT NOT NULL PRIMARY KEY,
			body BLOB NOT NULL,
			stored_at TEXT NOT NULL
		);`,
	}

	for _, statement := range statements {
		if _, err := c.db.Exec(statement); err != nil {
			return err
		}
	}

	return nil
}
