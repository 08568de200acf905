// Package db persists dashboard preferences in SQLite.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Preference keys.
const (
	KeyExchange = "exchange"
	KeySymbol   = "symbol"
	KeyInterval = "interval"
)

var ErrNotFound = errors.New("record not found")

// Selection is the persisted dashboard choice.
type Selection struct {
	Exchange string `json:"exchange"`
	Symbol   string `json:"symbol"`
	Interval string `json:"interval"`
}

// SelectionRecord is one row of selection_history.
type SelectionRecord struct {
	Selection

	ID         string    `json:"id"`
	Source     string    `json:"source"`
	SelectedAt time.Time `json:"selectedAt"`
}

// Queries reads and writes preferences.
type Queries struct {
	db *sql.DB
}

func NewQueries(db *sql.DB) *Queries {
	return &Queries{db: db}
}

// GetPreference returns the stored value for key or ErrNotFound.
func (q *Queries) GetPreference(ctx context.Context, key string) (string, error) {
	var v string
	err := q.db.QueryRowContext(ctx, `SELECT value FROM preferences WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get preference %s: %w", key, err)
	}
	return v, nil
}

// SetPreference upserts one key.
func (q *Queries) SetPreference(ctx context.Context, key, value string) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO preferences (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP
	`, key, value)
	if err != nil {
		return fmt.Errorf("set preference %s: %w", key, err)
	}
	return nil
}

// LoadSelection reads the stored selection. Missing keys are left empty;
// ErrNotFound is returned only when nothing was ever stored.
func (q *Queries) LoadSelection(ctx context.Context) (Selection, error) {
	rows, err := q.db.QueryContext(ctx, `SELECT key, value FROM preferences WHERE key IN (?, ?, ?)`,
		KeyExchange, KeySymbol, KeyInterval)
	if err != nil {
		return Selection{}, fmt.Errorf("load selection: %w", err)
	}
	defer rows.Close()

	var s Selection
	found := false
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return Selection{}, fmt.Errorf("scan preference: %w", err)
		}
		found = true
		switch k {
		case KeyExchange:
			s.Exchange = v
		case KeySymbol:
			s.Symbol = v
		case KeyInterval:
			s.Interval = v
		}
	}
	if err := rows.Err(); err != nil {
		return Selection{}, err
	}
	if !found {
		return Selection{}, ErrNotFound
	}
	return s, nil
}

// SaveSelection stores all three keys and appends a history row in one transaction.
func (q *Queries) SaveSelection(ctx context.Context, s Selection, source string) (string, error) {
	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, kv := range [][2]string{{KeyExchange, s.Exchange}, {KeySymbol, s.Symbol}, {KeyInterval, s.Interval}} {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO preferences (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP
		`, kv[0], kv[1]); err != nil {
			return "", fmt.Errorf("save %s: %w", kv[0], err)
		}
	}

	id := uuid.NewString()
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO selection_history (id, exchange, symbol, interval, source, selected_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, id, s.Exchange, s.Symbol, s.Interval, source, time.Now().UTC()); err != nil {
		return "", fmt.Errorf("insert history: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}
	return id, nil
}

// RecentSelections returns the newest history rows first.
func (q *Queries) RecentSelections(ctx context.Context, limit int) ([]SelectionRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, exchange, symbol, interval, COALESCE(source, ''), selected_at
		FROM selection_history
		ORDER BY selected_at DESC, rowid DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var out []SelectionRecord
	for rows.Next() {
		var r SelectionRecord
		if err := rows.Scan(&r.ID, &r.Exchange, &r.Symbol, &r.Interval, &r.Source, &r.SelectedAt); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
