package quotecache

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"
)

// SnapshotStore persists quote snapshots so the cache can be primed at
// startup before the stream delivers its first tick. Loaded entries are
// marked as snapshots (Live=false) until a tick touches them.
type SnapshotStore struct {
	db *sql.DB
}

// OpenSnapshotStore opens (or creates) the snapshot database at path.
func OpenSnapshotStore(path string) (*SnapshotStore, error) {
	if path == "" {
		return nil, fmt.Errorf("snapshot db path is required")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("mkdir snapshot dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &SnapshotStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SnapshotStore) migrate() error {
	_, err := s.db.Exec(`
CREATE TABLE IF NOT EXISTS quotes (
	symbol         TEXT PRIMARY KEY,
	last_price     TEXT NOT NULL,
	change         TEXT NOT NULL DEFAULT '0',
	change_percent TEXT NOT NULL DEFAULT '0',
	volume         INTEGER NOT NULL DEFAULT 0,
	market_cap     INTEGER NOT NULL DEFAULT 0,
	currency       TEXT NOT NULL DEFAULT '',
	exchange       TEXT NOT NULL DEFAULT '',
	ts             TEXT NOT NULL DEFAULT ''
)`)
	if err != nil {
		return fmt.Errorf("migrate quotes: %w", err)
	}
	return nil
}

func (s *SnapshotStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Save upserts the current cache contents.
func (s *SnapshotStore) Save(c *Cache) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
INSERT INTO quotes (symbol, last_price, change, change_percent, volume, market_cap, currency, exchange, ts)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(symbol) DO UPDATE SET
	last_price=excluded.last_price,
	change=excluded.change,
	change_percent=excluded.change_percent,
	volume=excluded.volume,
	market_cap=excluded.market_cap,
	currency=excluded.currency,
	exchange=excluded.exchange,
	ts=excluded.ts`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, q := range c.Snapshot() {
		ts := ""
		if !q.Timestamp.IsZero() {
			ts = q.Timestamp.Format(time.RFC3339Nano)
		}
		if _, err := stmt.Exec(
			q.Symbol,
			q.LastPrice.String(),
			q.Change.String(),
			q.ChangePercent.String(),
			q.Volume,
			q.MarketCap,
			q.Currency,
			q.Exchange,
			ts,
		); err != nil {
			return fmt.Errorf("upsert %s: %w", q.Symbol, err)
		}
	}
	return tx.Commit()
}

// Load primes the cache from the persisted snapshot. Returns the number of
// entries loaded.
func (s *SnapshotStore) Load(c *Cache) (int, error) {
	rows, err := s.db.Query(`
SELECT symbol, last_price, change, change_percent, volume, market_cap, currency, exchange, ts
FROM quotes`)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	n := 0
	for rows.Next() {
		var (
			q                             Quote
			lastPrice, change, pct, rawTS string
		)
		if err := rows.Scan(&q.Symbol, &lastPrice, &change, &pct,
			&q.Volume, &q.MarketCap, &q.Currency, &q.Exchange, &rawTS); err != nil {
			return n, err
		}
		if q.LastPrice, err = decimal.NewFromString(lastPrice); err != nil {
			return n, fmt.Errorf("bad last_price for %s: %w", q.Symbol, err)
		}
		if q.Change, err = decimal.NewFromString(change); err != nil {
			return n, fmt.Errorf("bad change for %s: %w", q.Symbol, err)
		}
		if q.ChangePercent, err = decimal.NewFromString(pct); err != nil {
			return n, fmt.Errorf("bad change_percent for %s: %w", q.Symbol, err)
		}
		if ts, ok := parseTimestamp(rawTS); ok {
			q.Timestamp = ts
		}
		q.Live = false
		c.Put(q)
		n++
	}
	return n, rows.Err()
}
