// Package quotecache is the shared store of live instrument quotes. The
// stream writer merges partial ticks; UI readers take whole-entry copies, so
// a merge is always observed atomically, never field-by-field.
package quotecache

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// Quote is one cache entry, keyed by instrument symbol. Live distinguishes a
// loaded snapshot (false) from an entry touched by a live tick (true).
type Quote struct {
	Symbol        string
	LastPrice     decimal.Decimal
	Change        decimal.Decimal
	ChangePercent decimal.Decimal
	Volume        int64
	MarketCap     int64
	Currency      string
	Exchange      string
	Timestamp     time.Time
	Live          bool
}

// Tick is one inbound stream payload. Pointer fields distinguish "absent"
// from zero; absent fields never overwrite the prior entry.
type Tick struct {
	ID            string   `json:"id"`
	Price         *float64 `json:"price"`
	Change        *float64 `json:"change"`
	ChangePercent *float64 `json:"changePercent"`
	Volume        *int64   `json:"volume"`
	MarketCap     *int64   `json:"market_cap"`
	Currency      string   `json:"currency"`
	Exchange      string   `json:"exchange"`
	Timestamp     string   `json:"timestamp"`
	Error         string   `json:"error"`
}

// Cache is safe for one writer and many concurrent readers.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]*Quote
}

func New() *Cache {
	return &Cache{entries: make(map[string]*Quote)}
}

// Get returns a copy of the entry for symbol.
func (c *Cache) Get(symbol string) (Quote, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	q, ok := c.entries[symbol]
	if !ok {
		return Quote{}, false
	}
	return *q, true
}

// Snapshot returns copies of all entries.
func (c *Cache) Snapshot() []Quote {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Quote, 0, len(c.entries))
	for _, q := range c.entries {
		out = append(out, *q)
	}
	return out
}

// Put stores a whole entry as-is. Used for loading persisted snapshots.
func (c *Cache) Put(q Quote) {
	c.mu.Lock()
	defer c.mu.Unlock()
	stored := q
	c.entries[q.Symbol] = &stored
}

// Len returns the number of entries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Apply merges a tick into the entry for its symbol. Only fields the tick
// carries overwrite prior state; the merged entry replaces the stored one in
// a single swap. Applying the same tick twice yields the same entry.
func (c *Cache) Apply(t Tick) (Quote, bool) {
	if t.ID == "" || t.Price == nil {
		return Quote{}, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	merged := Quote{Symbol: t.ID}
	if prev, ok := c.entries[t.ID]; ok {
		merged = *prev
	}

	merged.LastPrice = decimal.NewFromFloat(*t.Price)
	if t.Change != nil {
		merged.Change = decimal.NewFromFloat(*t.Change)
	}
	if t.ChangePercent != nil {
		merged.ChangePercent = decimal.NewFromFloat(*t.ChangePercent)
	}
	if t.Volume != nil {
		merged.Volume = *t.Volume
	}
	if t.MarketCap != nil {
		merged.MarketCap = *t.MarketCap
	}
	if t.Currency != "" {
		merged.Currency = t.Currency
	}
	if t.Exchange != "" {
		merged.Exchange = t.Exchange
	}
	if ts, ok := parseTimestamp(t.Timestamp); ok {
		merged.Timestamp = ts
	}
	merged.Live = true

	c.entries[t.ID] = &merged
	return merged, true
}

// parseTimestamp accepts RFC3339 and the backend's zone-less ISO form.
// Unparseable timestamps are treated as absent.
func parseTimestamp(raw string) (time.Time, bool) {
	if raw == "" {
		return time.Time{}, false
	}
	if ts, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return ts, true
	}
	if ts, err := time.Parse("2006-01-02T15:04:05.999999999", raw); err == nil {
		return ts, true
	}
	return time.Time{}, false
}
