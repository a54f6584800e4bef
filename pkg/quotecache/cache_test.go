package quotecache

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func f64(v float64) *float64 { return &v }
func i64(v int64) *int64     { return &v }

func TestApply_FullThenPartialPreservesFields(t *testing.T) {
	c := New()

	t1 := "2026-08-29T14:30:00Z"
	if _, ok := c.Apply(Tick{ID: "AAPL", Price: f64(150.2), Volume: i64(1000), Timestamp: t1}); !ok {
		t.Fatal("full tick should apply")
	}
	if _, ok := c.Apply(Tick{ID: "AAPL", Price: f64(151.0)}); !ok {
		t.Fatal("partial tick should apply")
	}

	q, ok := c.Get("AAPL")
	if !ok {
		t.Fatal("entry missing")
	}
	if !q.LastPrice.Equal(decimal.NewFromFloat(151.0)) {
		t.Fatalf("unexpected price: %s", q.LastPrice)
	}
	if q.Volume != 1000 {
		t.Fatalf("volume should be preserved, got %d", q.Volume)
	}
	want, _ := time.Parse(time.RFC3339, t1)
	if !q.Timestamp.Equal(want) {
		t.Fatalf("timestamp should be preserved, got %v", q.Timestamp)
	}
	if !q.Live {
		t.Fatal("entry touched by a tick must be marked live")
	}
}

func TestApply_Idempotent(t *testing.T) {
	c := New()
	tick := Tick{ID: "MSFT", Price: f64(420.5), Volume: i64(9000), Timestamp: "2026-08-29T14:30:00Z"}

	first, _ := c.Apply(tick)
	second, _ := c.Apply(tick)

	if !first.LastPrice.Equal(second.LastPrice) ||
		first.Volume != second.Volume ||
		!first.Timestamp.Equal(second.Timestamp) ||
		first.Live != second.Live {
		t.Fatalf("applying the same tick twice diverged: %+v vs %+v", first, second)
	}
}

func TestApply_RejectsTicksWithoutIDOrPrice(t *testing.T) {
	c := New()
	if _, ok := c.Apply(Tick{ID: "AAPL"}); ok {
		t.Fatal("tick without price must be dropped")
	}
	if _, ok := c.Apply(Tick{Price: f64(1.0)}); ok {
		t.Fatal("tick without id must be dropped")
	}
	if c.Len() != 0 {
		t.Fatalf("cache should remain empty, has %d entries", c.Len())
	}
}

func TestApply_BadTimestampDoesNotClobber(t *testing.T) {
	c := New()
	c.Apply(Tick{ID: "AAPL", Price: f64(150.0), Timestamp: "2026-08-29T14:30:00Z"})
	c.Apply(Tick{ID: "AAPL", Price: f64(151.0), Timestamp: "not-a-time"})

	q, _ := c.Get("AAPL")
	want, _ := time.Parse(time.RFC3339, "2026-08-29T14:30:00Z")
	if !q.Timestamp.Equal(want) {
		t.Fatalf("bad timestamp overwrote prior one: %v", q.Timestamp)
	}
}

func TestApply_ZonelessISOTimestamp(t *testing.T) {
	// The backend emits datetime.isoformat() without a zone.
	c := New()
	c.Apply(Tick{ID: "GOOG", Price: f64(10), Timestamp: "2026-08-29T14:30:00.123456"})
	q, _ := c.Get("GOOG")
	if q.Timestamp.IsZero() {
		t.Fatal("zone-less ISO timestamp should parse")
	}
}

func TestTick_DecodesAbsentFieldsAsNil(t *testing.T) {
	var tick Tick
	if err := json.Unmarshal([]byte(`{"id":"AAPL","price":150.2}`), &tick); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if tick.Price == nil || *tick.Price != 150.2 {
		t.Fatalf("unexpected price: %v", tick.Price)
	}
	if tick.Volume != nil || tick.Change != nil {
		t.Fatal("absent fields must decode to nil")
	}
}

func TestPut_MarksSnapshotEntries(t *testing.T) {
	c := New()
	c.Put(Quote{Symbol: "AAPL", LastPrice: decimal.NewFromInt(100), Live: false})

	q, ok := c.Get("AAPL")
	if !ok || q.Live {
		t.Fatalf("snapshot entry should exist and not be live: %+v", q)
	}

	c.Apply(Tick{ID: "AAPL", Price: f64(101)})
	q, _ = c.Get("AAPL")
	if !q.Live {
		t.Fatal("tick should flip entry to live")
	}
}
