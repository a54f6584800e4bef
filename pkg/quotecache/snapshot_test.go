package quotecache

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestSnapshotStore_SaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "quotes.db")

	store, err := OpenSnapshotStore(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	src := New()
	src.Apply(Tick{ID: "AAPL", Price: f64(150.2), Volume: i64(1000), Currency: "USD", Timestamp: "2026-08-29T14:30:00Z"})
	src.Apply(Tick{ID: "MSFT", Price: f64(420.5)})

	if err := store.Save(src); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	store2, err := OpenSnapshotStore(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer store2.Close()

	dst := New()
	n, err := store2.Load(dst)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 entries loaded, got %d", n)
	}

	q, ok := dst.Get("AAPL")
	if !ok {
		t.Fatal("AAPL missing after load")
	}
	if !q.LastPrice.Equal(decimal.NewFromFloat(150.2)) {
		t.Fatalf("unexpected price: %s", q.LastPrice)
	}
	if q.Volume != 1000 || q.Currency != "USD" {
		t.Fatalf("unexpected entry: %+v", q)
	}
	want, _ := time.Parse(time.RFC3339, "2026-08-29T14:30:00Z")
	if !q.Timestamp.Equal(want) {
		t.Fatalf("unexpected timestamp: %v", q.Timestamp)
	}
	if q.Live {
		t.Fatal("loaded snapshot entries must not be marked live")
	}
}

func TestSnapshotStore_SaveIsUpsert(t *testing.T) {
	path := filepath.Join(t.TempDir(), "quotes.db")
	store, err := OpenSnapshotStore(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer store.Close()

	c := New()
	c.Apply(Tick{ID: "AAPL", Price: f64(150.0)})
	if err := store.Save(c); err != nil {
		t.Fatalf("save 1: %v", err)
	}

	c.Apply(Tick{ID: "AAPL", Price: f64(151.0)})
	if err := store.Save(c); err != nil {
		t.Fatalf("save 2: %v", err)
	}

	dst := New()
	n, err := store.Load(dst)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected single row after upsert, got %d", n)
	}
	q, _ := dst.Get("AAPL")
	if !q.LastPrice.Equal(decimal.NewFromFloat(151.0)) {
		t.Fatalf("expected updated price, got %s", q.LastPrice)
	}
}
