package stream

import (
	"sync"

	"github.com/stocksurge/gosurge/pkg/quotecache"
)

// Feed manages the current subscription for a consumer whose symbol set
// changes over time. A change is always cancel-then-reconnect with a fresh
// Stream, never an in-place mutation of an open connection.
type Feed struct {
	cfg   Config
	cache *quotecache.Cache

	mu      sync.Mutex
	current *Stream
}

func NewFeed(cfg Config, cache *quotecache.Cache) *Feed {
	return &Feed{cfg: cfg, cache: cache}
}

// SetSymbols replaces the subscription. The previous stream, if any, is
// cancelled before the new one starts.
func (f *Feed) SetSymbols(symbols ...string) error {
	next, err := New(f.cfg, f.cache, symbols...)
	if err != nil {
		return err
	}

	f.mu.Lock()
	prev := f.current
	f.current = next
	f.mu.Unlock()

	if prev != nil {
		prev.Cancel()
		<-prev.Done()
	}
	next.Start()
	return nil
}

// Current returns the active stream, or nil before the first SetSymbols.
func (f *Feed) Current() *Stream {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current
}

// IsConnected reports whether the active stream is connected.
func (f *Feed) IsConnected() bool {
	s := f.Current()
	return s != nil && s.IsConnected()
}

// Close cancels the active subscription. Idempotent.
func (f *Feed) Close() {
	f.mu.Lock()
	cur := f.current
	f.current = nil
	f.mu.Unlock()
	if cur != nil {
		cur.Cancel()
		<-cur.Done()
	}
}
