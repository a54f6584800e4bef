// Package shutdown coordinates cleanup work that must finish before the
// process exits: cancelling the live feed, flushing the quote snapshot,
// closing the token store.
package shutdown

import (
	"context"
	"sync"

	"github.com/stocksurge/gosurge/pkg/logger"
)

// Handler is one piece of cleanup work. It should respect ctx's deadline.
type Handler func(ctx context.Context)

type Manager struct {
	mu        sync.Mutex
	callbacks []Handler
}

func NewManager() *Manager {
	return &Manager{}
}

// OnShutdown registers a cleanup callback. Safe to call from multiple
// goroutines.
func (m *Manager) OnShutdown(h Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callbacks = append(m.callbacks, h)
}

// Shutdown runs all registered callbacks concurrently and blocks until they
// finish or ctx expires. ctx should carry a timeout so a stuck callback
// cannot wedge process exit.
func (m *Manager) Shutdown(ctx context.Context) {
	m.mu.Lock()
	callbacks := m.callbacks
	m.mu.Unlock()

	if len(callbacks) == 0 {
		return
	}

	log := logger.WithComponent("shutdown")
	log.WithField("callbacks", len(callbacks)).Info("shutting down")

	var wg sync.WaitGroup
	wg.Add(len(callbacks))
	for _, cb := range callbacks {
		go func(h Handler) {
			defer wg.Done()
			h(ctx)
		}(cb)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info("shutdown complete")
	case <-ctx.Done():
		log.WithError(ctx.Err()).Warn("shutdown timed out")
	}
}
