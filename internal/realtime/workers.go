// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package realtime

import (
	"context"
	"fmt"
	"sync"
)

// workerGroup tracks side-effect goroutines and provides a bounded join.
// Unlike a WaitGroup it may be waited on while workers are still being
// added from provider callbacks.
type workerGroup struct {
	mu      sync.Mutex
	closing bool
	active  int
	idle    chan struct{}
}

func (g *workerGroup) Go(fn func()) bool {
	g.mu.Lock()
	if g.closing {
		g.mu.Unlock()
		return false
	}
	g.active++
	g.mu.Unlock()

	go func() {
		defer g.done()
		fn()
	}()
	return true
}

func (g *workerGroup) done() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.active--
	if g.active == 0 && g.idle != nil {
		close(g.idle)
		g.idle = nil
	}
}

// Active returns the number of running workers.
func (g *workerGroup) Active() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.active
}

// Wait blocks until no worker is running.
func (g *workerGroup) Wait(ctx context.Context) error {
	g.mu.Lock()
	if g.active == 0 {
		g.mu.Unlock()
		return nil
	}
	if g.idle == nil {
		g.idle = make(chan struct{})
	}
	idle := g.idle
	g.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("realtime: worker drain timeout: %w", ctx.Err())
	}
}

// CloseAndWait rejects new workers, then waits like Wait.
func (g *workerGroup) CloseAndWait(ctx context.Context) error {
	g.mu.Lock()
	g.closing = true
	g.mu.Unlock()
	return g.Wait(ctx)
}
