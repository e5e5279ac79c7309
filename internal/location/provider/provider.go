// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package provider contains the plumbing shared by the location platform backends.
package provider

import (
	"context"
	"sync"
	"time"

	"github.com/wneessen/locator/internal/location"
)

// Emit hands a batch of fixes to the delegate. It reports false once the run it belongs
// to was stopped, in which case the batch was dropped.
type Emit func(batch []location.Position) bool

// RunFunc is a backend's delivery loop. It must return once ctx is done.
type RunFunc func(ctx context.Context, emit Emit)

// Base implements the delegate, authorization and start/stop bookkeeping of a
// location.Platform. Backends embed it and add RequestAuthorization and StartUpdating.
//
// Delegate calls are made with mu held, which guarantees that no batch reaches the
// delegate after StopUpdating returned.
type Base struct {
	name string

	mu       sync.Mutex
	delegate location.Delegate
	status   location.AuthorizationStatus
	gen      uint64
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewBase returns a Base for the backend with the given name.
func NewBase(name string) *Base {
	return &Base{name: name}
}

// Name returns the name of the backend.
func (b *Base) Name() string {
	return b.name
}

// SetDelegate implements location.Platform.
func (b *Base) SetDelegate(delegate location.Delegate) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.delegate = delegate
}

// AuthorizationStatus implements location.Platform.
func (b *Base) AuthorizationStatus() location.AuthorizationStatus {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.status
}

// SetAuthorization stores status and reports it to the delegate. It is reported even if
// it did not change, so a caller waiting for a decision is always answered.
func (b *Base) SetAuthorization(status location.AuthorizationStatus) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.status = status
	if b.delegate != nil {
		b.delegate.AuthorizationChanged(status)
	}
}

// Running reports whether a delivery loop is active.
func (b *Base) Running() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cancel != nil
}

// StartLoop runs run on its own goroutine until StopUpdating is called. Calling it while a
// loop is active is a no-op.
func (b *Base) StartLoop(run RunFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	b.gen++
	gen := b.gen
	done := make(chan struct{})
	b.cancel = cancel
	b.done = done

	emit := func(batch []location.Position) bool {
		b.mu.Lock()
		defer b.mu.Unlock()
		if b.gen != gen || ctx.Err() != nil {
			return false
		}
		if len(batch) > 0 && b.delegate != nil {
			b.delegate.LocationsUpdated(batch)
		}
		return true
	}

	go func() {
		defer close(done)
		run(ctx, emit)
	}()
}

// StopUpdating implements location.Platform. It does not wait for the loop to exit, but
// batches emitted after it returned are dropped.
func (b *Base) StopUpdating() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cancel == nil {
		return
	}
	b.gen++
	b.cancel()
	b.cancel = nil
}

// Done returns a channel that is closed once the most recently started loop exited. It is
// nil if no loop was ever started.
func (b *Base) Done() <-chan struct{} {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.done
}

// SleepOrDone waits for d or until ctx is done. It returns false in the latter case.
func SleepOrDone(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// Poll is the delivery loop of backends that look up their position periodically. locate
// is called right away and then every period; a fix is only delivered if it differs
// significantly from the one delivered before. Errors are reported to onErr and retried
// on the next tick.
func Poll(ctx context.Context, emit Emit, period time.Duration,
	locate func(context.Context) ([]location.Position, error), onErr func(error),
) {
	state := location.State{}
	for {
		batch, err := locate(ctx)
		switch {
		case err != nil:
			if onErr != nil && ctx.Err() == nil {
				onErr(err)
			}
		case len(batch) > 0 && state.HasChanged(batch[len(batch)-1]):
			state.Update(batch[len(batch)-1])
			if !emit(batch) {
				return
			}
		}

		if !SleepOrDone(ctx, period) {
			return
		}
	}
}
