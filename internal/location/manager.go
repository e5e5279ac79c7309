// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package location

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/wneessen/locator/internal/logger"
	"github.com/wneessen/locator/internal/metrics"
)

const (
	kindAccess   = "access"
	kindPosition = "position"
)

// Manager is the single location facade of the process. It owns one Platform, acts as its
// Delegate and republishes the latest fix to subscribers.
//
// Lock order: the Manager never calls into the Platform while holding mu, while the Platform
// may call the Delegate methods with its own locks held.
type Manager struct {
	platform Platform
	logger   *logger.Logger
	metrics  *metrics.Metrics

	// ctrl serializes the control calls into the platform. mu may be taken while ctrl is
	// held, never the other way round.
	ctrl sync.Mutex

	mu          sync.Mutex
	current     Position
	hasCurrent  bool
	updating    bool
	access      waiters[struct{}]
	positions   waiters[Position]
	subscribers map[chan Update]struct{}
}

// NewManager wires a Manager to the given platform and registers itself as its delegate.
func NewManager(platform Platform, log *logger.Logger, m *metrics.Metrics) (*Manager, error) {
	if platform == nil {
		return nil, errors.New("platform is required")
	}
	if log == nil {
		return nil, errors.New("logger is required")
	}
	if m == nil {
		m = metrics.New(nil)
	}

	manager := &Manager{
		platform:    platform,
		logger:      log,
		metrics:     m,
		subscribers: make(map[chan Update]struct{}),
	}
	platform.SetDelegate(manager)
	return manager, nil
}

// Platform returns the name of the platform backend in use.
func (m *Manager) Platform() string {
	return m.platform.Name()
}

// AuthorizationStatus returns the platform's current authorization status.
func (m *Manager) AuthorizationStatus() AuthorizationStatus {
	return m.platform.AuthorizationStatus()
}

// CurrentPosition returns the last known fix. The boolean is false while no fix is known.
func (m *Manager) CurrentPosition() (Position, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current, m.hasCurrent
}

// Updating reports whether continuous updates were started and not stopped since.
func (m *Manager) Updating() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updating
}

// Subscribe registers an observer of the current position. The channel holds at most one
// value; a slow reader skips intermediate values but always receives the latest one. If a
// position is known, it is delivered right away.
func (m *Manager) Subscribe() (<-chan Update, func()) {
	ch := make(chan Update, 1)
	m.mu.Lock()
	m.subscribers[ch] = struct{}{}
	if m.hasCurrent {
		ch <- Update{Position: m.current, Known: true}
	}
	m.mu.Unlock()

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.subscribers, ch)
			m.mu.Unlock()
			close(ch)
		})
	}
	return ch, unsub
}

// StartUpdating begins continuous fix delivery.
func (m *Manager) StartUpdating() {
	m.ctrl.Lock()
	defer m.ctrl.Unlock()
	m.startLocked()
}

// startLocked requires ctrl to be held.
func (m *Manager) startLocked() {
	m.mu.Lock()
	m.updating = true
	m.mu.Unlock()
	m.metrics.UpdatesRunning.Set(1)

	m.platform.StartUpdating()
	m.logger.Debug("location updates started", slog.String("platform", m.platform.Name()))
}

// StopUpdating halts fix delivery, forgets the current position and fails every caller
// still waiting in GetCurrentPosition with ErrAuthorizationDenied.
func (m *Manager) StopUpdating() {
	m.ctrl.Lock()
	defer m.ctrl.Unlock()
	m.platform.StopUpdating()

	m.mu.Lock()
	m.updating = false
	m.setCurrent(Position{}, false)
	released := m.positions.resolve(Position{}, ErrAuthorizationDenied)
	m.mu.Unlock()

	m.metrics.UpdatesRunning.Set(0)
	m.metrics.PendingWaiters.WithLabelValues(kindPosition).Set(0)
	m.metrics.WaitersResolved.WithLabelValues(kindPosition, "failed").Add(float64(released))
	m.logger.Debug("location updates stopped", slog.String("platform", m.platform.Name()),
		slog.Int("released_waiters", released))
}

// RequestAccess makes sure the process may read location data. If the platform has not
// decided yet, exactly one authorization request is issued and the call blocks until the
// decision arrives or ctx is done.
func (m *Manager) RequestAccess(ctx context.Context) error {
	status := m.platform.AuthorizationStatus()
	switch status {
	case NotDetermined:
	case Restricted, Denied:
		m.metrics.AuthorizationRequests.WithLabelValues("denied").Inc()
		return ErrAuthorizationDenied
	default:
		m.metrics.AuthorizationRequests.WithLabelValues("granted").Inc()
		return nil
	}

	m.mu.Lock()
	ch := m.access.add()
	pending := m.access.len()
	m.mu.Unlock()
	m.metrics.PendingWaiters.WithLabelValues(kindAccess).Set(float64(pending))
	m.metrics.AuthorizationRequests.WithLabelValues("prompted").Inc()

	m.logger.Debug("requesting location authorization", slog.String("platform", m.platform.Name()))
	m.ctrl.Lock()
	m.platform.RequestAuthorization()
	m.ctrl.Unlock()

	_, err := await(ctx, ch, func() { m.withdrawAccess(ch) })
	if err != nil && !errors.Is(err, ErrAuthorizationDenied) {
		return fmt.Errorf("waiting for location authorization: %w", err)
	}
	return err
}

// GetCurrentPosition returns the cached fix if there is one. Otherwise it requests access,
// starts continuous updates and blocks until the next fix arrives or ctx is done.
func (m *Manager) GetCurrentPosition(ctx context.Context) (Position, error) {
	if pos, ok := m.CurrentPosition(); ok {
		return pos, nil
	}

	if err := m.RequestAccess(ctx); err != nil {
		return Position{}, err
	}

	m.mu.Lock()
	if m.hasCurrent {
		pos := m.current
		m.mu.Unlock()
		return pos, nil
	}
	ch := m.positions.add()
	pending := m.positions.len()
	m.mu.Unlock()
	m.metrics.PendingWaiters.WithLabelValues(kindPosition).Set(float64(pending))

	// A StopUpdating that ran since add has already failed ch, so updates stay off.
	m.ctrl.Lock()
	m.mu.Lock()
	waiting := m.positions.has(ch)
	m.mu.Unlock()
	if waiting {
		m.startLocked()
	}
	m.ctrl.Unlock()

	pos, err := await(ctx, ch, func() { m.withdrawPosition(ch) })
	if err != nil && !errors.Is(err, ErrAuthorizationDenied) {
		return pos, fmt.Errorf("waiting for location fix: %w", err)
	}
	return pos, err
}

// AuthorizationChanged implements the Delegate interface.
func (m *Manager) AuthorizationChanged(status AuthorizationStatus) {
	m.metrics.AuthorizationChanges.WithLabelValues(status.String()).Inc()

	var err error
	outcome := "resolved"
	if !status.Authorized() {
		err = ErrAuthorizationDenied
		outcome = "failed"
	}

	m.mu.Lock()
	released := m.access.resolve(struct{}{}, err)
	if err != nil {
		m.setCurrent(Position{}, false)
	}
	m.mu.Unlock()

	m.metrics.PendingWaiters.WithLabelValues(kindAccess).Set(0)
	m.metrics.WaitersResolved.WithLabelValues(kindAccess, outcome).Add(float64(released))
	m.logger.Debug("location authorization changed", slog.String("status", status.String()),
		slog.Int("released_waiters", released))
}

// LocationsUpdated implements the Delegate interface. Only the last fix of a batch is kept.
func (m *Manager) LocationsUpdated(positions []Position) {
	if len(positions) == 0 {
		return
	}
	latest := positions[len(positions)-1]

	m.mu.Lock()
	m.setCurrent(latest, true)
	released := m.positions.resolve(latest, nil)
	m.mu.Unlock()

	m.metrics.BatchesReceived.Inc()
	m.metrics.FixesReceived.Add(float64(len(positions)))
	if released > 0 {
		m.metrics.PendingWaiters.WithLabelValues(kindPosition).Set(0)
		m.metrics.WaitersResolved.WithLabelValues(kindPosition, "resolved").Add(float64(released))
	}
	m.logger.Debug("location updated", slog.Float64("lat", latest.Lat), slog.Float64("lon", latest.Lon),
		slog.Float64("accuracy", latest.Accuracy), slog.String("source", latest.Source),
		slog.Int("batch_size", len(positions)))
}

// setCurrent replaces the current position and notifies every subscriber. mu must be held.
func (m *Manager) setCurrent(pos Position, known bool) {
	m.current = pos
	m.hasCurrent = known
	update := Update{Position: pos, Known: known}
	for ch := range m.subscribers {
		select {
		case ch <- update:
		default:
			// drop the stale value so the subscriber ends up with the latest one
			select {
			case <-ch:
			default:
			}
			ch <- update
		}
	}
}

func (m *Manager) withdrawAccess(ch chan result[struct{}]) {
	m.mu.Lock()
	removed := m.access.remove(ch)
	pending := m.access.len()
	m.mu.Unlock()
	if removed {
		m.metrics.PendingWaiters.WithLabelValues(kindAccess).Set(float64(pending))
		m.metrics.WaitersResolved.WithLabelValues(kindAccess, "cancelled").Inc()
	}
}

func (m *Manager) withdrawPosition(ch chan result[Position]) {
	m.mu.Lock()
	removed := m.positions.remove(ch)
	pending := m.positions.len()
	m.mu.Unlock()
	if removed {
		m.metrics.PendingWaiters.WithLabelValues(kindPosition).Set(float64(pending))
		m.metrics.WaitersResolved.WithLabelValues(kindPosition, "cancelled").Inc()
	}
}
