// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package service

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/godbus/dbus/v5"

	"github.com/wneessen/locator/internal/logger"
)

const (
	dbusInterface   = "org.freedesktop.login1.Manager"
	dbusWatchMember = "PrepareForSleep"

	debounceWindow   = 2 // seconds
	signalBufferSize = 8

	busReconnectDelay   = 5 * time.Second
	networkWakeupDelay  = 10 * time.Second
	reconnectDelay      = 2 * time.Second
	subscribeRetryDelay = 10 * time.Second
)

// monitorSleepResume stops location updates when logind announces a system sleep and
// restarts them after resume if they were running before.
func (s *Service) monitorSleepResume(ctx context.Context) {
	var lastResumeUnix int64

	for {
		conn := s.connectToSystemBus(ctx)
		if conn == nil {
			return
		}

		if !s.setupSleepMonitoring(ctx, conn) {
			if ctx.Err() != nil {
				return
			}
			continue
		}

		sigCh := make(chan *dbus.Signal, signalBufferSize)
		conn.Signal(sigCh)
		s.logger.Debug("subscribed to dbus signal", slog.String("interface", dbusInterface),
			slog.String("member", dbusWatchMember))

		s.handleSleepSignals(ctx, sigCh, &lastResumeUnix)

		conn.RemoveSignal(sigCh)
		if err := conn.Close(); err != nil {
			s.logger.Debug("failed to close system bus connection", logger.Err(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(reconnectDelay):
		}
	}
}

// connectToSystemBus retries to connect to the system bus until it succeeds or ctx is done.
func (s *Service) connectToSystemBus(ctx context.Context) *dbus.Conn {
	for {
		conn, err := s.connectBus()
		if err != nil {
			s.logger.Debug("failed to connect to system bus", logger.Err(err))
			select {
			case <-time.After(busReconnectDelay):
				continue
			case <-ctx.Done():
				return nil
			}
		}
		return conn
	}
}

// setupSleepMonitoring subscribes to the logind sleep signal. On failure it closes conn and
// waits before reporting false.
func (s *Service) setupSleepMonitoring(ctx context.Context, conn *dbus.Conn) bool {
	if err := conn.AddMatchSignal(dbus.WithMatchInterface(dbusInterface),
		dbus.WithMatchMember(dbusWatchMember),
	); err != nil {
		s.logger.Error("failed to subscribe to dbus signal", slog.String("interface", dbusInterface),
			slog.String("member", dbusWatchMember), logger.Err(err))
		if err = conn.Close(); err != nil {
			s.logger.Error("failed to close system bus connection", logger.Err(err))
		}
		select {
		case <-time.After(subscribeRetryDelay):
		case <-ctx.Done():
		}
		return false
	}
	return true
}

// handleSleepSignals processes sleep signals until ctx is done or sigCh is closed.
func (s *Service) handleSleepSignals(ctx context.Context, sigCh <-chan *dbus.Signal, lastResumeUnix *int64) {
	for {
		select {
		case <-ctx.Done():
			return
		case sgn, ok := <-sigCh:
			if !ok {
				return
			}
			s.processSleepSignal(ctx, sgn, lastResumeUnix)
		}
	}
}

func (s *Service) processSleepSignal(ctx context.Context, sgn *dbus.Signal, lastResumeUnix *int64) {
	if sgn == nil || len(sgn.Body) != 1 {
		return
	}
	sleeping, ok := sgn.Body[0].(bool)
	if !ok {
		return
	}
	if sleeping {
		s.handleSleepEvent()
		return
	}
	s.handleResumeEvent(ctx, lastResumeUnix)
}

// handleSleepEvent stops running updates and remembers to restart them after resume.
func (s *Service) handleSleepEvent() {
	s.ctrlLock.Lock()
	defer s.ctrlLock.Unlock()
	if !s.manager.Updating() {
		s.ctrlGen++
		return
	}
	s.resumeOnWake = true
	s.stopLocked()
	s.logger.Debug("system is going to sleep, location updates stopped")
}

// handleResumeEvent restarts the updates stopped by handleSleepEvent. Consecutive resume
// events are debounced and the restart is delayed until the network is likely up again.
func (s *Service) handleResumeEvent(ctx context.Context, lastResumeUnix *int64) {
	now := time.Now().Unix()
	if now-atomic.LoadInt64(lastResumeUnix) < debounceWindow {
		return
	}
	atomic.StoreInt64(lastResumeUnix, now)

	select {
	case <-ctx.Done():
		return
	case <-time.After(networkWakeupDelay):
	}

	s.ctrlLock.Lock()
	defer s.ctrlLock.Unlock()
	if !s.resumeOnWake {
		return
	}
	s.resumeOnWake = false
	s.manager.StartUpdating()
	s.logger.Debug("resumed from sleep, location updates restarted")
}
