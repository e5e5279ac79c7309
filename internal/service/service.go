// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"syscall"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/godbus/dbus/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/wneessen/locator/internal/config"
	"github.com/wneessen/locator/internal/i18n"
	"github.com/wneessen/locator/internal/location"
	"github.com/wneessen/locator/internal/logger"
	"github.com/wneessen/locator/internal/metrics"
	"github.com/wneessen/locator/internal/presenter"
)

const (
	outputJobName  = "position_output_job"
	requestTimeout = 2 * time.Minute
)

// Service is a waybar custom module that prints the current position as JSON.
type Service struct {
	SignalSrc signalSource

	config     *config.Config
	logger     *logger.Logger
	manager    *location.Manager
	platform   location.Platform
	metrics    *metrics.Metrics
	registry   *prometheus.Registry
	presenter  *presenter.Presenter
	scheduler  gocron.Scheduler
	connectBus func() (*dbus.Conn, error)

	// tasks tracks the signal triggered requests
	tasks sync.WaitGroup

	// ctrlLock serializes starting and stopping updates from signals, sleep events and the
	// status server. ctrlGen is bumped on every stop.
	ctrlLock     sync.Mutex
	ctrlGen      uint64
	resumeOnWake bool

	outLock sync.Mutex
	out     io.Writer
}

// New returns a Service using the platform backend selected in conf.
func New(conf *config.Config, log *logger.Logger) (*Service, error) {
	platform, err := selectPlatform(conf, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create location platform: %w", err)
	}
	return newService(conf, log, platform)
}

func newService(conf *config.Config, log *logger.Logger, platform location.Platform) (*Service, error) {
	localizer, err := i18n.New(conf.Locale)
	if err != nil {
		return nil, fmt.Errorf("failed to create localizer: %w", err)
	}
	pres, err := presenter.New(conf, localizer)
	if err != nil {
		return nil, fmt.Errorf("failed to create presenter: %w", err)
	}

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)
	manager, err := location.NewManager(platform, log, m)
	if err != nil {
		return nil, fmt.Errorf("failed to create location manager: %w", err)
	}

	return &Service{
		SignalSrc:  stdLibSignalSource{},
		config:     conf,
		logger:     log,
		manager:    manager,
		platform:   platform,
		metrics:    m,
		registry:   registry,
		presenter:  pres,
		connectBus: func() (*dbus.Conn, error) { return dbus.ConnectSystemBus() },
		out:        os.Stdout,
	}, nil
}

// Run prints the position periodically and on every change until ctx is cancelled.
func (s *Service) Run(ctx context.Context) error {
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("failed to create scheduler: %w", err)
	}
	s.scheduler = scheduler
	if err = s.createScheduledJob(ctx, s.config.Intervals.Output, s.printOutput, outputJobName); err != nil {
		_ = s.scheduler.Shutdown()
		return err
	}
	s.scheduler.Start()

	var wg sync.WaitGroup
	updates, unsub := s.manager.Subscribe()
	wg.Go(func() { s.processUpdates(ctx, updates) })
	s.tasks.Go(func() { s.requestPosition(ctx) })

	sigChan := make(chan os.Signal, 1)
	s.SignalSrc.Notify(sigChan, syscall.SIGUSR1, syscall.SIGUSR2)
	wg.Go(func() { s.HandleSignals(ctx, sigChan) })
	wg.Go(func() { s.monitorSleepResume(ctx) })

	var status *statusServer
	if s.config.Status.Listen != "" {
		status = s.newStatusServer(ctx, s.config.Status.Listen)
		wg.Go(func() {
			if err := status.Start(); err != nil {
				s.logger.Error("status server failed", logger.Err(err))
			}
		})
	}

	<-ctx.Done()
	s.SignalSrc.Stop(sigChan)
	if status != nil {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		if err := status.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("failed to shut down status server", logger.Err(err))
		}
		cancel()
	}
	wg.Wait()
	s.tasks.Wait()
	s.manager.StopUpdating()
	unsub()

	if closer, ok := s.platform.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			s.logger.Error("failed to close location platform", logger.Err(err))
		}
	}
	return s.scheduler.Shutdown()
}

func (s *Service) createScheduledJob(ctx context.Context, interval time.Duration, task func(context.Context),
	jobName string,
) error {
	_, err := s.scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(task),
		gocron.WithContext(ctx),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithName(jobName),
	)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", jobName, err)
	}
	return nil
}

// processUpdates re-renders the output on every change of the current position.
func (s *Service) processUpdates(ctx context.Context, updates <-chan location.Update) {
	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			s.render(update)
		}
	}
}

// requestPosition asks the manager for a position and renders the outcome.
func (s *Service) requestPosition(ctx context.Context) {
	reqCtx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	pos, err := s.manager.GetCurrentPosition(reqCtx)
	switch {
	case errors.Is(err, location.ErrAuthorizationDenied):
		s.logger.Warn("access to location data denied", slog.String("platform", s.manager.Platform()),
			slog.String("status", s.manager.AuthorizationStatus().String()))
	case err != nil:
		if ctx.Err() != nil {
			return
		}
		s.logger.Error("failed to get current position", logger.Err(err))
	default:
		s.logger.Info("current position", slog.Float64("lat", pos.Lat), slog.Float64("lon", pos.Lon),
			slog.Float64("accuracy", pos.Accuracy), slog.String("source", pos.Source))
	}
	s.printOutput(ctx)
}

// startUpdates requests access and starts continuous updates once it was granted.
// A stop that arrives while access is still pending abandons the start.
func (s *Service) startUpdates(ctx context.Context) error {
	s.ctrlLock.Lock()
	updating, gen := s.manager.Updating(), s.ctrlGen
	s.ctrlLock.Unlock()
	if updating {
		return nil
	}
	if err := s.manager.RequestAccess(ctx); err != nil {
		return err
	}

	s.ctrlLock.Lock()
	defer s.ctrlLock.Unlock()
	if s.ctrlGen != gen {
		s.logger.Debug("location updates were stopped while waiting for access")
		return nil
	}
	if !s.manager.Updating() {
		s.manager.StartUpdating()
	}
	return nil
}

func (s *Service) stopUpdates() {
	s.ctrlLock.Lock()
	defer s.ctrlLock.Unlock()
	s.stopLocked()
}

// stopLocked stops updates and abandons pending starts. ctrlLock must be held.
func (s *Service) stopLocked() {
	s.ctrlGen++
	s.manager.StopUpdating()
}

// toggleUpdates stops running updates or starts them if they are not running.
func (s *Service) toggleUpdates(ctx context.Context) {
	if s.manager.Updating() {
		s.stopUpdates()
		s.logger.Info("location updates stopped")
		return
	}

	reqCtx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()
	if err := s.startUpdates(reqCtx); err != nil {
		s.logger.Warn("failed to start location updates", logger.Err(err))
		s.printOutput(ctx)
		return
	}
	s.logger.Info("location updates started")
	s.printOutput(ctx)
}

// printOutput renders the current position to the output writer.
func (s *Service) printOutput(context.Context) {
	pos, known := s.manager.CurrentPosition()
	s.render(location.Update{Position: pos, Known: known})
}

func (s *Service) render(update location.Update) {
	tplCtx := s.presenter.BuildContext(update, s.manager.AuthorizationStatus(), s.manager.Updating(),
		s.manager.Platform())
	output, err := s.presenter.Render(tplCtx)
	if err != nil {
		s.logger.Error("failed to render output", logger.Err(err))
		return
	}

	s.outLock.Lock()
	defer s.outLock.Unlock()
	if err = json.NewEncoder(s.out).Encode(output); err != nil {
		s.logger.Error("failed to encode output", logger.Err(err))
	}
}
