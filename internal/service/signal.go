// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package service

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

type signalSource interface {
	Notify(c chan<- os.Signal, sig ...os.Signal)
	Stop(c chan<- os.Signal)
}

// stdLibSignalSource is the production implementation.
type stdLibSignalSource struct{}

func (stdLibSignalSource) Notify(c chan<- os.Signal, sig ...os.Signal) {
	signal.Notify(c, sig...)
}

func (stdLibSignalSource) Stop(c chan<- os.Signal) {
	signal.Stop(c)
}

// HandleSignals requests the current position on SIGUSR1 and toggles continuous updates
// on SIGUSR2. Both run in the background so that a pending authorization does not block
// further signals.
func (s *Service) HandleSignals(ctx context.Context, sigChan chan os.Signal) {
	for {
		select {
		case <-ctx.Done():
			return
		case sig := <-sigChan:
			s.logger.Debug("received signal", slog.String("signal", sig.String()))
			switch sig {
			case syscall.SIGUSR1:
				s.tasks.Go(func() { s.requestPosition(ctx) })
			case syscall.SIGUSR2:
				s.tasks.Go(func() { s.toggleUpdates(ctx) })
			}
		}
	}
}
