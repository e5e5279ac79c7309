// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package gpsd

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/stratoberry/go-gpsd"

	"github.com/wneessen/locator/internal/gpspoll"
	"github.com/wneessen/locator/internal/location"
	"github.com/wneessen/locator/internal/location/provider"
)

const (
	name         = "gpsd"
	probeTimeout = time.Second * 5
	pollTimeout  = time.Second * 10
)

// Provider is a location platform backed by a gpsd daemon. Access is granted as soon as
// gpsd answers, since the daemon has no notion of clients asking for permission.
type Provider struct {
	*provider.Base
	addr   string
	period time.Duration

	probeFn func(ctx context.Context) (gpspoll.Version, error)
	pollFn  func(ctx context.Context) (gpspoll.Fix, error)
	watchFn func(ctx context.Context, handle func(gpspoll.Fix)) error
}

// New returns a Provider talking to the gpsd at host:port.
func New(host, port string) *Provider {
	client := gpspoll.New(host, port)
	p := &Provider{
		Base:    provider.NewBase(name),
		addr:    net.JoinHostPort(host, port),
		period:  time.Second * 30,
		probeFn: client.Probe,
		pollFn:  client.Poll,
	}
	p.watchFn = p.watch
	return p
}

// RequestAuthorization implements location.Platform.
func (p *Provider) RequestAuthorization() {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
		defer cancel()
		if _, err := p.probeFn(ctx); err != nil {
			p.SetAuthorization(location.Restricted)
			return
		}
		p.SetAuthorization(location.AuthorizedAlways)
	}()
}

// StartUpdating implements location.Platform. A single poll provides a first fix quickly,
// after that every TPV report of the WATCH stream is delivered. A lost connection is
// re-established after the retry period.
func (p *Provider) StartUpdating() {
	p.StartLoop(p.run)
}

func (p *Provider) run(ctx context.Context, emit provider.Emit) {
	state := location.State{}
	deliver := func(fix gpspoll.Fix) bool {
		if !fix.Has2DFix() {
			return true
		}
		pos := p.position(fix)
		if !state.HasChanged(pos) {
			return true
		}
		state.Update(pos)
		return emit([]location.Position{pos})
	}

	pollCtx, cancel := context.WithTimeout(ctx, pollTimeout)
	fix, err := p.pollFn(pollCtx)
	cancel()
	if err == nil && !deliver(fix) {
		return
	}

	for {
		_ = p.watchFn(ctx, func(fix gpspoll.Fix) { deliver(fix) })
		if !provider.SleepOrDone(ctx, p.period) {
			return
		}
	}
}

// watch subscribes to gpsd's TPV reports and hands every one of them to handle until the
// connection ends or ctx is done.
func (p *Provider) watch(ctx context.Context, handle func(gpspoll.Fix)) error {
	session, err := gpsd.Dial(p.addr)
	if err != nil {
		return fmt.Errorf("failed to connect to gpsd at %q: %w", p.addr, err)
	}

	session.AddFilter("TPV", func(r interface{}) {
		tpv, ok := r.(*gpsd.TPVReport)
		if !ok || ctx.Err() != nil {
			return
		}
		handle(gpspoll.Fix{
			Lat:  tpv.Lat,
			Lon:  tpv.Lon,
			Alt:  tpv.Alt,
			Acc:  gpspoll.HorizontalAccuracy(int(tpv.Mode), tpv.Eph, tpv.Epx, tpv.Epy),
			Mode: int(tpv.Mode),
			Time: tpv.Time,
		})
	})

	done := session.Watch()
	select {
	case <-done:
		_ = session.Close()
		return nil
	case <-ctx.Done():
	}

	// the reader stops on the closed socket and then reports on done
	_ = session.Close()
	<-done
	return ctx.Err()
}

func (p *Provider) position(fix gpspoll.Fix) location.Position {
	ts := fix.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	return location.Position{
		Lat:       location.Truncate(fix.Lat, location.TruncPrecision),
		Lon:       location.Truncate(fix.Lon, location.TruncPrecision),
		Alt:       location.Truncate(fix.Alt, location.TruncPrecision),
		Accuracy:  fix.Acc,
		Timestamp: ts,
		Source:    name,
	}
}
