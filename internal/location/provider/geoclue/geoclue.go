// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package geoclue provides a location platform backed by the GeoClue2 D-Bus service.
package geoclue

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/godbus/dbus/v5"

	"github.com/wneessen/locator/internal/location"
	"github.com/wneessen/locator/internal/location/provider"
)

const (
	name        = "geoclue"
	callTimeout = time.Second * 10
)

// Accuracy levels as defined by GClueAccuracyLevel.
const (
	AccuracyNone         uint32 = 0
	AccuracyCountry      uint32 = 1
	AccuracyCity         uint32 = 4
	AccuracyNeighborhood uint32 = 5
	AccuracyStreet       uint32 = 6
	AccuracyExact        uint32 = 8
)

// AccuracyLevel maps a level name to its GClueAccuracyLevel.
func AccuracyLevel(level string) (uint32, error) {
	switch strings.ToLower(level) {
	case "country":
		return AccuracyCountry, nil
	case "city":
		return AccuracyCity, nil
	case "neighborhood":
		return AccuracyNeighborhood, nil
	case "street":
		return AccuracyStreet, nil
	case "exact", "":
		return AccuracyExact, nil
	default:
		return AccuracyNone, fmt.Errorf("unknown geoclue accuracy level %q", level)
	}
}

// Provider is a location platform backed by GeoClue2. GeoClue decides on access through
// its agent when a client is started, so authorization starts the client once and maps
// the answer to an authorization status.
type Provider struct {
	*provider.Base
	desktopID  string
	accuracy   uint32
	retryDelay time.Duration
	connect    func() (bus, error)
	onErr      func(error)

	// mu guards the bus session and serializes client Start/Stop calls
	mu          sync.Mutex
	bus         bus
	client      dbus.ObjectPath
	started     bool
	unsubscribe func()
}

// New returns a Provider that identifies itself to GeoClue with desktopID. onErr is called
// with errors of the delivery loop and may be nil.
func New(desktopID string, accuracy uint32, onErr func(error)) *Provider {
	return &Provider{
		Base:       provider.NewBase(name),
		desktopID:  desktopID,
		accuracy:   accuracy,
		retryDelay: time.Second * 30,
		connect:    connectSystemBus,
		onErr:      onErr,
	}
}

// RequestAuthorization implements location.Platform.
func (p *Provider) RequestAuthorization() {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
		defer cancel()
		p.SetAuthorization(statusFor(p.authorize(ctx)))
	}()
}

// StartUpdating implements location.Platform.
func (p *Provider) StartUpdating() {
	p.StartLoop(p.run)
}

// Close releases the system bus connection.
func (p *Provider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.bus == nil {
		return nil
	}
	err := p.bus.Close()
	p.bus = nil
	p.client = ""
	return err
}

// authorize starts the client to let GeoClue's agent decide and stops it again, unless
// the delivery loop owns it.
func (p *Provider) authorize(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.session(ctx); err != nil {
		return err
	}
	if p.started {
		return nil
	}
	if err := p.bus.CallClient(ctx, p.client, "Start"); err != nil {
		return err
	}
	return p.bus.CallClient(ctx, p.client, "Stop")
}

// session connects to the bus and configures a client if not done yet. mu must be held.
func (p *Provider) session(ctx context.Context) error {
	if p.bus == nil {
		b, err := p.connect()
		if err != nil {
			return err
		}
		p.bus = b
	}
	if p.client != "" {
		return nil
	}

	client, err := p.bus.GetClient(ctx)
	if err != nil {
		return err
	}
	if err = p.bus.SetClientProperty(ctx, client, "DesktopId", p.desktopID); err != nil {
		return err
	}
	if err = p.bus.SetClientProperty(ctx, client, "RequestedAccuracyLevel", p.accuracy); err != nil {
		return err
	}
	p.client = client
	return nil
}

func (p *Provider) run(ctx context.Context, emit provider.Emit) {
	for {
		err := p.watch(ctx, emit)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			if p.onErr != nil {
				p.onErr(err)
			}
			if status := statusFor(err); !status.Authorized() {
				p.SetAuthorization(status)
			}
		}
		if !provider.SleepOrDone(ctx, p.retryDelay) {
			return
		}
	}
}

// watch starts the client and delivers its locations until ctx is done or the signal
// subscription ends.
func (p *Provider) watch(ctx context.Context, emit provider.Emit) error {
	updates, current, err := p.startClient(ctx)
	if err != nil {
		return err
	}
	defer p.stopClient()

	if current != noLocation && current != "" {
		if !p.deliver(ctx, current, emit) {
			return nil
		}
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case path, ok := <-updates:
			if !ok {
				return fmt.Errorf("geoclue signal subscription ended")
			}
			if !p.deliver(ctx, path, emit) {
				return nil
			}
		}
	}
}

// startClient subscribes to location updates and starts the client. It returns the
// location the client already knows about, if any.
func (p *Provider) startClient(ctx context.Context) (<-chan dbus.ObjectPath, dbus.ObjectPath, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	callCtx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()
	if err := p.session(callCtx); err != nil {
		return nil, "", err
	}
	updates, unsubscribe, err := p.bus.Subscribe(p.client)
	if err != nil {
		return nil, "", err
	}
	if err = p.bus.CallClient(callCtx, p.client, "Start"); err != nil {
		unsubscribe()
		return nil, "", err
	}
	p.started = true
	p.unsubscribe = unsubscribe

	current, err := p.bus.ClientLocation(callCtx, p.client)
	if err != nil {
		current = noLocation
	}
	return updates, current, nil
}

func (p *Provider) stopClient() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.unsubscribe != nil {
		p.unsubscribe()
		p.unsubscribe = nil
	}
	if !p.started || p.bus == nil {
		return
	}
	p.started = false

	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()
	if err := p.bus.CallClient(ctx, p.client, "Stop"); err != nil && p.onErr != nil {
		p.onErr(err)
	}
}

// deliver reads the location at path and emits it. It reports false once the run was
// stopped.
func (p *Provider) deliver(ctx context.Context, path dbus.ObjectPath, emit provider.Emit) bool {
	p.mu.Lock()
	b := p.bus
	p.mu.Unlock()
	if b == nil {
		return true
	}

	callCtx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()
	loc, err := b.ReadLocation(callCtx, path)
	if err != nil {
		if p.onErr != nil && ctx.Err() == nil {
			p.onErr(err)
		}
		return true
	}

	pos := location.Position{
		Lat:       loc.Lat,
		Lon:       loc.Lon,
		Alt:       loc.Alt,
		Accuracy:  loc.Accuracy,
		Timestamp: loc.Time,
		Source:    name,
	}
	if !pos.Valid() {
		return true
	}
	return emit([]location.Position{pos})
}

// statusFor maps the outcome of starting a client to an authorization status.
func statusFor(err error) location.AuthorizationStatus {
	if err == nil {
		return location.AuthorizedWhenInUse
	}
	if errorName(err) == errAccessDenied {
		return location.Denied
	}
	return location.Restricted
}
