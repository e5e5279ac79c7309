// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package geoclue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/godbus/dbus/v5"
)

const (
	busName          = "org.freedesktop.GeoClue2"
	managerPath      = dbus.ObjectPath("/org/freedesktop/GeoClue2/Manager")
	managerInterface = "org.freedesktop.GeoClue2.Manager"
	clientInterface  = "org.freedesktop.GeoClue2.Client"
	locInterface     = "org.freedesktop.GeoClue2.Location"
	signalMember     = "LocationUpdated"
	signalBufferSize = 8

	errAccessDenied = "org.freedesktop.DBus.Error.AccessDenied"
)

// noLocation is the path GeoClue reports while a client has no location yet.
const noLocation = dbus.ObjectPath("/")

// fix holds the properties of a GeoClue2 Location object.
type fix struct {
	Lat      float64
	Lon      float64
	Alt      float64
	Accuracy float64
	Time     time.Time
}

// bus is the subset of the GeoClue2 D-Bus API the provider uses.
type bus interface {
	GetClient(ctx context.Context) (dbus.ObjectPath, error)
	SetClientProperty(ctx context.Context, client dbus.ObjectPath, prop string, value any) error
	CallClient(ctx context.Context, client dbus.ObjectPath, method string) error
	ClientLocation(ctx context.Context, client dbus.ObjectPath) (dbus.ObjectPath, error)
	ReadLocation(ctx context.Context, path dbus.ObjectPath) (fix, error)
	Subscribe(client dbus.ObjectPath) (<-chan dbus.ObjectPath, func(), error)
	Close() error
}

// systemBus talks to GeoClue2 on the system bus.
type systemBus struct {
	conn *dbus.Conn
}

func connectSystemBus() (bus, error) {
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to system bus: %w", err)
	}
	return &systemBus{conn: conn}, nil
}

func (b *systemBus) GetClient(ctx context.Context) (dbus.ObjectPath, error) {
	var client dbus.ObjectPath
	err := b.conn.Object(busName, managerPath).CallWithContext(ctx, managerInterface+".GetClient", 0).
		Store(&client)
	if err != nil {
		return "", fmt.Errorf("failed to get geoclue client: %w", err)
	}
	return client, nil
}

func (b *systemBus) SetClientProperty(_ context.Context, client dbus.ObjectPath, prop string, value any) error {
	if err := b.conn.Object(busName, client).SetProperty(clientInterface+"."+prop, dbus.MakeVariant(value)); err != nil {
		return fmt.Errorf("failed to set client property %s: %w", prop, err)
	}
	return nil
}

func (b *systemBus) CallClient(ctx context.Context, client dbus.ObjectPath, method string) error {
	if err := b.conn.Object(busName, client).CallWithContext(ctx, clientInterface+"."+method, 0).Err; err != nil {
		return fmt.Errorf("failed to call client method %s: %w", method, err)
	}
	return nil
}

func (b *systemBus) ClientLocation(_ context.Context, client dbus.ObjectPath) (dbus.ObjectPath, error) {
	variant, err := b.conn.Object(busName, client).GetProperty(clientInterface + ".Location")
	if err != nil {
		return "", fmt.Errorf("failed to get client location: %w", err)
	}
	path, ok := variant.Value().(dbus.ObjectPath)
	if !ok {
		return "", fmt.Errorf("unexpected client location type %s", variant.Signature())
	}
	return path, nil
}

func (b *systemBus) ReadLocation(_ context.Context, path dbus.ObjectPath) (fix, error) {
	obj := b.conn.Object(busName, path)
	var loc fix
	floats := []struct {
		prop   string
		target *float64
	}{
		{"Latitude", &loc.Lat},
		{"Longitude", &loc.Lon},
		{"Altitude", &loc.Alt},
		{"Accuracy", &loc.Accuracy},
	}
	for _, f := range floats {
		variant, err := obj.GetProperty(locInterface + "." + f.prop)
		if err != nil {
			return loc, fmt.Errorf("failed to get location property %s: %w", f.prop, err)
		}
		value, ok := variant.Value().(float64)
		if !ok {
			return loc, fmt.Errorf("unexpected type %s for location property %s", variant.Signature(), f.prop)
		}
		*f.target = value
	}

	// Timestamp is a (tt) struct of seconds and microseconds since the epoch.
	loc.Time = time.Now()
	if variant, err := obj.GetProperty(locInterface + ".Timestamp"); err == nil {
		if fields, ok := variant.Value().([]any); ok && len(fields) == 2 {
			sec, okSec := fields[0].(uint64)
			usec, okUsec := fields[1].(uint64)
			if okSec && okUsec && sec > 0 {
				loc.Time = time.Unix(int64(sec), int64(usec)*int64(time.Microsecond))
			}
		}
	}
	return loc, nil
}

// Subscribe delivers the new location path of every LocationUpdated signal the client
// emits until the returned cancel func is called.
func (b *systemBus) Subscribe(client dbus.ObjectPath) (<-chan dbus.ObjectPath, func(), error) {
	opts := []dbus.MatchOption{
		dbus.WithMatchObjectPath(client),
		dbus.WithMatchInterface(clientInterface),
		dbus.WithMatchMember(signalMember),
	}
	if err := b.conn.AddMatchSignal(opts...); err != nil {
		return nil, nil, fmt.Errorf("failed to subscribe to %s: %w", signalMember, err)
	}

	sigCh := make(chan *dbus.Signal, signalBufferSize)
	b.conn.Signal(sigCh)
	out := make(chan dbus.ObjectPath, signalBufferSize)
	done := make(chan struct{})

	var wg sync.WaitGroup
	wg.Go(func() {
		for {
			select {
			case <-done:
				return
			case sgn, ok := <-sigCh:
				if !ok {
					return
				}
				if sgn.Path != client || sgn.Name != clientInterface+"."+signalMember || len(sgn.Body) != 2 {
					continue
				}
				path, ok := sgn.Body[1].(dbus.ObjectPath)
				if !ok {
					continue
				}
				select {
				case out <- path:
				case <-done:
					return
				}
			}
		}
	})

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			close(done)
			wg.Wait()
			b.conn.RemoveSignal(sigCh)
			_ = b.conn.RemoveMatchSignal(opts...)
		})
	}
	return out, cancel, nil
}

func (b *systemBus) Close() error {
	return b.conn.Close()
}

// errorName returns the D-Bus error name carried by err, if any.
func errorName(err error) string {
	var dbusErr dbus.Error
	if errors.As(err, &dbusErr) {
		return dbusErr.Name
	}
	var dbusErrPtr *dbus.Error
	if errors.As(err, &dbusErrPtr) {
		return dbusErrPtr.Name
	}
	return ""
}
