// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package geoclue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"testing/synctest"
	"time"

	"github.com/godbus/dbus/v5"

	"github.com/wneessen/locator/internal/location"
	"github.com/wneessen/locator/internal/testhelper"
)

const testClient = dbus.ObjectPath("/org/freedesktop/GeoClue2/Client/1")

type fakeBus struct {
	mu         sync.Mutex
	startErr   error
	clientErr  error
	props      map[string]any
	calls      []string
	current    dbus.ObjectPath
	locations  map[dbus.ObjectPath]fix
	updates    chan dbus.ObjectPath
	subscribed int
	closed     bool
}

func newFakeBus() *fakeBus {
	return &fakeBus{
		props:     make(map[string]any),
		current:   noLocation,
		locations: make(map[dbus.ObjectPath]fix),
		updates:   make(chan dbus.ObjectPath, 1),
	}
}

func (f *fakeBus) GetClient(context.Context) (dbus.ObjectPath, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "GetClient")
	return testClient, f.clientErr
}

func (f *fakeBus) SetClientProperty(_ context.Context, _ dbus.ObjectPath, prop string, value any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.props[prop] = value
	return nil
}

func (f *fakeBus) CallClient(_ context.Context, _ dbus.ObjectPath, method string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, method)
	if method == "Start" {
		return f.startErr
	}
	return nil
}

func (f *fakeBus) ClientLocation(context.Context, dbus.ObjectPath) (dbus.ObjectPath, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current, nil
}

func (f *fakeBus) ReadLocation(_ context.Context, path dbus.ObjectPath) (fix, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	loc, ok := f.locations[path]
	if !ok {
		return fix{}, fmt.Errorf("no such object %s", path)
	}
	return loc, nil
}

func (f *fakeBus) Subscribe(dbus.ObjectPath) (<-chan dbus.ObjectPath, func(), error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscribed++
	return f.updates, func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.subscribed--
	}, nil
}

func (f *fakeBus) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeBus) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeBus) Subscribed() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subscribed
}

func testProvider(b *fakeBus) (*Provider, *testhelper.Recorder) {
	provider := New("locator", AccuracyExact, nil)
	provider.connect = func() (bus, error) { return b, nil }
	delegate := &testhelper.Recorder{}
	provider.SetDelegate(delegate)
	return provider, delegate
}

func TestAccuracyLevel(t *testing.T) {
	tests := []struct {
		level   string
		want    uint32
		wantErr bool
	}{
		{"country", AccuracyCountry, false},
		{"City", AccuracyCity, false},
		{"neighborhood", AccuracyNeighborhood, false},
		{"street", AccuracyStreet, false},
		{"exact", AccuracyExact, false},
		{"", AccuracyExact, false},
		{"galaxy", AccuracyNone, true},
	}
	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			got, err := AccuracyLevel(tt.level)
			if (err != nil) != tt.wantErr {
				t.Fatalf("unexpected error state: %v", err)
			}
			if got != tt.want {
				t.Errorf("expected level %d, got %d", tt.want, got)
			}
		})
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want location.AuthorizationStatus
	}{
		{"accepted", nil, location.AuthorizedWhenInUse},
		{"access denied", dbus.Error{Name: errAccessDenied}, location.Denied},
		{"wrapped access denied", fmt.Errorf("start: %w", &dbus.Error{Name: errAccessDenied}), location.Denied},
		{"service unknown", dbus.Error{Name: "org.freedesktop.DBus.Error.ServiceUnknown"}, location.Restricted},
		{"no bus", errors.New("failed to connect to system bus"), location.Restricted},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := statusFor(tt.err); got != tt.want {
				t.Errorf("expected status %s, got %s", tt.want, got)
			}
		})
	}
}

func TestProvider_RequestAuthorization(t *testing.T) {
	t.Run("accepted client is authorized and stopped again", func(t *testing.T) {
		synctest.Test(t, func(t *testing.T) {
			b := newFakeBus()
			provider, delegate := testProvider(b)
			provider.RequestAuthorization()
			synctest.Wait()

			statuses := delegate.Statuses()
			if len(statuses) != 1 || statuses[0] != location.AuthorizedWhenInUse {
				t.Errorf("expected one authorized report, got %v", statuses)
			}
			want := []string{"GetClient", "Start", "Stop"}
			if calls := b.Calls(); fmt.Sprint(calls) != fmt.Sprint(want) {
				t.Errorf("expected calls %v, got %v", want, calls)
			}
			if b.props["DesktopId"] != "locator" {
				t.Errorf("expected desktop id to be set, got %v", b.props["DesktopId"])
			}
			if b.props["RequestedAccuracyLevel"] != AccuracyExact {
				t.Errorf("expected accuracy level to be set, got %v", b.props["RequestedAccuracyLevel"])
			}
		})
	})
	t.Run("agent denial is reported", func(t *testing.T) {
		synctest.Test(t, func(t *testing.T) {
			b := newFakeBus()
			b.startErr = dbus.Error{Name: errAccessDenied}
			provider, delegate := testProvider(b)
			provider.RequestAuthorization()
			synctest.Wait()
			statuses := delegate.Statuses()
			if len(statuses) != 1 || statuses[0] != location.Denied {
				t.Errorf("expected one denied report, got %v", statuses)
			}
		})
	})
	t.Run("missing bus is restricted", func(t *testing.T) {
		synctest.Test(t, func(t *testing.T) {
			provider, delegate := testProvider(newFakeBus())
			provider.connect = func() (bus, error) { return nil, errors.New("no system bus") }
			provider.RequestAuthorization()
			synctest.Wait()
			statuses := delegate.Statuses()
			if len(statuses) != 1 || statuses[0] != location.Restricted {
				t.Errorf("expected one restricted report, got %v", statuses)
			}
		})
	})
}

func TestProvider_StartUpdating(t *testing.T) {
	t.Run("known and updated locations are delivered", func(t *testing.T) {
		synctest.Test(t, func(t *testing.T) {
			b := newFakeBus()
			ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
			b.current = "/org/freedesktop/GeoClue2/Location/1"
			b.locations[b.current] = fix{Lat: 51.1, Lon: 7.1, Accuracy: 20, Time: ts}
			b.locations["/org/freedesktop/GeoClue2/Location/2"] = fix{Lat: 51.2, Lon: 7.2, Accuracy: 10, Time: ts}
			provider, delegate := testProvider(b)

			provider.StartUpdating()
			synctest.Wait()
			b.updates <- "/org/freedesktop/GeoClue2/Location/2"
			synctest.Wait()

			batches := delegate.Batches()
			if len(batches) != 2 {
				t.Fatalf("expected two batches, got %d", len(batches))
			}
			if batches[0][0].Lat != 51.1 || batches[1][0].Lat != 51.2 {
				t.Errorf("expected locations in signal order, got %+v", batches)
			}
			if !batches[0][0].Timestamp.Equal(ts) {
				t.Errorf("expected timestamp %s, got %s", ts, batches[0][0].Timestamp)
			}
			if batches[1][0].Source != name {
				t.Errorf("expected source to be %s, got %s", name, batches[1][0].Source)
			}

			provider.StopUpdating()
			<-provider.Done()
			calls := b.Calls()
			if calls[len(calls)-1] != "Stop" {
				t.Errorf("expected client to be stopped, got %v", calls)
			}
			if b.Subscribed() != 0 {
				t.Error("expected signal subscription to be removed")
			}
		})
	})
	t.Run("invalid locations are skipped", func(t *testing.T) {
		synctest.Test(t, func(t *testing.T) {
			b := newFakeBus()
			b.locations["/bad"] = fix{Lat: 123, Lon: 456}
			provider, delegate := testProvider(b)

			provider.StartUpdating()
			synctest.Wait()
			b.updates <- "/bad"
			b.updates <- "/missing"
			synctest.Wait()
			if batches := delegate.Batches(); len(batches) != 0 {
				t.Errorf("expected no batches, got %d", len(batches))
			}
			provider.StopUpdating()
			<-provider.Done()
		})
	})
	t.Run("denied start is reported and retried", func(t *testing.T) {
		synctest.Test(t, func(t *testing.T) {
			b := newFakeBus()
			b.startErr = dbus.Error{Name: errAccessDenied}
			provider, delegate := testProvider(b)
			var errs []error
			provider.onErr = func(err error) { errs = append(errs, err) }

			provider.StartUpdating()
			synctest.Wait()
			statuses := delegate.Statuses()
			if len(statuses) != 1 || statuses[0] != location.Denied {
				t.Errorf("expected one denied report, got %v", statuses)
			}

			b.mu.Lock()
			b.startErr = nil
			b.mu.Unlock()
			time.Sleep(provider.retryDelay + time.Second)
			synctest.Wait()
			if b.Subscribed() != 1 {
				t.Error("expected client to be running after the retry")
			}
			if len(errs) != 1 {
				t.Errorf("expected one reported error, got %d", len(errs))
			}
			provider.StopUpdating()
			<-provider.Done()
		})
	})
	t.Run("authorization while running does not stop the client", func(t *testing.T) {
		synctest.Test(t, func(t *testing.T) {
			b := newFakeBus()
			provider, delegate := testProvider(b)
			provider.StartUpdating()
			synctest.Wait()
			provider.RequestAuthorization()
			synctest.Wait()

			if statuses := delegate.Statuses(); len(statuses) != 1 || statuses[0] != location.AuthorizedWhenInUse {
				t.Errorf("expected one authorized report, got %v", statuses)
			}
			want := []string{"GetClient", "Start"}
			if calls := b.Calls(); fmt.Sprint(calls) != fmt.Sprint(want) {
				t.Errorf("expected calls %v, got %v", want, calls)
			}
			provider.StopUpdating()
			<-provider.Done()
			if err := provider.Close(); err != nil {
				t.Errorf("failed to close provider: %s", err)
			}
			if !b.closed {
				t.Error("expected bus to be closed")
			}
		})
	})
}
