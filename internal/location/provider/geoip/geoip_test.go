// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package geoip

import (
	"errors"
	"io"
	"log/slog"
	stdhttp "net/http"
	"testing"
	"testing/synctest"

	"github.com/wneessen/locator/internal/http"
	"github.com/wneessen/locator/internal/location"
	"github.com/wneessen/locator/internal/logger"
	"github.com/wneessen/locator/internal/testhelper"
)

const testResponse = `{"ip":"192.0.2.1","country_code":"US","country_name":"United States",
"region_code":"NY","region_name":"New York","city":"New York","zip_code":"10013",
"time_zone":"America/New_York","latitude":40.71859,"longitude":-74.00251,"metro_code":501}`

func testClient(fn func(*stdhttp.Request) (*stdhttp.Response, error)) *http.Client {
	client := http.New(logger.NewLogger(slog.LevelInfo, io.Discard))
	client.Transport = testhelper.MockRoundTripper{Fn: fn}
	return client
}

func okClient() *http.Client {
	return testClient(func(*stdhttp.Request) (*stdhttp.Response, error) {
		return testhelper.JSONResponse(200, testResponse), nil
	})
}

func TestNew(t *testing.T) {
	t.Run("new provider succeeds", func(t *testing.T) {
		provider, err := New(okClient(), true, nil)
		if err != nil {
			t.Fatalf("failed to create provider: %s", err)
		}
		if provider.Name() != name {
			t.Errorf("expected provider name to be %s, got %s", name, provider.Name())
		}
	})
	t.Run("provider without http client fails", func(t *testing.T) {
		if _, err := New(nil, true, nil); err == nil {
			t.Fatal("expected provider to fail")
		}
	})
}

func TestProvider_RequestAuthorization(t *testing.T) {
	tests := []struct {
		name  string
		allow bool
		want  location.AuthorizationStatus
	}{
		{"network allowed", true, location.AuthorizedWhenInUse},
		{"network not allowed", false, location.Denied},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			synctest.Test(t, func(t *testing.T) {
				provider, err := New(okClient(), tt.allow, nil)
				if err != nil {
					t.Fatalf("failed to create provider: %s", err)
				}
				delegate := &testhelper.Recorder{}
				provider.SetDelegate(delegate)
				provider.RequestAuthorization()
				synctest.Wait()
				statuses := delegate.Statuses()
				if len(statuses) != 1 || statuses[0] != tt.want {
					t.Errorf("expected status %s, got %v", tt.want, statuses)
				}
			})
		})
	}
}

func TestProvider_locate(t *testing.T) {
	t.Run("lookup succeeds", func(t *testing.T) {
		provider, err := New(okClient(), true, nil)
		if err != nil {
			t.Fatalf("failed to create provider: %s", err)
		}
		batch, err := provider.locate(t.Context())
		if err != nil {
			t.Fatalf("lookup failed: %s", err)
		}
		if len(batch) != 1 {
			t.Fatalf("expected one fix, got %d", len(batch))
		}
		if batch[0].Lat != 40.7185 || batch[0].Lon != -74.0025 {
			t.Errorf("expected truncated coordinates, got %f/%f", batch[0].Lat, batch[0].Lon)
		}
		if batch[0].Accuracy != location.AccuracyZip {
			t.Errorf("expected accuracy to be %d, got %f", location.AccuracyZip, batch[0].Accuracy)
		}
	})
	t.Run("lookup fails", func(t *testing.T) {
		provider, err := New(testClient(func(*stdhttp.Request) (*stdhttp.Response, error) {
			return nil, errors.New("intentionally failing")
		}), true, nil)
		if err != nil {
			t.Fatalf("failed to create provider: %s", err)
		}
		if _, err = provider.locate(t.Context()); err == nil {
			t.Error("expected lookup to fail")
		}
	})
	t.Run("invalid coordinates are rejected", func(t *testing.T) {
		provider, err := New(testClient(func(*stdhttp.Request) (*stdhttp.Response, error) {
			return testhelper.JSONResponse(200, `{"latitude":123,"longitude":456}`), nil
		}), true, nil)
		if err != nil {
			t.Fatalf("failed to create provider: %s", err)
		}
		if _, err = provider.locate(t.Context()); err == nil {
			t.Error("expected lookup to fail")
		}
	})
}

func TestAccuracy(t *testing.T) {
	tests := []struct {
		name   string
		result APIResult
		want   float64
	}{
		{"zip", APIResult{CountryCode: "US", City: "NYC", ZipCode: "10013"}, location.AccuracyZip},
		{"city", APIResult{CountryCode: "US", RegionCode: "NY", City: "NYC"}, location.AccuracyCity},
		{"region", APIResult{CountryCode: "US", RegionCode: "NY"}, location.AccuracyRegion},
		{"country", APIResult{CountryCode: "US"}, location.AccuracyCountry},
		{"unknown", APIResult{}, location.AccuracyUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := accuracy(&tt.result); got != tt.want {
				t.Errorf("expected accuracy %f, got %f", tt.want, got)
			}
		})
	}
}

func TestProvider_StartUpdating(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		provider, err := New(okClient(), true, nil)
		if err != nil {
			t.Fatalf("failed to create provider: %s", err)
		}
		delegate := &testhelper.Recorder{}
		provider.SetDelegate(delegate)

		provider.StartUpdating()
		synctest.Wait()
		if batches := delegate.Batches(); len(batches) != 1 {
			t.Fatalf("expected one batch, got %d", len(batches))
		}
		provider.StopUpdating()
		<-provider.Done()
	})
}
