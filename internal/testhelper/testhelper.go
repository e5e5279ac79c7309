// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package testhelper holds fakes shared by the tests of several packages.
package testhelper

import (
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/wneessen/locator/internal/location"
)

// Recorder is a location.Delegate that records every event.
type Recorder struct {
	mu       sync.Mutex
	statuses []location.AuthorizationStatus
	batches  [][]location.Position
}

func (r *Recorder) AuthorizationChanged(status location.AuthorizationStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, status)
}

func (r *Recorder) LocationsUpdated(batch []location.Position) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batches = append(r.batches, batch)
}

func (r *Recorder) Statuses() []location.AuthorizationStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]location.AuthorizationStatus(nil), r.statuses...)
}

func (r *Recorder) Batches() [][]location.Position {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]location.Position(nil), r.batches...)
}

// MockRoundTripper is a http.RoundTripper that answers every request with Fn.
type MockRoundTripper struct {
	Fn func(*http.Request) (*http.Response, error)
}

func (m MockRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	return m.Fn(req)
}

// JSONResponse returns a response with the given status code and body.
func JSONResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Status:     http.StatusText(status),
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     make(http.Header),
	}
}
