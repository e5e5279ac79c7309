// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package http

import (
	"context"
	"errors"
	"io"
	"log/slog"
	stdhttp "net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/wneessen/locator/internal/logger"
	"github.com/wneessen/locator/internal/testhelper"
)

type testType struct {
	String string  `json:"string"`
	Int    int     `json:"int"`
	Float  float64 `json:"float"`
	Bool   bool    `json:"bool"`
}

const testJSON = `{"string":"test","int":123,"float":123.456,"bool":true}`

func testClient(fn func(*stdhttp.Request) (*stdhttp.Response, error)) *Client {
	client := New(logger.NewLogger(slog.LevelInfo, io.Discard))
	if fn != nil {
		client.Transport = testhelper.MockRoundTripper{Fn: fn}
	}
	return client
}

func TestNew(t *testing.T) {
	client := New(logger.New(slog.LevelInfo))
	if client == nil {
		t.Fatal("expected client to be non-nil")
	}
	if client.Timeout != DefaultTimeout {
		t.Errorf("expected timeout to be %s, got %s", DefaultTimeout, client.Timeout)
	}
}

func TestClient_Get(t *testing.T) {
	t.Run("getting and serializing JSON should work", func(t *testing.T) {
		var seen *stdhttp.Request
		client := testClient(func(req *stdhttp.Request) (*stdhttp.Response, error) {
			seen = req
			return testhelper.JSONResponse(200, testJSON), nil
		})
		query := url.Values{}
		query.Add("key", "value")
		headers := map[string]string{"X-Custom-Header": "custom-value"}

		target := new(testType)
		response, err := client.Get(t.Context(), "https://example.com", target, query, headers)
		if err != nil {
			t.Fatalf("failed to get JSON response: %s", err)
		}
		if response != 200 {
			t.Errorf("expected status code 200, got %d", response)
		}
		if target.String != "test" {
			t.Errorf("expected target string to be 'test', got %s", target.String)
		}
		if target.Int != 123 {
			t.Errorf("expected target int to be 123, got %d", target.Int)
		}
		if target.Float != 123.456 {
			t.Errorf("expected target float to be 123.456, got %f", target.Float)
		}
		if !target.Bool {
			t.Error("expected target bool to be true")
		}
		if seen.URL.Query().Get("key") != "value" {
			t.Errorf("expected query to be sent, got %q", seen.URL.RawQuery)
		}
		if seen.Header.Get("X-Custom-Header") != "custom-value" {
			t.Error("expected custom header to be sent")
		}
		if seen.Header.Get("User-Agent") != UserAgent {
			t.Errorf("expected user agent %q, got %q", UserAgent, seen.Header.Get("User-Agent"))
		}
	})
	t.Run("unmarshalling into non-pointer should fail", func(t *testing.T) {
		client := testClient(nil)
		var target testType
		_, err := client.Get(t.Context(), "https://example.com", target, nil, nil)
		if !errors.Is(err, ErrNonPointerTarget) {
			t.Errorf("expected error to be %s, got %v", ErrNonPointerTarget, err)
		}
	})
	t.Run("parsing an invalid url should fail", func(t *testing.T) {
		client := testClient(nil)
		target := new(testType)
		_, err := client.Get(t.Context(), "http://example.com/xyz%", target, nil, nil)
		if err == nil {
			t.Fatal("expected get to fail")
		}
		if !strings.Contains(err.Error(), "failed to parse URL") {
			t.Errorf("expected error to contain 'failed to parse URL', got %s", err)
		}
	})
	t.Run("get request fails", func(t *testing.T) {
		client := testClient(func(*stdhttp.Request) (*stdhttp.Response, error) {
			return nil, errors.New("intentionally failing")
		})
		target := new(testType)
		if _, err := client.Get(t.Context(), "https://example.com", target, nil, nil); err == nil {
			t.Fatal("expected get request to fail")
		}
	})
	t.Run("error status is reported", func(t *testing.T) {
		client := testClient(func(*stdhttp.Request) (*stdhttp.Response, error) {
			return testhelper.JSONResponse(404, `{"error":"not found"}`), nil
		})
		target := new(testType)
		code, err := client.Get(t.Context(), "https://example.com", target, nil, nil)
		if !errors.Is(err, ErrStatus) {
			t.Errorf("expected error to be %s, got %v", ErrStatus, err)
		}
		if code != 404 {
			t.Errorf("expected status code 404, got %d", code)
		}
	})
	t.Run("undecodable body fails", func(t *testing.T) {
		client := testClient(func(*stdhttp.Request) (*stdhttp.Response, error) {
			return &stdhttp.Response{
				StatusCode: 200,
				Body:       &failReadCloser{},
				Header:     make(stdhttp.Header),
			}, nil
		})
		target := new(testType)
		if _, err := client.Get(t.Context(), "https://example.com", target, nil, nil); err == nil {
			t.Fatal("expected get request to fail")
		}
	})
}

func TestClient_GetWithTimeout(t *testing.T) {
	t.Run("get request fails on timeout", func(t *testing.T) {
		server := httptest.NewServer(stdhttp.HandlerFunc(func(w stdhttp.ResponseWriter, r *stdhttp.Request) {
			<-r.Context().Done()
		}))
		defer server.Close()

		client := New(logger.NewLogger(slog.LevelInfo, io.Discard))
		target := new(testType)
		_, err := client.GetWithTimeout(t.Context(), server.URL, target, nil, nil, time.Millisecond*50)
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("expected error to be %s, got %v", context.DeadlineExceeded, err)
		}
	})
}

func TestClient_Post(t *testing.T) {
	t.Run("post request succeeds", func(t *testing.T) {
		var method, contentType string
		var body []byte
		client := testClient(func(req *stdhttp.Request) (*stdhttp.Response, error) {
			method = req.Method
			contentType = req.Header.Get("Content-Type")
			body, _ = io.ReadAll(req.Body)
			return testhelper.JSONResponse(200, testJSON), nil
		})

		target := new(testType)
		_, err := client.Post(t.Context(), "https://example.com", target, strings.NewReader(`{"a":1}`), nil)
		if err != nil {
			t.Fatalf("post request failed: %s", err)
		}
		if method != stdhttp.MethodPost {
			t.Errorf("expected method POST, got %s", method)
		}
		if contentType != "application/json" {
			t.Errorf("expected JSON content type, got %q", contentType)
		}
		if string(body) != `{"a":1}` {
			t.Errorf("expected body to be sent, got %q", body)
		}
	})
}

func TestClient_PostWithTimeout(t *testing.T) {
	t.Run("post request times out", func(t *testing.T) {
		server := httptest.NewServer(stdhttp.HandlerFunc(func(w stdhttp.ResponseWriter, r *stdhttp.Request) {
			<-r.Context().Done()
		}))
		defer server.Close()

		client := New(logger.NewLogger(slog.LevelInfo, io.Discard))
		target := new(testType)
		_, err := client.PostWithTimeout(t.Context(), server.URL, target, nil, nil, time.Millisecond*50)
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("expected error to be %s, got %v", context.DeadlineExceeded, err)
		}
	})
}

type failReadCloser struct{}

func (failReadCloser) Read(p []byte) (int, error) { return len(p), nil }
func (failReadCloser) Close() error               { return errors.New("failed to close") }
