// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package service

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wneessen/locator/internal/job"
	"github.com/wneessen/locator/internal/location"
	"github.com/wneessen/locator/internal/logger"
)

const (
	shutdownTimeout = 5 * time.Second
	pingPeriod      = 30 * time.Second
	writeWait       = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		return u.Host == r.Host
	},
}

// PositionResponse is the JSON representation of the observable state.
type PositionResponse struct {
	Known     bool       `json:"known"`
	Lat       float64    `json:"lat"`
	Lon       float64    `json:"lon"`
	Alt       float64    `json:"alt,omitempty"`
	Accuracy  float64    `json:"accuracy,omitempty"`
	Source    string     `json:"source,omitempty"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
	Platform  string     `json:"platform"`
	Status    string     `json:"status"`
	Updating  bool       `json:"updating"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// statusServer exposes the observable state of the manager over HTTP.
type statusServer struct {
	httpServer *http.Server
	logger     *logger.Logger
}

// newStatusServer returns a status server listening on addr. Requests, including open
// position streams, are bound to ctx.
func (s *Service) newStatusServer(ctx context.Context, addr string) *statusServer {
	return &statusServer{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           s.statusRouter(),
			ReadHeaderTimeout: 10 * time.Second,
			IdleTimeout:       60 * time.Second,
			BaseContext:       func(net.Listener) context.Context { return ctx },
		},
		logger: s.logger,
	}
}

// Start begins listening. It returns nil after a graceful shutdown.
func (s *statusServer) Start() error {
	s.logger.Info("status server starting", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *statusServer) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Service) statusRouter() *mux.Router {
	router := mux.NewRouter()
	router.HandleFunc("/position", s.handleGetPosition).Methods(http.MethodGet)
	router.HandleFunc("/position/request", s.handleRequestPosition).Methods(http.MethodPost)
	router.HandleFunc("/position/stream", s.handleStream).Methods(http.MethodGet)
	router.HandleFunc("/updates/{action:start|stop}", s.handleUpdates).Methods(http.MethodPost)
	router.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	return router
}

func (s *Service) snapshot(update location.Update) PositionResponse {
	resp := PositionResponse{
		Known:    update.Known,
		Platform: s.manager.Platform(),
		Status:   s.manager.AuthorizationStatus().String(),
		Updating: s.manager.Updating(),
	}
	if update.Known {
		pos := update.Position
		resp.Lat, resp.Lon, resp.Alt = pos.Lat, pos.Lon, pos.Alt
		resp.Accuracy = pos.Accuracy
		resp.Source = pos.Source
		if !pos.Timestamp.IsZero() {
			resp.Timestamp = &pos.Timestamp
		}
	}
	return resp
}

func (s *Service) currentSnapshot() PositionResponse {
	pos, known := s.manager.CurrentPosition()
	return s.snapshot(location.Update{Position: pos, Known: known})
}

func (s *Service) handleGetPosition(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.currentSnapshot())
}

// handleRequestPosition blocks until a position is available, access was denied or the
// request timed out.
func (s *Service) handleRequestPosition(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	pos, err := s.manager.GetCurrentPosition(ctx)
	if err != nil {
		writeJSON(w, statusCode(err), errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, s.snapshot(location.Update{Position: pos, Known: true}))
}

func (s *Service) handleUpdates(w http.ResponseWriter, r *http.Request) {
	switch mux.Vars(r)["action"] {
	case "start":
		ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
		defer cancel()
		if err := s.startUpdates(ctx); err != nil {
			writeJSON(w, statusCode(err), errorResponse{Error: err.Error()})
			return
		}
	case "stop":
		s.stopUpdates()
	}
	writeJSON(w, http.StatusOK, s.currentSnapshot())
}

// handleStream pushes every change of the observable state to a websocket client.
func (s *Service) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade failed", logger.Err(err))
		return
	}

	updates, unsub := s.manager.Subscribe()
	defer unsub()

	ctx, cancel := context.WithCancel(r.Context())
	done := make(chan struct{}, 2)
	go func() {
		defer func() { done <- struct{}{} }()
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
	go func() {
		defer func() { done <- struct{}{} }()
		job.New(pingPeriod, func(context.Context) {
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				cancel()
			}
		}).Start(ctx)
	}()

	s.streamUpdates(ctx, conn, updates)
	cancel()
	_ = conn.Close()
	<-done
	<-done
}

func (s *Service) streamUpdates(ctx context.Context, conn *websocket.Conn, updates <-chan location.Update) {
	if _, known := s.manager.CurrentPosition(); !known {
		if err := s.writeStream(conn, s.snapshot(location.Update{})); err != nil {
			return
		}
	}
	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			if err := s.writeStream(conn, s.snapshot(update)); err != nil {
				s.logger.Debug("failed to write to websocket", logger.Err(err))
				return
			}
		}
	}
}

func (s *Service) writeStream(conn *websocket.Conn, resp PositionResponse) error {
	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return conn.WriteJSON(resp)
}

func statusCode(err error) int {
	switch {
	case errors.Is(err, location.ErrAuthorizationDenied):
		return http.StatusForbidden
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusServiceUnavailable
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
