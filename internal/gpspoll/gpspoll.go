// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package gpspoll

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net"
	"time"
)

const (
	fallbackAccuracy3DFix = 10  // ~10 m typical consumer GPS in open sky
	fallbackAccuracy2DFix = 25  // worse than 3D, but still accurate enough
	fallbackAccuracyNoFix = 1e6 // effectively unusable
	watchTimeout          = time.Second * 2
)

var ErrNoGPSD = errors.New("peer did not identify as gpsd")

// Client is a minimal, connection-per-call gpsd client
type Client struct {
	Addr string
}

// Fix represents a single GPS fix from gpsd.
type Fix struct {
	Lat  float64
	Lon  float64
	Alt  float64
	Acc  float64
	Mode int
	Time time.Time
}

// Version is the banner gpsd sends right after a client connected.
type Version struct {
	Release    string `json:"release"`
	ProtoMajor int    `json:"proto_major"`
	ProtoMinor int    `json:"proto_minor"`
}

// report matches the subset of gpsd's VERSION and TPV objects we care about.
type report struct {
	Class      string    `json:"class"`
	Release    string    `json:"release"`
	ProtoMajor int       `json:"proto_major"`
	ProtoMinor int       `json:"proto_minor"`
	Time       time.Time `json:"time"`
	Lat        float64   `json:"lat"`
	Lon        float64   `json:"lon"`
	Alt        float64   `json:"alt"`
	Mode       int       `json:"mode"`
	Epx        float64   `json:"epx"`
	Epy        float64   `json:"epy"`
	Eph        float64   `json:"eph"`
}

// New constructs a new Client for the given host and port.
func New(host, port string) *Client {
	return &Client{
		Addr: net.JoinHostPort(host, port),
	}
}

// Probe connects to gpsd and waits for its VERSION banner. It tells a reachable gpsd apart
// from a closed port or some other service listening on it.
func (c *Client) Probe(ctx context.Context) (Version, error) {
	var version Version
	err := c.session(ctx, false, func(r report) bool {
		if r.Class != "VERSION" {
			return false
		}
		version = Version{Release: r.Release, ProtoMajor: r.ProtoMajor, ProtoMinor: r.ProtoMinor}
		return true
	})
	if err != nil {
		return version, err
	}
	if version.Release == "" && version.ProtoMajor == 0 {
		return version, ErrNoGPSD
	}
	return version, nil
}

// Poll connects to gpsd, enables watching and returns the first TPV report received. The
// connection is closed before returning.
func (c *Client) Poll(ctx context.Context) (Fix, error) {
	var fix Fix
	found := false
	err := c.session(ctx, true, func(r report) bool {
		if r.Class != "TPV" {
			return false
		}
		fix = Fix{
			Lat:  r.Lat,
			Lon:  r.Lon,
			Alt:  r.Alt,
			Acc:  HorizontalAccuracy(r.Mode, r.Eph, r.Epx, r.Epy),
			Mode: r.Mode,
			Time: r.Time,
		}
		found = true
		return true
	})
	if err != nil {
		return fix, err
	}
	if !found {
		return fix, fmt.Errorf("no TPV response received from GPSd")
	}
	return fix, nil
}

// session dials gpsd, optionally sends a WATCH request and hands every decoded report to
// handle until it returns true.
func (c *Client) session(ctx context.Context, watch bool, handle func(report) bool) error {
	dialer := &net.Dialer{}
	conn, err := dialer.DialContext(ctx, "tcp", c.Addr)
	if err != nil {
		return fmt.Errorf("gpspoll: dial gpsd: %w", err)
	}
	defer func() {
		_ = conn.Close()
	}()

	// Respect context deadline if present, otherwise we add a safety net so we don't hang
	// forever if ctx has no deadline.
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	} else {
		_ = conn.SetDeadline(time.Now().Add(watchTimeout))
	}

	if watch {
		if _, err = fmt.Fprint(conn, `?WATCH={"enable":true,"json":true}`+"\n"); err != nil {
			return fmt.Errorf("gpspoll: write WATCH: %w", err)
		}
	}

	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		var r report
		if err = json.Unmarshal(scanner.Bytes(), &r); err != nil {
			continue
		}
		if handle(r) {
			return nil
		}
	}

	if err = scanner.Err(); err != nil {
		return fmt.Errorf("failed to scan GPSd response: %w", err)
	}
	return nil
}

// Has2DFix reports whether the fix has at least a 2D fix.
func (f Fix) Has2DFix() bool {
	return f.Mode >= 2
}

// HorizontalAccuracy estimates the horizontal error in meters from gpsd's error fields,
// falling back to typical values for the fix mode.
func HorizontalAccuracy(mode int, eph, epx, epy float64) float64 {
	switch {
	case eph > 0:
		return eph
	case epx > 0 && epy > 0:
		// sqrt(epx² + epy²)
		return math.Hypot(epx, epy)
	}

	switch mode {
	case 3:
		return fallbackAccuracy3DFix
	case 2:
		return fallbackAccuracy2DFix
	default:
		return fallbackAccuracyNoFix
	}
}
