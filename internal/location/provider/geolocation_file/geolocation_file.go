// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package geolocation_file

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/wneessen/locator/internal/location"
	"github.com/wneessen/locator/internal/location/provider"
)

const (
	name = "geolocation_file"

	// Accuracy is assumed for lines that do not carry one. A hand maintained file is about
	// as good as a postal code lookup.
	Accuracy = location.AccuracyZip
)

var ErrNoCoordinates = errors.New("no valid coordinates found in geolocation file")

// Provider is a location platform backed by a plain text file. Every line holds one fix in
// the form "lat,lon" or "lat,lon,accuracy"; empty lines and lines starting with # are
// ignored. The file is re-read periodically and all valid lines are delivered as one batch.
type Provider struct {
	*provider.Base
	path   string
	period time.Duration
	now    func() time.Time
}

// New returns a Provider reading from path.
func New(path string) *Provider {
	return &Provider{
		Base:   provider.NewBase(name),
		path:   path,
		period: time.Minute * 2,
		now:    time.Now,
	}
}

// RequestAuthorization implements location.Platform. Access is granted if the file can be
// opened; a permission error denies it and a missing file restricts it.
func (p *Provider) RequestAuthorization() {
	go func() {
		p.SetAuthorization(statusFor(p.checkAccess()))
	}()
}

// StartUpdating implements location.Platform.
func (p *Provider) StartUpdating() {
	p.StartLoop(func(ctx context.Context, emit provider.Emit) {
		provider.Poll(ctx, emit, p.period, func(context.Context) ([]location.Position, error) {
			return p.readFile()
		}, nil)
	})
}

func (p *Provider) checkAccess() error {
	file, err := os.Open(p.path)
	if err != nil {
		return err
	}
	return file.Close()
}

// statusFor maps the result of opening the file to an authorization status.
func statusFor(err error) location.AuthorizationStatus {
	switch {
	case err == nil:
		return location.AuthorizedWhenInUse
	case errors.Is(err, fs.ErrPermission):
		return location.Denied
	default:
		return location.Restricted
	}
}

// readFile parses the geolocation file into a batch of fixes, in file order.
func (p *Provider) readFile() ([]location.Position, error) {
	data, err := os.ReadFile(p.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read geolocation file %q: %w", p.path, err)
	}

	now := p.now()
	var batch []location.Position
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		pos, err := parseLine(line)
		if err != nil {
			continue
		}
		pos.Timestamp = now
		pos.Source = name
		batch = append(batch, pos)
	}
	if len(batch) == 0 {
		return nil, ErrNoCoordinates
	}
	return batch, nil
}

func parseLine(line string) (location.Position, error) {
	fields := strings.Split(line, ",")
	if len(fields) != 2 && len(fields) != 3 {
		return location.Position{}, fmt.Errorf("invalid coordinates %q", line)
	}

	pos := location.Position{Accuracy: Accuracy}
	var err error
	if pos.Lat, err = strconv.ParseFloat(strings.TrimSpace(fields[0]), 64); err != nil {
		return pos, fmt.Errorf("failed to parse latitude: %w", err)
	}
	if pos.Lon, err = strconv.ParseFloat(strings.TrimSpace(fields[1]), 64); err != nil {
		return pos, fmt.Errorf("failed to parse longitude: %w", err)
	}
	if len(fields) == 3 {
		if pos.Accuracy, err = strconv.ParseFloat(strings.TrimSpace(fields[2]), 64); err != nil {
			return pos, fmt.Errorf("failed to parse accuracy: %w", err)
		}
	}
	if !pos.Valid() {
		return pos, fmt.Errorf("coordinates %q out of bounds", line)
	}
	return pos, nil
}
