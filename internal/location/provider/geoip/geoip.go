// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package geoip

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wneessen/locator/internal/http"
	"github.com/wneessen/locator/internal/location"
	"github.com/wneessen/locator/internal/location/provider"
)

const (
	APIEndpoint   = "https://reallyfreegeoip.org/json/"
	LookupTimeout = time.Second * 5
	name          = "geoip"
)

// Provider is a location platform that derives the position from the public IP address.
// Since every lookup sends the address to a third party, access is only granted if the
// user allowed network lookups.
type Provider struct {
	*provider.Base
	http         *http.Client
	allowNetwork bool
	endpoint     string
	period       time.Duration
	onErr        func(error)
}

type APIResult struct {
	IP          string  `json:"ip"`
	CountryCode string  `json:"country_code"`
	Country     string  `json:"country_name"`
	RegionCode  string  `json:"region_code,omitempty"`
	Region      string  `json:"region_name,omitempty"`
	City        string  `json:"city,omitempty"`
	ZipCode     string  `json:"zip_code,omitempty"`
	TimeZone    string  `json:"time_zone"`
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
	MetroCode   int     `json:"metro_code"`
}

// New returns a Provider. onErr is called with every failed lookup and may be nil.
func New(client *http.Client, allowNetwork bool, onErr func(error)) (*Provider, error) {
	if client == nil {
		return nil, errors.New("http client is required")
	}
	return &Provider{
		Base:         provider.NewBase(name),
		http:         client,
		allowNetwork: allowNetwork,
		endpoint:     APIEndpoint,
		period:       time.Minute * 30,
		onErr:        onErr,
	}, nil
}

// RequestAuthorization implements location.Platform.
func (p *Provider) RequestAuthorization() {
	status := location.Denied
	if p.allowNetwork {
		status = location.AuthorizedWhenInUse
	}
	go p.SetAuthorization(status)
}

// StartUpdating implements location.Platform.
func (p *Provider) StartUpdating() {
	p.StartLoop(func(ctx context.Context, emit provider.Emit) {
		provider.Poll(ctx, emit, p.period, p.locate, p.onErr)
	})
}

func (p *Provider) locate(ctx context.Context) ([]location.Position, error) {
	ctxHttp, cancelHttp := context.WithTimeout(ctx, LookupTimeout)
	defer cancelHttp()

	result := new(APIResult)
	if _, err := p.http.Get(ctxHttp, p.endpoint, result, nil, nil); err != nil {
		return nil, fmt.Errorf("failed to get geolocation data from API: %w", err)
	}

	pos := location.Position{
		Lat:       location.Truncate(result.Latitude, location.TruncPrecision),
		Lon:       location.Truncate(result.Longitude, location.TruncPrecision),
		Accuracy:  accuracy(result),
		Timestamp: time.Now(),
		Source:    name,
	}
	if !pos.Valid() {
		return nil, fmt.Errorf("API returned invalid coordinates %f/%f", result.Latitude, result.Longitude)
	}
	return []location.Position{pos}, nil
}

// accuracy estimates the accuracy from the most detailed level the API resolved.
func accuracy(result *APIResult) float64 {
	switch {
	case result.ZipCode != "":
		return location.AccuracyZip
	case result.City != "":
		return location.AccuracyCity
	case result.RegionCode != "":
		return location.AccuracyRegion
	case result.CountryCode != "":
		return location.AccuracyCountry
	default:
		return location.AccuracyUnknown
	}
}
