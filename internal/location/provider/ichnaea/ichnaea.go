// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package ichnaea

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mdlayher/wifi"

	"github.com/wneessen/locator/internal/http"
	"github.com/wneessen/locator/internal/location"
	"github.com/wneessen/locator/internal/location/provider"
)

const (
	APIEndpoint   = "https://api.beacondb.net/v1/geolocate"
	LookupTimeout = time.Second * 5
	name          = "ichnaea"
)

// wlan is the part of the nl80211 client we need.
type wlan interface {
	Interfaces() ([]*wifi.Interface, error)
	AccessPoints(iface *wifi.Interface) ([]*wifi.BSS, error)
}

// newWLAN opens the nl80211 client.
var newWLAN = func() (wlan, error) {
	client, err := wifi.New()
	if err != nil {
		return nil, err
	}
	return client, nil
}

// Provider is a location platform that resolves the surrounding Wi-Fi access points
// through an Ichnaea compatible API such as beacondb. Like geoip it needs the user's
// consent for network lookups, and it is restricted on hosts without a usable Wi-Fi stack.
type Provider struct {
	*provider.Base
	http         *http.Client
	wlan         wlan
	wlanErr      error
	allowNetwork bool
	endpoint     string
	period       time.Duration
	onErr        func(error)
}

type APIResult struct {
	Location struct {
		Latitude  float64 `json:"lat"`
		Longitude float64 `json:"lng"`
	} `json:"location"`
	Accuracy float64 `json:"accuracy"`
}

type WirelessNetwork struct {
	LastSeen       int64  `json:"age"`
	MACAddress     string `json:"macAddress"`
	SignalStrength int32  `json:"signalStrength"`
}

// New returns a Provider. A failure to open the Wi-Fi client is not fatal, it makes the
// provider report a restricted authorization instead.
func New(client *http.Client, allowNetwork bool, onErr func(error)) (*Provider, error) {
	if client == nil {
		return nil, errors.New("http client is required")
	}
	p := &Provider{
		Base:         provider.NewBase(name),
		http:         client,
		allowNetwork: allowNetwork,
		endpoint:     APIEndpoint,
		period:       time.Minute * 5,
		onErr:        onErr,
	}
	wlanClient, err := newWLAN()
	if err != nil {
		p.wlanErr = fmt.Errorf("failed to create wifi client: %w", err)
	} else {
		p.wlan = wlanClient
	}
	return p, nil
}

// RequestAuthorization implements location.Platform.
func (p *Provider) RequestAuthorization() {
	var status location.AuthorizationStatus
	switch {
	case p.wlan == nil:
		status = location.Restricted
	case !p.allowNetwork:
		status = location.Denied
	default:
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

// wifiAccessPoints scans all station interfaces. Hidden networks and networks that opted
// out of mapping via the _nomap suffix are skipped.
func (p *Provider) wifiAccessPoints() ([]WirelessNetwork, error) {
	if p.wlan == nil {
		return nil, p.wlanErr
	}

	ifaces, err := p.wlan.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("failed to list interfaces: %w", err)
	}

	var list []WirelessNetwork
	for _, iface := range ifaces {
		if iface.Type != wifi.InterfaceTypeStation {
			continue
		}
		aps, err := p.wlan.AccessPoints(iface)
		if err != nil {
			continue
		}
		for _, ap := range aps {
			if ap.SSID == "" || ap.SSID[0] == '\x00' || strings.HasSuffix(ap.SSID, "_nomap") {
				continue
			}
			list = append(list, WirelessNetwork{
				SignalStrength: ap.Signal / 100,
				MACAddress:     ap.BSSID.String(),
				LastSeen:       ap.LastSeen.Milliseconds(),
			})
		}
	}
	return list, nil
}

func (p *Provider) locate(ctx context.Context) ([]location.Position, error) {
	wifiList, err := p.wifiAccessPoints()
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve wifi list: %w", err)
	}

	type request struct {
		ConsiderIP   bool              `json:"considerIp"`
		Accesspoints []WirelessNetwork `json:"wifiAccessPoints,omitempty"`
	}
	bodyBuffer := bytes.NewBuffer(nil)
	if err = json.NewEncoder(bodyBuffer).Encode(request{ConsiderIP: true, Accesspoints: wifiList}); err != nil {
		return nil, fmt.Errorf("failed to encode wifi list to JSON: %w", err)
	}

	ctxHttp, cancelHttp := context.WithTimeout(ctx, LookupTimeout)
	defer cancelHttp()
	result := new(APIResult)
	if _, err = p.http.Post(ctxHttp, p.endpoint, result, bodyBuffer, nil); err != nil {
		return nil, fmt.Errorf("failed to get geolocation data from API: %w", err)
	}

	pos := location.Position{
		Lat:       location.Truncate(result.Location.Latitude, location.TruncPrecision),
		Lon:       location.Truncate(result.Location.Longitude, location.TruncPrecision),
		Accuracy:  result.Accuracy,
		Timestamp: time.Now(),
		Source:    name,
	}
	if !pos.Valid() {
		return nil, fmt.Errorf("API returned invalid coordinates %f/%f", pos.Lat, pos.Lon)
	}
	return []location.Position{pos}, nil
}
