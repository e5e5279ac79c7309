// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package service

import (
	"fmt"
	"log/slog"

	"github.com/wneessen/locator/internal/config"
	"github.com/wneessen/locator/internal/http"
	"github.com/wneessen/locator/internal/location"
	"github.com/wneessen/locator/internal/location/provider/geoclue"
	"github.com/wneessen/locator/internal/location/provider/geoip"
	"github.com/wneessen/locator/internal/location/provider/geolocation_file"
	"github.com/wneessen/locator/internal/location/provider/gpsd"
	"github.com/wneessen/locator/internal/location/provider/ichnaea"
	"github.com/wneessen/locator/internal/logger"
)

// selectPlatform returns the platform backend configured in conf.
func selectPlatform(conf *config.Config, log *logger.Logger) (location.Platform, error) {
	backend := conf.Platform.Backend
	onErr := func(err error) {
		log.Warn("location lookup failed", slog.String("platform", backend), logger.Err(err))
	}

	switch backend {
	case "geoclue":
		level, err := geoclue.AccuracyLevel(conf.Platform.GeoClue.Accuracy)
		if err != nil {
			return nil, err
		}
		return geoclue.New(conf.Platform.GeoClue.DesktopID, level, onErr), nil
	case "gpsd":
		return gpsd.New(conf.Platform.GPSD.Host, conf.Platform.GPSD.Port), nil
	case "geolocation_file":
		return geolocation_file.New(conf.Platform.GeolocationFile), nil
	case "geoip":
		gip, err := geoip.New(http.New(log), conf.Platform.AllowNetwork, onErr)
		if err != nil {
			return nil, fmt.Errorf("failed to create GeoIP provider: %w", err)
		}
		return gip, nil
	case "ichnaea":
		mls, err := ichnaea.New(http.New(log), conf.Platform.AllowNetwork, onErr)
		if err != nil {
			return nil, fmt.Errorf("failed to create ICHNAEA provider: %w", err)
		}
		return mls, nil
	default:
		return nil, fmt.Errorf("unsupported platform backend: %s", backend)
	}
}
