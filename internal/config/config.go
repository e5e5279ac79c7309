// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package config

import (
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kkyr/fig"
)

const (
	configEnv = "LOCATOR"
	// DefaultTextTpl is the text template used when the configuration does not set one
	DefaultTextTpl = `{{.Icon}} {{if .Known}}{{floatFormat .Position.Lat 4}}, {{floatFormat .Position.Lon 4}}` +
		`{{else}}{{.Status}}{{end}}`
	// DefaultTooltipTpl is the tooltip template used when the configuration does not set one
	DefaultTooltipTpl = `{{loc "platform"}}: {{.Platform}}` + "\n" + `{{loc "status"}}: {{.Status}}` +
		`{{if .Known}}` + "\n" + `{{loc "position"}}: {{dms .Position.Lat true}} {{dms .Position.Lon false}}` + "\n" +
		`{{loc "source"}}: {{.Position.Source}}` + "\n" +
		`{{loc "accuracy"}}: {{distance .Position.Accuracy}}` + "\n" +
		`{{loc "updated"}}: {{.Age}}` + "\n" +
		`{{loc "sunrise"}}: {{localizedTime .Sunrise}}` + "\n" +
		`{{loc "sunset"}}: {{localizedTime .Sunset}}{{end}}`
)

// Backends lists the supported location platform backends.
var Backends = []string{"geoclue", "gpsd", "geolocation_file", "geoip", "ichnaea"}

// Config represents the application's configuration structure.
type Config struct {
	Locale   string     `fig:"locale"`
	LogLevel slog.Level `fig:"loglevel" default:"0"`

	Platform struct {
		// Allowed values: geoclue, gpsd, geolocation_file, geoip, ichnaea
		Backend string `fig:"backend" default:"geoclue"`
		// AllowNetwork consents to sending the IP address or Wi-Fi scans to third parties
		AllowNetwork    bool   `fig:"allow_network"`
		GeolocationFile string `fig:"geolocation_file"`

		GPSD struct {
			Host string `fig:"host" default:"localhost"`
			Port string `fig:"port" default:"2947"`
		} `fig:"gpsd"`

		GeoClue struct {
			DesktopID string `fig:"desktop_id" default:"locator"`
			// Allowed values: country, city, neighborhood, street, exact
			Accuracy string `fig:"accuracy" default:"exact"`
		} `fig:"geoclue"`
	} `fig:"platform"`

	Intervals struct {
		Output time.Duration `fig:"output" default:"30s"`
	} `fig:"intervals"`

	Templates struct {
		Text    string `fig:"text"`
		Tooltip string `fig:"tooltip"`
	} `fig:"templates"`

	Status struct {
		// Listen is the address of the status HTTP server; empty disables it
		Listen string `fig:"listen"`
	} `fig:"status"`
}

func NewFromFile(path, file string) (*Config, error) {
	conf := new(Config)
	_, err := os.Stat(filepath.Join(path, file))
	if err != nil {
		return conf, fmt.Errorf("failed to read Config: %w", err)
	}
	if err = fig.Load(conf, fig.Dirs(path), fig.File(file), fig.UseEnv(configEnv)); err != nil {
		return conf, fmt.Errorf("failed to load Config: %w", err)
	}

	return conf, conf.Validate()
}

func New() (*Config, error) {
	conf := new(Config)
	if err := fig.Load(conf, fig.AllowNoFile(), fig.UseEnv(configEnv)); err != nil {
		return conf, fmt.Errorf("failed to load Config: %w", err)
	}

	return conf, conf.Validate()
}

func (c *Config) Validate() error {
	if c.Locale == "" {
		c.Locale = getLocale()
	}

	c.Platform.Backend = strings.ToLower(c.Platform.Backend)
	valid := false
	for _, backend := range Backends {
		if c.Platform.Backend == backend {
			valid = true
			break
		}
	}
	if !valid {
		return fmt.Errorf("invalid platform backend: %s", c.Platform.Backend)
	}
	switch strings.ToLower(c.Platform.GeoClue.Accuracy) {
	case "country", "city", "neighborhood", "street", "exact":
	default:
		return fmt.Errorf("invalid geoclue accuracy: %s", c.Platform.GeoClue.Accuracy)
	}
	if c.Platform.GeolocationFile == "" {
		home, _ := os.UserHomeDir()
		c.Platform.GeolocationFile = filepath.Join(home, ".config", "locator", "geolocation")
	}

	if c.Intervals.Output < time.Second {
		return fmt.Errorf("invalid output interval: %s", c.Intervals.Output)
	}
	if c.Templates.Text == "" {
		c.Templates.Text = DefaultTextTpl
	}
	if c.Templates.Tooltip == "" {
		c.Templates.Tooltip = DefaultTooltipTpl
	}

	if c.Status.Listen != "" {
		if _, _, err := net.SplitHostPort(c.Status.Listen); err != nil {
			return fmt.Errorf("invalid status listen address %q: %w", c.Status.Listen, err)
		}
	}

	return nil
}

func getLocale() string {
	locale := os.Getenv("LC_MESSAGES")
	if idx := strings.Index(locale, "."); idx != -1 {
		lang := locale[:idx]
		return strings.ReplaceAll(lang, "_", "-")
	}
	return locale
}
