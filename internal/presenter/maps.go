// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package presenter

import (
	"github.com/vorlif/spreak/localize"

	"github.com/wneessen/locator/internal/location"
)

// CSS classes of the module output
const (
	ClassLocated  = "located"
	ClassLocating = "locating"
	ClassDenied   = "denied"
	ClassIdle     = "idle"
)

// ClassIcon maps the output classes to their emoji representation.
var ClassIcon = map[string]string{
	ClassLocated:  "📍",
	ClassLocating: "🛰️",
	ClassDenied:   "🚫",
	ClassIdle:     "❔",
}

// StatusMessages maps the authorization states to their descriptions
var StatusMessages = map[location.AuthorizationStatus]localize.MsgID{
	location.NotDetermined:       "Not determined",
	location.Restricted:          "Restricted",
	location.Denied:              "Denied",
	location.AuthorizedAlways:    "Always authorized",
	location.AuthorizedWhenInUse: "Authorized when in use",
}

const (
	msgLocating   localize.MsgID = "Locating"
	msgNoLocation localize.MsgID = "No location"
)

// i18nVars holds the labels the loc template function translates
var i18nVars = map[string]localize.MsgID{
	"platform":    "Platform",
	"position":    "Position",
	"status":      "Status",
	"source":      "Source",
	"accuracy":    "Accuracy",
	"altitude":    "Altitude",
	"updated":     "Updated",
	"sunrise":     "Sunrise",
	"sunset":      "Sunset",
	"no location": msgNoLocation,
	"locating":    msgLocating,
}
