// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package location exposes a host's location service through a Manager that republishes
// fixes as observable state and turns the callback driven authorization and "first fix"
// flows into blocking, context aware calls.
package location

import (
	"errors"
	"time"
)

// ErrAuthorizationDenied is returned whenever the platform denies or restricts access to
// location data, and when a pending position request is aborted by StopUpdating.
var ErrAuthorizationDenied = errors.New("location authorization denied")

// AuthorizationStatus is the permission tier reported by a platform backend.
type AuthorizationStatus int

const (
	NotDetermined AuthorizationStatus = iota
	Restricted
	Denied
	AuthorizedAlways
	AuthorizedWhenInUse
)

// String satisfies the fmt.Stringer interface.
func (s AuthorizationStatus) String() string {
	switch s {
	case NotDetermined:
		return "not_determined"
	case Restricted:
		return "restricted"
	case Denied:
		return "denied"
	case AuthorizedAlways:
		return "authorized_always"
	case AuthorizedWhenInUse:
		return "authorized_when_in_use"
	default:
		return "unknown"
	}
}

// Authorized reports whether the status grants access. Statuses this package does not
// know about are considered authorized.
func (s AuthorizationStatus) Authorized() bool {
	switch s {
	case NotDetermined, Restricted, Denied:
		return false
	default:
		return true
	}
}

// Position is a single fix reported by a platform backend. Everything besides Lat and Lon
// is metadata that the Manager passes through without interpreting it.
type Position struct {
	Lat       float64
	Lon       float64
	Alt       float64
	Accuracy  float64 // horizontal, in meters
	Timestamp time.Time
	Source    string
}

// Update is what subscribers of the Manager receive. Known is false when the current
// position transitioned to absent.
type Update struct {
	Position Position
	Known    bool
}

// Delegate receives the asynchronous events of a Platform.
type Delegate interface {
	// AuthorizationChanged is called whenever the platform decided on (or re-reported) the
	// authorization status.
	AuthorizationChanged(status AuthorizationStatus)
	// LocationsUpdated is called with a batch of fixes, oldest first.
	LocationsUpdated(positions []Position)
}

// Platform is the location service the Manager sits in front of. RequestAuthorization,
// StartUpdating and StopUpdating must not block on the delegate; results are reported
// through the Delegate only.
type Platform interface {
	Name() string
	SetDelegate(delegate Delegate)
	AuthorizationStatus() AuthorizationStatus
	RequestAuthorization()
	StartUpdating()
	StopUpdating()
}
