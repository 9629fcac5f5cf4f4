// Package location wraps device geolocation, permission, and network-type
// queries behind a single Sampler contract so the sampling cycle can run
// against a real device or a fake in tests.
package location

import (
	"context"
	"errors"
)

// ErrPermissionDenied is returned when the platform refuses a location
// permission request.
var ErrPermissionDenied = errors.New("location permission denied")

// Position is one GPS fix. Accuracy is the estimated error radius in
// meters; nil when the platform does not report one.
type Position struct {
	Latitude  float64
	Longitude float64
	AccuracyM *float64
}

// Network types as reported by NetworkType.
const (
	NetworkWifi    = "wifi"
	NetworkCell    = "cellular"
	NetworkUnknown = "unknown"
)

// Sampler is the device-side contract for one sampling cycle.
type Sampler interface {
	// RequestForegroundPermission asks for while-in-use location access,
	// returning ErrPermissionDenied on refusal.
	RequestForegroundPermission(ctx context.Context) error

	// RequestBackgroundPermission asks for the elevated always-on access
	// the background runner needs, returning ErrPermissionDenied on
	// refusal.
	RequestBackgroundPermission(ctx context.Context) error

	// CurrentPosition returns a single fresh GPS fix.
	CurrentPosition(ctx context.Context) (Position, error)

	// NetworkType reports the active connection type (NetworkWifi,
	// NetworkCell, NetworkUnknown).
	NetworkType(ctx context.Context) (string, error)
}
