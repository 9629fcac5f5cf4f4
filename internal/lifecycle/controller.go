// Package lifecycle owns the foreground sampling-and-reporting loop: it
// resolves the device identity, runs a full cycle on a recurring timer or
// on demand, and exposes the latest settled state to the HTTP surface.
package lifecycle

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/sirupsen/logrus"

	"github.com/solas-app/solas-agent/internal/environment"
	"github.com/solas-app/solas-agent/internal/location"
	"github.com/solas-app/solas-agent/internal/report"
	"github.com/solas-app/solas-agent/internal/timeutil"
)

// Phase names the controller's position in the sampling state machine.
type Phase string

const (
	PhaseIdle              Phase = "idle"
	PhaseResolvingIdentity Phase = "resolving_identity"
	PhaseSampling          Phase = "sampling"
	PhaseReporting         Phase = "reporting"
	PhaseSettled           Phase = "settled"
)

// User-visible error messages, per error kind.
const (
	msgPermissionDenied = "Permission to access location was denied"
	msgCycleFailed      = "Failed to determine location status"
	msgNoIdentity       = "Device identity could not be resolved"
)

// IdentityResolver yields the stable device identifier.
type IdentityResolver interface {
	Resolve(ctx context.Context) (string, error)
}

// EnvironmentSource yields the environmental snapshot for a coordinate.
type EnvironmentSource interface {
	Fetch(ctx context.Context, lat, lon float64) (environment.Snapshot, error)
}

// Reporter posts an observation and returns the inside/outside verdict.
type Reporter interface {
	Report(ctx context.Context, obs report.Observation) (bool, error)
}

// State is the controller's externally visible snapshot. Pointer fields are
// nil until the first successful cycle; on later failures they keep their
// previous values and only Error changes.
type State struct {
	Phase             Phase      `json:"phase"`
	Loading           bool       `json:"loading"`
	Error             string     `json:"error,omitempty"`
	UserID            string     `json:"user_id,omitempty"`
	IsOutside         *bool      `json:"is_outside"`
	GPSAccuracy       *float64   `json:"gps_accuracy"`
	Latitude          *float64   `json:"latitude,omitempty"`
	Longitude         *float64   `json:"longitude,omitempty"`
	IsConnectedToWifi bool       `json:"is_connected_to_wifi"`
	Weather           string     `json:"weather,omitempty"`
	Temperature       *float64   `json:"temperature,omitempty"`
	UV                *float64   `json:"uv,omitempty"`
	Sunrise           string     `json:"sunrise,omitempty"`
	Sunset            string     `json:"sunset,omitempty"`
	LastCheckedAt     *time.Time `json:"last_checked_at,omitempty"`
}

// Config wires a Controller's collaborators.
type Config struct {
	Identity    IdentityResolver
	Sampler     location.Sampler
	Environment EnvironmentSource
	Reporter    Reporter
	Interval    time.Duration // cycle cadence; default 5 minutes
	Samples     int           // GPS fixes averaged per cycle; default 1
	Logger      *logrus.Logger
	Now         func() time.Time // defaults to time.Now
}

// Controller runs the foreground sampling loop.
type Controller struct {
	cfg       Config
	scheduler *gocron.Scheduler

	// busy guards cycle entry: at most one cycle may be in flight.
	busy atomic.Bool

	mu    sync.RWMutex
	state State
}

// New creates a Controller in the Idle phase. Nothing runs until Start.
func New(cfg Config) *Controller {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}
	if cfg.Samples < 1 {
		cfg.Samples = 1
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	return &Controller{
		cfg:   cfg,
		state: State{Phase: PhaseIdle},
	}
}

// Start resolves the device identity, runs the first cycle, and arms the
// recurring timer. An identity failure is fatal to reporting for this
// session: the error state is exposed and returned, and no timer is armed.
func (c *Controller) Start(ctx context.Context) error {
	c.setPhase(PhaseResolvingIdentity)

	id, err := c.cfg.Identity.Resolve(ctx)
	if err != nil {
		c.cfg.Logger.WithError(err).Error("identity resolution failed; reporting disabled")
		c.update(func(s *State) {
			s.Phase = PhaseSettled
			s.Error = msgNoIdentity
		})
		return err
	}

	c.update(func(s *State) { s.UserID = id })

	c.Refresh(ctx)

	sched := gocron.NewScheduler(time.UTC)
	minutes := int(c.cfg.Interval.Minutes())
	if minutes <= 0 {
		minutes = 5
	}
	if _, err := sched.Every(minutes).Minutes().Do(func() {
		c.Refresh(context.Background())
	}); err != nil {
		return err
	}
	sched.StartAsync()
	c.scheduler = sched
	return nil
}

// Stop cancels the recurring timer. An in-flight cycle finishes on its own.
func (c *Controller) Stop() {
	if c.scheduler != nil {
		c.scheduler.Stop()
	}
}

// Busy reports whether a cycle is currently in flight.
func (c *Controller) Busy() bool {
	return c.busy.Load()
}

// Refresh runs one full sampling-and-reporting cycle. A refresh requested
// while a cycle is already in flight is a no-op; the return value reports
// whether a cycle actually ran.
func (c *Controller) Refresh(ctx context.Context) bool {
	if !c.busy.CompareAndSwap(false, true) {
		return false
	}
	defer c.busy.Store(false)

	c.runCycle(ctx)
	return true
}

// State returns a copy of the current state. Pointer fields are duplicated
// so callers cannot alias the controller's internals.
func (c *Controller) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := c.state
	s.IsOutside = copyBool(s.IsOutside)
	s.GPSAccuracy = copyFloat(s.GPSAccuracy)
	s.Latitude = copyFloat(s.Latitude)
	s.Longitude = copyFloat(s.Longitude)
	s.Temperature = copyFloat(s.Temperature)
	s.UV = copyFloat(s.UV)
	if s.LastCheckedAt != nil {
		t := *s.LastCheckedAt
		s.LastCheckedAt = &t
	}
	return s
}

func (c *Controller) runCycle(ctx context.Context) {
	userID := c.State().UserID
	if userID == "" {
		return
	}

	c.update(func(s *State) {
		s.Phase = PhaseSampling
		s.Loading = true
		s.Error = ""
	})

	netType, err := c.cfg.Sampler.NetworkType(ctx)
	if err != nil {
		c.cfg.Logger.WithError(err).Warn("network type query failed")
		netType = location.NetworkUnknown
	}
	wifi := netType == location.NetworkWifi

	if err := c.cfg.Sampler.RequestForegroundPermission(ctx); err != nil {
		if errors.Is(err, location.ErrPermissionDenied) {
			c.settleError(msgPermissionDenied)
		} else {
			c.cfg.Logger.WithError(err).Error("permission request failed")
			c.settleError(msgCycleFailed)
		}
		return
	}

	var pos location.Position
	if c.cfg.Samples > 1 {
		pos, err = location.Average(ctx, c.cfg.Sampler, c.cfg.Samples)
	} else {
		pos, err = c.cfg.Sampler.CurrentPosition(ctx)
	}
	if err != nil {
		c.cfg.Logger.WithError(err).Error("location fix failed")
		c.settleError(msgCycleFailed)
		return
	}

	snap, err := c.cfg.Environment.Fetch(ctx, pos.Latitude, pos.Longitude)
	if err != nil {
		c.cfg.Logger.WithError(err).Error("environment fetch failed")
		c.settleError(msgCycleFailed)
		return
	}

	sunrise := timeutil.ConvertTo24Hour(snap.Sunrise)
	sunset := timeutil.ConvertTo24Hour(snap.Sunset)

	c.setPhase(PhaseReporting)

	outside, err := c.cfg.Reporter.Report(ctx, report.Observation{
		GPSAccuracy:       pos.AccuracyM,
		UserID:            userID,
		IsConnectedToWifi: wifi,
		Weather:           snap.Condition,
		Temperature:       snap.TemperatureC,
		UV:                snap.UVIndex,
		Sunrise:           sunrise,
		Sunset:            sunset,
		DeviceTime:        timeutil.FormatDeviceTime(c.cfg.Now()),
	})
	if err != nil {
		c.cfg.Logger.WithError(err).Error("observation report failed")
		c.settleError(msgCycleFailed)
		return
	}

	now := c.cfg.Now()
	c.update(func(s *State) {
		s.Phase = PhaseSettled
		s.Loading = false
		s.Error = ""
		s.IsOutside = &outside
		s.GPSAccuracy = pos.AccuracyM
		s.Latitude = &pos.Latitude
		s.Longitude = &pos.Longitude
		s.IsConnectedToWifi = wifi
		s.Weather = snap.Condition
		s.Temperature = &snap.TemperatureC
		s.UV = &snap.UVIndex
		s.Sunrise = sunrise
		s.Sunset = sunset
		s.LastCheckedAt = &now
	})
}

// settleError ends the cycle with a user-visible message, leaving any
// previously settled fields untouched.
func (c *Controller) settleError(msg string) {
	c.update(func(s *State) {
		s.Phase = PhaseSettled
		s.Loading = false
		s.Error = msg
	})
}

func (c *Controller) setPhase(p Phase) {
	c.update(func(s *State) { s.Phase = p })
}

func (c *Controller) update(fn func(*State)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn(&c.state)
}

func copyBool(v *bool) *bool {
	if v == nil {
		return nil
	}
	b := *v
	return &b
}

func copyFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	f := *v
	return &f
}
