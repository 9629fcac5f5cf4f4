// Package background runs the sampling-and-reporting cycle on a platform
// schedule independent of the foreground controller. Each invocation is
// stateless: the identity is re-read from persistent storage every time,
// since the process may have been restarted between invocations.
package background

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/sirupsen/logrus"

	"github.com/solas-app/solas-agent/internal/environment"
	"github.com/solas-app/solas-agent/internal/identity"
	"github.com/solas-app/solas-agent/internal/location"
	"github.com/solas-app/solas-agent/internal/report"
	"github.com/solas-app/solas-agent/internal/timeutil"
)

// EnvironmentSource yields the environmental snapshot for a coordinate.
type EnvironmentSource interface {
	Fetch(ctx context.Context, lat, lon float64) (environment.Snapshot, error)
}

// Reporter posts an observation and returns the inside/outside verdict.
type Reporter interface {
	Report(ctx context.Context, obs report.Observation) (bool, error)
}

// Config wires a Runner's collaborators.
type Config struct {
	Store       identity.Store
	Sampler     location.Sampler
	Environment EnvironmentSource
	Reporter    Reporter
	Interval    time.Duration // default 5 minutes
	Logger      *logrus.Logger
	Now         func() time.Time
}

// Runner owns the background schedule.
type Runner struct {
	cfg Config

	mu        sync.Mutex
	scheduler *gocron.Scheduler
}

// New creates a disarmed Runner.
func New(cfg Config) *Runner {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	return &Runner{cfg: cfg}
}

// Arm requests background location permission and, if granted, schedules
// the recurring cycle. A permission refusal is not an error for the caller:
// this path has no UI, so the refusal is logged and background reporting
// stays disabled.
func (r *Runner) Arm(ctx context.Context) error {
	if err := r.cfg.Sampler.RequestBackgroundPermission(ctx); err != nil {
		if errors.Is(err, location.ErrPermissionDenied) {
			r.cfg.Logger.Warn("background location permission not granted; background reporting disabled")
			return nil
		}
		return fmt.Errorf("background permission request: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.scheduler != nil {
		return nil
	}

	sched := gocron.NewScheduler(time.UTC)
	minutes := int(r.cfg.Interval.Minutes())
	if minutes <= 0 {
		minutes = 5
	}
	if _, err := sched.Every(minutes).Minutes().Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()

		if err := r.RunOnce(ctx); err != nil {
			r.cfg.Logger.WithError(err).Warn("background cycle failed")
		}
	}); err != nil {
		return err
	}
	sched.StartAsync()
	r.scheduler = sched

	r.cfg.Logger.Info("background tracking armed")
	return nil
}

// Disarm stops the background schedule.
func (r *Runner) Disarm() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.scheduler != nil {
		r.scheduler.Stop()
		r.scheduler = nil
		r.cfg.Logger.Info("background tracking disarmed")
	}
}

// Armed reports whether the background schedule is active.
func (r *Runner) Armed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.scheduler != nil
}

// RunOnce performs a single sampling-and-reporting cycle using the
// persisted identity. Without a stored identity the cycle cannot report
// and returns an error.
func (r *Runner) RunOnce(ctx context.Context) error {
	pos, err := r.cfg.Sampler.CurrentPosition(ctx)
	if err != nil {
		return fmt.Errorf("location fix: %w", err)
	}

	netType, err := r.cfg.Sampler.NetworkType(ctx)
	if err != nil {
		r.cfg.Logger.WithError(err).Warn("network type query failed")
		netType = location.NetworkUnknown
	}

	snap, err := r.cfg.Environment.Fetch(ctx, pos.Latitude, pos.Longitude)
	if err != nil {
		return fmt.Errorf("environment fetch: %w", err)
	}

	userID, err := r.cfg.Store.Get(ctx, identity.UserIDKey)
	if err != nil {
		return fmt.Errorf("read stored identity: %w", err)
	}

	_, err = r.cfg.Reporter.Report(ctx, report.Observation{
		GPSAccuracy:       pos.AccuracyM,
		UserID:            userID,
		IsConnectedToWifi: netType == location.NetworkWifi,
		Weather:           snap.Condition,
		Temperature:       snap.TemperatureC,
		UV:                snap.UVIndex,
		Sunrise:           timeutil.ConvertTo24Hour(snap.Sunrise),
		Sunset:            timeutil.ConvertTo24Hour(snap.Sunset),
		DeviceTime:        timeutil.FormatDeviceTime(r.cfg.Now()),
	})
	if err != nil {
		return fmt.Errorf("report observation: %w", err)
	}

	r.cfg.Logger.Debug("background observation reported")
	return nil
}
