// Package healthtracker turns the outcome of repeated storage operations
// into healthz checks.
package healthtracker

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/wojas/go-healthz"
	"go.uber.org/atomic"
)

// HealthTracker counts consecutive failures of one recurring activity
type HealthTracker struct {
	Config   Config
	sequence atomic.Uint32
	since    atomic.Time
	started  atomic.Time
	ok       atomic.Bool // at least one success
	prefix   string
	activity string
	logger   logrus.FieldLogger
}

// New creates a tracker without registering any checks
func New(c Config, prefix string, activity string) *HealthTracker {
	ht := &HealthTracker{
		Config:   c.Validated(),
		prefix:   prefix,
		activity: activity,
		logger:   logrus.WithField("healthtracker", prefix),
	}
	ht.started.Store(time.Now())
	return ht
}

// Register registers the startup, sequence and duration checks with healthz
func (ht *HealthTracker) Register() {
	interval := ht.Config.EvaluationInterval
	healthz.Register(ht.prefix+"_startup", interval, ht.CheckStartup)
	healthz.Register(ht.prefix+"_failed_attempts", interval, ht.CheckSequence)
	healthz.Register(ht.prefix+"_failed_duration", interval, ht.CheckDuration)
	ht.logger.Info("registered health checks")
}

// CheckStartup fails when no attempt has succeeded within the startup grace
// period.
func (ht *HealthTracker) CheckStartup() error {
	if ht.ok.Load() {
		return nil
	}
	pending := time.Since(ht.started.Load())
	if pending >= ht.Config.StartupGrace {
		return fmt.Errorf("no successful %s after %s", ht.activity, pending.Round(time.Second))
	}
	return healthz.Warnf("first %s pending", ht.activity)
}

// CheckSequence evaluates the number of consecutive failures
func (ht *HealthTracker) CheckSequence() error {
	fails := ht.sequence.Load()
	if fails == 0 {
		return nil
	}
	if fails >= ht.Config.ErrorSequence {
		ht.logger.Warnf("%d consecutive failures is violating the error threshold (%d)", fails, ht.Config.ErrorSequence)
		return fmt.Errorf("failed to %s %d consecutive times", ht.activity, fails)
	}
	if fails >= ht.Config.WarnSequence {
		ht.logger.Warnf("%d consecutive failures is violating the warning threshold (%d)", fails, ht.Config.WarnSequence)
		return healthz.Warnf("failed to %s %d consecutive times", ht.activity, fails)
	}
	return nil
}

// CheckDuration evaluates how long the activity has been failing
func (ht *HealthTracker) CheckDuration() error {
	if ht.sequence.Load() == 0 {
		return nil
	}
	failingFor := time.Since(ht.since.Load())
	if failingFor >= ht.Config.ErrorDuration {
		ht.logger.Warnf("failure for %s is violating the error threshold (%s)", failingFor.Round(time.Second), ht.Config.ErrorDuration)
		return fmt.Errorf("failed to %s for %s", ht.activity, failingFor.Round(time.Second))
	}
	if failingFor >= ht.Config.WarnDuration {
		ht.logger.Warnf("failure for %s is violating the warning threshold (%s)", failingFor.Round(time.Second), ht.Config.WarnDuration)
		return healthz.Warnf("failed to %s for %s", ht.activity, failingFor.Round(time.Second))
	}
	return nil
}

// AddFailure records a failed attempt
func (ht *HealthTracker) AddFailure() {
	if ht.sequence.Load() == 0 {
		ht.since.Store(time.Now())
	}
	n := ht.sequence.Inc()
	ht.logger.Debugf("incremented consecutive failures to %d", n)
}

// AddSuccess records a successful attempt and resets the failure count
func (ht *HealthTracker) AddSuccess() {
	ht.sequence.Store(0)
	if !ht.ok.Swap(true) {
		ht.logger.Infof("first successful %s", ht.activity)
	}
}

// Failures returns the number of consecutive failures
func (ht *HealthTracker) Failures() uint32 {
	return ht.sequence.Load()
}
