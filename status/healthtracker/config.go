package healthtracker

import (
	"fmt"
	"time"
)

const (
	// MinEvaluationInterval is the minimum interval allowed between healthz evaluation
	MinEvaluationInterval = time.Second

	// MinErrorDuration is the minimum duration before healthz evaluates a tracked item as failing
	MinErrorDuration = 0 * time.Second

	// MinWarnDuration is the minimum duration before healthz evaluates a tracked item as warning
	MinWarnDuration = 0 * time.Second
)

// Config configures when consecutive storage failures turn the health
// checks into warnings or errors.
type Config struct {
	EvaluationInterval time.Duration `yaml:"interval"`
	ErrorDuration      time.Duration `yaml:"error_duration"`
	WarnDuration       time.Duration `yaml:"warn_duration"`
	ErrorSequence      uint32        `yaml:"error_sequence"`
	WarnSequence       uint32        `yaml:"warn_sequence"`
	StartupGrace       time.Duration `yaml:"startup_grace"` // Before the first success is required
}

// DefaultConfig is used when the config file has no health section
var DefaultConfig = Config{
	EvaluationInterval: 5 * time.Second,
	ErrorDuration:      5 * time.Minute,
	WarnDuration:       30 * time.Second,
	ErrorSequence:      10,
	WarnSequence:       3,
	StartupGrace:       time.Minute,
}

// Check validates the thresholds
func (c Config) Check() error {
	if c.WarnSequence > c.ErrorSequence {
		return fmt.Errorf("warn_sequence (%d) is larger than error_sequence (%d)",
			c.WarnSequence, c.ErrorSequence)
	}
	if c.WarnDuration > c.ErrorDuration {
		return fmt.Errorf("warn_duration (%s) is longer than error_duration (%s)",
			c.WarnDuration, c.ErrorDuration)
	}
	return nil
}

// Validated returns a copy with the minimum values enforced
func (c Config) Validated() Config {
	if c.EvaluationInterval < MinEvaluationInterval {
		c.EvaluationInterval = MinEvaluationInterval
	}
	if c.ErrorDuration < MinErrorDuration {
		c.ErrorDuration = MinErrorDuration
	}
	if c.WarnDuration < MinWarnDuration {
		c.WarnDuration = MinWarnDuration
	}
	return c
}
