// Package climit limits how many containers are processed at the same time.
package climit

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

// New creates a new ConcurrencyLimit with a given limit.
// The name is used as a Prometheus label.
func New(name string, limit int, logger logrus.FieldLogger) *ConcurrencyLimit {
	if logger == nil {
		lr := logrus.New()
		lr.SetLevel(logrus.PanicLevel) // never reached
		logger = lr
	}
	logger = logger.WithField("limit_name", name)
	if limit < 1 {
		logger.Warnf("Increasing concurrency limit from %d to minimum of 1", limit)
		limit = 1
	}
	l := &ConcurrencyLimit{
		name:   name,
		labels: prometheus.Labels{"limit_name": name},
		ch:     make(chan struct{}, limit),
		log:    logger,
	}
	metricLimit.With(l.labels).Set(float64(limit))
	return l
}

// ConcurrencyLimit hands out a limited number of tokens.
// Every Token from Acquire MUST be released.
type ConcurrencyLimit struct {
	name   string
	labels prometheus.Labels
	ch     chan struct{} // holds one element per active token
	log    logrus.FieldLogger
}

// Acquire blocks until a Token is available or the context is done
func (cl *ConcurrencyLimit) Acquire(ctx context.Context) (*Token, error) {
	metricWaiting.With(cl.labels).Inc()
	defer metricWaiting.With(cl.labels).Dec()
	t0 := time.Now()
	select {
	case cl.ch <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	dt := time.Since(t0)
	metricActive.With(cl.labels).Inc()
	metricWaitingSeconds.With(cl.labels).Observe(dt.Seconds())
	cl.log.WithField("time_to_acquire", dt).Debug("Acquired token")
	return &Token{cl: cl, time: time.Now()}, nil
}

// Active returns the number of tokens currently held
func (cl *ConcurrencyLimit) Active() int {
	return len(cl.ch)
}

// Token allows the holder to proceed with a limited operation
type Token struct {
	mu   sync.Mutex
	cl   *ConcurrencyLimit
	time time.Time
}

// Release releases the Token. Calling it again is a no-op.
// It returns how long the Token was held, or 0 if it had already been released.
func (t *Token) Release() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cl == nil {
		return 0
	}
	<-t.cl.ch
	dt := time.Since(t.time)
	metricActive.With(t.cl.labels).Dec()
	metricActiveSeconds.With(t.cl.labels).Observe(dt.Seconds())
	t.cl = nil
	return dt
}
