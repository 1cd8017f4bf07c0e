// Package sweeper periodically deletes expired passcodes and sessions.
// Sweeps are idempotent, so every replica may run one.
package sweeper

import (
	"context"
	"errors"
	"time"

	"github.com/dmitrijs2005/authcore/internal/logging"
	"github.com/dmitrijs2005/authcore/internal/server/metrics"
)

// Expirer deletes its expired rows and returns how many went.
type Expirer interface {
	SweepExpired(ctx context.Context) (int64, error)
}

// Result reports one pass.
type Result struct {
	OTPs     int64
	Sessions int64
}

// Sweeper runs both sweeps on a fixed interval.
type Sweeper struct {
	otps     Expirer
	sessions Expirer
	interval time.Duration
	timeout  time.Duration
	metrics  *metrics.Metrics
	logger   logging.Logger
}

// New returns a Sweeper. Each pass is bounded by the interval.
func New(otps, sessions Expirer, interval time.Duration, m *metrics.Metrics, logger logging.Logger) *Sweeper {
	return &Sweeper{
		otps:     otps,
		sessions: sessions,
		interval: interval,
		timeout:  interval,
		metrics:  m,
		logger:   logger.With("module", "sweeper"),
	}
}

// SweepOnce runs both sweeps. A failure of one does not skip the other.
func (s *Sweeper) SweepOnce(ctx context.Context) (Result, error) {
	var res Result
	var errs []error

	n, err := s.otps.SweepExpired(ctx)
	if err != nil {
		errs = append(errs, err)
	} else {
		res.OTPs = n
		s.metrics.Swept("otp", n)
	}

	n, err = s.sessions.SweepExpired(ctx)
	if err != nil {
		errs = append(errs, err)
	} else {
		res.Sessions = n
		s.metrics.Swept("session", n)
	}

	return res, errors.Join(errs...)
}

// Run sweeps immediately and then on every tick until ctx is done.
func (s *Sweeper) Run(ctx context.Context) error {
	s.logger.Info(ctx, "Starting sweeper", "interval", s.interval.String())

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		s.pass(ctx)

		select {
		case <-ticker.C:
		case <-ctx.Done():
			s.logger.Info(ctx, "Stopping sweeper...")
			return nil
		}
	}
}

func (s *Sweeper) pass(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	res, err := s.SweepOnce(ctx)
	if err != nil {
		s.logger.Error(ctx, "sweep failed", "error", err)
	}
	if res.OTPs > 0 || res.Sessions > 0 {
		s.logger.Info(ctx, "swept expired rows", "otps", res.OTPs, "sessions", res.Sessions)
	}
}
