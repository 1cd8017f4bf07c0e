package sweeper

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dmitrijs2005/authcore/internal/logging"
	"github.com/dmitrijs2005/authcore/internal/server/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeExpirer struct {
	n     int64
	err   error
	calls atomic.Int32
}

func (f *fakeExpirer) SweepExpired(context.Context) (int64, error) {
	f.calls.Add(1)
	if f.err != nil {
		return 0, f.err
	}
	return f.n, nil
}

func TestSweepOnce(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	otps := &fakeExpirer{n: 3}
	sessions := &fakeExpirer{n: 2}
	s := New(otps, sessions, time.Minute, m, logging.Nop{})

	res, err := s.SweepOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Result{OTPs: 3, Sessions: 2}, res)
	assert.Equal(t, 3.0, testutil.ToFloat64(m.SweepDeleted.WithLabelValues("otp")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.SweepDeleted.WithLabelValues("session")))
}

func TestSweepOnce_OneFailureDoesNotSkipTheOther(t *testing.T) {
	otps := &fakeExpirer{err: errors.New("store down")}
	sessions := &fakeExpirer{n: 4}
	s := New(otps, sessions, time.Minute, nil, logging.Nop{})

	res, err := s.SweepOnce(context.Background())
	assert.ErrorContains(t, err, "store down")
	assert.Equal(t, int64(4), res.Sessions)
	assert.Equal(t, int32(1), sessions.calls.Load())
}

func TestRun_SweepsUntilCancelled(t *testing.T) {
	otps := &fakeExpirer{}
	sessions := &fakeExpirer{}
	s := New(otps, sessions, 10*time.Millisecond, nil, logging.Nop{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	assert.Eventually(t, func() bool { return otps.calls.Load() >= 2 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
