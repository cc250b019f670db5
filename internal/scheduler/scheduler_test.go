package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/tabsync/internal/ops"
)

func TestNextIntervalActiveVsIdle(t *testing.T) {
	cfg := DefaultConfig()

	// recent activity -> active interval
	assert.Equal(t, cfg.ActiveIntervalMS, NextInterval(cfg, 0, 1000, 900, 0))

	// stale activity -> idle interval
	assert.Equal(t, cfg.IdleIntervalMS, NextInterval(cfg, 0, 100000, 0, 0))
}

func TestNextIntervalErrorBackoffTakesPrecedence(t *testing.T) {
	cfg := DefaultConfig()
	got := NextInterval(cfg, 1, 1000, 900, 0)
	assert.Equal(t, cfg.ErrorBackoffMS, got)
}

func TestNextIntervalQueueThresholdCapsToActive(t *testing.T) {
	cfg := DefaultConfig()
	// idle otherwise, but queue is over threshold
	got := NextInterval(cfg, 0, 100000, 0, cfg.QueueSizeThreshold+1)
	assert.Equal(t, cfg.ActiveIntervalMS, got)
}

func TestNextIntervalQueueAtThresholdDoesNotEscalate(t *testing.T) {
	cfg := DefaultConfig()
	got := NextInterval(cfg, 0, 100000, 0, cfg.QueueSizeThreshold)
	assert.Equal(t, cfg.IdleIntervalMS, got, "exactly at threshold must not trigger escalation")
}

func TestBackoffBound(t *testing.T) {
	cfg := DefaultConfig()
	for n := 1; n <= 10; n++ {
		got := Backoff(cfg, n)
		assert.GreaterOrEqual(t, got, cfg.ErrorBackoffMS)
		assert.LessOrEqual(t, got, cfg.MaxBackoffMS)
	}
	assert.Equal(t, cfg.MaxBackoffMS, Backoff(cfg, 20), "backoff must saturate at max")
}

func TestBackoffS4Scenario(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, int64(5000), Backoff(cfg, 1))
}

func TestJitteredBackoffStaysWithinBound(t *testing.T) {
	cfg := DefaultConfig()
	for n := 1; n <= 10; n++ {
		for _, frac := range []float64{0, 0.25, 0.5, 1, -1, 2} {
			got := JitteredBackoff(cfg, n, frac)
			assert.GreaterOrEqual(t, got, Backoff(cfg, n))
			assert.LessOrEqual(t, got, cfg.MaxBackoffMS)
		}
	}
}

func TestAtMostOneSyncInFlight(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ActiveIntervalMS = 5 // keep the test fast
	var inFlight int32
	var overlaps int32
	done := make(chan struct{}, 1)

	sf := func(ctx context.Context) error {
		if !atomic.CompareAndSwapInt32(&inFlight, 0, 1) {
			atomic.AddInt32(&overlaps, 1)
		}
		time.Sleep(20 * time.Millisecond)
		atomic.StoreInt32(&inFlight, 0)
		select {
		case done <- struct{}{}:
		default:
		}
		return nil
	}

	s := New(cfg, sf, nil, nil)
	s.Start()
	defer s.Stop()

	s.OnEnqueue(ops.PriorityCritical, 1)
	s.OnEnqueue(ops.PriorityCritical, 1)

	select {
	case <-done:
	case <-time.After(time.Second):
		require.Fail(t, "sync never ran")
	}

	assert.Equal(t, int32(0), atomic.LoadInt32(&overlaps), "no two syncs may overlap")
}
