// Package scheduler computes the next sync deadline from recent activity,
// error history, and queue depth, and arms the two independent timers
// (periodic next-sync, one-shot batch flush) that drive the sync engine.
package scheduler

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/teranos/tabsync/internal/ops"
	"github.com/teranos/tabsync/internal/util"
)

// Config holds the fixed tuning defaults. Overridable via internal/config
// for operational tuning, but the field names and defaults below match
// the component design exactly.
type Config struct {
	ActiveIntervalMS   int64
	IdleIntervalMS     int64
	ErrorBackoffMS     int64
	MaxBackoffMS       int64
	ActivityThresholdMS int64
	QueueSizeThreshold int
	MaxQueueSize       int
	BatchDelaysMS      map[ops.Priority]int64
}

// DefaultConfig returns the spec's fixed defaults.
func DefaultConfig() Config {
	return Config{
		ActiveIntervalMS:    1000,
		IdleIntervalMS:      10000,
		ErrorBackoffMS:      5000,
		MaxBackoffMS:        60000,
		ActivityThresholdMS: 30000,
		QueueSizeThreshold:  50,
		MaxQueueSize:        1000,
		BatchDelaysMS: map[ops.Priority]int64{
			ops.PriorityCritical: 50,
			ops.PriorityHigh:     200,
			ops.PriorityNormal:   500,
			ops.PriorityLow:      1000,
		},
	}
}

// NextInterval implements the interval selection algorithm from the
// component design, as a pure function so it is unit-testable without a
// running timer. now, lastActivity are unix milliseconds.
func NextInterval(cfg Config, consecutiveErrors int, now, lastActivity int64, queueLength int) int64 {
	var interval int64
	switch {
	case consecutiveErrors > 0:
		interval = Backoff(cfg, consecutiveErrors)
	case now-lastActivity < cfg.ActivityThresholdMS:
		interval = cfg.ActiveIntervalMS
	default:
		interval = cfg.IdleIntervalMS
	}

	if queueLength > cfg.QueueSizeThreshold && interval > cfg.ActiveIntervalMS {
		interval = cfg.ActiveIntervalMS
	}

	return interval
}

// Backoff computes min(error_backoff_ms * 2^(n-1), max_backoff_ms) for
// n consecutive errors, n >= 1. Exposed standalone so the exponential
// bound (testable property 6) can be checked without driving a timer.
func Backoff(cfg Config, consecutiveErrors int) int64 {
	if consecutiveErrors < 1 {
		return cfg.ErrorBackoffMS
	}
	shift := consecutiveErrors - 1
	if shift > 62 { // guard against overflow; backoff saturates at MaxBackoffMS long before this
		shift = 62
	}
	backoff := cfg.ErrorBackoffMS << uint(shift)
	if backoff > cfg.MaxBackoffMS || backoff < 0 {
		backoff = cfg.MaxBackoffMS
	}
	return backoff
}

// JitteredBackoff adds up to 10% positive jitter on top of Backoff, so
// many devices backing off from a simultaneous outage don't all retry
// in lockstep. jitterFrac is typically rand.Float64() (so in [0,1));
// callers passing an out-of-range value are clamped defensively.
// Jitter is purely additive and capped at MaxBackoffMS, so the result
// still satisfies testable property 6's bound.
func JitteredBackoff(cfg Config, consecutiveErrors int, jitterFrac float64) int64 {
	base := Backoff(cfg, consecutiveErrors)
	jitterFrac = util.AbsFloat64(jitterFrac)
	if jitterFrac > 1 {
		jitterFrac = 1
	}
	jittered := base + int64(float64(base)*0.1*jitterFrac)
	if jittered > cfg.MaxBackoffMS {
		jittered = cfg.MaxBackoffMS
	}
	return jittered
}

// SyncFunc performs one sync exchange. Implemented by the sync engine.
type SyncFunc func(ctx context.Context) error

// NowFunc returns the current wall-clock reading in unix milliseconds.
// Injectable for deterministic tests, mirroring the teacher's
// NewLimiterWithClock pattern.
type NowFunc func() int64

func defaultNow() int64 { return time.Now().UnixMilli() }

// Scheduler owns the two timers described in §4.5 and arms/cancels them
// as enqueues and sync outcomes occur. It does not itself hold the
// queue or clock; it is driven by OnEnqueue/RecordActivity calls from the
// engine wiring code, calls SyncFunc when a timer fires, and records the
// error streak itself from SyncFunc's result.
type Scheduler struct {
	cfg Config
	log *zap.SugaredLogger
	now NowFunc
	sf  SyncFunc

	mu                sync.Mutex
	consecutiveErrors int
	lastActivity      int64
	queueLength       int
	syncing           bool

	periodicTimer *time.Timer
	batchTimer    *time.Timer
	batchPriority ops.Priority
	batchArmed    bool

	guard *rate.Limiter

	stopped bool
}

// New constructs a Scheduler. log may be nil (a no-op logger is used);
// now defaults to wall-clock time if nil.
func New(cfg Config, sf SyncFunc, log *zap.SugaredLogger, now NowFunc) *Scheduler {
	if now == nil {
		now = defaultNow
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	s := &Scheduler{
		cfg:          cfg,
		log:          log,
		now:          now,
		sf:           sf,
		lastActivity: now(),
		// the guard caps sync attempts at one per active_interval_ms even
		// under a timer storm (rapid reschedules from clock skew); it is a
		// safety net layered on top of, not a replacement for, the interval
		// algorithm above.
		guard: rate.NewLimiter(rate.Every(time.Duration(cfg.ActiveIntervalMS)*time.Millisecond), 1),
	}
	return s
}

// Start arms the periodic timer for the first time.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = false
	s.rescheduleLocked()
}

// Stop cancels both timers. A sync already in flight runs to completion.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	if s.periodicTimer != nil {
		s.periodicTimer.Stop()
	}
	if s.batchTimer != nil {
		s.batchTimer.Stop()
		s.batchArmed = false
	}
}

// RecordActivity updates last_activity_time, used by the interval
// algorithm's active-vs-idle branch.
func (s *Scheduler) RecordActivity() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActivity = s.now()
}

// OnEnqueue is called by the engine wiring on every queue.Enqueue, with
// the resulting queue length and the enqueued operation's priority. It
// implements the batch-flush arming rule and the queue-threshold
// escalation rule.
func (s *Scheduler) OnEnqueue(priority ops.Priority, queueLength int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastActivity = s.now()
	s.queueLength = queueLength

	if queueLength > s.cfg.QueueSizeThreshold && !s.syncing {
		s.cancelTimersLocked()
		s.triggerLocked()
		return
	}

	if s.batchArmed && priority >= s.batchPriority {
		// lower-or-equal priority while a batch timer is pending: no re-arm
		return
	}

	s.armBatchLocked(priority)
}

func (s *Scheduler) armBatchLocked(priority ops.Priority) {
	if s.batchTimer != nil {
		s.batchTimer.Stop()
	}
	delay := s.cfg.BatchDelaysMS[priority]
	s.batchPriority = priority
	s.batchArmed = true
	s.batchTimer = time.AfterFunc(time.Duration(delay)*time.Millisecond, func() {
		s.mu.Lock()
		s.batchArmed = false
		s.mu.Unlock()
		s.triggerFromTimer()
	})
}

func (s *Scheduler) cancelTimersLocked() {
	if s.periodicTimer != nil {
		s.periodicTimer.Stop()
	}
	if s.batchTimer != nil {
		s.batchTimer.Stop()
		s.batchArmed = false
	}
}

// rescheduleLocked computes the next interval and arms the periodic
// timer. Caller must hold mu.
func (s *Scheduler) rescheduleLocked() {
	if s.stopped {
		return
	}
	if s.periodicTimer != nil {
		s.periodicTimer.Stop()
	}
	interval := NextInterval(s.cfg, s.consecutiveErrors, s.now(), s.lastActivity, s.queueLength)
	// jitter only applies to the pure error-backoff branch; if the queue
	// escalation already capped the interval down to active_interval_ms,
	// jittering it back up would defeat that escalation.
	if s.consecutiveErrors > 0 && s.queueLength <= s.cfg.QueueSizeThreshold {
		interval = JitteredBackoff(s.cfg, s.consecutiveErrors, rand.Float64())
	}
	s.periodicTimer = time.AfterFunc(time.Duration(interval)*time.Millisecond, s.triggerFromTimer)
}

func (s *Scheduler) triggerFromTimer() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.triggerLocked()
	s.mu.Unlock()
}

// triggerLocked runs the sync exchange. Caller holds mu on entry; it is
// released while the exchange runs so enqueues aren't blocked, then
// re-acquired to record the outcome and reschedule.
func (s *Scheduler) triggerLocked() {
	if s.syncing {
		return
	}
	s.syncing = true
	s.mu.Unlock()

	if err := s.guard.Wait(context.Background()); err != nil {
		s.log.Warnw("scheduler guard wait failed", "error", err)
	}

	err := s.sf(context.Background())

	s.mu.Lock()
	s.syncing = false
	if err != nil {
		s.consecutiveErrors++
		s.log.Warnw("sync failed", "consecutive_errors", s.consecutiveErrors, "error", err)
	} else {
		s.consecutiveErrors = 0
	}
	s.rescheduleLocked()
}

// ForceSync cancels both timers and triggers a sync immediately,
// regardless of queue depth or the current interval. Used by the
// UNTRACK_WINDOW control message (§6.1), which forces a sync so the
// untrack propagates promptly when other windows remain tracked.
func (s *Scheduler) ForceSync() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.cancelTimersLocked()
	s.triggerLocked()
	s.mu.Unlock()
}

// ConsecutiveErrors returns the current error streak, for status reporting.
func (s *Scheduler) ConsecutiveErrors() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.consecutiveErrors
}

// NextIntervalMS reports the interval that would be used if rescheduled
// right now, for status reporting.
func (s *Scheduler) NextIntervalMS() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return NextInterval(s.cfg, s.consecutiveErrors, s.now(), s.lastActivity, s.queueLength)
}
