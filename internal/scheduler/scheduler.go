// Package scheduler runs the periodic notification loop: every tick it walks
// the subscriber list, picks the ones whose local wall-clock window is due,
// computes their comparison, and pushes at most one message per subscriber per
// local day.
package scheduler

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	"github.com/ondamlab/yesterday/internal/domain"
	"github.com/ondamlab/yesterday/internal/observability"
)

// SubscriberSource lists the current subscriber set. Implemented by the
// sqlite store.
type SubscriberSource interface {
	ListSubscribers(ctx context.Context) ([]domain.Subscriber, error)
}

// Comparer computes the "now vs yesterday" result for a location.
type Comparer interface {
	CompareNow(ctx context.Context, coord domain.Coordinate, loc *time.Location) (domain.ComparisonResult, error)
}

// Pusher delivers a batch of notifications and reports how many were
// accepted by the push channel.
type Pusher interface {
	Send(ctx context.Context, batch []domain.Notification) (int, error)
}

// SendRecorder remembers per-subscriber daily sends.
type SendRecorder interface {
	AlreadySent(ctx context.Context, id, day string) (bool, error)
	RecordSent(ctx context.Context, id, day string) error
}

// Config holds the loop timing knobs.
type Config struct {
	// Interval between ticks, jittered by ±Jitter so replicas and restarts
	// don't align their provider bursts.
	Interval time.Duration
	Jitter   time.Duration
	// DueWindow is how far past a subscriber's target minute a tick still
	// counts the subscriber as due. It must be at least Interval, or target
	// times can fall between ticks and never fire.
	DueWindow time.Duration
	// Concurrency bounds the per-tick comparison fan-out.
	Concurrency int
}

// Scheduler is the notification loop. One instance runs one loop; ticks never
// overlap because the loop is a single goroutine.
type Scheduler struct {
	cfg      Config
	source   SubscriberSource
	comparer Comparer
	pusher   Pusher
	recorder SendRecorder
	logger   *slog.Logger
	metrics  *observability.Metrics
	clock    clockwork.Clock
}

// New wires a scheduler. The clock is injected so tests can drive ticks.
func New(cfg Config, source SubscriberSource, comparer Comparer, pusher Pusher, recorder SendRecorder, logger *slog.Logger, metrics *observability.Metrics, clock clockwork.Clock) *Scheduler {
	return &Scheduler{
		cfg:      cfg,
		source:   source,
		comparer: comparer,
		pusher:   pusher,
		recorder: recorder,
		logger:   logger,
		metrics:  metrics,
		clock:    clock,
	}
}

// Run executes ticks until the context is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	s.metrics.SchedulerRunning.Set(1)
	defer s.metrics.SchedulerRunning.Set(0)
	s.logger.Info("scheduler started",
		"interval", s.cfg.Interval, "jitter", s.cfg.Jitter, "due_window", s.cfg.DueWindow)

	for {
		wait := s.cfg.Interval
		if s.cfg.Jitter > 0 {
			wait += rand.N(2*s.cfg.Jitter) - s.cfg.Jitter
		}
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return nil
		case <-s.clock.After(wait):
			s.RunOnce(ctx)
		}
	}
}

// RunOnce executes a single tick. Exported for tests and for one-shot runs.
func (s *Scheduler) RunOnce(ctx context.Context) {
	start := s.clock.Now()
	s.metrics.TicksTotal.Inc()
	defer func() {
		s.metrics.TickDuration.Observe(s.clock.Since(start).Seconds())
	}()

	subs, err := s.source.ListSubscribers(ctx)
	if err != nil {
		s.logger.Error("tick aborted: listing subscribers failed", "error", err)
		return
	}

	now := domain.Now()

	var mu sync.Mutex
	var batch []domain.Notification

	g := new(errgroup.Group)
	g.SetLimit(s.cfg.Concurrency)
	for _, sub := range subs {
		g.Go(func() error {
			if n, ok := s.process(ctx, sub, now); ok {
				mu.Lock()
				batch = append(batch, n)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	if len(batch) == 0 {
		return
	}

	sent, err := s.pusher.Send(ctx, batch)
	if err != nil {
		s.logger.Error("push batch failed", "batch_size", len(batch), "sent", sent, "error", err)
	}
	if failed := len(batch) - sent; failed > 0 {
		s.metrics.SubscriberSkips.WithLabelValues("push").Add(float64(failed))
	}
	s.metrics.NotificationsSent.Add(float64(sent))
	s.logger.Info("tick complete", "subscribers", len(subs), "pushed", sent,
		"duration", s.clock.Since(start))
}

// process decides whether one subscriber gets a notification this tick and
// builds it. A false return means skip; every skip reason is counted.
func (s *Scheduler) process(ctx context.Context, sub domain.Subscriber, now time.Time) (domain.Notification, bool) {
	loc, err := sub.Location()
	if err != nil {
		s.metrics.SubscriberSkips.WithLabelValues("invalid").Inc()
		s.logger.Warn("skipping subscriber with bad timezone", "subscriber", sub.ID, "error", err)
		return domain.Notification{}, false
	}

	local := now.In(loc)
	if !Due(local, sub.Hour, sub.Minute, s.cfg.DueWindow) {
		return domain.Notification{}, false
	}
	s.metrics.SubscribersDue.Inc()

	day := local.Format("20060102")
	already, err := s.recorder.AlreadySent(ctx, sub.ID, day)
	if err != nil {
		// A record-store outage must not silence every subscriber; risk a
		// duplicate instead of a missed day.
		s.logger.Warn("send-record lookup failed, assuming not sent", "subscriber", sub.ID, "error", err)
	}
	if already {
		s.metrics.SubscriberSkips.WithLabelValues("already_sent").Inc()
		return domain.Notification{}, false
	}

	cmp, err := s.comparer.CompareNow(ctx, sub.Coordinate(), loc)
	if err != nil {
		if domain.ErrorCode(err) == "insufficient_data" {
			s.metrics.SubscriberSkips.WithLabelValues("no_data").Inc()
			s.logger.Debug("comparison has no data yet", "subscriber", sub.ID, "local_day", day)
		} else {
			s.metrics.SubscriberSkips.WithLabelValues("provider").Inc()
			s.logger.Warn("comparison failed", "subscriber", sub.ID, "error", err)
		}
		return domain.Notification{}, false
	}

	// Recorded before the push goes out. If the push then fails the subscriber
	// misses a day, which beats double-sending on a crashed tick.
	if err := s.recorder.RecordSent(ctx, sub.ID, day); err != nil {
		s.logger.Warn("recording send failed", "subscriber", sub.ID, "error", err)
	}

	title, body := cmp.Message()
	return domain.Notification{Destination: sub.Token, Title: title, Body: body}, true
}

// Due reports whether a tick at the given local time should fire for a target
// wall-clock time of hour:minute. The distance is measured forward around the
// 24-hour circle, so a target just before midnight is still caught by a tick
// just after it.
func Due(local time.Time, hour, minute int, window time.Duration) bool {
	nowMinute := local.Hour()*60 + local.Minute()
	target := hour*60 + minute
	diff := (nowMinute - target + 24*60) % (24 * 60)
	return diff < int(window.Minutes())
}
