package maintenance

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/mossy-p/reception-signaling/internal/calls"
	"github.com/mossy-p/reception-signaling/pkg/logger"
	"github.com/mossy-p/reception-signaling/pkg/metrics"
)

const (
	defaultSchedule  = "@every 1m"
	defaultRetention = time.Hour
)

// Expirer rejects waiting calls older than maxWait and notifies the parties.
type Expirer interface {
	ExpireWaiting(ctx context.Context, maxWait time.Duration) int
}

// Queue is the part of the call queue the sweeper maintains.
type Queue interface {
	Prune(retain time.Duration) int
	ListWaiting() []calls.Call
}

// Result reports what a sweep did.
type Result struct {
	Expired int
	Pruned  int
	Waiting int
}

// Sweeper runs periodic queue maintenance: optional expiry of stale waiting
// calls, pruning of finished calls from memory, and gauge reconciliation.
type Sweeper struct {
	expirer   Expirer
	queue     Queue
	cron      *cron.Cron
	log       *zap.Logger
	maxWait   time.Duration
	retention time.Duration
	schedule  string
}

// Option customises the Sweeper.
type Option func(*Sweeper)

// WithCron injects a preconfigured cron instance, primarily for testing.
func WithCron(c *cron.Cron) Option {
	return func(s *Sweeper) {
		if c != nil {
			s.cron = c
		}
	}
}

// WithMaxWait enables expiry of calls waiting longer than d. Zero disables it.
func WithMaxWait(d time.Duration) Option {
	return func(s *Sweeper) {
		if d > 0 {
			s.maxWait = d
		}
	}
}

// WithRetention sets how long finished calls stay in memory.
func WithRetention(d time.Duration) Option {
	return func(s *Sweeper) {
		if d > 0 {
			s.retention = d
		}
	}
}

// WithSchedule overrides the cron specification for the sweep.
func WithSchedule(spec string) Option {
	return func(s *Sweeper) {
		if spec != "" {
			s.schedule = spec
		}
	}
}

// NewSweeper constructs a Sweeper. A nil expirer skips expiry.
func NewSweeper(expirer Expirer, queue Queue, opts ...Option) *Sweeper {
	s := &Sweeper{
		expirer:   expirer,
		queue:     queue,
		retention: defaultRetention,
		schedule:  defaultSchedule,
		log:       logger.WithModule("maintenance"),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.cron == nil {
		s.cron = cron.New(cron.WithLogger(cron.DiscardLogger))
	}
	return s
}

// Start registers the sweep with the scheduler and launches it.
func (s *Sweeper) Start() error {
	if _, err := s.cron.AddFunc(s.schedule, func() {
		res := s.RunOnce(context.Background())
		if res.Expired > 0 || res.Pruned > 0 {
			s.log.Info("queue sweep",
				zap.Int("expired", res.Expired),
				zap.Int("pruned", res.Pruned),
				zap.Int("waiting", res.Waiting),
			)
		}
	}); err != nil {
		return err
	}

	s.cron.Start()
	s.log.Info("maintenance scheduled",
		zap.String("schedule", s.schedule),
		zap.Duration("max_wait", s.maxWait),
		zap.Duration("retention", s.retention),
	)
	return nil
}

// Stop halts the scheduler. The returned context is done once running jobs finish.
func (s *Sweeper) Stop() context.Context {
	return s.cron.Stop()
}

// RunOnce performs a single sweep.
func (s *Sweeper) RunOnce(ctx context.Context) Result {
	var res Result
	if s.expirer != nil && s.maxWait > 0 {
		res.Expired = s.expirer.ExpireWaiting(ctx, s.maxWait)
	}
	res.Pruned = s.queue.Prune(s.retention)
	res.Waiting = len(s.queue.ListWaiting())
	metrics.WaitingCalls.Set(float64(res.Waiting))
	return res
}
