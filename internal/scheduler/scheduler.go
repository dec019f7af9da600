package scheduler

import (
	"context"
	"time"

	"polyagent/internal/logger"
)

// Scheduler runs a task every Interval until its context is cancelled.
// With Align set, ticks land on wall-clock multiples of Interval plus Offset;
// otherwise the next tick is Interval after the previous task returned.
type Scheduler struct {
	Interval       time.Duration
	Offset         time.Duration
	Align          bool
	RunImmediately bool

	ctx   context.Context
	nowFn func() time.Time
}

func New(ctx context.Context, interval time.Duration) *Scheduler {
	if ctx == nil {
		ctx = context.Background()
	}
	return &Scheduler{
		Interval: interval,
		ctx:      ctx,
		nowFn:    time.Now,
	}
}

// Start blocks until the context is done. The task receives the scheduler context.
func (s *Scheduler) Start(task func(ctx context.Context)) {
	if s == nil {
		return
	}
	if task == nil {
		logger.Warnf("Scheduler: task is nil, exit")
		return
	}
	if s.Interval <= 0 {
		logger.Warnf("Scheduler: invalid interval=%s, exit", s.Interval)
		return
	}
	if s.Offset < 0 {
		logger.Warnf("Scheduler: negative offset=%s, clamp to 0", s.Offset)
		s.Offset = 0
	}
	if s.ctx == nil {
		s.ctx = context.Background()
	}
	if s.nowFn == nil {
		s.nowFn = time.Now
	}

	startAt := s.nowFn().UTC()
	logger.Infof("Scheduler: started interval=%s offset=%s align=%v run_immediately=%v at=%s",
		s.Interval, s.Offset, s.Align, s.RunImmediately, startAt.Format(time.RFC3339))

	if s.RunImmediately {
		if s.ctx.Err() != nil {
			return
		}
		task(s.ctx)
	}

	for {
		now := s.nowFn().UTC()
		wakeAt, wait := s.nextWake(now)
		logger.Debugf("Scheduler: next run at=%s (in %s) uptime=%s",
			wakeAt.Format(time.RFC3339), wait.Truncate(time.Millisecond), now.Sub(startAt).Truncate(time.Second))

		if wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-s.ctx.Done():
				timer.Stop()
				logger.Infof("Scheduler: ctx done, exit")
				return
			case <-timer.C:
			}
		} else if s.ctx.Err() != nil {
			logger.Infof("Scheduler: ctx done, exit")
			return
		}
		task(s.ctx)
	}
}

func (s *Scheduler) nextWake(now time.Time) (wakeAt time.Time, wait time.Duration) {
	now = now.UTC()
	if !s.Align {
		wakeAt = now.Add(s.Interval)
		return wakeAt, s.Interval
	}
	nextClose := now.Truncate(s.Interval).Add(s.Interval)
	wakeAt = nextClose.Add(s.Offset)
	return wakeAt, wakeAt.Sub(now)
}
