// Package refresh re-requests the Item Service catalog on a cron schedule,
// on top of the refresh that happens on every reconnect.
package refresh

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	robfigcron "github.com/robfig/cron/v3"
)

// Refresher queues a catalog refresh without blocking.
type Refresher interface {
	RequestRefresh()
}

// Scheduler fires Refresher on a standard cron expression or descriptor
// such as "@every 10m" or "@hourly".
type Scheduler struct {
	spec     string
	schedule robfigcron.Schedule
	target   Refresher
	log      *slog.Logger
	robfig   *robfigcron.Cron
}

// NewScheduler validates spec. An empty spec yields a disabled scheduler.
func NewScheduler(spec string, target Refresher, log *slog.Logger) (*Scheduler, error) {
	if log == nil {
		log = slog.Default()
	}
	s := &Scheduler{
		spec:   strings.TrimSpace(spec),
		target: target,
		log:    log,
		robfig: robfigcron.New(),
	}
	if s.spec == "" {
		return s, nil
	}
	sched, err := robfigcron.ParseStandard(s.spec)
	if err != nil {
		return nil, fmt.Errorf("refresh schedule %q: %w", s.spec, err)
	}
	s.schedule = sched
	return s, nil
}

// Enabled reports whether a schedule is configured.
func (s *Scheduler) Enabled() bool { return s.schedule != nil }

// Start runs the schedule until ctx is cancelled. A disabled scheduler
// returns nil immediately.
func (s *Scheduler) Start(ctx context.Context) error {
	if !s.Enabled() {
		s.log.Debug("refresh: no schedule configured")
		return nil
	}

	s.robfig.Schedule(s.schedule, robfigcron.FuncJob(func() {
		s.log.Debug("refresh: scheduled catalog refresh")
		s.target.RequestRefresh()
	}))
	s.robfig.Start()
	s.log.Info("refresh: started", "schedule", s.spec)

	<-ctx.Done()
	<-s.robfig.Stop().Done()
	return ctx.Err()
}
