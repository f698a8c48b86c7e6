package chart

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultResetSpec fires the weekly reset every Monday at 08:01 local time.
const DefaultResetSpec = "1 8 * * 1"

// Scheduler drives the weekly chart reset with a single cron entry. The
// tracker's elapsed-time guard keeps repeated fires idempotent, and
// CatchUp at login covers boundaries missed while the process was down.
type Scheduler struct {
	cron    *cron.Cron
	tracker *Tracker
	owners  func() []string
}

// NewScheduler validates spec and prepares the reset job. owners lists
// the owners whose charts are reset on each fire, typically the active
// sessions.
func NewScheduler(spec string, tracker *Tracker, owners func() []string) (*Scheduler, error) {
	if _, err := cron.ParseStandard(spec); err != nil {
		return nil, err
	}

	s := &Scheduler{
		cron:    cron.New(),
		tracker: tracker,
		owners:  owners,
	}
	if _, err := s.cron.AddFunc(spec, s.resetAll); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts the schedule and waits for a running reset to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

func (s *Scheduler) resetAll() {
	ctx := context.Background()
	now := time.Now()
	for _, owner := range s.owners() {
		reset, err := s.tracker.MaybeReset(ctx, owner, now)
		if err != nil {
			slog.Error("Scheduled chart reset failed", "owner", owner, "error", err)
			continue
		}
		if !reset {
			slog.Info("Scheduled chart reset skipped by guard", "owner", owner)
		}
	}
}
