package daemon

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"

	"git.home.luguber.info/inful/manifestd/internal/logfields"
	"git.home.luguber.info/inful/manifestd/internal/refresher"
)

// Scheduler wraps gocron to emit schedule triggers at a fixed interval.
type Scheduler struct {
	scheduler gocron.Scheduler
	enqueuer  interface {
		Enqueue(trig refresher.Trigger) error
	}
}

// NewScheduler creates a scheduler that enqueues a schedule trigger every
// interval.
func NewScheduler(enqueuer interface {
	Enqueue(trig refresher.Trigger) error
}, interval time.Duration) (*Scheduler, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("create gocron scheduler: %w", err)
	}

	sched := &Scheduler{scheduler: s, enqueuer: enqueuer}
	_, err = s.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(sched.tick),
		gocron.WithName("scheduled-refresh"),
	)
	if err != nil {
		return nil, fmt.Errorf("create refresh job: %w", err)
	}
	return sched, nil
}

// Start begins the scheduler.
func (s *Scheduler) Start() {
	slog.Info("Starting scheduler")
	s.scheduler.Start()
}

// Stop gracefully shuts down the scheduler.
func (s *Scheduler) Stop() error {
	slog.Info("Stopping scheduler")
	return s.scheduler.Shutdown()
}

func (s *Scheduler) tick() {
	trig := refresher.ScheduleTrigger()
	slog.Debug("Scheduled refresh tick")
	if err := s.enqueuer.Enqueue(trig); err != nil {
		slog.Warn("Failed to enqueue scheduled refresh", logfields.Error(err))
	}
}
