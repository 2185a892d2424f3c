package scheduler

import (
	"log"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/airsense/airsense/internal/broadcast"
)

// Scheduler periodically pings live viewer sessions so that dead
// connections are pruned even when no readings arrive.
type Scheduler struct {
	scheduler   *gocron.Scheduler
	broadcaster *broadcast.Broadcaster
	interval    time.Duration
}

// New creates a new Scheduler.
func New(b *broadcast.Broadcaster, interval time.Duration) *Scheduler {
	s := gocron.NewScheduler(time.UTC)
	return &Scheduler{
		scheduler:   s,
		broadcaster: b,
		interval:    interval,
	}
}

// Start schedules the periodic keepalive job and starts the underlying
// scheduler.
func (s *Scheduler) Start() error {
	seconds := int(s.interval.Seconds())
	if seconds <= 0 {
		seconds = 30
	}

	_, err := s.scheduler.Every(seconds).Seconds().Do(func() {
		if n := s.broadcaster.Len(); n > 0 {
			log.Printf("scheduler: pinging %d live sessions", n)
			s.broadcaster.Ping()
		}
	})
	if err != nil {
		return err
	}

	s.scheduler.StartAsync()
	return nil
}

// Stop stops the scheduler and cancels any future jobs.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}
