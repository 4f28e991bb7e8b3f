package service

import (
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// cronParser accepts 5-field expressions, an optional seconds field and
// descriptors such as "@every 1m".
var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// Sweeper runs SweepIdle on a cron schedule.
type Sweeper struct {
	svc      *Service
	schedule string
	cron     *cron.Cron
}

// NewSweeper validates schedule and returns a stopped sweeper.
func NewSweeper(svc *Service, schedule string) (*Sweeper, error) {
	c := cron.New(cron.WithParser(cronParser))
	sw := &Sweeper{svc: svc, schedule: schedule, cron: c}
	if _, err := c.AddFunc(schedule, sw.tick); err != nil {
		return nil, fmt.Errorf("invalid sweep schedule %q: %w", schedule, err)
	}
	return sw, nil
}

func (sw *Sweeper) tick() {
	n := sw.svc.SweepIdle(sw.svc.now())
	slog.Debug("idle sweep finished", "evicted", n)
}

// Start starts the cron ticker.
func (sw *Sweeper) Start() {
	slog.Info("idle sweep scheduled", "schedule", sw.schedule, "idle_timeout", sw.svc.config.IdleTimeout)
	sw.cron.Start()
}

// Stop stops the ticker and waits for a running sweep.
func (sw *Sweeper) Stop() {
	<-sw.cron.Stop().Done()
}
