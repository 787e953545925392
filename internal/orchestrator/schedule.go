package orchestrator

import (
	"context"

	"github.com/robfig/cron/v3"
)

// Scheduler runs the dependency-analyzer sweep on a cron expression instead
// of (or in addition to) the main loop's DepSweepEvery ticker, for
// deployments that want the sweep pinned to a wall-clock cadence (e.g.
// "only outside business hours"). Grounded in cloud-shuttle-drover's use of
// robfig/cron/v3 for its own background sweep jobs.
type Scheduler struct {
	cron *cron.Cron
	id   cron.EntryID
}

// NewScheduler builds a Scheduler that, once Start is called, invokes
// o.sweepDeps(ctx) on every match of spec (standard 5-field cron syntax).
func NewScheduler(o *Orchestrator, ctx context.Context, spec string) (*Scheduler, error) {
	c := cron.New()
	id, err := c.AddFunc(spec, func() {
		if err := o.sweepDeps(ctx); err != nil {
			o.log("scheduled dependency sweep failed", "error", err)
		}
	})
	if err != nil {
		return nil, err
	}
	return &Scheduler{cron: c, id: id}, nil
}

// Start begins running scheduled jobs in the background.
func (s *Scheduler) Start() { s.cron.Start() }

// Stop cancels the schedule and waits for any running job to finish.
func (s *Scheduler) Stop() { <-s.cron.Stop().Done() }
