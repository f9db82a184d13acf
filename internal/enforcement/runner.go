// Package enforcement schedules the rule-enforcement sweeps: re-sign
// expiries, exemption roll-backs, and blackout releases.
package enforcement

import (
	"context"
	"log"

	"github.com/robfig/cron/v3"

	"github.com/theace26/IP2A-Database-v2-sub006/internal/store"
)

// Runner drives the enforcement sweeps on a cron schedule. The sweeps
// themselves are idempotent, so at-least-once scheduling is fine.
type Runner struct {
	store    store.Store
	cron     *cron.Cron
	schedule string
}

// NewRunner creates a runner with the given cron expression.
func NewRunner(s store.Store, schedule string) *Runner {
	return &Runner{
		store:    s,
		cron:     cron.New(),
		schedule: schedule,
	}
}

// Start registers the sweep job and runs the scheduler until the context
// is cancelled.
func (r *Runner) Start(ctx context.Context) error {
	if _, err := r.cron.AddFunc(r.schedule, func() {
		r.RunAll(ctx)
	}); err != nil {
		return err
	}

	log.Printf("enforcement runner started, schedule %q", r.schedule)
	r.cron.Start()
	<-ctx.Done()
	stopCtx := r.cron.Stop()
	<-stopCtx.Done()
	log.Println("enforcement runner stopped")
	return ctx.Err()
}

// RunAll applies every sweep once and returns the results. Also used by
// the on-demand API trigger.
func (r *Runner) RunAll(ctx context.Context) []store.SweepResult {
	return runSweeps(ctx, r.store, true)
}

// PreviewAll computes every sweep without applying it.
func (r *Runner) PreviewAll(ctx context.Context) []store.SweepResult {
	return runSweeps(ctx, r.store, false)
}

func runSweeps(ctx context.Context, s store.Store, apply bool) []store.SweepResult {
	sweeps := []func(context.Context, bool) (*store.SweepResult, error){
		s.SweepReSignDeadlines,
		s.SweepExemptions,
		s.SweepBlackouts,
	}

	results := make([]store.SweepResult, 0, len(sweeps))
	for _, sweep := range sweeps {
		result, err := sweep(ctx, apply)
		if err != nil {
			log.Printf("enforcement sweep failed: %v", err)
			continue
		}
		if apply && result.Transitioned > 0 {
			log.Printf("enforcement sweep %s: %d of %d transitioned, %d errors",
				result.Sweep, result.Transitioned, result.Examined, len(result.Errors))
		}
		results = append(results, *result)
	}
	return results
}
