package tasks

import (
	"context"
	"log/slog"
	"time"
)

// PeriodicJob reruns one named job on a fixed interval. Used for the daily
// fleet scan and the 6-hourly alert sweep; both are fire-and-forget and
// report only aggregate counts.
type PeriodicJob struct {
	name     string
	interval time.Duration
	run      func(ctx context.Context) (int, error)
}

func NewPeriodicJob(name string, interval time.Duration, run func(ctx context.Context) (int, error)) *PeriodicJob {
	return &PeriodicJob{name: name, interval: interval, run: run}
}

// Start runs the job once immediately, then on every tick until the context
// is cancelled.
func (p *PeriodicJob) Start(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	slog.Info("[Scheduler] Starting periodic job",
		"job", p.name,
		"interval", p.interval,
	)

	p.runOnce(ctx)

	for {
		select {
		case <-ticker.C:
			p.runOnce(ctx)
		case <-ctx.Done():
			slog.Info("[Scheduler] Stopping (context cancelled)", "job", p.name)
			return nil
		}
	}
}

func (p *PeriodicJob) runOnce(ctx context.Context) {
	count, err := p.run(ctx)
	if err != nil {
		slog.Error("[Scheduler] Periodic job failed",
			"job", p.name,
			"error", err,
		)
		return
	}
	slog.Info("[Scheduler] Periodic job complete",
		"job", p.name,
		"count", count,
	)
}
