package pipeline

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"

	appLog "frabcal/internal/log"
)

// cronLogger forwards cron's internal logging to the application logger.
type cronLogger struct{}

func (cronLogger) Info(msg string, kv ...interface{}) {
	appLog.Debug("cron: "+msg, kv...)
}

func (cronLogger) Error(err error, msg string, kv ...interface{}) {
	appLog.Error("cron: "+msg, err, kv...)
}

// Watch runs the conversion once, then again on every tick of spec until ctx
// is cancelled. A failed run is logged and the next tick retries; runs never
// overlap.
func (r *Runner) Watch(ctx context.Context, spec string) error {
	loc, err := r.Config.Location()
	if err != nil {
		return fmt.Errorf("resolve timezone: %w", err)
	}

	logger := cronLogger{}
	c := cron.New(
		cron.WithLocation(loc),
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)

	job := func() {
		if _, err := r.Run(ctx); err != nil {
			appLog.Error("conversion failed", err, "input", r.Config.Input)
		}
	}
	if _, err := c.AddFunc(spec, job); err != nil {
		return fmt.Errorf("add refresh schedule %q: %w", spec, err)
	}

	job()

	c.Start()
	appLog.Info("watching feed", "schedule", spec, "timezone", loc.String())

	<-ctx.Done()
	stopped := c.Stop()
	<-stopped.Done()
	appLog.Info("watch stopped")
	return nil
}
