// Package pipeline runs one feed-to-schedule conversion and, in watch mode,
// repeats it on a cron schedule.
package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"frabcal/internal/config"
	"frabcal/internal/ics"
	appLog "frabcal/internal/log"
	"frabcal/internal/markup"
	"frabcal/internal/metrics"
	"frabcal/internal/schedule"
)

// Result summarises one conversion run.
type Result struct {
	Records     int
	Occurrences int
	Suppressed  int
	Days        int
	Events      int
	Hidden      int
	Warnings    map[markup.Warning]int
	Output      string
	Range       schedule.Range
	FromCache   bool
	Duration    time.Duration
}

// Runner converts the configured feed into a schedule file.
type Runner struct {
	Config  *config.Config
	Fetcher *ics.Fetcher

	// Metrics is optional.
	Metrics *metrics.Metrics

	// Now defaults to time.Now; it anchors the "this_month" date filter.
	Now func() time.Time

	mu   sync.RWMutex
	last *Status
}

// Status is the outcome of the most recent run.
type Status struct {
	Result   Result
	Err      error
	Finished time.Time
}

// NewRunner creates a Runner for cfg.
func NewRunner(cfg *config.Config, m *metrics.Metrics) *Runner {
	return &Runner{
		Config:  cfg,
		Fetcher: ics.NewFetcher(cfg.CacheDir),
		Metrics: m,
		Now:     time.Now,
	}
}

// Run loads, parses, expands, filters and writes the schedule. Any error
// aborts the run before the output file is touched.
func (r *Runner) Run(ctx context.Context) (Result, error) {
	started := time.Now()
	res, err := r.run(ctx)
	res.Duration = time.Since(started)
	r.record(res, err)

	if err != nil {
		if r.Metrics != nil {
			r.Metrics.ObserveFailure(res.Duration)
			r.writeMetrics()
		}
		return res, err
	}

	if r.Metrics != nil {
		warnings := make(map[string]int, len(res.Warnings))
		for w, n := range res.Warnings {
			warnings[string(w)] = n
		}
		r.Metrics.ObserveRun(metrics.Counts{
			Records:     res.Records,
			Occurrences: res.Occurrences,
			Suppressed:  res.Suppressed,
			Days:        res.Days,
			Events:      res.Events,
			Warnings:    warnings,
		}, res.Duration, r.now())
		r.writeMetrics()
	}

	appLog.Info("schedule written",
		"output", res.Output,
		"range_start", res.Range.Start.String(),
		"range_end", res.Range.End.String(),
		"records", res.Records,
		"occurrences", res.Occurrences,
		"days", res.Days,
		"events", res.Events,
		"duration_ms", res.Duration.Milliseconds(),
	)
	return res, nil
}

func (r *Runner) run(ctx context.Context) (Result, error) {
	cfg := r.Config
	res := Result{Output: cfg.Output}

	idx, feed, err := r.load(ctx)
	if err != nil {
		return res, err
	}
	res.FromCache = feed.fromCache
	res.Records = feed.records
	res.Range = idx.Range()
	res.Occurrences = idx.Len()
	res.Suppressed = idx.Suppressed()

	minDate, _, err := cfg.MinDate(r.now(), idx.Range().Loc)
	if err != nil {
		return res, fmt.Errorf("resolve min date: %w", err)
	}

	doc, stats := schedule.Build(idx, schedule.BuildOptions{
		Acronym:       cfg.Conference.Acronym,
		Title:         cfg.Conference.Title,
		Venue:         cfg.Venue,
		DefaultRoom:   cfg.DefaultRoom,
		HiddenSummary: cfg.Filter.HiddenSummary,
		MinDate:       minDate,
		DayStartHour:  cfg.DayStartHour,
		DayEndHour:    cfg.DayEndHour,
	})
	res.Days = stats.Days
	res.Events = stats.Events
	res.Hidden = stats.Hidden
	res.Warnings = stats.Warnings

	if err := ctx.Err(); err != nil {
		return res, err
	}
	if err := schedule.WriteFile(cfg.Output, doc); err != nil {
		return res, err
	}
	return res, nil
}

// loadedFeed carries feed facts that the index does not keep.
type loadedFeed struct {
	fromCache bool
	records   int
}

// Index reads and parses the configured feed and returns its occurrence
// index without building or writing a schedule.
func (r *Runner) Index(ctx context.Context) (*schedule.Index, error) {
	idx, _, err := r.load(ctx)
	return idx, err
}

func (r *Runner) load(ctx context.Context) (*schedule.Index, loadedFeed, error) {
	cfg := r.Config
	var lf loadedFeed

	loc, err := cfg.Location()
	if err != nil {
		return nil, lf, fmt.Errorf("resolve timezone: %w", err)
	}

	feed, err := ics.ReadFeed(ctx, r.Fetcher, cfg.Input)
	if err != nil {
		return nil, lf, err
	}
	lf.fromCache = feed.FromCache

	records, err := ics.ParseICS(feed, loc)
	if err != nil {
		return nil, lf, err
	}
	lf.records = len(records)

	opts := schedule.RangeOptions{EndPolicy: cfg.Range.EndPolicy}
	if until, ok := cfg.Until(); ok {
		opts.Until = until
	}
	rng, err := schedule.ComputeRange(records, loc, opts)
	if err != nil {
		return nil, lf, err
	}

	idx, err := schedule.BuildIndex(records, rng)
	if err != nil {
		return nil, lf, err
	}
	return idx, lf, nil
}

// Last returns the status of the most recent run. ok is false before the
// first run has finished.
func (r *Runner) Last() (st Status, ok bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.last == nil {
		return Status{}, false
	}
	return *r.last, true
}

func (r *Runner) record(res Result, err error) {
	r.mu.Lock()
	r.last = &Status{Result: res, Err: err, Finished: r.now()}
	r.mu.Unlock()
}

func (r *Runner) now() time.Time {
	if r.Now == nil {
		return time.Now()
	}
	return r.Now()
}

func (r *Runner) writeMetrics() {
	path := r.Config.MetricsTextfile
	if path == "" {
		return
	}
	if err := r.Metrics.WriteTextfile(path); err != nil {
		appLog.Error("failed to write metrics textfile", err, "path", path)
	}
}
