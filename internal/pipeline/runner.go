package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ppiankov/cvlacsync/internal/model"
	"github.com/ppiankov/cvlacsync/internal/store"
	"github.com/ppiankov/cvlacsync/internal/worker"
)

var (
	// ErrSetup wraps schema or connectivity failures that abort a pass
	ErrSetup = errors.New("setup failed")

	// ErrList wraps failures enumerating pending items
	ErrList = errors.New("listing pending items failed")

	// ErrNoLink marks an item that has nothing to extract from
	ErrNoLink = errors.New("work item has no link")

	// ErrExtractTimeout is returned when extraction exceeds the configured bound
	ErrExtractTimeout = errors.New("extraction timed out")
)

// Extractor turns a link into structured facts
type Extractor interface {
	Extract(ctx context.Context, link string) ([]model.ExtractedFact, error)
}

// ExtractorFunc adapts a function to Extractor
type ExtractorFunc func(ctx context.Context, link string) ([]model.ExtractedFact, error)

// Extract calls f
func (f ExtractorFunc) Extract(ctx context.Context, link string) ([]model.ExtractedFact, error) {
	return f(ctx, link)
}

// Runner drives one pass over every pending work item.
// Only one Runner may operate on a store at a time; items are not claimed.
type Runner struct {
	store          store.Store
	extractor      Extractor
	workers        int
	extractTimeout time.Duration
	logger         *slog.Logger
	metrics        *Metrics
	now            func() time.Time
}

// Option configures a Runner
type Option func(*Runner)

// WithWorkers sets how many items are processed at once. 1 keeps item order.
func WithWorkers(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.workers = n
		}
	}
}

// WithExtractTimeout bounds each extract call. Zero waits forever.
func WithExtractTimeout(d time.Duration) Option {
	return func(r *Runner) {
		if d >= 0 {
			r.extractTimeout = d
		}
	}
}

// WithLogger sets the logger for per-item outcomes
func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithMetrics records pass outcomes on m
func WithMetrics(m *Metrics) Option {
	return func(r *Runner) {
		r.metrics = m
	}
}

// NewRunner creates a runner over s and e
func NewRunner(s store.Store, e Extractor, opts ...Option) *Runner {
	r := &Runner{
		store:     s,
		extractor: e,
		workers:   1,
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run performs one pass. Only setup and listing failures are returned as
// errors; per-item failures are collected in the summary.
func (r *Runner) Run(ctx context.Context) (*model.Summary, error) {
	started := r.now()

	if err := r.store.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSetup, err)
	}

	items, err := r.store.ListPending(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrList, err)
	}

	r.logger.Info("pass started", "pending", len(items), "workers", r.workers)

	results := r.processAll(ctx, items)

	summary := &model.Summary{
		Attempted: len(results),
		StartedAt: started,
	}
	for _, res := range results {
		summary.FactsPersisted += res.persisted
		if res.failure != nil {
			summary.Failed++
			summary.Failures = append(summary.Failures, *res.failure)
			continue
		}
		summary.Succeeded++
	}

	finished := r.now()
	summary.Duration = finished.Sub(started)
	r.metrics.observePass(summary, finished)

	r.logger.Info("pass finished",
		"attempted", summary.Attempted,
		"succeeded", summary.Succeeded,
		"failed", summary.Failed,
		"facts", summary.FactsPersisted,
		"duration", summary.Duration)

	return summary, nil
}

func (r *Runner) processAll(ctx context.Context, items []model.WorkItem) []itemResult {
	if r.workers <= 1 || len(items) <= 1 {
		results := make([]itemResult, 0, len(items))
		for _, item := range items {
			results = append(results, r.processItem(ctx, item))
		}
		return results
	}

	jobs := make([]worker.Job, len(items))
	for i, item := range items {
		jobs[i] = &itemJob{runner: r, item: item}
	}

	pooled := worker.NewPool(r.workers).Run(ctx, jobs)
	results := make([]itemResult, len(pooled))
	for i, res := range pooled {
		results[i] = res.(itemResult)
	}
	return results
}

// itemResult is the outcome of one work item within a pass
type itemResult struct {
	item      model.WorkItem
	persisted int
	failure   *model.ItemFailure
	elapsed   time.Duration
}

// GetError implements worker.Result
func (r itemResult) GetError() error {
	if r.failure == nil {
		return nil
	}
	return r.failure
}

type itemJob struct {
	runner *Runner
	item   model.WorkItem
}

// Execute implements worker.Job
func (j *itemJob) Execute(ctx context.Context) worker.Result {
	return j.runner.processItem(ctx, j.item)
}

// processItem runs extract, persist and mark for one item. Nothing escapes
// as a panic or error; the outcome is carried in the result.
func (r *Runner) processItem(ctx context.Context, item model.WorkItem) itemResult {
	start := r.now()
	res := itemResult{item: item}

	fail := func(stage model.Stage, err error) itemResult {
		res.failure = &model.ItemFailure{
			ItemID:  item.ID,
			Label:   item.Label,
			Stage:   stage,
			Err:     err,
			Message: err.Error(),
		}
		res.elapsed = r.now().Sub(start)
		r.metrics.observeItem(res)
		r.logger.Warn("item failed",
			"item_id", item.ID,
			"label", item.Label,
			"stage", stage,
			"err", err)
		return res
	}

	if item.Link == "" {
		return fail(model.StageExtract, ErrNoLink)
	}

	facts, err := r.extract(ctx, item.Link)
	if err != nil {
		return fail(model.StageExtract, err)
	}

	n, err := r.store.PersistFacts(ctx, model.WithParent(facts, item.ID))
	if err != nil {
		return fail(model.StagePersist, err)
	}
	res.persisted = n

	if err := r.store.MarkProcessed(ctx, item.ID); err != nil {
		return fail(model.StageMark, err)
	}

	res.elapsed = r.now().Sub(start)
	r.metrics.observeItem(res)
	r.logger.Info("item processed", "item_id", item.ID, "label", item.Label, "facts", n)
	return res
}

type extractOutcome struct {
	facts []model.ExtractedFact
	err   error
}

// extract calls the extractor with a bounded wait. An extractor that ignores
// its context is abandoned on timeout; its late result is dropped.
// Only the runner's own bound reports ErrExtractTimeout; a caller deadline or
// cancellation surfaces as the caller's context error.
func (r *Runner) extract(ctx context.Context, link string) ([]model.ExtractedFact, error) {
	if r.extractTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeoutCause(ctx, r.extractTimeout,
			fmt.Errorf("%w after %s", ErrExtractTimeout, r.extractTimeout))
		defer cancel()
	}

	done := make(chan extractOutcome, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- extractOutcome{err: fmt.Errorf("extractor panic: %v", p)}
			}
		}()
		facts, err := r.extractor.Extract(ctx, link)
		done <- extractOutcome{facts: facts, err: err}
	}()

	select {
	case out := <-done:
		if out.err != nil && ctx.Err() != nil {
			if cause := context.Cause(ctx); errors.Is(cause, ErrExtractTimeout) {
				return nil, fmt.Errorf("%w: %w", cause, out.err)
			}
		}
		return out.facts, out.err
	case <-ctx.Done():
		return nil, context.Cause(ctx)
	}
}
