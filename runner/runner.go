// Package runner drives the per-source scrape lifecycle: create the run
// row, collect the batch, upsert it and finalize the run. A failure in one
// source never aborts the others.
package runner

import (
	"context"
	"log/slog"
	"time"

	"github.com/aluiziolira/agenda-events/config"
	"github.com/aluiziolira/agenda-events/models"
	"github.com/aluiziolira/agenda-events/normalize"
	"github.com/aluiziolira/agenda-events/pipeline"
	"github.com/aluiziolira/agenda-events/scraper"
)

// Store is the durable side of the pipeline. The implementation must
// enforce the (source, external_id) conflict key for UpsertEvents to be
// idempotent.
type Store interface {
	CreateRun(ctx context.Context, source models.Source, city string) (string, error)
	FinalizeRun(ctx context.Context, runID string, status models.RunStatus, metrics models.RunMetrics, errMsg string) error
	UpsertEvents(ctx context.Context, events []*models.Event) (int, error)
}

// Outcome summarizes one source's run.
type Outcome struct {
	Source  models.Source
	RunID   string
	Status  models.RunStatus
	Metrics models.RunMetrics
	Err     error
}

// Runner executes sources sequentially against one store.
type Runner struct {
	store Store
	cfg   *config.Config
	now   func() time.Time
}

// New builds a runner.
func New(store Store, cfg *config.Config) *Runner {
	return &Runner{store: store, cfg: cfg, now: time.Now}
}

// RunAll processes every source in order, isolating failures: each
// source's run is created and finalized independently, and a failed source
// only logs before the next one starts.
func (r *Runner) RunAll(ctx context.Context, sources []scraper.Source) []Outcome {
	outcomes := make([]Outcome, 0, len(sources))
	for _, src := range sources {
		outcome := r.runOne(ctx, src)
		outcomes = append(outcomes, outcome)

		if outcome.Err != nil {
			slog.Error("scrape_failed",
				slog.String("source", string(outcome.Source)),
				slog.String("run_id", outcome.RunID),
				slog.Any("error", outcome.Err),
			)
		} else {
			slog.Info("scrape_success",
				slog.String("source", string(outcome.Source)),
				slog.String("run_id", outcome.RunID),
				slog.Int("fetched", outcome.Metrics.Fetched),
				slog.Int("valid", outcome.Metrics.Valid),
				slog.Int("invalid", outcome.Metrics.Invalid),
				slog.Int("upserted", outcome.Metrics.Upserted),
			)
		}
	}
	return outcomes
}

func (r *Runner) runOne(ctx context.Context, src scraper.Source) Outcome {
	outcome := Outcome{Source: src.Name()}

	runID, err := r.store.CreateRun(ctx, src.Name(), r.cfg.City)
	if err != nil {
		outcome.Status = models.RunFailed
		outcome.Err = err
		return outcome
	}
	outcome.RunID = runID

	collector := pipeline.NewCollector(normalize.RunInput{
		Source:    src.Name(),
		City:      r.cfg.City,
		UntilDays: r.cfg.UntilDays,
	}, src.Windowed(), r.now())

	if err := src.Fetch(ctx, collector.Add); err != nil {
		return r.finalize(ctx, outcome, models.RunFailed, collector.Metrics(), err)
	}

	metrics := collector.Metrics()
	upserted, err := r.store.UpsertEvents(ctx, collector.Events())
	if err != nil {
		return r.finalize(ctx, outcome, models.RunFailed, metrics, err)
	}
	metrics.Upserted = upserted

	return r.finalize(ctx, outcome, models.RunSuccess, metrics, nil)
}

// finalize records the terminal state. A finalize error on a successful
// run still fails the outcome: the run row would otherwise stay running
// forever with no metrics.
func (r *Runner) finalize(ctx context.Context, outcome Outcome, status models.RunStatus, metrics models.RunMetrics, runErr error) Outcome {
	outcome.Status = status
	outcome.Metrics = metrics
	outcome.Err = runErr

	errMsg := ""
	if runErr != nil {
		errMsg = runErr.Error()
	}
	if err := r.store.FinalizeRun(ctx, outcome.RunID, status, metrics, errMsg); err != nil {
		if outcome.Err == nil {
			outcome.Err = err
			outcome.Status = models.RunFailed
		}
		slog.Error("finalize run failed",
			slog.String("source", string(outcome.Source)),
			slog.String("run_id", outcome.RunID),
			slog.Any("error", err),
		)
	}
	return outcome
}
