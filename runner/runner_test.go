package runner

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/aluiziolira/agenda-events/config"
	"github.com/aluiziolira/agenda-events/models"
	"github.com/aluiziolira/agenda-events/scraper"
)

// memoryStore keeps events keyed on (source, external_id), mirroring the
// database conflict key so upsert idempotence is observable in tests.
type memoryStore struct {
	events map[string]*models.Event
	runs   map[string]*models.ScrapeRun

	createErr   error
	upsertErr   error
	finalizeErr error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		events: make(map[string]*models.Event),
		runs:   make(map[string]*models.ScrapeRun),
	}
}

func (s *memoryStore) CreateRun(_ context.Context, source models.Source, city string) (string, error) {
	if s.createErr != nil {
		return "", s.createErr
	}
	id := fmt.Sprintf("run-%d", len(s.runs)+1)
	s.runs[id] = &models.ScrapeRun{
		ID:        id,
		Source:    source,
		City:      city,
		Status:    models.RunRunning,
		StartedAt: time.Now(),
	}
	return id, nil
}

func (s *memoryStore) FinalizeRun(_ context.Context, runID string, status models.RunStatus, metrics models.RunMetrics, errMsg string) error {
	if s.finalizeErr != nil {
		return s.finalizeErr
	}
	run, ok := s.runs[runID]
	if !ok {
		return fmt.Errorf("unknown run %q", runID)
	}
	run.Status = status
	run.Metrics = metrics
	run.ErrorMessage = errMsg
	ended := time.Now()
	run.EndedAt = &ended
	return nil
}

func (s *memoryStore) UpsertEvents(_ context.Context, events []*models.Event) (int, error) {
	if s.upsertErr != nil {
		return 0, s.upsertErr
	}
	for _, ev := range events {
		s.events[string(ev.Source)+"/"+ev.ExternalID] = ev
	}
	return len(events), nil
}

// stubSource emits a fixed set of raw candidates.
type stubSource struct {
	name       models.Source
	candidates []map[string]any
	fetchErr   error
}

func (s *stubSource) Name() models.Source { return s.name }
func (s *stubSource) Windowed() bool      { return false }

func (s *stubSource) Fetch(_ context.Context, emit scraper.EmitFunc) error {
	for _, c := range s.candidates {
		emit(c)
	}
	return s.fetchErr
}

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.DatabaseURL = "postgres://test"
	return cfg
}

func TestRunAllSuccess(t *testing.T) {
	store := newMemoryStore()
	r := New(store, testConfig())

	src := &stubSource{
		name: models.SourceElCabong,
		candidates: []map[string]any{
			{"title": "Noite de Rock", "date_text": "11/12/2026 - 21:00"},
			{"title": "Samba da Feira", "date_text": "12/12/2026"},
			{"title": "Sem Data", "date_text": "em breve"},
		},
	}

	outcomes := r.RunAll(context.Background(), []scraper.Source{src})
	if len(outcomes) != 1 {
		t.Fatalf("got %d outcomes, want 1", len(outcomes))
	}

	out := outcomes[0]
	if out.Err != nil {
		t.Fatalf("unexpected error: %v", out.Err)
	}
	if out.Status != models.RunSuccess {
		t.Errorf("status = %q, want %q", out.Status, models.RunSuccess)
	}
	if out.Metrics.Fetched != 3 || out.Metrics.Valid != 2 || out.Metrics.Invalid != 1 || out.Metrics.Upserted != 2 {
		t.Errorf("metrics = %+v, want fetched=3 valid=2 invalid=1 upserted=2", out.Metrics)
	}

	run := store.runs[out.RunID]
	if run == nil {
		t.Fatal("run row not recorded")
	}
	if run.Status != models.RunSuccess {
		t.Errorf("persisted status = %q, want success", run.Status)
	}
	if run.Metrics != out.Metrics {
		t.Errorf("persisted metrics = %+v, want %+v", run.Metrics, out.Metrics)
	}
	if run.ErrorMessage != "" {
		t.Errorf("success run should have no error message, got %q", run.ErrorMessage)
	}
	if run.EndedAt == nil {
		t.Fatal("finalized run must record ended_at")
	}
	if run.EndedAt.Before(run.StartedAt) {
		t.Errorf("ended_at %v precedes started_at %v", run.EndedAt, run.StartedAt)
	}
	if len(store.events) != 2 {
		t.Errorf("store has %d events, want 2", len(store.events))
	}
}

func TestRunAllFetchFailure(t *testing.T) {
	store := newMemoryStore()
	r := New(store, testConfig())

	fetchErr := errors.New("connection reset")
	src := &stubSource{name: models.SourceSympla, fetchErr: fetchErr}

	out := r.RunAll(context.Background(), []scraper.Source{src})[0]
	if !errors.Is(out.Err, fetchErr) {
		t.Fatalf("outcome error = %v, want %v", out.Err, fetchErr)
	}
	if out.Status != models.RunFailed {
		t.Errorf("status = %q, want failed", out.Status)
	}

	run := store.runs[out.RunID]
	if run == nil || run.Status != models.RunFailed {
		t.Fatalf("run row not finalized as failed: %+v", run)
	}
	if run.ErrorMessage != "connection reset" {
		t.Errorf("error message = %q", run.ErrorMessage)
	}
	if run.EndedAt == nil || run.EndedAt.Before(run.StartedAt) {
		t.Errorf("failed run must still close its timestamps: ended_at=%v started_at=%v", run.EndedAt, run.StartedAt)
	}
}

func TestRunAllCreateRunFailure(t *testing.T) {
	store := newMemoryStore()
	store.createErr = errors.New("database unavailable")
	r := New(store, testConfig())

	out := r.RunAll(context.Background(), []scraper.Source{
		&stubSource{name: models.SourceSympla},
	})[0]

	if out.Err == nil || out.Status != models.RunFailed {
		t.Fatalf("outcome = %+v, want failed with error", out)
	}
	if out.RunID != "" {
		t.Errorf("run id should be empty when creation failed, got %q", out.RunID)
	}
}

func TestRunAllIsolatesFailures(t *testing.T) {
	store := newMemoryStore()
	r := New(store, testConfig())

	failing := &stubSource{name: models.SourceSympla, fetchErr: errors.New("403 Forbidden")}
	healthy := &stubSource{
		name: models.SourceElCabong,
		candidates: []map[string]any{
			{"title": "Noite de Rock", "date_text": "11/12/2026 - 21:00"},
		},
	}

	outcomes := r.RunAll(context.Background(), []scraper.Source{failing, healthy})
	if len(outcomes) != 2 {
		t.Fatalf("got %d outcomes, want 2", len(outcomes))
	}
	if outcomes[0].Err == nil {
		t.Error("first source should have failed")
	}
	if outcomes[1].Err != nil {
		t.Errorf("second source should have run: %v", outcomes[1].Err)
	}
	if len(store.events) != 1 {
		t.Errorf("store has %d events, want 1 from the healthy source", len(store.events))
	}
}

func TestRunAllFinalizeErrorFailsOutcome(t *testing.T) {
	store := newMemoryStore()
	store.finalizeErr = errors.New("write timeout")
	r := New(store, testConfig())

	out := r.RunAll(context.Background(), []scraper.Source{
		&stubSource{name: models.SourceElCabong},
	})[0]

	if out.Err == nil || out.Status != models.RunFailed {
		t.Fatalf("finalize failure must fail the outcome: %+v", out)
	}
}

func TestUpsertIsIdempotentAcrossRuns(t *testing.T) {
	store := newMemoryStore()
	r := New(store, testConfig())

	first := &stubSource{
		name: models.SourceElCabong,
		candidates: []map[string]any{
			{"title": "Noite de Rock", "date_text": "11/12/2026 - 21:00", "location": "Portão Velho"},
		},
	}
	second := &stubSource{
		name: models.SourceElCabong,
		candidates: []map[string]any{
			{"title": "Noite de Rock", "date_text": "11/12/2026 - 21:00", "location": "Portão Novo"},
		},
	}

	r.RunAll(context.Background(), []scraper.Source{first})
	r.RunAll(context.Background(), []scraper.Source{second})

	if len(store.events) != 1 {
		t.Fatalf("store has %d events, want 1 row for the repeated identity", len(store.events))
	}
	for _, ev := range store.events {
		if ev.VenueName != "Portão Novo" {
			t.Errorf("second write should win: venue = %q", ev.VenueName)
		}
	}
}
