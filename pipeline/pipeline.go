// Package pipeline assembles the final per-run batch: normalization,
// per-run deduplication, optional window filtering and the run tallies.
// The pipeline is sequential on purpose: pagination termination depends on
// the previous page's new-item count, so there is nothing to parallelize.
package pipeline

import (
	"log/slog"
	"time"

	"github.com/aluiziolira/agenda-events/models"
	"github.com/aluiziolira/agenda-events/normalize"
	"github.com/aluiziolira/agenda-events/parser"
)

// Deduplicator suppresses identities already accepted earlier in the same
// run, guarding against pagination overlap. It is scoped to one run of one
// source: construct a fresh one per run and never share it. Cross-run
// deduplication is the store's conflict key, not this set.
type Deduplicator struct {
	seen map[string]struct{}
}

// NewDeduplicator returns an empty per-run identity set.
func NewDeduplicator() *Deduplicator {
	return &Deduplicator{seen: make(map[string]struct{})}
}

// Accept records the id and reports whether it was unseen. A false return
// means the caller must skip the event.
func (d *Deduplicator) Accept(id string) bool {
	if _, ok := d.seen[id]; ok {
		return false
	}
	d.seen[id] = struct{}{}
	return true
}

// InWindow reports whether a canonical timestamp falls inside
// [now, now+untilDays], inclusive on both ends. An unparseable timestamp
// is excluded, never included.
func InWindow(startDatetime string, now time.Time, untilDays int) bool {
	start, err := parser.ParseCanonical(startDatetime)
	if err != nil {
		return false
	}
	if start.Before(now) {
		return false
	}
	return !start.After(now.AddDate(0, 0, untilDays))
}

// Collector runs candidates through normalize -> dedup -> window and keeps
// the run tallies. Windowed is set only for sources whose extractor
// returns a large unfiltered horizon; curated sources admit events
// arbitrarily far in the future.
type Collector struct {
	Input    normalize.RunInput
	Windowed bool

	dedup   *Deduplicator
	now     time.Time
	events  []*models.Event
	metrics models.RunMetrics
}

// NewCollector builds a collector for one run. now anchors both year
// defaulting and the window lower bound.
func NewCollector(in normalize.RunInput, windowed bool, now time.Time) *Collector {
	return &Collector{
		Input:    in,
		Windowed: windowed,
		dedup:    NewDeduplicator(),
		now:      now,
	}
}

// Add feeds one raw candidate through the pipeline. It reports whether the
// candidate produced a previously-unseen event; pagination loops use that
// signal to stop fetching.
func (c *Collector) Add(raw normalize.RawCandidate) bool {
	c.metrics.Fetched++

	ev, err := normalize.Normalize(raw, c.Input, c.now)
	if err != nil {
		c.metrics.Invalid++
		slog.Debug("candidate rejected",
			slog.String("source", string(c.Input.Source)),
			slog.Any("error", err),
		)
		return false
	}

	if !c.dedup.Accept(ev.ExternalID) {
		return false
	}

	// Out-of-window events are discarded but not counted invalid: the
	// candidate itself was well-formed.
	if c.Windowed && !InWindow(ev.StartDatetime, c.now, c.Input.UntilDays) {
		return false
	}

	c.metrics.Valid++
	c.events = append(c.events, ev)
	return true
}

// Events returns the deduplicated, filtered batch in arrival order.
func (c *Collector) Events() []*models.Event {
	return c.events
}

// Metrics snapshots the tallies accumulated so far.
func (c *Collector) Metrics() models.RunMetrics {
	return c.metrics
}
