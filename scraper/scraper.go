// Package scraper implements the source extractors. Each source walks its
// listing pages strictly sequentially: a page's count of previously-unseen
// candidates is the loop termination signal, and a deliberate pause
// separates successive requests to the same site.
package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/aluiziolira/agenda-events/config"
	"github.com/aluiziolira/agenda-events/models"
	"github.com/aluiziolira/agenda-events/normalize"
)

// EmitFunc receives one raw candidate and reports whether it produced a
// previously-unseen event. Pagination loops stop once a whole page emits
// nothing new.
type EmitFunc func(normalize.RawCandidate) bool

// Source is one site's extractor. Fetch streams raw candidates into emit
// and returns only unrecoverable errors; page-level fetch failures stop
// that source's pagination and keep whatever was collected.
type Source interface {
	Name() models.Source
	// Windowed reports whether the source returns a large unfiltered
	// horizon and therefore needs the future-window filter.
	Windowed() bool
	Fetch(ctx context.Context, emit EmitFunc) error
}

// pageFetcher wraps a synchronous colly collector with retry, error
// classification and metrics. Retries are bounded; a rate-limit response
// waits the longer fixed pause before the same attempt is retried.
type pageFetcher struct {
	collector *colly.Collector
	cfg       *config.Config
	metrics   *Metrics
	source    string

	mu         sync.Mutex
	lastStatus int
}

func newPageFetcher(cfg *config.Config, metrics *Metrics, source, baseURL string) (*pageFetcher, error) {
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("base url %q must include a host", baseURL)
	}

	collector := colly.NewCollector(
		colly.AllowedDomains(parsed.Host),
		colly.UserAgent(cfg.UserAgent),
		colly.AllowURLRevisit(),
	)
	collector.SetRequestTimeout(cfg.Timeout)

	pf := &pageFetcher{
		collector: collector,
		cfg:       cfg,
		metrics:   metrics,
		source:    source,
	}

	collector.OnRequest(func(r *colly.Request) {
		r.Ctx.Put("start", time.Now())
		r.Headers.Set("Accept-Language", "pt-BR,pt;q=0.9,en-US;q=0.8,en;q=0.7")
		pf.metrics.IncRequest(source)
	})
	collector.OnResponse(func(r *colly.Response) {
		if start, ok := r.Request.Ctx.GetAny("start").(time.Time); ok {
			pf.metrics.ObserveDuration(time.Since(start))
		}
	})
	collector.OnError(func(r *colly.Response, err error) {
		pf.mu.Lock()
		if r != nil {
			pf.lastStatus = r.StatusCode
		}
		pf.mu.Unlock()
	})

	return pf, nil
}

// visit fetches one URL, retrying up to the configured bound. The returned
// error is classified; callers treat it as "stop paginating here".
func (pf *pageFetcher) visit(ctx context.Context, pageURL string) error {
	var lastErr error
	for attempt := 0; attempt <= pf.cfg.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if attempt > 0 {
			pf.metrics.IncRetries()
			pause := pf.cfg.Delay
			if isRateLimited(lastErr) {
				pause = pf.cfg.RateLimitPause
			}
			if err := sleep(ctx, pause); err != nil {
				return err
			}
		}

		pf.mu.Lock()
		pf.lastStatus = 0
		pf.mu.Unlock()

		err := pf.collector.Visit(pageURL)
		if err == nil {
			return nil
		}

		pf.mu.Lock()
		status := pf.lastStatus
		pf.mu.Unlock()

		lastErr = classifyError(err, status)
		pf.metrics.IncError(errorTypeLabel(lastErr))
		slog.Debug("page fetch failed",
			slog.String("source", pf.source),
			slog.String("url", pageURL),
			slog.Int("attempt", attempt+1),
			slog.Any("error", lastErr),
		)
	}
	return lastErr
}

// pause applies the inter-request delay.
func (pf *pageFetcher) pause(ctx context.Context) error {
	return sleep(ctx, pf.cfg.Delay)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
