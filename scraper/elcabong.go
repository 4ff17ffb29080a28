package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/gocolly/colly/v2"

	"github.com/aluiziolira/agenda-events/config"
	"github.com/aluiziolira/agenda-events/models"
	"github.com/aluiziolira/agenda-events/normalize"
)

// ElCabong scrapes the venue's own agenda page. The agenda is curated and
// near-future only, so no window filter applies.
type ElCabong struct {
	cfg     *config.Config
	fetcher *pageFetcher

	mu        sync.Mutex
	pageItems []normalize.RawCandidate
}

// NewElCabong builds the venue-agenda source.
func NewElCabong(cfg *config.Config, metrics *Metrics) (*ElCabong, error) {
	fetcher, err := newPageFetcher(cfg, metrics, string(models.SourceElCabong), cfg.ElCabongBaseURL)
	if err != nil {
		return nil, err
	}

	s := &ElCabong{cfg: cfg, fetcher: fetcher}

	fetcher.collector.OnHTML("article.wpem-event-box", func(e *colly.HTMLElement) {
		if cand := s.extractEvent(e); cand != nil {
			s.mu.Lock()
			s.pageItems = append(s.pageItems, cand)
			s.mu.Unlock()
		}
	})

	return s, nil
}

// Name implements Source.
func (s *ElCabong) Name() models.Source {
	return models.SourceElCabong
}

// Windowed implements Source.
func (s *ElCabong) Windowed() bool {
	return false
}

// Fetch walks the agenda and its numbered pages until a page yields
// nothing new, fails, or the page cap is hit. A failed page past the first
// just means the agenda ran out.
func (s *ElCabong) Fetch(ctx context.Context, emit EmitFunc) error {
	for page := 1; page <= s.cfg.MaxPages; page++ {
		pageURL := s.agendaURL(page)
		items, err := s.fetchPage(ctx, pageURL)
		if err != nil {
			if ctx.Err() != nil {
				return err
			}
			if page == 1 {
				slog.Warn("elcabong agenda fetch failed", slog.String("url", pageURL), slog.Any("error", err))
			}
			return nil
		}

		newCount := 0
		for _, cand := range items {
			s.fetcher.metrics.IncItems(string(models.SourceElCabong))
			if emit(cand) {
				newCount++
			}
		}
		if newCount == 0 {
			return nil
		}
		if err := s.fetcher.pause(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (s *ElCabong) agendaURL(page int) string {
	if page == 1 {
		return s.cfg.ElCabongBaseURL + "/agenda/"
	}
	return fmt.Sprintf("%s/agenda/page/%d/", s.cfg.ElCabongBaseURL, page)
}

func (s *ElCabong) fetchPage(ctx context.Context, pageURL string) ([]normalize.RawCandidate, error) {
	s.mu.Lock()
	s.pageItems = nil
	s.mu.Unlock()

	if err := s.fetcher.visit(ctx, pageURL); err != nil {
		return nil, err
	}

	s.mu.Lock()
	items := s.pageItems
	s.pageItems = nil
	s.mu.Unlock()
	return items, nil
}

func (s *ElCabong) extractEvent(e *colly.HTMLElement) normalize.RawCandidate {
	title := strings.TrimSpace(e.ChildText("h3.wpem-heading-text"))
	if title == "" {
		title = strings.TrimSpace(e.ChildText("h3"))
	}
	dateText := collapseSpaces(e.ChildText(".wpem-event-date-time-text"))
	if title == "" || dateText == "" {
		return nil
	}

	cand := normalize.RawCandidate{
		"title":     title,
		"date_text": dateText,
	}
	if location := collapseSpaces(e.ChildText(".wpem-event-location-text")); location != "" {
		cand["location"] = location
	}
	if href := e.ChildAttr("a", "href"); href != "" {
		cand["url"] = e.Request.AbsoluteURL(href)
	}
	if image := e.ChildAttr("img", "src"); image != "" {
		cand["image"] = e.Request.AbsoluteURL(image)
	}
	return cand
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
