package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/aluiziolira/agenda-events/config"
	"github.com/aluiziolira/agenda-events/models"
	"github.com/aluiziolira/agenda-events/normalize"
	"github.com/aluiziolira/agenda-events/parser"
)

// Listing sections walked in order. Slugs map to the controlled category
// vocabulary during normalization.
var symplaCategorySlugs = []string{
	"show-musica-festa",
	"teatro-espetaculo",
	"gastronomico",
	"curso-workshop",
	"congresso-palestra",
	"experiencias",
	"infantil",
	"religioso-espiritual",
	"saude-e-bem-estar",
	"arte-e-cultura",
	"games-e-geek",
	"gratis",
}

var (
	eventIDRe   = regexp.MustCompile(`(\d+)(?:\?|$)`)
	namedDateRe = regexp.MustCompile(`(?i)\d{1,2}\s+de\s+[\p{L}]+(?:\s+de\s+\d{4})?(?:\s+[àa]s?\s+\d{1,2}:\d{2})?`)
)

// How far in the future a detail page with no recoverable date lands.
// Only the detail-page fallback extractor fabricates dates; listing
// candidates without a date stay invalid.
const detailFallbackDays = 30

// Sympla scrapes the ticketing-marketplace listing pages per category,
// enriching venue-less candidates from their detail pages. The detail
// cache avoids refetching a page when the same event shows up under
// several categories.
type Sympla struct {
	cfg     *config.Config
	listing *pageFetcher
	detail  *pageFetcher

	detailCache *lru.Cache[string, normalize.RawCandidate]

	mu            sync.Mutex
	pageItems     []normalize.RawCandidate
	detailItem    normalize.RawCandidate
	detailFetches int
}

// NewSympla builds the marketplace source.
func NewSympla(cfg *config.Config, metrics *Metrics) (*Sympla, error) {
	listing, err := newPageFetcher(cfg, metrics, string(models.SourceSympla), cfg.SymplaBaseURL)
	if err != nil {
		return nil, err
	}
	detail, err := newPageFetcher(cfg, metrics, string(models.SourceSympla), cfg.SymplaBaseURL)
	if err != nil {
		return nil, err
	}
	cache, err := lru.New[string, normalize.RawCandidate](256)
	if err != nil {
		return nil, err
	}

	s := &Sympla{
		cfg:         cfg,
		listing:     listing,
		detail:      detail,
		detailCache: cache,
	}

	listing.collector.OnHTML(`a[href*="/evento/"]`, func(e *colly.HTMLElement) {
		if cand := s.extractCard(e); cand != nil {
			s.mu.Lock()
			s.pageItems = append(s.pageItems, cand)
			s.mu.Unlock()
		}
	})

	detail.collector.OnHTML(`meta[property="og:title"]`, func(e *colly.HTMLElement) {
		title := strings.TrimSpace(e.Attr("content"))
		title = strings.TrimSuffix(title, " - Sympla")
		title = strings.TrimSuffix(title, " | Sympla")
		if title != "" {
			s.setDetailField("title", title)
		}
	})
	detail.collector.OnHTML(`meta[property="og:image"]`, func(e *colly.HTMLElement) {
		if content := strings.TrimSpace(e.Attr("content")); content != "" {
			s.setDetailField("image", content)
		}
	})
	detail.collector.OnHTML("body", func(e *colly.HTMLElement) {
		if dateText := namedDateRe.FindString(e.Text); dateText != "" {
			s.setDetailField("date_text", dateText)
		}
		venue := strings.TrimSpace(e.DOM.Find(`[class*="venue"], [class*="location"]`).First().Text())
		if venue != "" {
			s.setDetailField("location", venue)
		}
	})

	return s, nil
}

// Name implements Source.
func (s *Sympla) Name() models.Source {
	return models.SourceSympla
}

// Windowed implements Source: the marketplace search returns events far
// into the future, so the window filter applies.
func (s *Sympla) Windowed() bool {
	return true
}

// Fetch walks every category's listing pages, then the main city page.
// A category stops paginating once a page yields nothing new or its fetch
// exhausts retries; the remaining categories still run.
func (s *Sympla) Fetch(ctx context.Context, emit EmitFunc) error {
	for _, slug := range symplaCategorySlugs {
		for page := 1; page <= s.cfg.MaxPages; page++ {
			pageURL := s.listingURL(slug, page)
			items, err := s.fetchListing(ctx, pageURL)
			if err != nil {
				if ctx.Err() != nil {
					return err
				}
				slog.Warn("sympla listing page failed, stopping category",
					slog.String("category", slug),
					slog.String("url", pageURL),
					slog.Any("error", err),
				)
				break
			}

			newCount := 0
			for _, cand := range items {
				cand["category_slug"] = slug
				s.enrich(ctx, cand)
				s.listing.metrics.IncItems(string(models.SourceSympla))
				if emit(cand) {
					newCount++
				}
			}
			if newCount == 0 {
				break
			}
			if err := s.listing.pause(ctx); err != nil {
				return err
			}
		}
	}

	mainURL := fmt.Sprintf("%s/eventos/%s-ba", s.cfg.SymplaBaseURL, s.cfg.City)
	items, err := s.fetchListing(ctx, mainURL)
	if err != nil {
		if ctx.Err() != nil {
			return err
		}
		slog.Warn("sympla main page failed", slog.String("url", mainURL), slog.Any("error", err))
		return nil
	}
	for _, cand := range items {
		s.enrich(ctx, cand)
		s.listing.metrics.IncItems(string(models.SourceSympla))
		emit(cand)
	}
	return nil
}

func (s *Sympla) listingURL(slug string, page int) string {
	base := fmt.Sprintf("%s/eventos/%s-ba/%s", s.cfg.SymplaBaseURL, s.cfg.City, slug)
	if page == 1 {
		return base
	}
	return fmt.Sprintf("%s?page=%d", base, page)
}

func (s *Sympla) fetchListing(ctx context.Context, pageURL string) ([]normalize.RawCandidate, error) {
	s.mu.Lock()
	s.pageItems = nil
	s.mu.Unlock()

	if err := s.listing.visit(ctx, pageURL); err != nil {
		return nil, err
	}

	s.mu.Lock()
	items := s.pageItems
	s.pageItems = nil
	s.mu.Unlock()
	return items, nil
}

func (s *Sympla) extractCard(e *colly.HTMLElement) normalize.RawCandidate {
	href := e.Attr("href")
	if href == "" {
		return nil
	}
	idMatch := eventIDRe.FindStringSubmatch(href)
	if idMatch == nil {
		return nil
	}

	title := strings.TrimSpace(e.ChildText("h3"))
	if title == "" || strings.Contains(title, "Sympla") {
		return nil
	}

	cand := normalize.RawCandidate{
		"id":    idMatch[1],
		"title": title,
		"url":   e.Request.AbsoluteURL(href),
	}
	if dateText := namedDateRe.FindString(e.Text); dateText != "" {
		cand["date_text"] = dateText
	}
	if venue := strings.TrimSpace(e.ChildText("p")); venue != "" {
		cand["location"] = venue
	}
	if image := cardImageURL(e); image != "" {
		cand["image"] = image
	}
	return cand
}

// cardImageURL unwraps next/image proxy URLs back to the original asset.
func cardImageURL(e *colly.HTMLElement) string {
	src := e.ChildAttr("img", "src")
	if src == "" {
		return ""
	}
	if parsed, err := url.Parse(src); err == nil {
		if original := parsed.Query().Get("url"); original != "" {
			return original
		}
	}
	if strings.HasPrefix(src, "//") {
		return "https:" + src
	}
	return e.Request.AbsoluteURL(src)
}

// enrich fills venue and date gaps from the event's detail page. Fetches
// are capped per run and cached per URL.
func (s *Sympla) enrich(ctx context.Context, cand normalize.RawCandidate) {
	needsVenue := cand["location"] == nil
	needsDate := cand["date_text"] == nil && cand["date"] == nil
	if !needsVenue && !needsDate {
		return
	}

	detailURL, _ := cand["url"].(string)
	if detailURL != "" {
		if detail, ok := s.fetchDetail(ctx, detailURL); ok {
			mergeMissing(cand, detail)
		}
	}

	// Detail-page fallback: no date recoverable at all.
	if cand["date_text"] == nil && cand["date"] == nil {
		cand["date"] = time.Now().AddDate(0, 0, detailFallbackDays).Format(parser.CanonicalLayout)
	}
}

func (s *Sympla) fetchDetail(ctx context.Context, detailURL string) (normalize.RawCandidate, bool) {
	if cached, ok := s.detailCache.Get(detailURL); ok {
		return cached, true
	}

	s.mu.Lock()
	if s.detailFetches >= s.cfg.DetailLimit {
		s.mu.Unlock()
		return nil, false
	}
	s.detailFetches++
	s.detailItem = normalize.RawCandidate{}
	s.mu.Unlock()

	// Space the request out from whatever request preceded it. Cache hits
	// returned above never wait.
	if err := s.detail.pause(ctx); err != nil {
		return nil, false
	}
	if err := s.detail.visit(ctx, detailURL); err != nil {
		slog.Debug("sympla detail fetch failed", slog.String("url", detailURL), slog.Any("error", err))
		return nil, false
	}

	s.mu.Lock()
	detail := s.detailItem
	s.detailItem = nil
	s.mu.Unlock()

	s.detailCache.Add(detailURL, detail)
	return detail, true
}

func (s *Sympla) setDetailField(key string, value string) {
	s.mu.Lock()
	if s.detailItem != nil {
		s.detailItem[key] = value
	}
	s.mu.Unlock()
}

func mergeMissing(dst, src normalize.RawCandidate) {
	for k, v := range src {
		if _, ok := dst[k]; !ok {
			dst[k] = v
		}
	}
}
