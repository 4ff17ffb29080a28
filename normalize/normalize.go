// Package normalize validates and maps raw scraped candidates into
// canonical events. Each source has its own strategy function because the
// sources share nothing beyond the output shape: field names, date formats
// and defaulting rules all differ per source.
package normalize

import (
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/aluiziolira/agenda-events/models"
	"github.com/aluiziolira/agenda-events/parser"
)

// RawCandidate is an unvalidated key/value bag produced by a source
// extractor. No invariants: fields may be missing or aliased.
type RawCandidate map[string]any

// RunInput is the per-run context a strategy needs besides the candidate.
type RunInput struct {
	Source    models.Source
	City      string
	UntilDays int
}

const (
	symplaEventBase   = "https://www.sympla.com.br/evento/"
	elCabongAgendaURL = "https://elcabong.com.br/agenda/"
	instagramBaseURL  = "https://www.instagram.com/"
)

const externalIDLen = 20

// ExternalID derives a short, stable, URL-safe identity from the exact
// concatenation of its inputs. Same inputs always yield the same id; any
// change to an input changes it. Case- and whitespace-sensitive on purpose:
// the id must be recomputable from the strings as scraped.
func ExternalID(parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, "")))
	return base64.RawURLEncoding.EncodeToString(sum[:])[:externalIDLen]
}

// Normalize maps one candidate into a canonical event, or reports why the
// candidate is invalid. Pure over its inputs; now is only used to default
// year-less dates.
func Normalize(raw RawCandidate, in RunInput, now time.Time) (*models.Event, error) {
	switch in.Source {
	case models.SourceSympla:
		return normalizeSympla(raw, in, now)
	case models.SourceElCabong:
		return normalizeElCabong(raw, in)
	case models.SourceInstagram:
		return normalizeInstagram(raw, in)
	default:
		return nil, fmt.Errorf("unknown source %q", in.Source)
	}
}

// Sympla candidates come either from the search payload (natural ids,
// machine dates) or from listing-card HTML (no id, Portuguese date text).
// Each field is an ordered list of extraction attempts.
func normalizeSympla(raw RawCandidate, in RunInput, now time.Time) (*models.Event, error) {
	title := stringField(raw, "name", "title")
	if title == "" {
		return nil, fmt.Errorf("sympla candidate missing title")
	}

	rawDate := stringField(raw, "start_date", "startDate", "date", "date_text")
	start, ok := resolveSymplaDate(rawDate, now)
	if !ok {
		return nil, fmt.Errorf("sympla candidate %q has unparseable date %q", title, rawDate)
	}

	id := stringField(raw, "id", "eventId", "event_id", "slug")
	if id == "" {
		id = ExternalID(title, rawDate)
	}

	url := stringField(raw, "url", "link")
	if url == "" {
		url = symplaEventBase + id
	}

	ev := &models.Event{
		Source:        in.Source,
		ExternalID:    id,
		Title:         title,
		StartDatetime: start,
		City:          in.City,
		VenueName:     stringField(raw, "venue.name", "venueName", "location.name", "address.name", "location", "venue"),
		ImageURL:      stringField(raw, "image", "imageUrl", "image_url", "banner", "cover"),
		IsFree:        boolField(raw, "is_free", "isFree", "free"),
		URL:           url,
		RawPayload:    raw,
	}

	if price := parser.ParsePrice(stringField(raw, "price", "price_text", "priceText")); price.IsFree {
		ev.IsFree = true
	} else {
		ev.PriceText = price.Text
	}

	if slug := stringField(raw, "category_slug"); slug != "" {
		ev.Category = parser.CategoryForSlug(slug)
	} else if cat := stringField(raw, "category"); cat != "" {
		ev.Category = cat
	} else {
		ev.Category = parser.DefaultCategory
	}

	return ev, nil
}

// El Cabong has no natural ids: identity is a digest of the title and the
// raw date text exactly as scraped, so re-scrapes of the same agenda entry
// always collapse onto one row.
func normalizeElCabong(raw RawCandidate, in RunInput) (*models.Event, error) {
	title := stringField(raw, "title", "name")
	if title == "" {
		return nil, fmt.Errorf("elcabong candidate missing title")
	}

	rawDate := stringField(raw, "date_text", "dateStr", "date")
	start, ok := parser.SlashDate(rawDate, parser.DefaultHourListing)
	if !ok {
		return nil, fmt.Errorf("elcabong candidate %q has unparseable date %q", title, rawDate)
	}

	url := stringField(raw, "url", "link")
	if url == "" {
		url = elCabongAgendaURL
	}

	ev := &models.Event{
		Source:        in.Source,
		ExternalID:    "elcabong-" + ExternalID(title, rawDate),
		Title:         title,
		StartDatetime: start,
		City:          in.City,
		VenueName:     stringField(raw, "location", "venue", "venue_name"),
		ImageURL:      stringField(raw, "image", "image_url"),
		Category:      parser.DefaultCategory,
		URL:           url,
		RawPayload:    raw,
	}

	if price := parser.ParsePrice(stringField(raw, "price", "price_text")); price.IsFree {
		ev.IsFree = true
	} else {
		ev.PriceText = price.Text
	}

	return ev, nil
}

// Instagram candidates are the labelled blocks ParsePost extracts from a
// post: the base date was already anchored from the post title, only the
// clock text remains to resolve here.
func normalizeInstagram(raw RawCandidate, in RunInput) (*models.Event, error) {
	title := stringField(raw, "projeto")
	if title == "" {
		title = stringField(raw, "atracoes")
	}
	if title == "" {
		return nil, fmt.Errorf("instagram candidate missing title")
	}

	baseText := stringField(raw, "date")
	base, err := time.Parse("2006-01-02", baseText)
	if err != nil {
		return nil, fmt.Errorf("instagram candidate %q has unresolved base date %q", title, baseText)
	}

	clock := "20:00"
	if horario := stringField(raw, "horario"); horario != "" {
		if parsed, ok := parser.ClockTime(horario); ok {
			clock = parsed
		}
	}
	start, ok := parser.CombineDateClock(base, clock)
	if !ok {
		return nil, fmt.Errorf("instagram candidate %q has invalid clock %q", title, clock)
	}

	venue := stringField(raw, "local", "venue")
	url := stringField(raw, "post_url", "url")
	if url == "" {
		url = instagramBaseURL
	}

	ev := &models.Event{
		Source:        in.Source,
		ExternalID:    "instagram-" + ExternalID(title, start, venue),
		Title:         title,
		StartDatetime: start,
		City:          in.City,
		VenueName:     venue,
		Category:      parser.DefaultCategory,
		URL:           url,
		RawPayload:    raw,
	}

	if price := parser.ParsePrice(stringField(raw, "quanto", "price")); price.IsFree {
		ev.IsFree = true
	} else {
		ev.PriceText = price.Text
	}

	return ev, nil
}

// resolveSymplaDate tries, in order: an already-canonical timestamp, the
// same with trailing zone/fraction noise, then Portuguese named-month text
// with the ticketing default hour.
func resolveSymplaDate(rawDate string, now time.Time) (string, bool) {
	if rawDate == "" {
		return "", false
	}
	if t, err := parser.ParseCanonical(rawDate); err == nil {
		return t.Format(parser.CanonicalLayout), true
	}
	if len(rawDate) > len(parser.CanonicalLayout) {
		if t, err := parser.ParseCanonical(rawDate[:19]); err == nil {
			return t.Format(parser.CanonicalLayout), true
		}
	}
	return parser.NamedMonthDate(rawDate, now, parser.DefaultHourTicketing)
}

// stringField returns the first non-empty value among the aliases. A key
// containing a dot descends into a nested object ("venue.name"). Numeric
// values stringify, since listing payloads use numbers for ids.
func stringField(raw RawCandidate, keys ...string) string {
	for _, key := range keys {
		var value any = map[string]any(raw)
		found := true
		for _, part := range strings.Split(key, ".") {
			obj, ok := value.(map[string]any)
			if !ok {
				found = false
				break
			}
			value, ok = obj[part]
			if !ok {
				found = false
				break
			}
		}
		if !found {
			continue
		}
		switch v := value.(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return s
			}
		case float64:
			return fmt.Sprintf("%.0f", v)
		case int:
			return fmt.Sprintf("%d", v)
		case int64:
			return fmt.Sprintf("%d", v)
		}
	}
	return ""
}

func boolField(raw RawCandidate, keys ...string) bool {
	for _, key := range keys {
		if v, ok := raw[key]; ok {
			if b, ok := v.(bool); ok && b {
				return true
			}
		}
	}
	return false
}
