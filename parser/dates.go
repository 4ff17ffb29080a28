// Package parser holds the pure normalization helpers: date and time
// parsing for the Brazilian source formats, price hints, and the category
// vocabulary.
package parser

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// CanonicalLayout is the pipeline-wide timestamp format: naive local time,
// no timezone offset.
const CanonicalLayout = "2006-01-02T15:04:05"

// Per-source default hours when the scraped text carries no time.
// The listing/ticketing split mirrors the sources' observed behavior and is
// deliberately not unified.
const (
	DefaultHourListing   = 20
	DefaultHourTicketing = 19
)

// Portuguese month table. Matched by the first three letters, so both
// abbreviated ("jan") and full ("janeiro") forms resolve.
var months = map[string]time.Month{
	"jan": time.January,
	"fev": time.February,
	"mar": time.March,
	"abr": time.April,
	"mai": time.May,
	"jun": time.June,
	"jul": time.July,
	"ago": time.August,
	"set": time.September,
	"out": time.October,
	"nov": time.November,
	"dez": time.December,
}

var (
	slashDateRe = regexp.MustCompile(`(\d{1,2})/(\d{1,2})/(\d{4})(?:\s*-\s*(\d{1,2}):(\d{2}))?`)
	namedDateRe = regexp.MustCompile(`(?i)(\d{1,2})\s+de\s+([\p{L}]+)(?:\s+de\s+(\d{4}))?(?:\s+[àa]s?\s+(\d{1,2}):(\d{2}))?`)
	clockRe     = regexp.MustCompile(`(\d{1,2})h(\d{2})?`)
	timeOnlyRe  = regexp.MustCompile(`(\d{1,2}):(\d{2})`)
)

// SlashDate parses "11/12/2025 - 21:00" or "11/12/2025" (day/month/year).
// The 4-digit year is mandatory. defaultHour applies when no time is
// present. Returns ok=false when the text holds no recognizable date.
func SlashDate(text string, defaultHour int) (string, bool) {
	m := slashDateRe.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}

	day, _ := strconv.Atoi(m[1])
	month, _ := strconv.Atoi(m[2])
	year, _ := strconv.Atoi(m[3])
	hour := defaultHour
	minute := 0
	if m[4] != "" {
		hour, _ = strconv.Atoi(m[4])
		minute, _ = strconv.Atoi(m[5])
	}

	return formatCanonical(year, time.Month(month), day, hour, minute)
}

// NamedMonthDate parses "16 de Janeiro", "17 de Jan às 14:30" or
// "Sábado, 17 de Jan às 14:30". When the year is absent it defaults to
// now's calendar year. defaultHour applies when no time is present.
func NamedMonthDate(text string, now time.Time, defaultHour int) (string, bool) {
	m := namedDateRe.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}

	day, _ := strconv.Atoi(m[1])
	month, ok := monthByName(m[2])
	if !ok {
		return "", false
	}

	year := now.Year()
	if m[3] != "" {
		year, _ = strconv.Atoi(m[3])
	}
	hour := defaultHour
	minute := 0
	if m[4] != "" {
		hour, _ = strconv.Atoi(m[4])
		minute, _ = strconv.Atoi(m[5])
	}

	return formatCanonical(year, month, day, hour, minute)
}

// NamedMonthBase resolves only the date part of a named-month fragment
// ("Sexta, 16 de Janeiro") into "YYYY-MM-DD", defaulting the year to now's.
// Used to anchor a base date before time-only parsing.
func NamedMonthBase(text string, now time.Time) (string, bool) {
	m := namedDateRe.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	day, _ := strconv.Atoi(m[1])
	month, ok := monthByName(m[2])
	if !ok {
		return "", false
	}
	year := now.Year()
	if m[3] != "" {
		year, _ = strconv.Atoi(m[3])
	}
	if day < 1 || day > 31 {
		return "", false
	}
	return fmt.Sprintf("%04d-%02d-%02d", year, int(month), day), true
}

// ClockTime parses feed-style times like "20h", "19h30" or "14:30" into
// "HH:mm". Minutes default to "00".
func ClockTime(text string) (string, bool) {
	var hour, minute int
	if m := clockRe.FindStringSubmatch(text); m != nil {
		hour, _ = strconv.Atoi(m[1])
		if m[2] != "" {
			minute, _ = strconv.Atoi(m[2])
		}
	} else if m := timeOnlyRe.FindStringSubmatch(text); m != nil {
		hour, _ = strconv.Atoi(m[1])
		minute, _ = strconv.Atoi(m[2])
	} else {
		return "", false
	}

	if hour > 23 || minute > 59 {
		return "", false
	}
	return fmt.Sprintf("%02d:%02d", hour, minute), true
}

// CombineDateClock stamps a "HH:mm" clock onto an already-resolved base
// date. Callers using this for free-text sources must anchor base from an
// explicit day+month elsewhere in the text; relative weekday references
// ("sábado") are not resolved here.
func CombineDateClock(base time.Time, clock string) (string, bool) {
	m := timeOnlyRe.FindStringSubmatch(clock)
	if m == nil {
		return "", false
	}
	hour, _ := strconv.Atoi(m[1])
	minute, _ := strconv.Atoi(m[2])
	return formatCanonical(base.Year(), base.Month(), base.Day(), hour, minute)
}

// ParseCanonical parses a canonical timestamp back into a time.Time.
func ParseCanonical(s string) (time.Time, error) {
	return time.Parse(CanonicalLayout, s)
}

func monthByName(name string) (time.Month, bool) {
	runes := []rune(strings.ToLower(strings.TrimSpace(name)))
	if len(runes) < 3 {
		return 0, false
	}
	m, ok := months[string(runes[:3])]
	return m, ok
}

func formatCanonical(year int, month time.Month, day, hour, minute int) (string, bool) {
	if month < time.January || month > time.December {
		return "", false
	}
	if day < 1 || day > 31 || hour > 23 || minute > 59 {
		return "", false
	}
	return fmt.Sprintf("%04d-%02d-%02dT%02d:%02d:00", year, int(month), day, hour, minute), true
}
