// Package models defines the canonical records shared by the pipeline.
package models

import "time"

// Source identifies where a candidate was scraped from. The set is closed:
// every normalization strategy is keyed by one of these values.
type Source string

const (
	SourceSympla    Source = "sympla"
	SourceElCabong  Source = "elcabong"
	SourceInstagram Source = "instagram"
)

// Event is a validated, normalized event ready for upsert.
// (Source, ExternalID) uniquely identifies one real-world event occurrence
// across all runs and is the store's conflict key.
type Event struct {
	Source     Source `json:"source"`
	ExternalID string `json:"external_id"`
	Title      string `json:"title"`
	// StartDatetime is naive local time, formatted YYYY-MM-DDTHH:mm:ss.
	StartDatetime string  `json:"start_datetime"`
	City          string  `json:"city"`
	VenueName     string  `json:"venue_name,omitempty"`
	ImageURL      string  `json:"image_url,omitempty"`
	Category      string  `json:"category,omitempty"`
	IsFree        bool    `json:"is_free"`
	MinPrice      float64 `json:"min_price,omitempty"`
	PriceText     string  `json:"price_text,omitempty"`
	URL           string  `json:"url"`
	// RawPayload is an audit snapshot of the originating candidate.
	// Never interpreted downstream.
	RawPayload map[string]any `json:"raw_payload,omitempty"`
}

// RunStatus is the scrape_runs state machine. A run starts as running and
// moves exactly once to success or failed; there is no further transition.
type RunStatus string

const (
	RunRunning RunStatus = "running"
	RunSuccess RunStatus = "success"
	RunFailed  RunStatus = "failed"
)

// RunMetrics are the counters finalized once at the end of a run.
type RunMetrics struct {
	Fetched  int `json:"items_fetched"`
	Valid    int `json:"items_valid"`
	Invalid  int `json:"items_invalid"`
	Upserted int `json:"items_upserted"`
}

// ScrapeRun is one row per invocation of one source's scraper.
type ScrapeRun struct {
	ID           string     `json:"id"`
	Source       Source     `json:"source"`
	City         string     `json:"city"`
	Status       RunStatus  `json:"status"`
	StartedAt    time.Time  `json:"started_at"`
	EndedAt      *time.Time `json:"ended_at,omitempty"`
	Metrics      RunMetrics `json:"metrics"`
	ErrorMessage string     `json:"error_message,omitempty"`
}
