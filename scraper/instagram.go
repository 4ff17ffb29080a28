package scraper

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/aluiziolira/agenda-events/models"
	"github.com/aluiziolira/agenda-events/normalize"
)

// FeedPost is one entry of the feed export the Instagram source consumes.
// Acquiring posts (login, browser automation) happens outside this
// pipeline; an exporter drops them here as JSON.
type FeedPost struct {
	URL  string `json:"url"`
	Text string `json:"text"`
}

// Instagram parses agenda posts from a feed export file. Posts that anchor
// no base date are skipped whole; each labelled block inside a dated post
// becomes one candidate.
type Instagram struct {
	feedFile string
	now      func() time.Time
}

// NewInstagram builds the feed source.
func NewInstagram(feedFile string) *Instagram {
	return &Instagram{feedFile: feedFile, now: time.Now}
}

// Name implements Source.
func (s *Instagram) Name() models.Source {
	return models.SourceInstagram
}

// Windowed implements Source: the feed only announces near-future events.
func (s *Instagram) Windowed() bool {
	return false
}

// Fetch reads the feed export and streams every block candidate. A
// missing or malformed feed file is unrecoverable for this source.
func (s *Instagram) Fetch(ctx context.Context, emit EmitFunc) error {
	data, err := os.ReadFile(s.feedFile)
	if err != nil {
		return fmt.Errorf("read feed export: %w", err)
	}

	var posts []FeedPost
	if err := json.Unmarshal(data, &posts); err != nil {
		return fmt.Errorf("decode feed export: %w", err)
	}

	now := s.now()
	for _, post := range posts {
		if err := ctx.Err(); err != nil {
			return err
		}
		for _, cand := range normalize.ParsePost(post.Text, post.URL, now) {
			emit(cand)
		}
	}
	return nil
}
