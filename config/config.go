// Package config holds the scrape tunables shared by the sources, the
// runner and the command.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"
)

// Config holds pipeline configuration.
type Config struct {
	City      string
	UntilDays int

	SymplaBaseURL   string
	ElCabongBaseURL string
	// InstagramFeedFile is a JSON export of feed posts; post acquisition
	// itself happens outside this pipeline.
	InstagramFeedFile string

	MaxPages       int
	Delay          time.Duration
	Timeout        time.Duration
	MaxRetries     int
	RateLimitPause time.Duration
	DetailLimit    int

	DatabaseURL string
	MetricsAddr string
	UserAgent   string
	Verbose     bool
}

// DefaultConfig returns the defaults the original deployment runs with.
func DefaultConfig() *Config {
	return &Config{
		City:            "salvador",
		UntilDays:       90,
		SymplaBaseURL:   "https://www.sympla.com.br",
		ElCabongBaseURL: "https://elcabong.com.br",
		MaxPages:        20,
		Delay:           800 * time.Millisecond,
		Timeout:         15 * time.Second,
		MaxRetries:      3,
		RateLimitPause:  5 * time.Second,
		DetailLimit:     50,
		MetricsAddr:     "",
		UserAgent:       "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	}
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	if c.City == "" {
		return fmt.Errorf("city cannot be empty")
	}
	if c.UntilDays < 1 {
		return fmt.Errorf("until days must be at least 1")
	}
	for _, base := range []string{c.SymplaBaseURL, c.ElCabongBaseURL} {
		parsed, err := url.Parse(base)
		if err != nil {
			return fmt.Errorf("invalid base URL %q: %w", base, err)
		}
		if parsed.Host == "" {
			return fmt.Errorf("base URL %q must include a host", base)
		}
	}
	if c.MaxPages <= 0 {
		return fmt.Errorf("max pages must be positive")
	}
	if c.Delay < 0 {
		return fmt.Errorf("delay cannot be negative")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative")
	}
	if c.RateLimitPause < 0 {
		return fmt.Errorf("rate limit pause cannot be negative")
	}
	if c.DetailLimit < 0 {
		return fmt.Errorf("detail limit cannot be negative")
	}
	if c.UserAgent == "" {
		return fmt.Errorf("user agent cannot be empty")
	}
	return nil
}

// EnvInt reads an integer environment variable. ok reports presence.
func EnvInt(name string) (value int, ok bool, err error) {
	raw, present := os.LookupEnv(name)
	if !present || raw == "" {
		return 0, false, nil
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false, fmt.Errorf("%s must be an integer: %w", name, err)
	}
	return parsed, true, nil
}

// EnvString reads a string environment variable. ok reports presence.
func EnvString(name string) (string, bool) {
	raw, present := os.LookupEnv(name)
	if !present || raw == "" {
		return "", false
	}
	return raw, true
}

// EnvDuration reads a millisecond-valued environment variable.
func EnvDuration(name string) (time.Duration, bool, error) {
	ms, ok, err := EnvInt(name)
	if err != nil || !ok {
		return 0, ok, err
	}
	if ms < 0 {
		return 0, false, fmt.Errorf("%s cannot be negative", name)
	}
	return time.Duration(ms) * time.Millisecond, true, nil
}
