// Package collyfetcher implements titles.Fetcher using gocolly.
package collyfetcher

import (
	"context"
	"fmt"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/patronemptor/titlesvc/internal/titles"
)

// Config controls collector behavior.
type Config struct {
	UserAgent    string
	Timeout      time.Duration
	MaxBodyBytes int
}

// Fetcher retrieves page content with a single bounded HTTP GET.
type Fetcher struct {
	cfg Config
}

// New builds a Fetcher.
func New(cfg Config) *Fetcher {
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &Fetcher{cfg: cfg}
}

// Fetch executes one GET against url and returns the response body.
// Network errors and non-2xx responses are reported as titles.ErrFetchFailed.
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}

	// A fresh collector per call; collectors refuse URL revisits, and the
	// worker may legitimately retry the same URL.
	collector := colly.NewCollector(colly.Async(false))
	collector.IgnoreRobotsTxt = true
	collector.SetRequestTimeout(f.cfg.Timeout)
	if f.cfg.UserAgent != "" {
		collector.UserAgent = f.cfg.UserAgent
	}
	if f.cfg.MaxBodyBytes > 0 {
		collector.MaxBodySize = f.cfg.MaxBodyBytes
	}

	var body []byte
	collector.OnResponse(func(r *colly.Response) {
		body = append([]byte(nil), r.Body...)
	})

	if err := collector.Visit(url); err != nil {
		return nil, fmt.Errorf("fetch %s: %w: %w", url, titles.ErrFetchFailed, err)
	}
	return body, nil
}
