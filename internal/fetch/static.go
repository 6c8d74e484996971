// Package fetch provides the HTML fetchers used by content extraction.
package fetch

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"

	"linkcast/internal/cast"
)

// StaticConfig controls the plain HTTP fetcher.
type StaticConfig struct {
	UserAgent string
	Timeout   time.Duration
}

// Static implements cast.Fetcher with a single browser-like HTTP GET.
type Static struct {
	cfg StaticConfig
}

// Browser-ish request headers; some publishers serve bot traffic an empty shell.
var defaultHeaders = map[string]string{
	"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8",
	"Accept-Language": "en-US,en;q=0.5",
	"Referer":         "https://www.google.com/",
	"Cache-Control":   "max-age=0",
}

// NewStatic builds a Static fetcher.
func NewStatic(cfg StaticConfig) *Static {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Static{cfg: cfg}
}

// Fetch executes one HTTP GET and returns the response body. Non-2xx
// statuses and transport errors both surface as cast.ErrFetch.
func (f *Static) Fetch(ctx context.Context, request cast.FetchRequest) (cast.FetchResponse, error) {
	collector := colly.NewCollector(
		colly.StdlibContext(ctx),
		colly.AllowURLRevisit(),
	)
	collector.IgnoreRobotsTxt = true
	collector.SetRequestTimeout(f.cfg.Timeout)
	if f.cfg.UserAgent != "" {
		collector.UserAgent = f.cfg.UserAgent
	}

	var (
		result   cast.FetchResponse
		fetchErr error
	)
	start := time.Now()

	collector.OnRequest(func(r *colly.Request) {
		for k, v := range defaultHeaders {
			r.Headers.Set(k, v)
		}
		for k, v := range request.Headers {
			r.Headers.Set(k, v)
		}
	})
	collector.OnResponse(func(r *colly.Response) {
		result = cast.FetchResponse{
			URL:        r.Request.URL.String(),
			StatusCode: r.StatusCode,
			Body:       r.Body,
			Duration:   time.Since(start),
		}
	})
	collector.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode != 0 {
			fetchErr = fmt.Errorf("%w: %s returned status %d", cast.ErrFetch, request.URL, r.StatusCode)
			return
		}
		fetchErr = fmt.Errorf("%w: %s: %v", cast.ErrFetch, request.URL, err)
	})

	if err := collector.Visit(request.URL); err != nil && fetchErr == nil {
		fetchErr = fmt.Errorf("%w: %s: %v", cast.ErrFetch, request.URL, err)
	}
	if fetchErr != nil {
		return cast.FetchResponse{}, fetchErr
	}
	if result.StatusCode < http.StatusOK || result.StatusCode >= http.StatusMultipleChoices {
		return cast.FetchResponse{}, fmt.Errorf("%w: %s returned status %d", cast.ErrFetch, request.URL, result.StatusCode)
	}
	return result, nil
}
