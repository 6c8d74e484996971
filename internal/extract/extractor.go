// Package extract pulls clean article text out of arbitrary HTML by
// running a cascade of extraction strategies, first non-empty result wins.
package extract

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"linkcast/internal/cast"
)

// Result is the outcome of a successful extraction.
type Result struct {
	Title       string
	Text        string
	Fingerprint string
	// Strategy names the cascade entry that produced the text.
	Strategy string
	// Attempted lists every strategy tried, in order, including the winner.
	Attempted []string
}

// Extractor fetches a URL and runs the strategy cascade over the HTML.
type Extractor struct {
	fetcher    cast.Fetcher
	headless   cast.Fetcher
	detector   cast.RenderDetector
	strategies []Strategy
	hasher     cast.Hasher
	logger     *zap.Logger
}

// Option customizes an Extractor.
type Option func(*Extractor)

// WithHeadless enables the rendered-DOM fallback for pages the detector
// flags as JavaScript shells.
func WithHeadless(fetcher cast.Fetcher, detector cast.RenderDetector) Option {
	return func(e *Extractor) {
		e.headless = fetcher
		e.detector = detector
	}
}

// WithStrategies overrides the default cascade (mainly for tests).
func WithStrategies(strategies ...Strategy) Option {
	return func(e *Extractor) {
		e.strategies = strategies
	}
}

// New constructs an Extractor with the default strategy cascade.
func New(fetcher cast.Fetcher, hasher cast.Hasher, logger *zap.Logger, opts ...Option) *Extractor {
	e := &Extractor{
		fetcher:    fetcher,
		strategies: DefaultStrategies(),
		hasher:     hasher,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract fetches the URL and returns the first strategy's non-empty text,
// cleaned and fingerprinted. Fetch failures wrap cast.ErrFetch; an
// exhausted cascade wraps cast.ErrNoContent.
func (e *Extractor) Extract(ctx context.Context, rawURL string) (Result, error) {
	pageURL, err := url.Parse(rawURL)
	if err != nil || pageURL.Scheme == "" || pageURL.Host == "" {
		return Result{}, fmt.Errorf("%w: invalid url %q", cast.ErrFetch, rawURL)
	}

	resp, err := e.fetcher.Fetch(ctx, cast.FetchRequest{URL: rawURL})
	if err != nil {
		return Result{}, err
	}
	resp = e.maybeRender(ctx, rawURL, resp)

	var (
		attempted     []string
		fallbackTitle string
	)
	for _, strategy := range e.strategies {
		attempted = append(attempted, strategy.Name())
		title, text, sErr := strategy.Extract(resp.Body, pageURL)
		if sErr != nil {
			e.logger.Warn("extraction strategy failed",
				zap.String("url", rawURL),
				zap.String("strategy", strategy.Name()),
				zap.Error(sErr),
			)
			continue
		}
		title = strings.TrimSpace(title)
		if fallbackTitle == "" && title != "" {
			fallbackTitle = title
		}
		text = strings.TrimSpace(text)
		if text == "" {
			e.logger.Debug("extraction strategy returned no content",
				zap.String("url", rawURL),
				zap.String("strategy", strategy.Name()),
			)
			continue
		}

		text = Clean(text)
		if title == "" {
			title = fallbackTitle
		}
		if title == "" {
			title = documentTitle(resp.Body)
		}
		fingerprint, hErr := e.fingerprint(rawURL, text)
		if hErr != nil {
			return Result{}, fmt.Errorf("fingerprint content: %w", hErr)
		}
		e.logger.Info("content extracted",
			zap.String("url", rawURL),
			zap.String("strategy", strategy.Name()),
			zap.Strings("attempted", attempted),
			zap.Int("chars", len(text)),
			zap.Bool("rendered", resp.Rendered),
		)
		return Result{
			Title:       title,
			Text:        text,
			Fingerprint: fingerprint,
			Strategy:    strategy.Name(),
			Attempted:   attempted,
		}, nil
	}

	e.logger.Warn("all extraction strategies failed",
		zap.String("url", rawURL),
		zap.Strings("attempted", attempted),
	)
	return Result{}, fmt.Errorf("%w: attempted strategies %s", cast.ErrNoContent, strings.Join(attempted, ", "))
}

// maybeRender swaps in the rendered DOM when the static body looks like a
// JavaScript shell. Render failures fall back to the static body.
func (e *Extractor) maybeRender(ctx context.Context, rawURL string, resp cast.FetchResponse) cast.FetchResponse {
	if e.headless == nil || e.detector == nil || !e.detector.ShouldRender(resp) {
		return resp
	}
	rendered, err := e.headless.Fetch(ctx, cast.FetchRequest{URL: rawURL})
	if err != nil {
		e.logger.Warn("headless render failed, using static body",
			zap.String("url", rawURL),
			zap.Error(err),
		)
		return resp
	}
	e.logger.Info("headless render applied", zap.String("url", rawURL))
	return rendered
}

// fingerprint hashes url + ":" + the first 1000 characters of the cleaned
// text, matching what the dedup pre-check compares against.
func (e *Extractor) fingerprint(rawURL, text string) (string, error) {
	sample := text
	if runes := []rune(text); len(runes) > 1000 {
		sample = string(runes[:1000])
	}
	return e.hasher.Hash([]byte(rawURL + ":" + sample))
}

func documentTitle(html []byte) string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(doc.Find("title").First().Text())
}
