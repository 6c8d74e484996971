// Package pipeline orchestrates the URL-to-audio conversion: submission,
// the per-item stage runner, and the background worker pool.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"go.uber.org/zap"

	"linkcast/internal/cast"
	"linkcast/internal/metrics"
)

// Service handles item submission and status lookups. Conversion itself
// happens on the worker pool; Submit only records intent and enqueues.
type Service struct {
	items  cast.ItemStore
	queue  cast.Queue
	ids    cast.IDGenerator
	clock  cast.Clock
	logger *zap.Logger
}

// NewService builds a Service.
func NewService(items cast.ItemStore, queue cast.Queue, ids cast.IDGenerator, clock cast.Clock, logger *zap.Logger) *Service {
	return &Service{items: items, queue: queue, ids: ids, clock: clock, logger: logger}
}

// SubmitRequest is one conversion request.
type SubmitRequest struct {
	URL    string
	Voice  string
	FeedID string
}

// SubmitResult reports the item now tracking the URL. Existing is true
// when submission deduplicated onto a prior item instead of creating one.
type SubmitResult struct {
	Item     cast.WorkItem
	Existing bool
}

// Submit validates and deduplicates the URL, records a pending item and
// enqueues it. A URL whose latest item is pending, processing or
// completed short-circuits to that item; only a failed item may be
// resubmitted.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (SubmitResult, error) {
	parsed, err := url.Parse(req.URL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return SubmitResult{}, fmt.Errorf("%w: %q", cast.ErrInvalidURL, req.URL)
	}

	existing, err := s.items.GetItemByURL(ctx, req.URL)
	switch {
	case err == nil && existing.State != cast.StateFailed:
		s.logger.Info("submission deduplicated",
			zap.String("url", req.URL),
			zap.String("item_id", existing.ID),
			zap.String("state", string(existing.State)),
		)
		return SubmitResult{Item: existing, Existing: true}, nil
	case err != nil && !errors.Is(err, cast.ErrNotFound):
		return SubmitResult{}, fmt.Errorf("dedup lookup: %w", err)
	}

	if err == nil && existing.ContentFingerprint != "" {
		// The failed predecessor keeps its record but releases the
		// fingerprint so the retry can claim it.
		empty := ""
		if uErr := s.items.UpdateItem(ctx, existing.ID, cast.ItemUpdate{ContentFingerprint: &empty}); uErr != nil {
			return SubmitResult{}, fmt.Errorf("release fingerprint of %s: %w", existing.ID, uErr)
		}
	}

	id, err := s.ids.NewID()
	if err != nil {
		return SubmitResult{}, fmt.Errorf("allocate item id: %w", err)
	}
	item := cast.WorkItem{
		ID:        id,
		SourceURL: req.URL,
		Voice:     req.Voice,
		FeedID:    req.FeedID,
		State:     cast.StatePending,
		CreatedAt: s.clock.Now(),
	}
	if err := s.items.CreateItem(ctx, item); err != nil {
		return SubmitResult{}, fmt.Errorf("create item: %w", err)
	}

	if err := s.queue.Enqueue(ctx, cast.QueueItem{
		ItemID:    id,
		Voice:     req.Voice,
		Submitted: s.clock.Now().Unix(),
	}); err != nil {
		// The item exists but will never be picked up; fail it so the
		// caller sees a terminal state rather than a stuck pending.
		s.fail(ctx, id, "queue rejected submission: "+err.Error())
		return SubmitResult{}, fmt.Errorf("enqueue item %s: %w", id, err)
	}
	metrics.Get().QueueDepth.Inc()

	s.logger.Info("item submitted",
		zap.String("item_id", id),
		zap.String("url", req.URL),
		zap.String("voice", req.Voice),
	)
	return SubmitResult{Item: item}, nil
}

// Status returns the current item record.
func (s *Service) Status(ctx context.Context, id string) (cast.WorkItem, error) {
	return s.items.GetItem(ctx, id)
}

func (s *Service) fail(ctx context.Context, id, msg string) {
	processing, processed := false, true
	if err := s.items.UpdateItem(ctx, id, cast.ItemUpdate{
		IsProcessing: &processing,
		IsProcessed:  &processed,
		Error:        &msg,
	}); err != nil {
		s.logger.Error("failed to mark item failed", zap.String("item_id", id), zap.Error(err))
	}
}
