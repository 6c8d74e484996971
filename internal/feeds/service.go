package feeds

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"linkcast/internal/cast"
	"linkcast/internal/metrics"
	"linkcast/internal/pipeline"
)

// maxErrorCount is the failure streak after which a feed stops being
// refreshed automatically.
const maxErrorCount = 3

// Config controls how much of a feed gets converted and how often it is
// rechecked.
type Config struct {
	// MaxEntries caps conversions per refresh.
	MaxEntries int
	// InitialEntries caps conversions when a feed is first added.
	InitialEntries int
	// Recheck is the minimum interval between automatic refreshes.
	Recheck time.Duration
}

// Submitter is the pipeline entry point feeds push discovered URLs into.
type Submitter interface {
	Submit(ctx context.Context, req pipeline.SubmitRequest) (pipeline.SubmitResult, error)
}

// Service subscribes to feeds, refreshes them and submits newly
// discovered entries for conversion.
type Service struct {
	store     cast.FeedStore
	parser    cast.FeedParser
	submitter Submitter
	ids       cast.IDGenerator
	clock     cast.Clock
	cfg       Config
	logger    *zap.Logger
}

// NewService builds a Service.
func NewService(store cast.FeedStore, parser cast.FeedParser, submitter Submitter, ids cast.IDGenerator, clock cast.Clock, cfg Config, logger *zap.Logger) *Service {
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = 10
	}
	if cfg.InitialEntries <= 0 {
		cfg.InitialEntries = 5
	}
	if cfg.Recheck <= 0 {
		cfg.Recheck = 30 * time.Minute
	}
	return &Service{
		store:     store,
		parser:    parser,
		submitter: submitter,
		ids:       ids,
		clock:     clock,
		cfg:       cfg,
		logger:    logger,
	}
}

// AddFeed subscribes to a feed URL. The feed must parse successfully up
// front; its newest entries are submitted immediately, capped at
// InitialEntries.
func (s *Service) AddFeed(ctx context.Context, url string) (cast.Feed, error) {
	info, err := s.parser.Parse(ctx, url)
	if err != nil {
		return cast.Feed{}, err
	}

	id, err := s.ids.NewID()
	if err != nil {
		return cast.Feed{}, fmt.Errorf("allocate feed id: %w", err)
	}
	now := s.clock.Now()
	feed := cast.Feed{
		ID:          id,
		URL:         url,
		Title:       info.Title,
		Description: info.Description,
		LastChecked: &now,
		LastUpdated: info.Updated,
		Active:      true,
		CreatedAt:   now,
	}
	if err := s.store.CreateFeed(ctx, feed); err != nil {
		return cast.Feed{}, fmt.Errorf("create feed: %w", err)
	}

	submitted := s.submitEntries(ctx, feed, info.Entries, s.cfg.InitialEntries)
	s.logger.Info("feed added",
		zap.String("feed_id", feed.ID),
		zap.String("url", url),
		zap.String("title", feed.Title),
		zap.Int("submitted", submitted),
	)
	return feed, nil
}

// RefreshFeed re-parses one feed and submits entries not yet tracked.
// Without force, a feed checked within the recheck interval is skipped.
// It returns how many new conversions were started.
func (s *Service) RefreshFeed(ctx context.Context, id string, force bool) (int, error) {
	feed, err := s.store.GetFeed(ctx, id)
	if err != nil {
		return 0, err
	}
	if !force {
		if !feed.Active || feed.ErrorCount > maxErrorCount {
			metrics.Get().FeedRefreshes.WithLabelValues("skipped").Inc()
			return 0, nil
		}
		if feed.LastChecked != nil && s.clock.Now().Sub(*feed.LastChecked) < s.cfg.Recheck {
			metrics.Get().FeedRefreshes.WithLabelValues("skipped").Inc()
			return 0, nil
		}
	}

	info, err := s.parser.Parse(ctx, feed.URL)
	now := s.clock.Now()
	feed.LastChecked = &now
	if err != nil {
		feed.ErrorCount++
		if uErr := s.store.UpdateFeed(ctx, feed); uErr != nil {
			s.logger.Error("failed to record feed error", zap.String("feed_id", id), zap.Error(uErr))
		}
		metrics.Get().FeedRefreshes.WithLabelValues("error").Inc()
		s.logger.Warn("feed refresh failed",
			zap.String("feed_id", id),
			zap.String("url", feed.URL),
			zap.Int("error_count", feed.ErrorCount),
			zap.Error(err),
		)
		return 0, err
	}

	feed.ErrorCount = 0
	feed.Title = info.Title
	feed.Description = info.Description
	if info.Updated != nil {
		feed.LastUpdated = info.Updated
	}
	if err := s.store.UpdateFeed(ctx, feed); err != nil {
		return 0, fmt.Errorf("update feed %s: %w", id, err)
	}

	submitted := s.submitEntries(ctx, feed, info.Entries, s.cfg.MaxEntries)
	metrics.Get().FeedRefreshes.WithLabelValues("ok").Inc()
	s.logger.Info("feed refreshed",
		zap.String("feed_id", id),
		zap.Int("entries", len(info.Entries)),
		zap.Int("submitted", submitted),
	)
	return submitted, nil
}

// RefreshAll refreshes every subscription, honoring recheck intervals.
func (s *Service) RefreshAll(ctx context.Context) {
	feeds, err := s.store.ListFeeds(ctx)
	if err != nil {
		s.logger.Error("failed to list feeds", zap.Error(err))
		return
	}
	for _, feed := range feeds {
		if ctx.Err() != nil {
			return
		}
		if _, err := s.RefreshFeed(ctx, feed.ID, false); err != nil {
			continue
		}
	}
}

// ToggleFeed flips whether a feed participates in automatic refresh.
// Inactive feeds stay listed and can still be refreshed with force.
func (s *Service) ToggleFeed(ctx context.Context, id string) (cast.Feed, error) {
	feed, err := s.store.GetFeed(ctx, id)
	if err != nil {
		return cast.Feed{}, err
	}
	feed.Active = !feed.Active
	if err := s.store.UpdateFeed(ctx, feed); err != nil {
		return cast.Feed{}, fmt.Errorf("toggle feed %s: %w", id, err)
	}
	s.logger.Info("feed toggled",
		zap.String("feed_id", id),
		zap.Bool("active", feed.Active),
	)
	return feed, nil
}

// DeleteFeed removes a subscription. Items it already submitted stay.
func (s *Service) DeleteFeed(ctx context.Context, id string) error {
	if err := s.store.DeleteFeed(ctx, id); err != nil {
		return err
	}
	s.logger.Info("feed deleted", zap.String("feed_id", id))
	return nil
}

// ListFeeds returns every subscription.
func (s *Service) ListFeeds(ctx context.Context) ([]cast.Feed, error) {
	return s.store.ListFeeds(ctx)
}

// GetFeed returns one subscription.
func (s *Service) GetFeed(ctx context.Context, id string) (cast.Feed, error) {
	return s.store.GetFeed(ctx, id)
}

// Run polls all feeds on the given interval until the context ends.
func (s *Service) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("feed poller stopped")
			return
		case <-ticker.C:
			s.RefreshAll(ctx)
		}
	}
}

// submitEntries pushes up to limit new entries into the pipeline.
// Deduplication happens at submission, so entries already tracked do not
// count against the limit.
func (s *Service) submitEntries(ctx context.Context, feed cast.Feed, entries []cast.FeedEntry, limit int) int {
	var submitted int
	for _, entry := range entries {
		if submitted >= limit {
			break
		}
		res, err := s.submitter.Submit(ctx, pipeline.SubmitRequest{URL: entry.Link, FeedID: feed.ID})
		if err != nil {
			s.logger.Warn("feed entry submission failed",
				zap.String("feed_id", feed.ID),
				zap.String("link", entry.Link),
				zap.Error(err),
			)
			continue
		}
		if res.Existing {
			continue
		}
		submitted++
	}
	return submitted
}
