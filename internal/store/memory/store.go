// Package memory provides an in-memory item and feed store, used in
// tests and single-process deployments.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"linkcast/internal/cast"
)

// Store keeps items and feeds in maps guarded by one RWMutex. All
// returned values are copies; callers cannot mutate stored state.
type Store struct {
	mu    sync.RWMutex
	items map[string]cast.WorkItem
	byURL map[string]string
	feeds map[string]cast.Feed
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		items: make(map[string]cast.WorkItem),
		byURL: make(map[string]string),
		feeds: make(map[string]cast.Feed),
	}
}

// CreateItem stores a new work item. The derived state is computed at
// write time so readers never see stale status fields.
func (s *Store) CreateItem(_ context.Context, item cast.WorkItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.items[item.ID]; exists {
		return fmt.Errorf("item %s already exists", item.ID)
	}
	if s.fingerprintTaken(item.ContentFingerprint, item.ID) {
		return fmt.Errorf("item %s: %w", item.ID, cast.ErrDuplicateContent)
	}
	item.State = cast.DeriveState(item.IsProcessing, item.IsProcessed, item.Error)
	s.items[item.ID] = item
	s.byURL[item.SourceURL] = item.ID
	return nil
}

// GetItem returns the item or cast.ErrNotFound.
func (s *Store) GetItem(_ context.Context, id string) (cast.WorkItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.items[id]
	if !ok {
		return cast.WorkItem{}, fmt.Errorf("item %s: %w", id, cast.ErrNotFound)
	}
	return item, nil
}

// GetItemByURL returns the most recently created item for the URL.
func (s *Store) GetItemByURL(_ context.Context, url string) (cast.WorkItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byURL[url]
	if !ok {
		return cast.WorkItem{}, fmt.Errorf("url %s: %w", url, cast.ErrNotFound)
	}
	return s.items[id], nil
}

// UpdateItem applies the non-nil fields of update and recomputes the
// derived state from the resulting status fields.
func (s *Store) UpdateItem(_ context.Context, id string, update cast.ItemUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[id]
	if !ok {
		return fmt.Errorf("item %s: %w", id, cast.ErrNotFound)
	}
	if update.ContentFingerprint != nil && s.fingerprintTaken(*update.ContentFingerprint, id) {
		return fmt.Errorf("item %s: %w", id, cast.ErrDuplicateContent)
	}
	applyUpdate(&item, update)
	item.State = cast.DeriveState(item.IsProcessing, item.IsProcessed, item.Error)
	s.items[id] = item
	return nil
}

// fingerprintTaken reports whether a non-empty fingerprint already
// belongs to an item other than id. Callers must hold the lock.
func (s *Store) fingerprintTaken(fingerprint, id string) bool {
	if fingerprint == "" {
		return false
	}
	for _, other := range s.items {
		if other.ID != id && other.ContentFingerprint == fingerprint {
			return true
		}
	}
	return false
}

func applyUpdate(item *cast.WorkItem, u cast.ItemUpdate) {
	if u.Title != nil {
		item.Title = *u.Title
	}
	if u.RawText != nil {
		item.RawText = *u.RawText
	}
	if u.NormalizedText != nil {
		item.NormalizedText = *u.NormalizedText
	}
	if u.ContentFingerprint != nil {
		item.ContentFingerprint = *u.ContentFingerprint
	}
	if u.Language != nil {
		item.Language = *u.Language
	}
	if u.WordCount != nil {
		item.WordCount = *u.WordCount
	}
	if u.AudioFilename != nil {
		item.AudioFilename = *u.AudioFilename
	}
	if u.AudioPath != nil {
		item.AudioPath = *u.AudioPath
	}
	if u.DurationSeconds != nil {
		item.DurationSeconds = *u.DurationSeconds
	}
	if u.Voice != nil {
		item.Voice = *u.Voice
	}
	if u.IsProcessing != nil {
		item.IsProcessing = *u.IsProcessing
	}
	if u.IsProcessed != nil {
		item.IsProcessed = *u.IsProcessed
	}
	if u.Error != nil {
		item.Error = *u.Error
	}
}

// CreateFeed stores a new feed subscription.
func (s *Store) CreateFeed(_ context.Context, feed cast.Feed) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.feeds[feed.ID]; exists {
		return fmt.Errorf("feed %s already exists", feed.ID)
	}
	for _, f := range s.feeds {
		if f.URL == feed.URL {
			return fmt.Errorf("feed url %s already subscribed", feed.URL)
		}
	}
	s.feeds[feed.ID] = feed
	return nil
}

// GetFeed returns the feed or cast.ErrNotFound.
func (s *Store) GetFeed(_ context.Context, id string) (cast.Feed, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	feed, ok := s.feeds[id]
	if !ok {
		return cast.Feed{}, fmt.Errorf("feed %s: %w", id, cast.ErrNotFound)
	}
	return feed, nil
}

// ListFeeds returns all feeds in creation order.
func (s *Store) ListFeeds(_ context.Context) ([]cast.Feed, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	feeds := make([]cast.Feed, 0, len(s.feeds))
	for _, f := range s.feeds {
		feeds = append(feeds, f)
	}
	sort.Slice(feeds, func(i, j int) bool { return feeds[i].CreatedAt.Before(feeds[j].CreatedAt) })
	return feeds, nil
}

// UpdateFeed replaces the stored feed.
func (s *Store) UpdateFeed(_ context.Context, feed cast.Feed) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.feeds[feed.ID]; !ok {
		return fmt.Errorf("feed %s: %w", feed.ID, cast.ErrNotFound)
	}
	s.feeds[feed.ID] = feed
	return nil
}

// DeleteFeed removes the feed or returns cast.ErrNotFound.
func (s *Store) DeleteFeed(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.feeds[id]; !ok {
		return fmt.Errorf("feed %s: %w", id, cast.ErrNotFound)
	}
	delete(s.feeds, id)
	return nil
}

var (
	_ cast.ItemStore = (*Store)(nil)
	_ cast.FeedStore = (*Store)(nil)
)
