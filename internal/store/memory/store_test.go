package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"linkcast/internal/cast"
)

func strPtr(s string) *string { return &s }
func boolPtr(b bool) *bool    { return &b }

func TestItemLifecycle(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()

	item := cast.WorkItem{ID: "i1", SourceURL: "https://example.com/a", CreatedAt: time.Now()}
	require.NoError(t, s.CreateItem(ctx, item))
	require.Error(t, s.CreateItem(ctx, item), "duplicate id must be rejected")

	got, err := s.GetItem(ctx, "i1")
	require.NoError(t, err)
	require.Equal(t, cast.StatePending, got.State)

	require.NoError(t, s.UpdateItem(ctx, "i1", cast.ItemUpdate{IsProcessing: boolPtr(true)}))
	got, _ = s.GetItem(ctx, "i1")
	require.Equal(t, cast.StateProcessing, got.State)

	require.NoError(t, s.UpdateItem(ctx, "i1", cast.ItemUpdate{
		IsProcessing: boolPtr(false),
		IsProcessed:  boolPtr(true),
		Title:        strPtr("Done"),
	}))
	got, _ = s.GetItem(ctx, "i1")
	require.Equal(t, cast.StateCompleted, got.State)
	require.Equal(t, "Done", got.Title)
	require.Equal(t, "https://example.com/a", got.SourceURL, "untouched fields survive updates")
}

func TestUpdateRecomputesFailedState(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()
	require.NoError(t, s.CreateItem(ctx, cast.WorkItem{ID: "i1", SourceURL: "https://example.com/a"}))

	require.NoError(t, s.UpdateItem(ctx, "i1", cast.ItemUpdate{
		IsProcessing: boolPtr(false),
		IsProcessed:  boolPtr(true),
		Error:        strPtr("fetch failed"),
	}))
	got, err := s.GetItem(ctx, "i1")
	require.NoError(t, err)
	require.Equal(t, cast.StateFailed, got.State)
	require.Equal(t, "fetch failed", got.Error)
}

func TestFingerprintUniqueAcrossItems(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()
	require.NoError(t, s.CreateItem(ctx, cast.WorkItem{ID: "i1", SourceURL: "https://example.com/a"}))
	require.NoError(t, s.CreateItem(ctx, cast.WorkItem{ID: "i2", SourceURL: "https://mirror.example.com/a"}))

	require.NoError(t, s.UpdateItem(ctx, "i1", cast.ItemUpdate{ContentFingerprint: strPtr("fp-1")}))

	// Another item claiming the same fingerprint is rejected.
	err := s.UpdateItem(ctx, "i2", cast.ItemUpdate{ContentFingerprint: strPtr("fp-1")})
	require.True(t, errors.Is(err, cast.ErrDuplicateContent))

	// Re-writing an item's own fingerprint is not a conflict, and empty
	// fingerprints never collide.
	require.NoError(t, s.UpdateItem(ctx, "i1", cast.ItemUpdate{ContentFingerprint: strPtr("fp-1")}))
	require.NoError(t, s.UpdateItem(ctx, "i2", cast.ItemUpdate{ContentFingerprint: strPtr("")}))
}

func TestGetItemByURLReturnsLatest(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()
	url := "https://example.com/retry"
	require.NoError(t, s.CreateItem(ctx, cast.WorkItem{ID: "old", SourceURL: url}))
	require.NoError(t, s.CreateItem(ctx, cast.WorkItem{ID: "new", SourceURL: url}))

	got, err := s.GetItemByURL(ctx, url)
	require.NoError(t, err)
	require.Equal(t, "new", got.ID)
}

func TestNotFound(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()

	_, err := s.GetItem(ctx, "ghost")
	require.True(t, errors.Is(err, cast.ErrNotFound))

	_, err = s.GetItemByURL(ctx, "https://example.com/ghost")
	require.True(t, errors.Is(err, cast.ErrNotFound))

	err = s.UpdateItem(ctx, "ghost", cast.ItemUpdate{})
	require.True(t, errors.Is(err, cast.ErrNotFound))

	_, err = s.GetFeed(ctx, "ghost")
	require.True(t, errors.Is(err, cast.ErrNotFound))
}

func TestFeedCRUD(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()
	now := time.Now()

	f1 := cast.Feed{ID: "f1", URL: "https://example.com/feed.xml", Active: true, CreatedAt: now}
	f2 := cast.Feed{ID: "f2", URL: "https://example.org/rss", Active: true, CreatedAt: now.Add(time.Second)}
	require.NoError(t, s.CreateFeed(ctx, f1))
	require.NoError(t, s.CreateFeed(ctx, f2))
	require.Error(t, s.CreateFeed(ctx, cast.Feed{ID: "f3", URL: f1.URL}), "duplicate url must be rejected")

	feeds, err := s.ListFeeds(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"f1", "f2"}, []string{feeds[0].ID, feeds[1].ID})

	f1.ErrorCount = 2
	require.NoError(t, s.UpdateFeed(ctx, f1))
	got, err := s.GetFeed(ctx, "f1")
	require.NoError(t, err)
	require.Equal(t, 2, got.ErrorCount)

	require.NoError(t, s.DeleteFeed(ctx, "f1"))
	_, err = s.GetFeed(ctx, "f1")
	require.True(t, errors.Is(err, cast.ErrNotFound))
	err = s.DeleteFeed(ctx, "f1")
	require.True(t, errors.Is(err, cast.ErrNotFound))
}
