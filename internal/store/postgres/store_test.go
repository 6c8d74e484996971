package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"linkcast/internal/cast"
)

func itemRows() *pgxmock.Rows {
	return pgxmock.NewRows([]string{
		"id", "source_url", "title", "raw_text", "normalized_text", "content_fingerprint",
		"language", "word_count", "audio_filename", "audio_path", "duration_seconds", "voice",
		"feed_id", "is_processing", "is_processed", "error", "state", "created_at",
	})
}

func TestCreateItemDerivesState(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	created := time.Now().UTC()
	mock.ExpectExec("INSERT INTO items").
		WithArgs("i1", "https://example.com/a", "", "", "", "", "", 0, "", "", float64(0), "onyx", "",
			false, false, "", "pending", created).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	s := New(mock)
	err = s.CreateItem(context.Background(), cast.WorkItem{
		ID:        "i1",
		SourceURL: "https://example.com/a",
		Voice:     "onyx",
		CreatedAt: created,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetItem(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	created := time.Now().UTC()
	mock.ExpectQuery("SELECT .+ FROM items WHERE id").
		WithArgs("i1").
		WillReturnRows(itemRows().AddRow(
			"i1", "https://example.com/a", "Title", "raw", "norm", "fp", "en", 42,
			"audio_1_x.mp3", "/audio/audio_1_x.mp3", 12.5, "onyx", "", false, true, "",
			cast.StateCompleted, created,
		))

	s := New(mock)
	got, err := s.GetItem(context.Background(), "i1")
	require.NoError(t, err)
	require.Equal(t, cast.StateCompleted, got.State)
	require.Equal(t, 42, got.WordCount)
	require.Equal(t, 12.5, got.DurationSeconds)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetItemNotFound(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("SELECT .+ FROM items WHERE id").
		WithArgs("ghost").
		WillReturnRows(itemRows())

	s := New(mock)
	_, err = s.GetItem(context.Background(), "ghost")
	require.True(t, errors.Is(err, cast.ErrNotFound))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetItemByURLOrdersByRecency(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("SELECT .+ FROM items WHERE source_url .+ ORDER BY created_at DESC LIMIT 1").
		WithArgs("https://example.com/a").
		WillReturnRows(itemRows().AddRow(
			"newest", "https://example.com/a", "", "", "", "", "", 0, "", "", float64(0), "", "",
			false, false, "", cast.StatePending, time.Now(),
		))

	s := New(mock)
	got, err := s.GetItemByURL(context.Background(), "https://example.com/a")
	require.NoError(t, err)
	require.Equal(t, "newest", got.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateItemRecomputesStateInSQL(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	// Marking an item processed with an error must flip state to failed
	// using the updated parameter values, not the stored columns.
	mock.ExpectExec(`UPDATE items SET is_processing = \$1, is_processed = \$2, error = \$3, ` +
		`state = CASE WHEN \$2 AND \$3 <> '' THEN 'failed' WHEN \$2 THEN 'completed' WHEN \$1 THEN 'processing' ELSE 'pending' END ` +
		`WHERE id = \$4`).
		WithArgs(false, true, "fetch failed", "i1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	processing, processed := false, true
	errText := "fetch failed"
	s := New(mock)
	err = s.UpdateItem(context.Background(), "i1", cast.ItemUpdate{
		IsProcessing: &processing,
		IsProcessed:  &processed,
		Error:        &errText,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateItemFingerprintConflict(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	// A violation of the partial unique index on content_fingerprint
	// surfaces as ErrDuplicateContent, not a raw pg error.
	mock.ExpectExec("UPDATE items SET").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "items_fingerprint_idx"})

	fp := "fp-1"
	s := New(mock)
	err = s.UpdateItem(context.Background(), "i2", cast.ItemUpdate{ContentFingerprint: &fp})
	require.True(t, errors.Is(err, cast.ErrDuplicateContent))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateItemNotFound(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("UPDATE items SET").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	title := "x"
	s := New(mock)
	err = s.UpdateItem(context.Background(), "ghost", cast.ItemUpdate{Title: &title})
	require.True(t, errors.Is(err, cast.ErrNotFound))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFeedRoundTrip(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	created := time.Now().UTC()
	feed := cast.Feed{ID: "f1", URL: "https://example.com/feed.xml", Title: "Example", Active: true, CreatedAt: created}

	mock.ExpectExec("INSERT INTO feeds").
		WithArgs("f1", feed.URL, "Example", "", (*time.Time)(nil), (*time.Time)(nil), 0, true, created).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	mock.ExpectQuery("SELECT .+ FROM feeds WHERE id").
		WithArgs("f1").
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "url", "title", "description", "last_checked", "last_updated",
			"error_count", "active", "created_at",
		}).AddRow("f1", feed.URL, "Example", "", nil, nil, 0, true, created))

	s := New(mock)
	require.NoError(t, s.CreateFeed(context.Background(), feed))

	got, err := s.GetFeed(context.Background(), "f1")
	require.NoError(t, err)
	require.Equal(t, "Example", got.Title)
	require.Nil(t, got.LastChecked)
	require.Equal(t, "active", got.Status())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteFeed(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("DELETE FROM feeds WHERE id").
		WithArgs("f1").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectExec("DELETE FROM feeds WHERE id").
		WithArgs("ghost").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	s := New(mock)
	require.NoError(t, s.DeleteFeed(context.Background(), "f1"))
	err = s.DeleteFeed(context.Background(), "ghost")
	require.True(t, errors.Is(err, cast.ErrNotFound))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListFeeds(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	now := time.Now().UTC()
	mock.ExpectQuery("SELECT .+ FROM feeds ORDER BY created_at").
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "url", "title", "description", "last_checked", "last_updated",
			"error_count", "active", "created_at",
		}).
			AddRow("f1", "https://a.example/feed", "A", "", nil, nil, 0, true, now).
			AddRow("f2", "https://b.example/feed", "B", "", nil, nil, 5, true, now.Add(time.Second)))

	s := New(mock)
	feeds, err := s.ListFeeds(context.Background())
	require.NoError(t, err)
	require.Len(t, feeds, 2)
	require.Equal(t, "error", feeds[1].Status())
	require.NoError(t, mock.ExpectationsWereMet())
}
