// Package postgres provides the production item and feed store backed by
// PostgreSQL via pgx.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"linkcast/internal/cast"
)

// Schema creates the tables. Applied by Migrate at startup; idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS items (
	id                  TEXT PRIMARY KEY,
	source_url          TEXT NOT NULL,
	title               TEXT NOT NULL DEFAULT '',
	raw_text            TEXT NOT NULL DEFAULT '',
	normalized_text     TEXT NOT NULL DEFAULT '',
	content_fingerprint TEXT NOT NULL DEFAULT '',
	language            TEXT NOT NULL DEFAULT '',
	word_count          INTEGER NOT NULL DEFAULT 0,
	audio_filename      TEXT NOT NULL DEFAULT '',
	audio_path          TEXT NOT NULL DEFAULT '',
	duration_seconds    DOUBLE PRECISION NOT NULL DEFAULT 0,
	voice               TEXT NOT NULL DEFAULT '',
	feed_id             TEXT NOT NULL DEFAULT '',
	is_processing       BOOLEAN NOT NULL DEFAULT FALSE,
	is_processed        BOOLEAN NOT NULL DEFAULT FALSE,
	error               TEXT NOT NULL DEFAULT '',
	state               TEXT NOT NULL DEFAULT 'pending',
	created_at          TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS items_source_url_idx ON items (source_url, created_at DESC);
CREATE UNIQUE INDEX IF NOT EXISTS items_fingerprint_idx ON items (content_fingerprint) WHERE content_fingerprint <> '';

CREATE TABLE IF NOT EXISTS feeds (
	id           TEXT PRIMARY KEY,
	url          TEXT NOT NULL UNIQUE,
	title        TEXT NOT NULL DEFAULT '',
	description  TEXT NOT NULL DEFAULT '',
	last_checked TIMESTAMPTZ,
	last_updated TIMESTAMPTZ,
	error_count  INTEGER NOT NULL DEFAULT 0,
	active       BOOLEAN NOT NULL DEFAULT TRUE,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

const itemColumns = `id, source_url, title, raw_text, normalized_text, content_fingerprint,
	language, word_count, audio_filename, audio_path, duration_seconds, voice, feed_id,
	is_processing, is_processed, error, state, created_at`

// DB is the subset of pgxpool.Pool the store uses; pgxmock implements it.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store implements cast.ItemStore and cast.FeedStore on PostgreSQL.
type Store struct {
	db DB
}

// New wraps an existing connection pool or mock.
func New(db DB) *Store {
	return &Store{db: db}
}

// Connect opens a pool from the DSN and returns a Store on it.
func Connect(ctx context.Context, dsn string, maxConns int32) (*Store, *pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("parse dsn: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("ping postgres: %w", err)
	}
	return New(pool), pool, nil
}

// Migrate applies the schema.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// CreateItem inserts a new work item with its derived state.
func (s *Store) CreateItem(ctx context.Context, item cast.WorkItem) error {
	item.State = cast.DeriveState(item.IsProcessing, item.IsProcessed, item.Error)
	_, err := s.db.Exec(ctx, `INSERT INTO items (`+itemColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`,
		item.ID, item.SourceURL, item.Title, item.RawText, item.NormalizedText, item.ContentFingerprint,
		item.Language, item.WordCount, item.AudioFilename, item.AudioPath, item.DurationSeconds,
		item.Voice, item.FeedID, item.IsProcessing, item.IsProcessed, item.Error, string(item.State),
		item.CreatedAt,
	)
	if err != nil {
		if isFingerprintConflict(err) {
			return fmt.Errorf("item %s: %w", item.ID, cast.ErrDuplicateContent)
		}
		return fmt.Errorf("insert item %s: %w", item.ID, err)
	}
	return nil
}

// isFingerprintConflict recognizes a violation of the partial unique
// index on content_fingerprint.
func isFingerprintConflict(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) &&
		pgErr.Code == "23505" &&
		pgErr.ConstraintName == "items_fingerprint_idx"
}

// GetItem loads one item by id.
func (s *Store) GetItem(ctx context.Context, id string) (cast.WorkItem, error) {
	row := s.db.QueryRow(ctx, `SELECT `+itemColumns+` FROM items WHERE id = $1`, id)
	return scanItem(row, id)
}

// GetItemByURL loads the most recently created item for the URL.
func (s *Store) GetItemByURL(ctx context.Context, url string) (cast.WorkItem, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+itemColumns+` FROM items WHERE source_url = $1 ORDER BY created_at DESC LIMIT 1`, url)
	return scanItem(row, url)
}

func scanItem(row pgx.Row, key string) (cast.WorkItem, error) {
	var item cast.WorkItem
	err := row.Scan(
		&item.ID, &item.SourceURL, &item.Title, &item.RawText, &item.NormalizedText,
		&item.ContentFingerprint, &item.Language, &item.WordCount, &item.AudioFilename,
		&item.AudioPath, &item.DurationSeconds, &item.Voice, &item.FeedID,
		&item.IsProcessing, &item.IsProcessed, &item.Error, &item.State, &item.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return cast.WorkItem{}, fmt.Errorf("item %s: %w", key, cast.ErrNotFound)
	}
	if err != nil {
		return cast.WorkItem{}, fmt.Errorf("scan item %s: %w", key, err)
	}
	return item, nil
}

// UpdateItem applies the non-nil fields and recomputes the state column
// in the same statement. The CASE expression reads the updated value for
// columns this update sets and the stored value for everything else.
func (s *Store) UpdateItem(ctx context.Context, id string, update cast.ItemUpdate) error {
	var (
		sets []string
		args []any
	)
	set := func(col string, val any) string {
		args = append(args, val)
		placeholder := fmt.Sprintf("$%d", len(args))
		sets = append(sets, col+" = "+placeholder)
		return placeholder
	}
	if update.Title != nil {
		set("title", *update.Title)
	}
	if update.RawText != nil {
		set("raw_text", *update.RawText)
	}
	if update.NormalizedText != nil {
		set("normalized_text", *update.NormalizedText)
	}
	if update.ContentFingerprint != nil {
		set("content_fingerprint", *update.ContentFingerprint)
	}
	if update.Language != nil {
		set("language", *update.Language)
	}
	if update.WordCount != nil {
		set("word_count", *update.WordCount)
	}
	if update.AudioFilename != nil {
		set("audio_filename", *update.AudioFilename)
	}
	if update.AudioPath != nil {
		set("audio_path", *update.AudioPath)
	}
	if update.DurationSeconds != nil {
		set("duration_seconds", *update.DurationSeconds)
	}
	if update.Voice != nil {
		set("voice", *update.Voice)
	}

	processing, processed, errText := "is_processing", "is_processed", "error"
	if update.IsProcessing != nil {
		processing = set("is_processing", *update.IsProcessing)
	}
	if update.IsProcessed != nil {
		processed = set("is_processed", *update.IsProcessed)
	}
	if update.Error != nil {
		errText = set("error", *update.Error)
	}
	sets = append(sets, fmt.Sprintf(
		"state = CASE WHEN %[1]s AND %[2]s <> '' THEN 'failed' WHEN %[1]s THEN 'completed' WHEN %[3]s THEN 'processing' ELSE 'pending' END",
		processed, errText, processing,
	))

	args = append(args, id)
	query := fmt.Sprintf("UPDATE items SET %s WHERE id = $%d", strings.Join(sets, ", "), len(args))

	tag, err := s.db.Exec(ctx, query, args...)
	if err != nil {
		if isFingerprintConflict(err) {
			return fmt.Errorf("item %s: %w", id, cast.ErrDuplicateContent)
		}
		return fmt.Errorf("update item %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("item %s: %w", id, cast.ErrNotFound)
	}
	return nil
}

const feedColumns = `id, url, title, description, last_checked, last_updated, error_count, active, created_at`

// CreateFeed inserts a new feed subscription. The unique constraint on
// url rejects duplicate subscriptions.
func (s *Store) CreateFeed(ctx context.Context, feed cast.Feed) error {
	_, err := s.db.Exec(ctx, `INSERT INTO feeds (`+feedColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		feed.ID, feed.URL, feed.Title, feed.Description, feed.LastChecked, feed.LastUpdated,
		feed.ErrorCount, feed.Active, feed.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert feed %s: %w", feed.ID, err)
	}
	return nil
}

// GetFeed loads one feed by id.
func (s *Store) GetFeed(ctx context.Context, id string) (cast.Feed, error) {
	var feed cast.Feed
	err := s.db.QueryRow(ctx, `SELECT `+feedColumns+` FROM feeds WHERE id = $1`, id).Scan(
		&feed.ID, &feed.URL, &feed.Title, &feed.Description, &feed.LastChecked,
		&feed.LastUpdated, &feed.ErrorCount, &feed.Active, &feed.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return cast.Feed{}, fmt.Errorf("feed %s: %w", id, cast.ErrNotFound)
	}
	if err != nil {
		return cast.Feed{}, fmt.Errorf("scan feed %s: %w", id, err)
	}
	return feed, nil
}

// ListFeeds returns every subscription in creation order.
func (s *Store) ListFeeds(ctx context.Context) ([]cast.Feed, error) {
	rows, err := s.db.Query(ctx, `SELECT `+feedColumns+` FROM feeds ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list feeds: %w", err)
	}
	defer rows.Close()

	var feeds []cast.Feed
	for rows.Next() {
		var feed cast.Feed
		if err := rows.Scan(
			&feed.ID, &feed.URL, &feed.Title, &feed.Description, &feed.LastChecked,
			&feed.LastUpdated, &feed.ErrorCount, &feed.Active, &feed.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan feed row: %w", err)
		}
		feeds = append(feeds, feed)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate feeds: %w", err)
	}
	return feeds, nil
}

// UpdateFeed replaces the mutable columns of a feed.
func (s *Store) UpdateFeed(ctx context.Context, feed cast.Feed) error {
	tag, err := s.db.Exec(ctx, `UPDATE feeds SET title = $2, description = $3, last_checked = $4,
		last_updated = $5, error_count = $6, active = $7 WHERE id = $1`,
		feed.ID, feed.Title, feed.Description, feed.LastChecked, feed.LastUpdated,
		feed.ErrorCount, feed.Active,
	)
	if err != nil {
		return fmt.Errorf("update feed %s: %w", feed.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("feed %s: %w", feed.ID, cast.ErrNotFound)
	}
	return nil
}

// DeleteFeed removes a subscription. Items it already submitted stay.
func (s *Store) DeleteFeed(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM feeds WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete feed %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("feed %s: %w", id, cast.ErrNotFound)
	}
	return nil
}

var (
	_ cast.ItemStore = (*Store)(nil)
	_ cast.FeedStore = (*Store)(nil)
)
