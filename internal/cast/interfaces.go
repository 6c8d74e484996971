package cast

import (
	"context"
	"io"
	"time"
)

// ItemStore persists work items and supports the field-level updates the
// pipeline commits after each stage.
type ItemStore interface {
	CreateItem(ctx context.Context, item WorkItem) error
	GetItem(ctx context.Context, id string) (WorkItem, error)
	// GetItemByURL returns the most recent item for the URL, or ErrNotFound.
	GetItemByURL(ctx context.Context, url string) (WorkItem, error)
	// UpdateItem applies the non-nil fields. Setting a fingerprint another
	// item already holds returns ErrDuplicateContent.
	UpdateItem(ctx context.Context, id string, update ItemUpdate) error
}

// FeedStore persists RSS subscriptions.
type FeedStore interface {
	CreateFeed(ctx context.Context, feed Feed) error
	GetFeed(ctx context.Context, id string) (Feed, error)
	ListFeeds(ctx context.Context) ([]Feed, error)
	UpdateFeed(ctx context.Context, feed Feed) error
	DeleteFeed(ctx context.Context, id string) error
}

// AudioStore writes finished audio artifacts and serves them back.
type AudioStore interface {
	Put(ctx context.Context, name string, contentType string, data io.Reader) (string, error)
	Open(ctx context.Context, name string) (io.ReadCloser, error)
}

// Fetcher fetches a URL and returns the body plus metadata.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (FetchResponse, error)
}

// RenderDetector decides whether a rendered (headless) fetch is warranted.
type RenderDetector interface {
	ShouldRender(probe FetchResponse) bool
}

// SpeechClient converts one bounded chunk of text to audio bytes.
type SpeechClient interface {
	Synthesize(ctx context.Context, text string, voice string) ([]byte, error)
}

// FeedParser fetches and parses a remote feed document.
type FeedParser interface {
	Parse(ctx context.Context, url string) (FeedInfo, error)
}

// Queue provides enqueue/dequeue semantics for submitted items.
type Queue interface {
	Enqueue(ctx context.Context, item QueueItem) error
	Dequeue(ctx context.Context) (QueueItem, error)
}

// Publisher pushes completion events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Hasher computes digests for content fingerprinting.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces item and feed IDs.
type IDGenerator interface {
	NewID() (string, error)
}
