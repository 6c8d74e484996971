// Package cast defines core types shared across subsystems.
package cast

import "time"

// State represents the lifecycle state of a work item.
type State string

// Work item states persisted in the item store.
const (
	StatePending    State = "pending"
	StateProcessing State = "processing"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
)

// Terminal reports whether the state can no longer change.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// DeriveState computes the logical state from the stored status fields.
// It is the single source of truth; stores call it at write time so that
// the persisted state column can never disagree with the booleans.
func DeriveState(isProcessing, isProcessed bool, errText string) State {
	switch {
	case isProcessed && errText != "":
		return StateFailed
	case isProcessed:
		return StateCompleted
	case isProcessing:
		return StateProcessing
	default:
		return StatePending
	}
}

// WorkItem is the persisted record tracking one URL-to-audio conversion.
// Fields are populated progressively as pipeline stages complete.
type WorkItem struct {
	ID                 string    `json:"id"`
	SourceURL          string    `json:"source_url"`
	Title              string    `json:"title,omitempty"`
	RawText            string    `json:"-"`
	NormalizedText     string    `json:"-"`
	ContentFingerprint string    `json:"content_fingerprint,omitempty"`
	Language           string    `json:"language,omitempty"`
	WordCount          int       `json:"word_count,omitempty"`
	AudioFilename      string    `json:"audio_filename,omitempty"`
	AudioPath          string    `json:"audio_path,omitempty"`
	DurationSeconds    float64   `json:"duration_seconds,omitempty"`
	Voice              string    `json:"voice,omitempty"`
	FeedID             string    `json:"feed_id,omitempty"`
	IsProcessing       bool      `json:"-"`
	IsProcessed        bool      `json:"-"`
	Error              string    `json:"error,omitempty"`
	State              State     `json:"state"`
	CreatedAt          time.Time `json:"created_at"`
}

// ItemUpdate carries a field-level update for a work item. Nil pointers
// leave the stored value untouched. Stores recompute State from the
// resulting status fields on every update.
type ItemUpdate struct {
	Title              *string
	RawText            *string
	NormalizedText     *string
	ContentFingerprint *string
	Language           *string
	WordCount          *int
	AudioFilename      *string
	AudioPath          *string
	DurationSeconds    *float64
	Voice              *string
	IsProcessing       *bool
	IsProcessed        *bool
	Error              *string
}

// Feed is a persisted RSS subscription that supplies candidate URLs.
type Feed struct {
	ID          string     `json:"id"`
	URL         string     `json:"url"`
	Title       string     `json:"title,omitempty"`
	Description string     `json:"description,omitempty"`
	LastChecked *time.Time `json:"last_checked,omitempty"`
	LastUpdated *time.Time `json:"last_updated,omitempty"`
	ErrorCount  int        `json:"error_count"`
	Active      bool       `json:"active"`
	CreatedAt   time.Time  `json:"created_at"`
}

// Status derives the feed health from its stored fields.
func (f Feed) Status() string {
	switch {
	case !f.Active:
		return "inactive"
	case f.ErrorCount > 3:
		return "error"
	default:
		return "active"
	}
}

// FeedInfo is the parsed representation of a remote feed document.
type FeedInfo struct {
	Title       string
	Description string
	Updated     *time.Time
	Entries     []FeedEntry
}

// FeedEntry is one candidate article discovered in a feed.
type FeedEntry struct {
	Title string
	Link  string
}

// QueueItem wraps one submitted work item ready for background processing.
// It carries the minimum state a worker needs; everything else is loaded
// from the item store by id.
type QueueItem struct {
	ItemID    string
	Voice     string
	Attempt   int
	Submitted int64
}

// FetchRequest captures everything needed to fetch a URL.
type FetchRequest struct {
	URL     string
	Headers map[string]string
}

// FetchResponse is the result returned by a Fetcher implementation.
type FetchResponse struct {
	URL        string
	StatusCode int
	Body       []byte
	Duration   time.Duration
	Rendered   bool
}
