package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"linkcast/internal/cast"
	"linkcast/internal/extract"
	"linkcast/internal/metrics"
	"linkcast/internal/synth"
	"linkcast/internal/textproc"
)

// Extractor is the stage that turns a URL into clean article text.
type Extractor interface {
	Extract(ctx context.Context, rawURL string) (extract.Result, error)
}

// Normalizer is the stage that prepares text for synthesis.
type Normalizer interface {
	Normalize(text, title string) textproc.Result
}

// Synthesizer is the stage that turns chunks into a stored MP3.
type Synthesizer interface {
	Synthesize(ctx context.Context, chunks []string, voice string) (synth.Output, error)
}

// CompletionEvent is published when an item reaches a terminal state.
type CompletionEvent struct {
	ItemID          string  `json:"item_id"`
	SourceURL       string  `json:"source_url"`
	State           string  `json:"state"`
	AudioPath       string  `json:"audio_path,omitempty"`
	DurationSeconds float64 `json:"duration_seconds,omitempty"`
	Error           string  `json:"error,omitempty"`
}

// Runner executes the conversion stages for one queued item, committing
// progress to the store after each stage so a crash preserves whatever
// completed.
type Runner struct {
	items       cast.ItemStore
	extractor   Extractor
	normalizer  Normalizer
	synthesizer Synthesizer
	publisher   cast.Publisher
	topic       string
	clock       cast.Clock
	logger      *zap.Logger
}

// NewRunner builds a Runner.
func NewRunner(items cast.ItemStore, extractor Extractor, normalizer Normalizer, synthesizer Synthesizer, publisher cast.Publisher, topic string, clock cast.Clock, logger *zap.Logger) *Runner {
	return &Runner{
		items:       items,
		extractor:   extractor,
		normalizer:  normalizer,
		synthesizer: synthesizer,
		publisher:   publisher,
		topic:       topic,
		clock:       clock,
		logger:      logger,
	}
}

// Process runs one item through extract, normalize and synthesize. Every
// exit path leaves the item in exactly one terminal state; a panic in
// any stage is converted to a failure rather than killing the worker.
func (r *Runner) Process(ctx context.Context, queued cast.QueueItem) {
	item, err := r.items.GetItem(ctx, queued.ItemID)
	if err != nil {
		r.logger.Error("queued item not found", zap.String("item_id", queued.ItemID), zap.Error(err))
		return
	}
	if item.State != cast.StatePending {
		r.logger.Warn("skipping item not in pending state",
			zap.String("item_id", item.ID),
			zap.String("state", string(item.State)),
		)
		return
	}

	if !r.update(ctx, item.ID, processingUpdate()) {
		return
	}

	defer func() {
		if p := recover(); p != nil {
			r.fail(ctx, item, fmt.Sprintf("internal error: %v", p))
		}
	}()

	log := r.logger.With(zap.String("item_id", item.ID), zap.String("url", item.SourceURL))

	extracted, err := r.timedExtract(ctx, item.SourceURL)
	if err != nil {
		r.fail(ctx, item, "extraction failed: "+err.Error())
		return
	}
	if err := r.items.UpdateItem(ctx, item.ID, cast.ItemUpdate{
		Title:              &extracted.Title,
		RawText:            &extracted.Text,
		ContentFingerprint: &extracted.Fingerprint,
	}); err != nil {
		if errors.Is(err, cast.ErrDuplicateContent) {
			r.fail(ctx, item, "content already converted under another item")
			return
		}
		r.logger.Error("item update failed", zap.String("item_id", item.ID), zap.Error(err))
		return
	}
	log.Debug("extraction committed", zap.String("strategy", extracted.Strategy))

	normalized := r.timedNormalize(extracted.Text, extracted.Title)
	if !r.update(ctx, item.ID, cast.ItemUpdate{
		NormalizedText: &normalized.Text,
		Language:       &normalized.Language,
		WordCount:      &normalized.WordCount,
	}) {
		return
	}
	log.Debug("normalization committed",
		zap.Int("chunks", len(normalized.Chunks)),
		zap.Int("words", normalized.WordCount),
	)

	output, err := r.timedSynthesize(ctx, normalized.Chunks, queued.Voice)
	if err != nil {
		r.fail(ctx, item, "synthesis failed: "+err.Error())
		return
	}
	metrics.Get().ChunksSynthesized.Add(float64(len(normalized.Chunks)))

	r.complete(ctx, item, output)
}

func (r *Runner) timedExtract(ctx context.Context, url string) (extract.Result, error) {
	defer r.observe("extract", r.clock.Now())
	return r.extractor.Extract(ctx, url)
}

func (r *Runner) timedNormalize(text, title string) textproc.Result {
	defer r.observe("normalize", r.clock.Now())
	return r.normalizer.Normalize(text, title)
}

func (r *Runner) timedSynthesize(ctx context.Context, chunks []string, voice string) (synth.Output, error) {
	defer r.observe("synthesize", r.clock.Now())
	return r.synthesizer.Synthesize(ctx, chunks, voice)
}

func (r *Runner) observe(stage string, start time.Time) {
	metrics.Get().StageDuration.WithLabelValues(stage).Observe(r.clock.Now().Sub(start).Seconds())
}

func (r *Runner) complete(ctx context.Context, item cast.WorkItem, output synth.Output) {
	processing, processed := false, true
	empty := ""
	duration := output.Duration.Seconds()
	if !r.update(ctx, item.ID, cast.ItemUpdate{
		AudioFilename:   &output.Filename,
		AudioPath:       &output.Path,
		DurationSeconds: &duration,
		Voice:           &output.Voice,
		IsProcessing:    &processing,
		IsProcessed:     &processed,
		Error:           &empty,
	}) {
		return
	}
	metrics.Get().ItemsFinished.WithLabelValues(string(cast.StateCompleted)).Inc()
	r.logger.Info("item completed",
		zap.String("item_id", item.ID),
		zap.String("audio", output.Filename),
		zap.Float64("duration_seconds", duration),
	)
	r.publish(ctx, CompletionEvent{
		ItemID:          item.ID,
		SourceURL:       item.SourceURL,
		State:           string(cast.StateCompleted),
		AudioPath:       output.Path,
		DurationSeconds: duration,
	})
}

func (r *Runner) fail(ctx context.Context, item cast.WorkItem, msg string) {
	processing, processed := false, true
	if !r.update(ctx, item.ID, cast.ItemUpdate{
		IsProcessing: &processing,
		IsProcessed:  &processed,
		Error:        &msg,
	}) {
		return
	}
	metrics.Get().ItemsFinished.WithLabelValues(string(cast.StateFailed)).Inc()
	r.logger.Warn("item failed",
		zap.String("item_id", item.ID),
		zap.String("url", item.SourceURL),
		zap.String("reason", msg),
	)
	r.publish(ctx, CompletionEvent{
		ItemID:    item.ID,
		SourceURL: item.SourceURL,
		State:     string(cast.StateFailed),
		Error:     msg,
	})
}

func (r *Runner) publish(ctx context.Context, event CompletionEvent) {
	if r.publisher == nil {
		return
	}
	if _, err := r.publisher.Publish(ctx, r.topic, event); err != nil {
		r.logger.Error("failed to publish completion event",
			zap.String("item_id", event.ItemID),
			zap.Error(err),
		)
	}
}

func (r *Runner) update(ctx context.Context, id string, u cast.ItemUpdate) bool {
	if err := r.items.UpdateItem(ctx, id, u); err != nil {
		r.logger.Error("item update failed", zap.String("item_id", id), zap.Error(err))
		return false
	}
	return true
}

func processingUpdate() cast.ItemUpdate {
	processing := true
	return cast.ItemUpdate{IsProcessing: &processing}
}
