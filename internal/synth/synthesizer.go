package synth

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"linkcast/internal/audio"
	"linkcast/internal/cast"
)

// Config controls chunk fan-out and voice selection.
type Config struct {
	Voices        []string
	DefaultVoice  string
	MaxConcurrent int
}

// Output describes the finished audio artifact. Voice is the voice the
// audio was actually synthesized with, after any fallback.
type Output struct {
	Filename string
	Path     string
	Duration time.Duration
	Voice    string
}

// Synthesizer fans chunk synthesis out over a bounded worker pool,
// reassembles the segments in submission order and stores the result.
type Synthesizer struct {
	client cast.SpeechClient
	store  cast.AudioStore
	ids    cast.IDGenerator
	clock  cast.Clock
	cfg    Config
	logger *zap.Logger
}

// New builds a Synthesizer.
func New(client cast.SpeechClient, store cast.AudioStore, ids cast.IDGenerator, clock cast.Clock, cfg Config, logger *zap.Logger) *Synthesizer {
	if cfg.DefaultVoice == "" {
		cfg.DefaultVoice = "onyx"
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 3
	}
	return &Synthesizer{
		client: client,
		store:  store,
		ids:    ids,
		clock:  clock,
		cfg:    cfg,
		logger: logger,
	}
}

// ResolveVoice validates the requested voice against the known set,
// falling back to the default for anything unrecognized.
func (s *Synthesizer) ResolveVoice(voice string) string {
	if voice == "" {
		return s.cfg.DefaultVoice
	}
	for _, v := range s.cfg.Voices {
		if v == voice {
			return voice
		}
	}
	s.logger.Warn("unknown voice, using default",
		zap.String("requested", voice),
		zap.String("default", s.cfg.DefaultVoice),
	)
	return s.cfg.DefaultVoice
}

// Synthesize converts ordered chunks into one MP3. Segment i of the
// output always corresponds to chunk i, regardless of which synthesis
// call finishes first. The first chunk failure aborts the whole run.
func (s *Synthesizer) Synthesize(ctx context.Context, chunks []string, voice string) (Output, error) {
	if len(chunks) == 0 {
		return Output{}, cast.ErrEmptyChunks
	}
	voice = s.ResolveVoice(voice)

	filename, err := s.filename()
	if err != nil {
		return Output{}, err
	}

	var assembled []byte
	if len(chunks) == 1 {
		assembled, err = s.client.Synthesize(ctx, chunks[0], voice)
		if err != nil {
			return Output{}, &cast.SynthesisError{Chunk: 0, Err: err}
		}
	} else {
		assembled, err = s.synthesizeParallel(ctx, chunks, voice)
		if err != nil {
			return Output{}, err
		}
	}

	duration, err := audio.Duration(bytes.NewReader(assembled))
	if err != nil {
		return Output{}, fmt.Errorf("measure audio duration: %w", err)
	}

	path, err := s.store.Put(ctx, filename, "audio/mpeg", bytes.NewReader(assembled))
	if err != nil {
		return Output{}, fmt.Errorf("store audio %s: %w", filename, err)
	}

	s.logger.Info("audio synthesized",
		zap.String("filename", filename),
		zap.String("voice", voice),
		zap.Int("chunks", len(chunks)),
		zap.Duration("duration", duration),
	)
	return Output{Filename: filename, Path: path, Duration: duration, Voice: voice}, nil
}

// synthesizeParallel runs at most MaxConcurrent chunk calls at once,
// spools each segment to a temp file named by its index, then
// concatenates the segments in index order.
func (s *Synthesizer) synthesizeParallel(ctx context.Context, chunks []string, voice string) ([]byte, error) {
	tmpDir, err := os.MkdirTemp("", "linkcast-synth-*")
	if err != nil {
		return nil, fmt.Errorf("create segment dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg       sync.WaitGroup
		sem      = make(chan struct{}, s.cfg.MaxConcurrent)
		errs     = make([]error, len(chunks))
		segments = make([]string, len(chunks))
	)
	for i, chunk := range chunks {
		segments[i] = filepath.Join(tmpDir, fmt.Sprintf("chunk_%d.mp3", i))
		wg.Add(1)
		go func(i int, chunk string) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				errs[i] = ctx.Err()
				return
			}
			data, err := s.client.Synthesize(ctx, chunk, voice)
			if err != nil {
				errs[i] = err
				cancel()
				return
			}
			if err := os.WriteFile(segments[i], data, 0o644); err != nil {
				errs[i] = err
				cancel()
			}
		}(i, chunk)
	}
	wg.Wait()

	// Siblings cancelled after the first failure also report errors;
	// surface the chunk that actually failed, not a cancellation echo.
	var firstErr *cast.SynthesisError
	for i, err := range errs {
		if err == nil {
			continue
		}
		if firstErr == nil {
			firstErr = &cast.SynthesisError{Chunk: i, Err: err}
		}
		if !isCancellation(err) {
			firstErr = &cast.SynthesisError{Chunk: i, Err: err}
			break
		}
	}
	if firstErr != nil {
		return nil, firstErr
	}

	var out bytes.Buffer
	if err := audio.Concat(&out, segments); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// filename embeds both a timestamp and an ID fragment so two items
// submitted in the same second never collide.
func (s *Synthesizer) filename() (string, error) {
	id, err := s.ids.NewID()
	if err != nil {
		return "", fmt.Errorf("generate audio id: %w", err)
	}
	if len(id) > 8 {
		id = id[:8]
	}
	return fmt.Sprintf("audio_%d_%s.mp3", s.clock.Now().Unix(), id), nil
}
