// Command linkcast runs the article-to-audio service: an HTTP API for
// submitting URLs and managing feed subscriptions, plus the background
// workers that fetch, normalize and synthesize.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"linkcast/internal/api"
	gcsstore "linkcast/internal/audiostore/gcs"
	localstore "linkcast/internal/audiostore/local"
	audiomem "linkcast/internal/audiostore/memory"
	"linkcast/internal/cast"
	"linkcast/internal/clock/system"
	"linkcast/internal/config"
	"linkcast/internal/extract"
	"linkcast/internal/feeds"
	"linkcast/internal/fetch"
	"linkcast/internal/hash/sha256"
	"linkcast/internal/id/uuid"
	"linkcast/internal/logging"
	"linkcast/internal/pipeline"
	pubmem "linkcast/internal/publish/memory"
	"linkcast/internal/publish/noop"
	gpub "linkcast/internal/publish/pubsub"
	queuemem "linkcast/internal/queue/memory"
	storemem "linkcast/internal/store/memory"
	"linkcast/internal/store/postgres"
	"linkcast/internal/synth"
	"linkcast/internal/textproc"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("service exited", zap.Error(err))
	}
}

func run(cfg config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	clock := system.New()
	ids := uuid.New()
	hasher := sha256.New()

	items, feedStore, ready, cleanup, err := buildStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	audioStore, err := buildAudioStore(ctx, cfg)
	if err != nil {
		return err
	}

	publisher, pubClose, err := buildPublisher(ctx, cfg)
	if err != nil {
		return err
	}
	defer pubClose()

	fetcher := fetch.NewStatic(fetch.StaticConfig{
		UserAgent: cfg.Fetch.UserAgent,
		Timeout:   cfg.FetchTimeout(),
	})
	extractOpts := []extract.Option{}
	if cfg.Headless.Enabled {
		headless, hErr := fetch.NewHeadless(fetch.HeadlessConfig{
			MaxParallel:       cfg.Headless.MaxParallel,
			UserAgent:         cfg.Fetch.UserAgent,
			NavigationTimeout: time.Duration(cfg.Headless.NavTimeoutSec) * time.Second,
		})
		if hErr != nil {
			return fmt.Errorf("init headless fetcher: %w", hErr)
		}
		extractOpts = append(extractOpts, extract.WithHeadless(headless, fetch.NewDetector(cfg.Headless.RenderThreshold)))
	}
	extractor := extract.New(fetcher, hasher, logger.Named("extract"), extractOpts...)

	normalizer, err := textproc.New(textproc.Config{MaxChunkLength: cfg.Text.MaxChunkLength})
	if err != nil {
		return fmt.Errorf("init normalizer: %w", err)
	}

	speech := synth.NewOpenAIClient(synth.ClientConfig{
		Endpoint: cfg.TTS.Endpoint,
		APIKey:   cfg.TTS.APIKey,
		Model:    cfg.TTS.Model,
		Timeout:  cfg.TTSTimeout(),
	}, nil)
	synthesizer := synth.New(speech, audioStore, ids, clock, synth.Config{
		Voices:        cfg.TTS.Voices,
		DefaultVoice:  cfg.TTS.DefaultVoice,
		MaxConcurrent: cfg.TTS.MaxConcurrent,
	}, logger.Named("synth"))

	queue := queuemem.NewQueue(cfg.Pipeline.QueueDepth)
	service := pipeline.NewService(items, queue, ids, clock, logger.Named("pipeline"))
	runner := pipeline.NewRunner(items, extractor, normalizer, synthesizer,
		publisher, cfg.Publish.Topic, clock, logger.Named("runner"))
	dispatcher := pipeline.NewDispatcher(queue, runner, cfg.Pipeline.Workers, logger.Named("dispatcher"))

	feedParser := feeds.NewParser(cfg.Fetch.UserAgent, cfg.FetchTimeout())
	feedService := feeds.NewService(feedStore, feedParser, service, ids, clock, feeds.Config{
		MaxEntries:     cfg.Feeds.MaxEntries,
		InitialEntries: cfg.Feeds.InitialEntries,
		Recheck:        time.Duration(cfg.Feeds.RecheckMinutes) * time.Minute,
	}, logger.Named("feeds"))

	server := api.NewServer(service, feedService, audioStore, api.Config{
		Voices:       cfg.TTS.Voices,
		DefaultVoice: cfg.TTS.DefaultVoice,
		Timeout:      time.Duration(cfg.Server.RequestTimeoutSeconds) * time.Second,
		Ready:        ready,
	}, logger.Named("api"))

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		dispatcher.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		feedService.Run(ctx, time.Minute)
	}()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", zap.Int("port", cfg.Server.Port))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		stop()
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown incomplete", zap.Error(err))
	}
	queue.Close()
	wg.Wait()
	logger.Info("shutdown complete")
	return nil
}

func buildStores(ctx context.Context, cfg config.Config, logger *zap.Logger) (cast.ItemStore, cast.FeedStore, func(context.Context) error, func(), error) {
	switch cfg.DB.Provider {
	case "memory":
		s := storemem.New()
		return s, s, nil, func() {}, nil
	case "postgres":
		store, pool, err := postgres.Connect(ctx, cfg.DB.DSN, cfg.DB.MaxConns)
		if err != nil {
			return nil, nil, nil, nil, err
		}
		if err := store.Migrate(ctx); err != nil {
			pool.Close()
			return nil, nil, nil, nil, err
		}
		logger.Info("postgres connected")
		return store, store, pool.Ping, pool.Close, nil
	default:
		return nil, nil, nil, nil, fmt.Errorf("unknown db provider: %s", cfg.DB.Provider)
	}
}

func buildAudioStore(ctx context.Context, cfg config.Config) (cast.AudioStore, error) {
	switch cfg.Audio.Provider {
	case "local":
		return localstore.New(cfg.Audio.LocalDir)
	case "memory":
		return audiomem.New(), nil
	case "gcs":
		return gcsstore.Connect(ctx, cfg.Audio.GCSBucket, cfg.Audio.Prefix)
	default:
		return nil, fmt.Errorf("unknown audio provider: %s", cfg.Audio.Provider)
	}
}

func buildPublisher(ctx context.Context, cfg config.Config) (cast.Publisher, func(), error) {
	switch cfg.Publish.Provider {
	case "noop":
		return noop.New(), func() {}, nil
	case "memory":
		return pubmem.New(), func() {}, nil
	case "pubsub":
		p, err := gpub.Connect(ctx, cfg.Publish.ProjectID)
		if err != nil {
			return nil, nil, err
		}
		return p, func() { p.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown publish provider: %s", cfg.Publish.Provider)
	}
}
