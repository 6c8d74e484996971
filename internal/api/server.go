// Package api exposes the HTTP surface: item submission and status,
// audio retrieval, feed management, health and metrics.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"linkcast/internal/cast"
	"linkcast/internal/feeds"
	"linkcast/internal/pipeline"
)

// Server wires the HTTP routes to the pipeline and feed services.
type Server struct {
	pipeline     *pipeline.Service
	feeds        *feeds.Service
	audio        cast.AudioStore
	voices       []string
	defaultVoice string
	timeout      time.Duration
	ready        func(context.Context) error
	logger       *zap.Logger
}

// Config carries the server's construction parameters.
type Config struct {
	Voices       []string
	DefaultVoice string
	Timeout      time.Duration
	// Ready reports backend health for the readiness probe; nil means
	// always ready.
	Ready func(context.Context) error
}

// NewServer builds a Server.
func NewServer(p *pipeline.Service, f *feeds.Service, audio cast.AudioStore, cfg Config, logger *zap.Logger) *Server {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &Server{
		pipeline:     p,
		feeds:        f,
		audio:        audio,
		voices:       cfg.Voices,
		defaultVoice: cfg.DefaultVoice,
		timeout:      cfg.Timeout,
		ready:        cfg.Ready,
		logger:       logger,
	}
}

// Router assembles the chi routing tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(s.timeout))

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/items", s.handleSubmitItem)
		r.Get("/items/{id}", s.handleGetItem)
		r.Get("/items/{id}/audio", s.handleGetAudio)
		r.Get("/voices", s.handleVoices)

		r.Post("/feeds", s.handleAddFeed)
		r.Get("/feeds", s.handleListFeeds)
		r.Get("/feeds/{id}", s.handleGetFeed)
		r.Delete("/feeds/{id}", s.handleDeleteFeed)
		r.Post("/feeds/{id}/refresh", s.handleRefreshFeed)
		r.Post("/feeds/{id}/toggle", s.handleToggleFeed)
	})
	return r
}

type submitItemRequest struct {
	URL   string `json:"url"`
	Voice string `json:"voice,omitempty"`
}

// wordsPerMinute is the speaking rate used to estimate duration before
// the real audio exists.
const wordsPerMinute = 150

type itemResponse struct {
	cast.WorkItem
	// EstimatedDurationSeconds is a word-count based guess, present only
	// until real audio duration is known.
	EstimatedDurationSeconds float64 `json:"estimated_duration_seconds,omitempty"`
	AudioURL                 string  `json:"audio_url,omitempty"`
}

func itemView(item cast.WorkItem) itemResponse {
	out := itemResponse{WorkItem: item}
	if item.State == cast.StateCompleted && item.AudioFilename != "" {
		out.AudioURL = "/v1/items/" + item.ID + "/audio"
		return out
	}
	if item.WordCount > 0 {
		out.EstimatedDurationSeconds = float64(item.WordCount) / wordsPerMinute * 60
	}
	return out
}

func (s *Server) handleSubmitItem(w http.ResponseWriter, r *http.Request) {
	var req submitItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, http.StatusBadRequest, "invalid json body")
		return
	}
	res, err := s.pipeline.Submit(r.Context(), pipeline.SubmitRequest{URL: req.URL, Voice: req.Voice})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	status := http.StatusAccepted
	if res.Existing {
		status = http.StatusOK
	}
	s.writeJSON(w, status, itemView(res.Item))
}

func (s *Server) handleGetItem(w http.ResponseWriter, r *http.Request) {
	item, err := s.pipeline.Status(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, itemView(item))
}

func (s *Server) handleGetAudio(w http.ResponseWriter, r *http.Request) {
	item, err := s.pipeline.Status(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if item.State != cast.StateCompleted || item.AudioFilename == "" {
		s.writeError(w, r, http.StatusConflict, "audio not ready: item is "+string(item.State))
		return
	}
	body, err := s.audio.Open(r.Context(), item.AudioFilename)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", "audio/mpeg")
	w.Header().Set("Content-Disposition", `attachment; filename="`+item.AudioFilename+`"`)
	if _, err := io.Copy(w, body); err != nil {
		s.logger.Warn("audio stream interrupted",
			zap.String("item_id", item.ID),
			zap.Error(err),
		)
	}
}

type voicesResponse struct {
	Voices  []string `json:"voices"`
	Default string   `json:"default"`
}

func (s *Server) handleVoices(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, voicesResponse{Voices: s.voices, Default: s.defaultVoice})
}

type addFeedRequest struct {
	URL string `json:"url"`
}

type feedResponse struct {
	cast.Feed
	Status string `json:"status"`
}

func (s *Server) handleAddFeed(w http.ResponseWriter, r *http.Request) {
	var req addFeedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.URL == "" {
		s.writeError(w, r, http.StatusBadRequest, "invalid json body")
		return
	}
	feed, err := s.feeds.AddFeed(r.Context(), req.URL)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, feedResponse{Feed: feed, Status: feed.Status()})
}

func (s *Server) handleListFeeds(w http.ResponseWriter, r *http.Request) {
	list, err := s.feeds.ListFeeds(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	out := make([]feedResponse, 0, len(list))
	for _, f := range list {
		out = append(out, feedResponse{Feed: f, Status: f.Status()})
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetFeed(w http.ResponseWriter, r *http.Request) {
	feed, err := s.feeds.GetFeed(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, feedResponse{Feed: feed, Status: feed.Status()})
}

func (s *Server) handleToggleFeed(w http.ResponseWriter, r *http.Request) {
	feed, err := s.feeds.ToggleFeed(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, feedResponse{Feed: feed, Status: feed.Status()})
}

func (s *Server) handleDeleteFeed(w http.ResponseWriter, r *http.Request) {
	if err := s.feeds.DeleteFeed(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type refreshResponse struct {
	Submitted int `json:"submitted"`
}

func (s *Server) handleRefreshFeed(w http.ResponseWriter, r *http.Request) {
	n, err := s.feeds.RefreshFeed(r.Context(), chi.URLParam(r, "id"), true)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, refreshResponse{Submitted: n})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		if err := s.ready(r.Context()); err != nil {
			s.writeError(w, r, http.StatusServiceUnavailable, err.Error())
			return
		}
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, cast.ErrInvalidURL):
		s.writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, cast.ErrNotFound):
		s.writeError(w, r, http.StatusNotFound, err.Error())
	default:
		s.logger.Error("request failed",
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		s.writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}

func (s *Server) writeError(w http.ResponseWriter, _ *http.Request, status int, msg string) {
	s.writeJSON(w, status, errorResponse{Error: msg})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", zap.Error(err))
	}
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}
