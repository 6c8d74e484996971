package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	audiomem "linkcast/internal/audiostore/memory"
	"linkcast/internal/cast"
	"linkcast/internal/feeds"
	"linkcast/internal/pipeline"
	queuemem "linkcast/internal/queue/memory"
	storemem "linkcast/internal/store/memory"
)

type seqIDs struct{ n int }

func (s *seqIDs) NewID() (string, error) {
	s.n++
	return string(rune('a'+s.n-1)) + "-id", nil
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now().UTC() }

type fakeParser struct {
	info cast.FeedInfo
	err  error
}

func (f *fakeParser) Parse(context.Context, string) (cast.FeedInfo, error) {
	return f.info, f.err
}

type fixture struct {
	server *httptest.Server
	store  *storemem.Store
	audio  *audiomem.Store
}

func newFixture(t *testing.T, parser cast.FeedParser) *fixture {
	t.Helper()
	store := storemem.New()
	queue := queuemem.NewQueue(64)
	audio := audiomem.New()
	logger := zap.NewNop()

	p := pipeline.NewService(store, queue, &seqIDs{}, realClock{}, logger)
	f := feeds.NewService(store, parser, p, &seqIDs{n: 10}, realClock{}, feeds.Config{}, logger)

	s := NewServer(p, f, audio, Config{
		Voices:       []string{"alloy", "echo", "fable", "onyx", "nova", "shimmer"},
		DefaultVoice: "onyx",
	}, logger)

	srv := httptest.NewServer(s.Router())
	t.Cleanup(srv.Close)
	return &fixture{server: srv, store: store, audio: audio}
}

func (f *fixture) post(t *testing.T, path, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(f.server.URL+path, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	return resp
}

func (f *fixture) get(t *testing.T, path string) *http.Response {
	t.Helper()
	resp, err := http.Get(f.server.URL + path)
	require.NoError(t, err)
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestSubmitItem(t *testing.T) {
	t.Parallel()

	f := newFixture(t, &fakeParser{})
	resp := f.post(t, "/v1/items", `{"url":"https://example.com/article","voice":"nova"}`)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	item := decode[cast.WorkItem](t, resp)
	require.NotEmpty(t, item.ID)
	require.Equal(t, cast.StatePending, item.State)
	require.Equal(t, "https://example.com/article", item.SourceURL)

	// Resubmitting the same URL dedups onto the existing item.
	resp = f.post(t, "/v1/items", `{"url":"https://example.com/article"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	dup := decode[cast.WorkItem](t, resp)
	require.Equal(t, item.ID, dup.ID)
}

func TestSubmitItemBadRequests(t *testing.T) {
	t.Parallel()

	f := newFixture(t, &fakeParser{})

	resp := f.post(t, "/v1/items", `{"url":"ftp://example.com/x"}`)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	resp = f.post(t, "/v1/items", `{not json`)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestGetItem(t *testing.T) {
	t.Parallel()

	f := newFixture(t, &fakeParser{})
	created := decode[cast.WorkItem](t, f.post(t, "/v1/items", `{"url":"https://example.com/a"}`))

	resp := f.get(t, "/v1/items/"+created.ID)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decode[cast.WorkItem](t, resp)
	require.Equal(t, created.ID, got.ID)

	resp = f.get(t, "/v1/items/ghost")
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestGetAudio(t *testing.T) {
	t.Parallel()

	f := newFixture(t, &fakeParser{})
	ctx := context.Background()
	created := decode[cast.WorkItem](t, f.post(t, "/v1/items", `{"url":"https://example.com/a"}`))

	// Not completed yet.
	resp := f.get(t, "/v1/items/"+created.ID+"/audio")
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	resp.Body.Close()

	_, err := f.audio.Put(ctx, "audio_1_x.mp3", "audio/mpeg", strings.NewReader("mp3 payload"))
	require.NoError(t, err)
	filename := "audio_1_x.mp3"
	processing, processed := false, true
	empty := ""
	require.NoError(t, f.store.UpdateItem(ctx, created.ID, cast.ItemUpdate{
		AudioFilename: &filename,
		IsProcessing:  &processing,
		IsProcessed:   &processed,
		Error:         &empty,
	}))

	resp = f.get(t, "/v1/items/"+created.ID+"/audio")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "audio/mpeg", resp.Header.Get("Content-Type"))
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	require.Equal(t, "mp3 payload", string(body))
}

func TestItemViewEstimateAndAudioURL(t *testing.T) {
	t.Parallel()

	f := newFixture(t, &fakeParser{})
	ctx := context.Background()
	created := decode[itemResponse](t, f.post(t, "/v1/items", `{"url":"https://example.com/a"}`))

	// While processing, a word count yields a 150 wpm estimate.
	words := 300
	processing := true
	require.NoError(t, f.store.UpdateItem(ctx, created.ID, cast.ItemUpdate{
		WordCount:    &words,
		IsProcessing: &processing,
	}))
	got := decode[itemResponse](t, f.get(t, "/v1/items/"+created.ID))
	require.Equal(t, cast.StateProcessing, got.State)
	require.Equal(t, 120.0, got.EstimatedDurationSeconds)
	require.Empty(t, got.AudioURL)

	// Once completed, the real audio link replaces the estimate.
	filename := "audio_1_x.mp3"
	done, notProcessing, empty := true, false, ""
	require.NoError(t, f.store.UpdateItem(ctx, created.ID, cast.ItemUpdate{
		AudioFilename: &filename,
		IsProcessing:  &notProcessing,
		IsProcessed:   &done,
		Error:         &empty,
	}))
	got = decode[itemResponse](t, f.get(t, "/v1/items/"+created.ID))
	require.Equal(t, cast.StateCompleted, got.State)
	require.Equal(t, "/v1/items/"+created.ID+"/audio", got.AudioURL)
	require.Zero(t, got.EstimatedDurationSeconds)
}

func TestVoices(t *testing.T) {
	t.Parallel()

	f := newFixture(t, &fakeParser{})
	resp := f.get(t, "/v1/voices")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	got := decode[voicesResponse](t, resp)
	require.Equal(t, "onyx", got.Default)
	require.Contains(t, got.Voices, "shimmer")
}

func TestFeedEndpoints(t *testing.T) {
	t.Parallel()

	parser := &fakeParser{info: cast.FeedInfo{
		Title:   "Example Blog",
		Entries: []cast.FeedEntry{{Title: "e1", Link: "https://example.com/1"}},
	}}
	f := newFixture(t, parser)

	resp := f.post(t, "/v1/feeds", `{"url":"https://example.com/feed.xml"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	feed := decode[feedResponse](t, resp)
	require.Equal(t, "Example Blog", feed.Title)
	require.Equal(t, "active", feed.Status)

	resp = f.get(t, "/v1/feeds")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	list := decode[[]feedResponse](t, resp)
	require.Len(t, list, 1)

	resp = f.get(t, "/v1/feeds/"+feed.ID)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	// New entry appears; refresh converts it.
	parser.info.Entries = append(parser.info.Entries, cast.FeedEntry{Title: "e2", Link: "https://example.com/2"})
	resp = f.post(t, "/v1/feeds/"+feed.ID+"/refresh", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	refreshed := decode[refreshResponse](t, resp)
	require.Equal(t, 1, refreshed.Submitted)
}

func TestToggleAndDeleteFeed(t *testing.T) {
	t.Parallel()

	parser := &fakeParser{info: cast.FeedInfo{Title: "Example Blog"}}
	f := newFixture(t, parser)
	feed := decode[feedResponse](t, f.post(t, "/v1/feeds", `{"url":"https://example.com/feed.xml"}`))

	resp := f.post(t, "/v1/feeds/"+feed.ID+"/toggle", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	toggled := decode[feedResponse](t, resp)
	require.False(t, toggled.Active)
	require.Equal(t, "inactive", toggled.Status)

	resp = f.post(t, "/v1/feeds/"+feed.ID+"/toggle", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	toggled = decode[feedResponse](t, resp)
	require.True(t, toggled.Active)

	req, err := http.NewRequest(http.MethodDelete, f.server.URL+"/v1/feeds/"+feed.ID, nil)
	require.NoError(t, err)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp.Body.Close()

	resp = f.get(t, "/v1/feeds/"+feed.ID)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestAddFeedParserFailure(t *testing.T) {
	t.Parallel()

	f := newFixture(t, &fakeParser{err: errors.New("not a feed")})
	resp := f.post(t, "/v1/feeds", `{"url":"https://example.com/broken"}`)
	require.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	resp.Body.Close()
}

func TestHealthAndReadiness(t *testing.T) {
	t.Parallel()

	f := newFixture(t, &fakeParser{})
	resp := f.get(t, "/healthz")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = f.get(t, "/readyz")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
}

func TestReadinessFailure(t *testing.T) {
	t.Parallel()

	store := storemem.New()
	p := pipeline.NewService(store, queuemem.NewQueue(1), &seqIDs{}, realClock{}, zap.NewNop())
	fs := feeds.NewService(store, &fakeParser{}, p, &seqIDs{}, realClock{}, feeds.Config{}, zap.NewNop())
	s := NewServer(p, fs, audiomem.New(), Config{
		Ready: func(context.Context) error { return errors.New("db unreachable") },
	}, zap.NewNop())

	srv := httptest.NewServer(s.Router())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/readyz")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	f := newFixture(t, &fakeParser{})
	resp := f.get(t, "/metrics")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	require.Contains(t, string(body), "go_goroutines")
}
