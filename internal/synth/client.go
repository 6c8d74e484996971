// Package synth turns normalized text chunks into a single MP3 artifact
// via a hosted text-to-speech API.
package synth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"linkcast/internal/cast"
)

// DefaultEndpoint is the hosted speech API endpoint.
const DefaultEndpoint = "https://api.openai.com/v1/audio/speech"

// ClientConfig configures the speech API client.
type ClientConfig struct {
	Endpoint string
	APIKey   string
	Model    string
	Timeout  time.Duration
}

// OpenAIClient calls the OpenAI speech endpoint. One call synthesizes one
// chunk; concurrency is the caller's concern.
type OpenAIClient struct {
	cfg        ClientConfig
	httpClient *http.Client
}

// NewOpenAIClient builds a speech client. A nil httpClient gets a default
// with the configured timeout.
func NewOpenAIClient(cfg ClientConfig, httpClient *http.Client) *OpenAIClient {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.Model == "" {
		cfg.Model = "tts-1"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &OpenAIClient{cfg: cfg, httpClient: httpClient}
}

type speechRequest struct {
	Model          string `json:"model"`
	Voice          string `json:"voice"`
	Input          string `json:"input"`
	ResponseFormat string `json:"response_format"`
}

// Synthesize sends one chunk of text and returns the MP3 bytes.
func (c *OpenAIClient) Synthesize(ctx context.Context, text, voice string) ([]byte, error) {
	body, err := json.Marshal(speechRequest{
		Model:          c.cfg.Model,
		Voice:          voice,
		Input:          text,
		ResponseFormat: "mp3",
	})
	if err != nil {
		return nil, fmt.Errorf("marshal speech request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build speech request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("speech api call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("speech api returned %d: %s", resp.StatusCode, bytes.TrimSpace(detail))
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read speech response: %w", err)
	}
	if len(audio) == 0 {
		return nil, fmt.Errorf("speech api returned empty audio for voice %q", voice)
	}
	return audio, nil
}

var _ cast.SpeechClient = (*OpenAIClient)(nil)
