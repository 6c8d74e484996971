package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	require.Equal(t, 8080, cfg.Server.Port)
	require.Equal(t, 10, cfg.Fetch.TimeoutSeconds)
	require.Equal(t, 4096, cfg.Text.MaxChunkLength)
	require.Equal(t, "onyx", cfg.TTS.DefaultVoice)
	require.Contains(t, cfg.TTS.Voices, "nova")
	require.Equal(t, 3, cfg.TTS.MaxConcurrent)
	require.Equal(t, "memory", cfg.DB.Provider)
	require.Equal(t, "local", cfg.Audio.Provider)
	require.Equal(t, "noop", cfg.Publish.Provider)
	require.Equal(t, 30, cfg.Feeds.RecheckMinutes)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := []byte(`
server:
  port: 9090
text:
  max_chunk_length: 2000
tts:
  default_voice: nova
db:
  provider: postgres
  dsn: postgres://localhost/linkcast
`)
	require.NoError(t, os.WriteFile(path, body, 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 9090, cfg.Server.Port)
	require.Equal(t, 2000, cfg.Text.MaxChunkLength)
	require.Equal(t, "nova", cfg.TTS.DefaultVoice)
	require.Equal(t, "postgres", cfg.DB.Provider)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	bad := cfg
	bad.Text.MaxChunkLength = 0
	require.Error(t, bad.Validate())

	bad = cfg
	bad.DB.Provider = "postgres"
	bad.DB.DSN = ""
	require.Error(t, bad.Validate())

	bad = cfg
	bad.Audio.Provider = "s3"
	require.Error(t, bad.Validate())

	bad = cfg
	bad.Publish.Provider = "pubsub"
	require.Error(t, bad.Validate())
}
