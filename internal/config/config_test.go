package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "en", cfg.Language)
	assert.Equal(t, 3, cfg.Translate.MaxRetries)
	assert.Equal(t, time.Second, cfg.Translate.BaseDelay)
	assert.Equal(t, "LINEAR16", cfg.TTS.Encoding)
	assert.Equal(t, 100*time.Millisecond, cfg.Avatar.MaxFrameDelta)
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Server.Addr, cfg.Server.Addr)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, t.TempDir(), `
language: hi
tts:
  encoding: MULAW
  sample_rate: 8000
translate:
  max_retries: 5
  base_delay: 250ms
avatar:
  blink_interval: 2s
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "hi", cfg.Language)
	assert.Equal(t, "MULAW", cfg.TTS.Encoding)
	assert.Equal(t, 8000, cfg.TTS.SampleRate)
	assert.Equal(t, 5, cfg.Translate.MaxRetries)
	assert.Equal(t, 250*time.Millisecond, cfg.Translate.BaseDelay)
	assert.Equal(t, 2*time.Second, cfg.Avatar.BlinkInterval)
	// untouched keys keep their defaults
	assert.Equal(t, "gpt-4o-mini", cfg.Answer.Model)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("VOICEAVATAR_ANSWER_MODEL", "gpt-test")
	t.Setenv("VOICEAVATAR_LANGUAGE", "kn")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "gpt-test", cfg.Answer.Model)
	assert.Equal(t, "kn", cfg.Language)
}

func TestLoad_APIKeyFallbacks(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-openai")
	t.Setenv("TTS_API_KEY", "tts-key")
	t.Setenv("TRANSLATE_API_KEY", "")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "sk-openai", cfg.Answer.APIKey)
	assert.Equal(t, "tts-key", cfg.TTS.APIKey)
	// the openai translate provider shares the answer key
	assert.Equal(t, "sk-openai", cfg.Translate.APIKey)
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "language: [unterminated")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestSave_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg := DefaultConfig()
	cfg.Language = "ta"
	cfg.Translate.MaxRetries = 7
	cfg.Avatar.BlinkInterval = 3 * time.Second
	cfg.Server.AllowedOrigins = []string{"http://localhost:3000"}

	require.NoError(t, Save(cfg, path))

	loaded, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "ta", loaded.Language)
	assert.Equal(t, 7, loaded.Translate.MaxRetries)
	assert.Equal(t, 3*time.Second, loaded.Avatar.BlinkInterval)
	assert.Equal(t, []string{"http://localhost:3000"}, loaded.Server.AllowedOrigins)
}

func TestWatch_ReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "language: en\n")

	changed := make(chan *Config, 16)
	require.NoError(t, Watch(path, func(cfg *Config, err error) {
		if err != nil {
			return
		}
		select {
		case changed <- cfg:
		default:
		}
	}))

	// give the watcher a moment to register before writing
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("language: mr\n"), 0644))

	// a write can surface as several events, the last one carries the new content
	deadline := time.After(5 * time.Second)
	for {
		select {
		case cfg := <-changed:
			if cfg.Language == "mr" {
				return
			}
		case <-deadline:
			t.Fatal("config change was not observed")
		}
	}
}
