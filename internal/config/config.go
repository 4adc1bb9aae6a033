// Package config provides configuration management for voiceavatar
package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Language  string          `mapstructure:"language"`
	Answer    AnswerConfig    `mapstructure:"answer"`
	TTS       TTSConfig       `mapstructure:"tts"`
	Audio     AudioConfig     `mapstructure:"audio"`
	Avatar    AvatarConfig    `mapstructure:"avatar"`
	Translate TranslateConfig `mapstructure:"translate"`
	Server    ServerConfig    `mapstructure:"server"`
	Log       LogConfig       `mapstructure:"log"`
}

// AnswerConfig configures the chat completion provider
type AnswerConfig struct {
	APIKey       string        `mapstructure:"api_key"`
	BaseURL      string        `mapstructure:"base_url"`
	Model        string        `mapstructure:"model"`
	SystemPrompt string        `mapstructure:"system_prompt"`
	MaxTokens    int           `mapstructure:"max_tokens"`
	Temperature  float32       `mapstructure:"temperature"`
	HistoryTurns int           `mapstructure:"history_turns"` // turns of context sent per request, 0 = all
	Timeout      time.Duration `mapstructure:"timeout"`
}

// TTSConfig configures the speech synthesis endpoint
type TTSConfig struct {
	APIKey       string        `mapstructure:"api_key"`
	Endpoint     string        `mapstructure:"endpoint"`
	Encoding     string        `mapstructure:"encoding"` // LINEAR16 or MULAW
	SampleRate   int           `mapstructure:"sample_rate"`
	SpeakingRate float64       `mapstructure:"speaking_rate"`
	Pitch        float64       `mapstructure:"pitch"`
	VolumeGainDb float64       `mapstructure:"volume_gain_db"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

// AudioConfig configures playback
type AudioConfig struct {
	Sink          string        `mapstructure:"sink"` // clock or discard
	ChunkDuration time.Duration `mapstructure:"chunk_duration"`
	OutputVolume  float64       `mapstructure:"output_volume"` // 0.0 to 1.0
}

// AvatarConfig configures the avatar animation loops
type AvatarConfig struct {
	MaxFrameDelta      time.Duration `mapstructure:"max_frame_delta"`
	BlinkInterval      time.Duration `mapstructure:"blink_interval"`
	BreathingRate      float64       `mapstructure:"breathing_rate"`
	TalkingRate        float64       `mapstructure:"talking_rate"`
	ThinkingRate       float64       `mapstructure:"thinking_rate"`
	TransitionDuration time.Duration `mapstructure:"transition_duration"`
}

// TranslateConfig configures the translation batcher
type TranslateConfig struct {
	Provider       string        `mapstructure:"provider"` // openai or http
	APIKey         string        `mapstructure:"api_key"`
	Endpoint       string        `mapstructure:"endpoint"`
	Model          string        `mapstructure:"model"` // empty uses the provider default
	SourceLanguage string        `mapstructure:"source_language"`
	MaxRetries     int           `mapstructure:"max_retries"`
	BaseDelay      time.Duration `mapstructure:"base_delay"`
	Timeout        time.Duration `mapstructure:"timeout"`
}

// ServerConfig configures the websocket session server
type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	Path            string        `mapstructure:"path"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	MaxMessageBytes int64         `mapstructure:"max_message_bytes"`
	MaxTranslations int           `mapstructure:"max_translations"` // concurrent translate batches per session
}

// LogConfig configures logging
type LogConfig struct {
	Level   string `mapstructure:"level"`
	Dir     string `mapstructure:"dir"`
	Console bool   `mapstructure:"console"`
}

// DefaultConfig returns sensible default configuration
func DefaultConfig() *Config {
	return &Config{
		Language: "en",
		Answer: AnswerConfig{
			Model:        "gpt-4o-mini",
			SystemPrompt: "You are a helpful farming assistant. Answer briefly in plain sentences.",
			MaxTokens:    512,
			Temperature:  0.4,
			HistoryTurns: 20,
			Timeout:      30 * time.Second,
		},
		TTS: TTSConfig{
			Endpoint:     "https://texttospeech.googleapis.com/v1/text:synthesize",
			Encoding:     "LINEAR16",
			SampleRate:   24000,
			SpeakingRate: 1.0,
			Pitch:        0,
			VolumeGainDb: 0,
			Timeout:      20 * time.Second,
		},
		Audio: AudioConfig{
			Sink:          "clock",
			ChunkDuration: 100 * time.Millisecond,
			OutputVolume:  1.0,
		},
		Avatar: AvatarConfig{
			MaxFrameDelta:      100 * time.Millisecond,
			BlinkInterval:      4 * time.Second,
			BreathingRate:      0.25,
			TalkingRate:        4.0,
			ThinkingRate:       0.5,
			TransitionDuration: 150 * time.Millisecond,
		},
		Translate: TranslateConfig{
			Provider:       "openai",
			SourceLanguage: "en",
			MaxRetries:     3,
			BaseDelay:      1 * time.Second,
			Timeout:        30 * time.Second,
		},
		Server: ServerConfig{
			Addr:            ":8090",
			Path:            "/ws",
			WriteTimeout:    10 * time.Second,
			MaxMessageBytes: 1 << 20,
			MaxTranslations: 2,
		},
		Log: LogConfig{
			Level:   "info",
			Console: true,
		},
	}
}

// envKeys are the settings most often overridden from the environment,
// e.g. VOICEAVATAR_ANSWER_MODEL.
var envKeys = []string{
	"language",
	"answer.api_key", "answer.base_url", "answer.model",
	"tts.api_key", "tts.endpoint", "tts.encoding",
	"translate.provider", "translate.api_key", "translate.endpoint", "translate.model",
	"server.addr",
	"log.level", "log.dir",
}

// newViper builds a viper instance with env overrides bound.
func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("VOICEAVATAR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range envKeys {
		_ = v.BindEnv(key)
	}
	return v
}

// Load reads configuration from path (or the default search paths when empty)
// and applies environment overrides. A missing config file is not an error.
// Variables from a .env file in the working directory are loaded first but
// never override the real environment.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	cfg := DefaultConfig()
	v := newViper()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if dir, err := GetConfigDir(); err == nil {
			v.AddConfigPath(dir)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return cfg, err
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return cfg, err
	}

	applyKeyFallbacks(cfg)
	return cfg, nil
}

// applyKeyFallbacks fills API keys from the conventional provider env vars.
func applyKeyFallbacks(cfg *Config) {
	if cfg.Answer.APIKey == "" {
		cfg.Answer.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.TTS.APIKey == "" {
		cfg.TTS.APIKey = os.Getenv("TTS_API_KEY")
	}
	if cfg.Translate.APIKey == "" {
		cfg.Translate.APIKey = os.Getenv("TRANSLATE_API_KEY")
	}
	if cfg.Translate.APIKey == "" && cfg.Translate.Provider == "openai" {
		cfg.Translate.APIKey = cfg.Answer.APIKey
	}
}

// Save writes the configuration as YAML to path
func Save(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	v := viper.New()
	v.SetConfigType("yaml")
	v.Set("language", cfg.Language)

	sections := map[string]interface{}{
		"answer":    cfg.Answer,
		"tts":       cfg.TTS,
		"audio":     cfg.Audio,
		"avatar":    cfg.Avatar,
		"translate": cfg.Translate,
		"server":    cfg.Server,
		"log":       cfg.Log,
	}
	for name, section := range sections {
		// decode through the mapstructure tags so the file uses the same keys Load reads
		var m map[string]interface{}
		if err := mapstructure.Decode(section, &m); err != nil {
			return err
		}
		v.Set(name, m)
	}

	return v.WriteConfigAs(path)
}

// Watch reloads path whenever it changes on disk and hands the fresh config
// to onChange. Reload failures are passed as a nil config with the error.
func Watch(path string, onChange func(*Config, error)) error {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return err
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		cfg, err := Load(e.Name)
		if err != nil {
			onChange(nil, err)
			return
		}
		onChange(cfg, nil)
	})
	v.WatchConfig()
	return nil
}

// GetConfigDir returns the configuration directory path
func GetConfigDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".voiceavatar"), nil
}
