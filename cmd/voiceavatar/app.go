package main

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/normanking/voiceavatar/internal/answer"
	"github.com/normanking/voiceavatar/internal/audio"
	"github.com/normanking/voiceavatar/internal/avatar"
	"github.com/normanking/voiceavatar/internal/bus"
	"github.com/normanking/voiceavatar/internal/config"
	"github.com/normanking/voiceavatar/internal/logging"
	"github.com/normanking/voiceavatar/internal/orchestrator"
	"github.com/normanking/voiceavatar/internal/server"
	"github.com/normanking/voiceavatar/internal/translate"
	"github.com/normanking/voiceavatar/internal/tts"
)

// app holds what every command needs
type app struct {
	cfg        *config.Config
	configPath string
	log        *logging.Logger
	eventBus   *bus.EventBus
}

func newApp(configPath, logLevel string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}

	log, err := logging.New(&logging.Config{
		LogDir:  cfg.Log.Dir,
		Level:   logging.ParseLevel(cfg.Log.Level),
		Console: cfg.Log.Console,
	})
	if err != nil {
		return nil, err
	}

	return &app{
		cfg:        cfg,
		configPath: configPath,
		log:        log,
		eventBus:   bus.NewEventBus(),
	}, nil
}

func (a *app) logger() zerolog.Logger {
	return a.log.Zerolog()
}

func (a *app) close() {
	_ = a.log.Close()
}

func (a *app) answerProvider() *answer.OpenAIProvider {
	c := a.cfg.Answer
	return answer.NewOpenAIProvider(a.logger(), &answer.OpenAIConfig{
		APIKey:       c.APIKey,
		BaseURL:      c.BaseURL,
		Model:        c.Model,
		SystemPrompt: c.SystemPrompt,
		MaxTokens:    c.MaxTokens,
		Temperature:  c.Temperature,
		HistoryTurns: c.HistoryTurns,
		Timeout:      c.Timeout,
	})
}

func (a *app) synthesizer() *tts.Client {
	c := a.cfg.TTS
	return tts.NewClient(a.logger(), &tts.Config{
		APIKey:       c.APIKey,
		Endpoint:     c.Endpoint,
		Encoding:     c.Encoding,
		SampleRate:   c.SampleRate,
		SpeakingRate: c.SpeakingRate,
		Pitch:        c.Pitch,
		VolumeGainDb: c.VolumeGainDb,
		Timeout:      c.Timeout,
	})
}

func (a *app) audioConfig() *audio.Config {
	cfg := audio.DefaultConfig()
	cfg.Format = audio.Format(a.cfg.TTS.Encoding)
	cfg.SampleRate = a.cfg.TTS.SampleRate
	if a.cfg.Audio.ChunkDuration > 0 {
		cfg.ChunkDuration = a.cfg.Audio.ChunkDuration
	}
	cfg.OutputVolume = a.cfg.Audio.OutputVolume
	return cfg
}

// sink returns the headless playback sink named in the config
func (a *app) sink() (audio.Sink, error) {
	switch a.cfg.Audio.Sink {
	case "", "clock":
		return audio.NewClockSink(), nil
	case "discard":
		return audio.DiscardSink{}, nil
	default:
		return nil, fmt.Errorf("unknown audio sink %q", a.cfg.Audio.Sink)
	}
}

func (a *app) avatarConfig() *avatar.Config {
	c := a.cfg.Avatar
	cfg := avatar.DefaultConfig()
	cfg.MaxFrameDelta = c.MaxFrameDelta
	cfg.BlinkInterval = c.BlinkInterval
	cfg.BreathingRate = c.BreathingRate
	cfg.TalkingRate = c.TalkingRate
	cfg.ThinkingRate = c.ThinkingRate
	cfg.TransitionDuration = c.TransitionDuration
	return cfg
}

func (a *app) orchestratorConfig() *orchestrator.Config {
	cfg := orchestrator.DefaultConfig()
	cfg.Language = a.cfg.Language
	return cfg
}

// generator picks the translation backend. Unknown providers yield nil,
// which leaves every batch untranslated.
func (a *app) generator() translate.Generator {
	c := a.cfg.Translate
	switch c.Provider {
	case "", "openai":
		return translate.NewOpenAIGenerator(a.logger(), c.APIKey, c.Endpoint, c.Model, c.Timeout)
	case "http":
		return translate.NewHTTPGenerator(a.logger(), c.APIKey, c.Endpoint, c.Model, c.Timeout)
	default:
		a.log.Warn("translate", "Unknown translation provider", map[string]interface{}{"provider": c.Provider})
		return nil
	}
}

func (a *app) batcher() *translate.Batcher {
	c := a.cfg.Translate
	cfg := translate.DefaultConfig()
	if c.SourceLanguage != "" {
		cfg.SourceLanguage = c.SourceLanguage
	}
	cfg.MaxRetries = c.MaxRetries
	if c.BaseDelay > 0 {
		cfg.BaseDelay = c.BaseDelay
	}
	return translate.NewBatcher(a.generator(), cfg, a.eventBus, a.logger())
}

func (a *app) serverConfig() *server.Config {
	c := a.cfg.Server
	return &server.Config{
		Addr:            c.Addr,
		Path:            c.Path,
		AllowedOrigins:  c.AllowedOrigins,
		WriteTimeout:    c.WriteTimeout,
		MaxMessageBytes: c.MaxMessageBytes,
		MaxTranslations: c.MaxTranslations,
	}
}

// watchLanguage applies edits of the config file's language to fn. Without
// a config file there is nothing to watch.
func (a *app) watchLanguage(fn func(code string) error) {
	if a.configPath == "" {
		return
	}
	current := a.cfg.Language
	err := config.Watch(a.configPath, func(cfg *config.Config, err error) {
		if err != nil {
			a.log.Error("config", "Config reload failed", err, nil)
			return
		}
		if cfg.Language == current {
			return
		}
		if err := fn(cfg.Language); err != nil {
			a.log.Warn("config", "Ignoring language from config", map[string]interface{}{"language": cfg.Language, "error": err.Error()})
			return
		}
		a.log.Info("config", "Language changed", map[string]interface{}{"from": current, "to": cfg.Language})
		current = cfg.Language
	})
	if err != nil {
		a.log.Warn("config", "Config watch disabled", map[string]interface{}{"error": err.Error()})
	}
}
