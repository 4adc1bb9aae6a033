// Package server hosts browser sessions over websocket. Each session gets
// its own orchestrator, avatar machine and audio stream.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/normanking/voiceavatar/internal/answer"
	"github.com/normanking/voiceavatar/internal/audio"
	"github.com/normanking/voiceavatar/internal/avatar"
	"github.com/normanking/voiceavatar/internal/bus"
	"github.com/normanking/voiceavatar/internal/logging"
	"github.com/normanking/voiceavatar/internal/orchestrator"
	"github.com/normanking/voiceavatar/internal/tts"
)

// Translator translates string batches. *translate.Batcher implements it.
type Translator interface {
	TranslateBatch(ctx context.Context, texts []string, target string) []string
}

// Config holds server configuration
type Config struct {
	Addr            string
	Path            string
	AllowedOrigins  []string // empty allows any origin
	WriteTimeout    time.Duration
	MaxMessageBytes int64
	MaxTranslations int // translate batches a session may have in flight
}

// DefaultConfig returns sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Addr:            ":8090",
		Path:            "/ws",
		WriteTimeout:    10 * time.Second,
		MaxMessageBytes: 1 << 20,
		MaxTranslations: 2,
	}
}

// Deps are shared by every session. Per-session state is built from them.
type Deps struct {
	Answer       answer.Provider
	Synthesizer  orchestrator.Synthesizer
	Translator   Translator // optional
	Audio        *audio.Config
	Avatar       *avatar.Config
	Orchestrator *orchestrator.Config

	// VoiceAvailable reports whether synthesis is configured; nil means yes
	VoiceAvailable func() bool
}

// Server upgrades connections to sessions
type Server struct {
	config   *Config
	deps     Deps
	eventBus *bus.EventBus
	logger   zerolog.Logger
	upgrader websocket.Upgrader

	mu       sync.RWMutex
	sessions map[string]*Session
	language string // for new sessions, empty uses the orchestrator config

	degraded    atomic.Int64
	unsubscribe func()
}

// New creates a server. eventBus may be shared with other components.
func New(deps Deps, config *Config, eventBus *bus.EventBus, logger zerolog.Logger) *Server {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Path == "" {
		config.Path = DefaultConfig().Path
	}
	if eventBus == nil {
		eventBus = bus.NewEventBus()
	}

	s := &Server{
		config:   config,
		deps:     deps,
		eventBus: eventBus,
		logger:   logger.With().Str("component", "server").Logger(),
		sessions: make(map[string]*Session),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     s.checkOrigin,
	}
	s.unsubscribe = eventBus.Subscribe(bus.EventTypeTranslationDegraded, func(bus.Event) {
		s.degraded.Add(1)
	})
	return s
}

// Handler returns the HTTP routes: the websocket endpoint and /healthz.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(s.config.Path, s.handleWebSocket)
	mux.HandleFunc("/healthz", s.handleHealth)
	return mux
}

// Start serves until ctx is cancelled, then closes every session.
func (s *Server) Start(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:              s.config.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Info().Str("addr", s.config.Addr).Str("path", s.config.Path).Msg("Starting session server")

	errChan := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		s.Close()
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := httpServer.Shutdown(shutdownCtx)
		s.Close()
		return err
	}
}

// Close ends every session
func (s *Server) Close() {
	s.unsubscribe()

	s.mu.Lock()
	sessions := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.sessions = make(map[string]*Session)
	s.mu.Unlock()

	for _, sess := range sessions {
		sess.Close()
	}
}

// UpdateLanguage switches every open session and every later one to code.
// Turns already queued keep the language they were queued with.
func (s *Server) UpdateLanguage(code string) error {
	if !tts.IsSupported(code) {
		return fmt.Errorf("%w: %q", orchestrator.ErrUnsupportedLanguage, code)
	}

	s.mu.Lock()
	s.language = code
	sessions := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.mu.Unlock()

	for _, sess := range sessions {
		if err := sess.orch.UpdateLanguage(code); err != nil {
			return err
		}
	}
	s.logger.Info().Str("language", code).Int("sessions", len(sessions)).Msg("Language updated")
	return nil
}

// orchestratorConfig returns the config for a new session
func (s *Server) orchestratorConfig() *orchestrator.Config {
	cfg := orchestrator.DefaultConfig()
	if s.deps.Orchestrator != nil {
		*cfg = *s.deps.Orchestrator
	}
	s.mu.RLock()
	if s.language != "" {
		cfg.Language = s.language
	}
	s.mu.RUnlock()
	return cfg
}

// Sessions returns the number of connected sessions
func (s *Server) Sessions() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// ForwardLogs streams warnings and errors from the application logger to
// every connected session.
func (s *Server) ForwardLogs(l *logging.Logger) {
	l.SetOnLog(func(entry logging.LogEntry) {
		if entry.Level != "warn" && entry.Level != "error" {
			return
		}
		s.broadcast(LogMessage{Type: MsgLog, Entry: entry})
	})
}

func (s *Server) broadcast(v interface{}) {
	s.mu.RLock()
	sessions := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.mu.RUnlock()

	for _, sess := range sessions {
		sess.send(v)
	}
}

func (s *Server) voiceAvailable() bool {
	if s.deps.VoiceAvailable == nil {
		return true
	}
	return s.deps.VoiceAvailable()
}

func (s *Server) checkOrigin(r *http.Request) bool {
	if len(s.config.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range s.config.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("WebSocket upgrade failed")
		return
	}

	sess, err := newSession(s, conn)
	if err != nil {
		s.logger.Error().Err(err).Msg("Session setup failed")
		_ = conn.WriteJSON(ErrorMessage{Type: MsgError, Message: "Session could not be started."})
		_ = conn.Close()
		return
	}

	s.mu.Lock()
	s.sessions[sess.id] = sess
	s.mu.Unlock()

	s.logger.Info().Str("session", sess.id).Str("remote", r.RemoteAddr).Msg("Session opened")

	defer func() {
		s.mu.Lock()
		delete(s.sessions, sess.id)
		s.mu.Unlock()
		sess.Close()
	}()

	sess.attach()
	sess.readLoop()
}

type healthResponse struct {
	Status              string `json:"status"`
	Sessions            int    `json:"sessions"`
	Voice               bool   `json:"voice"`
	Translation         bool   `json:"translation"`
	TranslationDegraded int64  `json:"translation_degraded"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	body, err := sonic.Marshal(healthResponse{
		Status:              "ok",
		Sessions:            s.Sessions(),
		Voice:               s.voiceAvailable(),
		Translation:         s.deps.Translator != nil,
		TranslationDegraded: s.degraded.Load(),
	})
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(body)
}
