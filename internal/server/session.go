package server

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/normanking/voiceavatar/internal/audio"
	"github.com/normanking/voiceavatar/internal/avatar"
	"github.com/normanking/voiceavatar/internal/bus"
	"github.com/normanking/voiceavatar/internal/orchestrator"
	"github.com/normanking/voiceavatar/internal/tts"
)

// sessionEvents are forwarded to the browser that owns them
var sessionEvents = []bus.EventType{
	bus.EventTypeMessageAdded,
	bus.EventTypeThinkingStarted,
	bus.EventTypeSpeakingStarted,
	bus.EventTypeSpeakingEnded,
	bus.EventTypeTurnError,
	bus.EventTypeAvatarStateChanged,
}

// Session is one connected browser with its own orchestrator and avatar.
type Session struct {
	id     string
	server *Server
	conn   *websocket.Conn
	logger zerolog.Logger

	writeMu sync.Mutex

	orch    *orchestrator.Orchestrator
	machine *avatar.Machine
	player  *audio.Controller

	translateSlots chan struct{}

	ctx         context.Context
	cancel      context.CancelFunc
	unsubscribe func()
	closeOnce   sync.Once
}

func newSession(s *Server, conn *websocket.Conn) (*Session, error) {
	id := uuid.NewString()
	slots := s.config.MaxTranslations
	if slots <= 0 {
		slots = DefaultConfig().MaxTranslations
	}
	ctx, cancel := context.WithCancel(context.Background())
	sess := &Session{
		id:             id,
		server:         s,
		conn:           conn,
		logger:         s.logger.With().Str("session", id).Logger(),
		translateSlots: make(chan struct{}, slots),
		ctx:            ctx,
		cancel:         cancel,
	}

	sess.player = audio.NewController(s.deps.Audio, audio.NewWebSocketSink(sess), sess.logger)
	sess.machine = avatar.NewMachine(s.deps.Avatar, nil, sess.logger)
	sess.machine.OnStateChange(func(from, to avatar.State) {
		s.eventBus.PublishSync(bus.Event{
			Type: bus.EventTypeAvatarStateChanged,
			Data: map[string]any{"session": id, "from": string(from), "to": string(to)},
		})
	})

	orch, err := orchestrator.New(orchestrator.Deps{
		Answer:      s.deps.Answer,
		Synthesizer: s.deps.Synthesizer,
		Player:      sess.player,
		Avatar:      sess.machine,
		Observer:    orchestrator.NewBusObserver(s.eventBus, id),
	}, s.orchestratorConfig(), sess.logger)
	if err != nil {
		cancel()
		sess.machine.Close()
		return nil, err
	}
	sess.orch = orch

	sess.unsubscribe = s.eventBus.SubscribeMultiple(sessionEvents, func(e bus.Event) {
		if e.Data["session"] != id {
			return
		}
		data := make(map[string]any, len(e.Data))
		for k, v := range e.Data {
			if k != "session" {
				data[k] = v
			}
		}
		sess.send(EventMessage{Type: MsgEvent, Event: string(e.Type), Data: data})
	})

	return sess, nil
}

// ID returns the session identifier
func (s *Session) ID() string {
	return s.id
}

// WriteJSON serializes writes to the connection. The audio sink, the avatar
// rig and the bus subscription all write through here.
func (s *Session) WriteJSON(v interface{}) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.ctx.Err() != nil {
		return websocket.ErrCloseSent
	}
	if timeout := s.server.config.WriteTimeout; timeout > 0 {
		_ = s.conn.SetWriteDeadline(time.Now().Add(timeout))
	}
	return s.conn.WriteJSON(v)
}

// send writes a message, logging instead of returning failures
func (s *Session) send(v interface{}) {
	if err := s.WriteJSON(v); err != nil && !errors.Is(err, websocket.ErrCloseSent) {
		s.logger.Debug().Err(err).Msg("Write failed")
	}
}

func (s *Session) sendError(message string) {
	s.send(ErrorMessage{Type: MsgError, Message: message})
}

// attach greets the browser and then hands it the idle loop.
func (s *Session) attach() {
	s.send(ReadyMessage{
		Type:      MsgReady,
		Session:   s.id,
		Language:  s.orch.Language(),
		Languages: tts.SupportedLanguages(),
		Voice:     s.server.voiceAvailable(),
	})
	s.machine.SetRig(clientRig{s})
}

// readLoop dispatches messages until the connection fails or the server stops.
func (s *Session) readLoop() {
	if limit := s.server.config.MaxMessageBytes; limit > 0 {
		s.conn.SetReadLimit(limit)
	}
	for {
		var msg ClientMessage
		if err := s.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Warn().Err(err).Msg("Session read failed")
			}
			return
		}
		s.dispatch(msg)
	}
}

func (s *Session) dispatch(msg ClientMessage) {
	switch msg.Type {
	case MsgTurn:
		turn, err := s.orch.HandleTurn(msg.Text)
		if err != nil {
			s.sendError(turnRejection(err))
			return
		}
		s.send(QueuedMessage{Type: MsgQueued, Turn: turn.ID, Seq: turn.Seq, Pending: s.orch.Pending()})

	case MsgLanguage:
		if err := s.orch.UpdateLanguage(strings.TrimSpace(msg.Code)); err != nil {
			s.sendError("That language is not supported.")
			return
		}
		s.logger.Info().Str("language", msg.Code).Msg("Session language changed")

	case MsgTranslate:
		if s.server.deps.Translator == nil {
			s.send(TranslationMessage{Type: MsgTranslation, ID: msg.ID, Target: msg.Target, Texts: msg.Texts})
			return
		}
		select {
		case s.translateSlots <- struct{}{}:
		default:
			s.sendError("Still translating earlier text. Please wait a moment.")
			return
		}
		go s.translate(msg)

	case MsgTick:
		s.machine.Update(msg.DT)
		s.send(PoseMessage{Type: MsgPose, Pose: s.machine.Pose()})

	case MsgHistory:
		s.orch.UpdateHistory(msg.History)

	default:
		s.sendError("Unknown message type: " + msg.Type)
	}
}

// translate runs off the read loop since retries can back off for seconds.
func (s *Session) translate(msg ClientMessage) {
	texts := s.server.deps.Translator.TranslateBatch(s.ctx, msg.Texts, msg.Target)
	<-s.translateSlots
	if s.ctx.Err() != nil {
		return
	}
	s.send(TranslationMessage{Type: MsgTranslation, ID: msg.ID, Target: msg.Target, Texts: texts})
}

// Close tears the session down. Results still in flight are dropped.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.orch.Close()
		s.machine.Close()
		s.unsubscribe()

		s.writeMu.Lock()
		s.cancel()
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		s.writeMu.Unlock()

		_ = s.conn.Close()
		s.logger.Info().Msg("Session closed")
	})
}

func turnRejection(err error) string {
	switch {
	case errors.Is(err, orchestrator.ErrEmptyInput):
		return "Please say or type something first."
	case errors.Is(err, orchestrator.ErrQueueFull):
		return "Still working on earlier questions. Please wait a moment."
	default:
		return "This session is closed."
	}
}

// clientRig forwards clip changes to the browser renderer.
type clientRig struct {
	s *Session
}

func (r clientRig) StartClip(name avatar.ClipName) error {
	return r.s.WriteJSON(ClipMessage{Type: MsgClip, Action: "start", Clip: name})
}

func (r clientRig) StopClip(name avatar.ClipName) error {
	return r.s.WriteJSON(ClipMessage{Type: MsgClip, Action: "stop", Clip: name})
}
