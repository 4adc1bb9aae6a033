// Package orchestrator sequences a conversation turn: answer, synthesis,
// playback and the avatar signals around them.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/normanking/voiceavatar/internal/answer"
	"github.com/normanking/voiceavatar/internal/audio"
	"github.com/normanking/voiceavatar/internal/conversation"
	"github.com/normanking/voiceavatar/internal/tts"
)

// Common errors
var (
	ErrClosed              = errors.New("orchestrator closed")
	ErrQueueFull           = errors.New("turn queue full")
	ErrEmptyInput          = errors.New("empty user input")
	ErrUnsupportedLanguage = errors.New("unsupported language")
)

// Synthesizer turns reply text into audio for a language.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, language string) (*tts.Speech, error)
}

// Player plays one audio buffer to completion.
type Player interface {
	PlayUntilComplete(ctx context.Context, data []byte) error
}

// Avatar receives behavior signals. *avatar.Machine implements it.
type Avatar interface {
	BeginThinking()
	BeginSpeaking()
	EndSpeaking()
	EndThinking()
}

type nopAvatar struct{}

func (nopAvatar) BeginThinking() {}
func (nopAvatar) BeginSpeaking() {}
func (nopAvatar) EndSpeaking() {}
func (nopAvatar) EndThinking() {}

// Config holds orchestrator configuration
type Config struct {
	Language    string
	QueueSize   int           // turns that may wait behind the one in flight
	TurnTimeout time.Duration // bound on the answer and synthesis calls of one turn
}

// DefaultConfig returns sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Language:    "en",
		QueueSize:   16,
		TurnTimeout: 60 * time.Second,
	}
}

// Deps are the collaborators of a session.
type Deps struct {
	Answer      answer.Provider
	Synthesizer Synthesizer
	Player      Player
	Avatar      Avatar   // optional
	Observer    Observer // optional
	History     *conversation.History
}

// Turn is one queued user utterance.
type Turn struct {
	Seq      uint64
	ID       string
	Text     string
	Language string
	Queued   time.Time
}

// Orchestrator runs turns one at a time in FIFO order.
type Orchestrator struct {
	answer   answer.Provider
	tts      Synthesizer
	player   Player
	avatar   Avatar
	observer Observer
	history  *conversation.History
	config   *Config
	logger   zerolog.Logger

	langMu   sync.RWMutex
	language string

	queue   chan *Turn
	seq     atomic.Uint64
	current atomic.Uint64 // seq of the turn in flight, 0 when none
	pending atomic.Int64

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	enqueueMu sync.Mutex // orders enqueues against Close
	closed    atomic.Bool
}

// New validates the configuration and starts the turn worker.
func New(deps Deps, config *Config, logger zerolog.Logger) (*Orchestrator, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if deps.Answer == nil || deps.Synthesizer == nil || deps.Player == nil {
		return nil, errors.New("orchestrator needs an answer provider, a synthesizer and a player")
	}
	if !tts.IsSupported(config.Language) {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedLanguage, config.Language)
	}
	if deps.Avatar == nil {
		deps.Avatar = nopAvatar{}
	}
	if deps.Observer == nil {
		deps.Observer = NopObserver{}
	}
	if deps.History == nil {
		deps.History = conversation.NewHistory()
	}
	queueSize := config.QueueSize
	if queueSize <= 0 {
		queueSize = DefaultConfig().QueueSize
	}

	ctx, cancel := context.WithCancel(context.Background())
	o := &Orchestrator{
		answer:   deps.Answer,
		tts:      deps.Synthesizer,
		player:   deps.Player,
		avatar:   deps.Avatar,
		observer: deps.Observer,
		history:  deps.History,
		config:   config,
		logger:   logger.With().Str("component", "orchestrator").Logger(),
		language: config.Language,
		queue:    make(chan *Turn, queueSize),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}

	go o.run()
	return o, nil
}

// HandleTurn queues user input. The language in effect now is the one the
// turn is answered and spoken in.
func (o *Orchestrator) HandleTurn(input string) (*Turn, error) {
	text := strings.TrimSpace(input)
	if text == "" {
		return nil, ErrEmptyInput
	}

	o.enqueueMu.Lock()
	defer o.enqueueMu.Unlock()
	if o.closed.Load() {
		return nil, ErrClosed
	}

	turn := &Turn{
		Seq:      o.seq.Add(1),
		ID:       uuid.NewString(),
		Text:     text,
		Language: o.Language(),
		Queued:   time.Now(),
	}

	o.pending.Add(1)
	select {
	case o.queue <- turn:
	default:
		o.pending.Add(-1)
		return nil, ErrQueueFull
	}

	o.logger.Debug().Uint64("seq", turn.Seq).Str("turn", turn.ID).Str("language", turn.Language).Msg("Turn queued")
	return turn, nil
}

// UpdateLanguage sets the language for turns queued from now on.
func (o *Orchestrator) UpdateLanguage(code string) error {
	if !tts.IsSupported(code) {
		return fmt.Errorf("%w: %q", ErrUnsupportedLanguage, code)
	}
	o.langMu.Lock()
	defer o.langMu.Unlock()
	if o.language != code {
		o.logger.Info().Str("from", o.language).Str("to", code).Msg("Language updated")
	}
	o.language = code
	return nil
}

// Language returns the language new turns will use
func (o *Orchestrator) Language() string {
	o.langMu.RLock()
	defer o.langMu.RUnlock()
	return o.language
}

// UpdateHistory replaces the conversation history, e.g. from a restored session.
func (o *Orchestrator) UpdateHistory(turns []conversation.Turn) {
	o.history.Replace(turns)
}

// History returns a copy of the conversation so far
func (o *Orchestrator) History() []conversation.Turn {
	return o.history.Snapshot()
}

// Pending returns the number of turns queued or in flight
func (o *Orchestrator) Pending() int {
	return int(o.pending.Load())
}

// Close stops accepting turns. Queued turns are discarded and results
// arriving for the turn in flight are dropped without reaching the observer.
func (o *Orchestrator) Close() {
	o.enqueueMu.Lock()
	swapped := o.closed.CompareAndSwap(false, true)
	o.enqueueMu.Unlock()
	if !swapped {
		return
	}
	o.cancel()
	o.logger.Debug().Msg("Orchestrator closed")
}

// Done is closed once the worker has exited after Close.
func (o *Orchestrator) Done() <-chan struct{} {
	return o.done
}

func (o *Orchestrator) run() {
	defer close(o.done)
	for {
		select {
		case <-o.ctx.Done():
			o.drain()
			return
		case turn := <-o.queue:
			if o.closed.Load() {
				o.pending.Add(-1)
				continue
			}
			o.current.Store(turn.Seq)
			o.process(turn)
			o.current.Store(0)
			o.pending.Add(-1)
		}
	}
}

func (o *Orchestrator) drain() {
	for {
		select {
		case <-o.queue:
			o.pending.Add(-1)
		default:
			return
		}
	}
}

// live reports whether results for turn may still be applied.
func (o *Orchestrator) live(turn *Turn) bool {
	return !o.closed.Load() && o.current.Load() == turn.Seq
}

func (o *Orchestrator) process(turn *Turn) {
	log := o.logger.With().Uint64("seq", turn.Seq).Str("turn", turn.ID).Logger()
	start := time.Now()

	prior := o.history.Snapshot()
	userTurn := conversation.UserTurn(turn.Text)
	o.history.Append(userTurn)
	o.observer.OnMessageAdd(userTurn)

	o.observer.OnThinkingStart()
	o.avatar.BeginThinking()

	callCtx, cancel := o.callContext()
	ans, err := o.answer.GetAnswer(callCtx, turn.Text, turn.Language, prior)
	cancel()
	if !o.live(turn) {
		log.Debug().Msg("Dropping answer for closed session")
		return
	}
	if err == nil && (ans == nil || strings.TrimSpace(ans.Response) == "") {
		err = answer.ErrEmptyAnswer
	}
	if err != nil {
		log.Error().Err(err).Msg("Answer failed")
		o.avatar.EndThinking()
		o.observer.OnError(errorMessage(err))
		return
	}

	reply := strings.TrimSpace(ans.Response)
	agentTurn := conversation.AgentTurn(reply)
	o.history.Append(agentTurn)
	o.observer.OnMessageAdd(agentTurn)

	callCtx, cancel = o.callContext()
	speech, err := o.tts.Synthesize(callCtx, reply, turn.Language)
	cancel()
	if !o.live(turn) {
		log.Debug().Msg("Dropping speech for closed session")
		return
	}
	if err != nil {
		log.Error().Err(err).Msg("Synthesis failed")
		o.avatar.EndThinking()
		o.observer.OnError(errorMessage(err))
		return
	}

	o.observer.OnSpeakingStart(reply)
	o.avatar.BeginSpeaking()

	err = o.player.PlayUntilComplete(o.ctx, speech.Audio)
	if !o.live(turn) {
		o.avatar.EndSpeaking()
		return
	}
	o.avatar.EndSpeaking()
	o.observer.OnSpeakingEnd()
	if err != nil {
		log.Error().Err(err).Msg("Playback failed")
		o.observer.OnError(errorMessage(err))
		return
	}

	log.Info().
		Str("language", turn.Language).
		Dur("wait", start.Sub(turn.Queued)).
		Dur("elapsed", time.Since(start)).
		Msg("Turn complete")
}

func (o *Orchestrator) callContext() (context.Context, context.CancelFunc) {
	if o.config.TurnTimeout > 0 {
		return context.WithTimeout(o.ctx, o.config.TurnTimeout)
	}
	return context.WithCancel(o.ctx)
}

// errorMessage turns a pipeline error into text fit for the user.
func errorMessage(err error) string {
	var (
		providerErr *answer.ProviderError
		synthErr    *tts.SynthesisError
		playbackErr *audio.PlaybackError
	)
	switch {
	case errors.Is(err, answer.ErrEmptyAnswer):
		return "I didn't get an answer for that. Please try asking again."
	case errors.As(err, &providerErr):
		return "I couldn't get an answer right now. Please try again."
	case errors.As(err, &synthErr):
		if synthErr.Kind == tts.KindMissingCredentials {
			return "Voice is not configured, so this answer is text only."
		}
		return "I couldn't generate speech for this answer."
	case errors.As(err, &playbackErr):
		return "Audio playback failed."
	case errors.Is(err, context.DeadlineExceeded):
		return "The request took too long. Please try again."
	default:
		return "Something went wrong. Please try again."
	}
}
