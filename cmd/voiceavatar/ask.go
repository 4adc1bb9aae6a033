package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/normanking/voiceavatar/internal/audio"
	"github.com/normanking/voiceavatar/internal/avatar"
	"github.com/normanking/voiceavatar/internal/conversation"
	"github.com/normanking/voiceavatar/internal/orchestrator"
	"github.com/normanking/voiceavatar/internal/tts"
)

// runAsk runs a single turn without a browser, printing what a UI would show.
func runAsk(ctx context.Context, a *app, text, outPath string, w io.Writer) error {
	sink, err := a.sink()
	if err != nil {
		return err
	}

	synth := &capturingSynth{next: a.synthesizer()}
	obs := newPrintObserver(w)
	machine := avatar.NewMachine(a.avatarConfig(), printRig{w}, a.logger())
	defer machine.Close()

	orch, err := orchestrator.New(orchestrator.Deps{
		Answer:      a.answerProvider(),
		Synthesizer: synth,
		Player:      audio.NewController(a.audioConfig(), sink, a.logger()),
		Avatar:      machine,
		Observer:    obs,
	}, a.orchestratorConfig(), a.logger())
	if err != nil {
		return err
	}

	if _, err := orch.HandleTurn(text); err != nil {
		orch.Close()
		return err
	}

	select {
	case <-obs.settled:
	case <-ctx.Done():
	}
	orch.Close()
	<-orch.Done()

	if msg := obs.failure(); msg != "" {
		return errors.New(msg)
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if outPath != "" {
		if err := writeWAV(outPath, synth.last()); err != nil {
			return err
		}
		fmt.Fprintf(w, "wrote %s\n", outPath)
	}
	return nil
}

// writeWAV stores synthesized speech as a PCM16 WAV file
func writeWAV(path string, speech *tts.Speech) error {
	if speech == nil {
		return errors.New("no speech to write")
	}
	clip, err := audio.Decode(speech.Audio, audio.Format(speech.Encoding), speech.SampleRate, 1)
	if err != nil {
		return err
	}
	return os.WriteFile(path, audio.EncodeWAV(clip.PCM, clip.SampleRate, clip.Channels), 0644)
}

type printObserver struct {
	w       io.Writer
	settled chan struct{}

	mu     sync.Mutex
	once   sync.Once
	errMsg string
}

func newPrintObserver(w io.Writer) *printObserver {
	return &printObserver{w: w, settled: make(chan struct{})}
}

func (o *printObserver) settle() {
	o.once.Do(func() { close(o.settled) })
}

func (o *printObserver) failure() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.errMsg
}

func (o *printObserver) OnThinkingStart() {
	fmt.Fprintln(o.w, "[thinking]")
}

func (o *printObserver) OnMessageAdd(turn conversation.Turn) {
	fmt.Fprintf(o.w, "%s: %s\n", turn.Speaker, turn.Text)
}

func (o *printObserver) OnSpeakingStart(string) {
	fmt.Fprintln(o.w, "[speaking]")
}

func (o *printObserver) OnSpeakingEnd() {
	fmt.Fprintln(o.w, "[done]")
	o.settle()
}

func (o *printObserver) OnError(message string) {
	fmt.Fprintf(o.w, "[error] %s\n", message)
	o.mu.Lock()
	o.errMsg = message
	o.mu.Unlock()
	o.settle()
}

// printRig shows clip changes in place of a renderer
type printRig struct {
	w io.Writer
}

func (r printRig) StartClip(name avatar.ClipName) error {
	_, err := fmt.Fprintf(r.w, "[avatar] %s\n", name)
	return err
}

func (r printRig) StopClip(avatar.ClipName) error { return nil }

// capturingSynth keeps the last synthesized speech for --out
type capturingSynth struct {
	next orchestrator.Synthesizer

	mu     sync.Mutex
	speech *tts.Speech
}

func (s *capturingSynth) Synthesize(ctx context.Context, text, language string) (*tts.Speech, error) {
	speech, err := s.next.Synthesize(ctx, text, language)
	if err == nil {
		s.mu.Lock()
		s.speech = speech
		s.mu.Unlock()
	}
	return speech, err
}

func (s *capturingSynth) last() *tts.Speech {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.speech
}
