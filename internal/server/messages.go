package server

import (
	"github.com/normanking/voiceavatar/internal/avatar"
	"github.com/normanking/voiceavatar/internal/conversation"
	"github.com/normanking/voiceavatar/internal/logging"
)

// Inbound message types
const (
	MsgTurn      = "turn"
	MsgLanguage  = "language"
	MsgTranslate = "translate"
	MsgTick      = "tick"
	MsgHistory   = "history"
)

// Outbound message types
const (
	MsgReady       = "ready"
	MsgQueued      = "queued"
	MsgEvent       = "event"
	MsgClip        = "clip"
	MsgPose        = "pose"
	MsgTranslation = "translation"
	MsgError       = "error"
	MsgLog         = "log"
)

// ClientMessage is anything a browser sends. Fields are used per Type.
type ClientMessage struct {
	Type    string              `json:"type"`
	ID      string              `json:"id,omitempty"`      // echoed on translation results
	Text    string              `json:"text,omitempty"`    // turn
	Code    string              `json:"code,omitempty"`    // language
	Texts   []string            `json:"texts,omitempty"`   // translate
	Target  string              `json:"target,omitempty"`  // translate
	DT      float64             `json:"dt,omitempty"`      // tick, seconds
	History []conversation.Turn `json:"history,omitempty"` // history
}

// ReadyMessage greets a new session
type ReadyMessage struct {
	Type      string   `json:"type"`
	Session   string   `json:"session"`
	Language  string   `json:"language"`
	Languages []string `json:"languages"`
	Voice     bool     `json:"voice"`
}

// QueuedMessage acknowledges a turn
type QueuedMessage struct {
	Type    string `json:"type"`
	Turn    string `json:"turn"`
	Seq     uint64 `json:"seq"`
	Pending int    `json:"pending"`
}

// EventMessage forwards a bus event for this session
type EventMessage struct {
	Type  string         `json:"type"`
	Event string         `json:"event"`
	Data  map[string]any `json:"data,omitempty"`
}

// ClipMessage tells the renderer to start or stop an animation loop
type ClipMessage struct {
	Type   string          `json:"type"`
	Action string          `json:"action"` // start or stop
	Clip   avatar.ClipName `json:"clip"`
}

// PoseMessage answers a tick
type PoseMessage struct {
	Type string      `json:"type"`
	Pose avatar.Pose `json:"pose"`
}

// TranslationMessage carries a batch result, one entry per input
type TranslationMessage struct {
	Type   string   `json:"type"`
	ID     string   `json:"id,omitempty"`
	Target string   `json:"target"`
	Texts  []string `json:"texts"`
}

// ErrorMessage reports a rejected request
type ErrorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// LogMessage streams a diagnostic entry
type LogMessage struct {
	Type  string           `json:"type"`
	Entry logging.LogEntry `json:"entry"`
}
