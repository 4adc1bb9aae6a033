// Package avatar drives the avatar's Idle/Thinking/Speaking behavior and
// its per-frame animation loops.
package avatar

import (
	"time"

	"github.com/go-gl/mathgl/mgl32"
)

// State is the avatar's logical behavior state
type State string

const (
	StateIdle     State = "idle"
	StateThinking State = "thinking"
	StateSpeaking State = "speaking"
)

// ClipName identifies one of the cyclic animation loops
type ClipName string

const (
	ClipIdle     ClipName = "idle"     // breathing, blinking, head sway
	ClipThinking ClipName = "thinking" // gaze away, head tilt
	ClipTalking  ClipName = "talking"  // mouth and nod loop
)

// clipFor returns the loop owned by a state
func clipFor(s State) ClipName {
	switch s {
	case StateThinking:
		return ClipThinking
	case StateSpeaking:
		return ClipTalking
	default:
		return ClipIdle
	}
}

// Rig is the rendering capability the machine drives. Errors are logged and
// otherwise ignored. Rig methods run under the machine's lock and must not
// call back into it.
type Rig interface {
	StartClip(name ClipName) error
	StopClip(name ClipName) error
}

// PoseApplier is implemented by rigs that take a computed pose every frame.
type PoseApplier interface {
	ApplyPose(p Pose) error
}

// Pose is the per-frame animation output for the renderer.
type Pose struct {
	State     State      `json:"state"`
	Weight    float32    `json:"weight"`    // fade-in of the current state's clip, 0 to 1
	Breathing float32    `json:"breathing"` // chest rise, 0 to 1
	Blink     float32    `json:"blink"`     // 0 open, 1 closed
	MouthOpen float32    `json:"mouthOpen"`
	Gesture   float32    `json:"gesture"`
	Gaze      mgl32.Vec2 `json:"gaze"` // -1..1 right/up
	Head      mgl32.Vec3 `json:"head"` // pitch, yaw, roll in radians
}

// Config holds animation tuning
type Config struct {
	MaxFrameDelta      time.Duration // larger frame deltas are clamped
	BlinkInterval      time.Duration
	BlinkDuration      time.Duration
	BreathingRate      float64 // cycles per second
	TalkingRate        float64
	ThinkingRate       float64
	TransitionDuration time.Duration // clip fade-in
}

// DefaultConfig returns sensible defaults
func DefaultConfig() *Config {
	return &Config{
		MaxFrameDelta:      100 * time.Millisecond,
		BlinkInterval:      4 * time.Second,
		BlinkDuration:      150 * time.Millisecond,
		BreathingRate:      0.25,
		TalkingRate:        4.0,
		ThinkingRate:       0.5,
		TransitionDuration: 150 * time.Millisecond,
	}
}
