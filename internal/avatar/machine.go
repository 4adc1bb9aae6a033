package avatar

import (
	"math"
	"sync"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/rs/zerolog"
)

// swayPeriod is the length in seconds of the idle head sway pattern.
const swayPeriod = 60.0

// Machine is the avatar behavior state machine. Transitions only flip state
// and clip selectors under a mutex, so they are safe to call from the turn
// pipeline while Update runs on the render loop.
type Machine struct {
	mu     sync.Mutex
	config *Config
	rig    Rig
	logger zerolog.Logger
	closed bool

	state  State
	phase  map[ClipName]float64 // cycle position in [0,1)
	weight float64              // fade-in of the current clip

	swayTime     float64 // seconds in [0, swayPeriod)
	blinkTimer   float64 // seconds since the last blink started
	blinkElapsed float64 // seconds into the current blink, <0 when not blinking

	onStateChange func(from, to State)
}

// NewMachine creates a machine resting in Idle. With a nil rig every
// transition is a no-op until SetRig attaches one.
func NewMachine(config *Config, rig Rig, logger zerolog.Logger) *Machine {
	if config == nil {
		config = DefaultConfig()
	}
	m := &Machine{
		config:       config,
		logger:       logger.With().Str("component", "avatar").Logger(),
		state:        StateIdle,
		phase:        map[ClipName]float64{ClipIdle: 0, ClipThinking: 0, ClipTalking: 0},
		weight:       1,
		blinkElapsed: -1,
	}
	if rig != nil {
		m.SetRig(rig)
	}
	return m
}

// SetRig attaches the rendering capability and starts the current state's clip.
func (m *Machine) SetRig(rig Rig) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.rig != nil {
		m.call("stop", clipFor(m.state), m.rig.StopClip)
	}
	m.rig = rig
	if rig != nil && !m.closed {
		m.call("start", clipFor(m.state), rig.StartClip)
	}
}

// OnStateChange registers a callback invoked after every state change
func (m *Machine) OnStateChange(fn func(from, to State)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onStateChange = fn
}

// State returns the current state
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// BeginThinking enters Thinking from any state
func (m *Machine) BeginThinking() { m.transition(StateThinking, "") }

// BeginSpeaking enters Speaking from any state
func (m *Machine) BeginSpeaking() { m.transition(StateSpeaking, "") }

// EndSpeaking leaves Speaking for Idle. It is ignored while Thinking.
func (m *Machine) EndSpeaking() { m.transition(StateIdle, StateSpeaking) }

// EndThinking leaves Thinking for Idle. It is ignored while Speaking.
func (m *Machine) EndThinking() { m.transition(StateIdle, StateThinking) }

// Close stops the current clip. Later transitions and updates are no-ops.
func (m *Machine) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	if m.rig != nil {
		m.call("stop", clipFor(m.state), m.rig.StopClip)
	}
}

// transition moves to the target state. When only is set the move happens
// only from that state.
func (m *Machine) transition(to, only State) {
	m.mu.Lock()
	if m.rig == nil || m.closed || m.state == to || (only != "" && m.state != only) {
		m.mu.Unlock()
		return
	}

	from := m.state
	m.call("stop", clipFor(from), m.rig.StopClip)
	m.call("start", clipFor(to), m.rig.StartClip)
	m.state = to
	m.phase[clipFor(to)] = 0
	m.weight = 0
	if to == StateIdle {
		m.blinkTimer = 0
		m.blinkElapsed = -1
	}
	cb := m.onStateChange
	m.mu.Unlock()

	m.logger.Debug().Str("from", string(from)).Str("to", string(to)).Msg("Avatar state changed")
	if cb != nil {
		cb(from, to)
	}
}

// call invokes a rig method, swallowing errors and panics.
func (m *Machine) call(op string, clip ClipName, fn func(ClipName) error) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Warn().Interface("panic", r).Str("op", op).Str("clip", string(clip)).Msg("Rig panicked")
		}
	}()
	if err := fn(clip); err != nil {
		m.logger.Warn().Err(err).Str("op", op).Str("clip", string(clip)).Msg("Rig call failed")
	}
}

// Update advances the active clip by dt seconds. dt is clamped to
// MaxFrameDelta and cycle positions wrap, so long stalls never accumulate.
func (m *Machine) Update(dt float64) {
	m.mu.Lock()
	if m.rig == nil || m.closed {
		m.mu.Unlock()
		return
	}

	dt = m.clampDelta(dt)
	clip := clipFor(m.state)
	m.phase[clip] = wrap(m.phase[clip] + dt*m.rateFor(clip))

	if fade := m.config.TransitionDuration.Seconds(); fade > 0 {
		m.weight = math.Min(1, m.weight+dt/fade)
	} else {
		m.weight = 1
	}

	if m.state == StateIdle {
		m.swayTime = math.Mod(m.swayTime+dt, swayPeriod)
		m.advanceBlink(dt)
	}

	pose := m.poseLocked()
	applier, ok := m.rig.(PoseApplier)
	m.mu.Unlock()

	if ok {
		if err := applier.ApplyPose(pose); err != nil {
			m.logger.Warn().Err(err).Msg("Apply pose failed")
		}
	}
}

func (m *Machine) clampDelta(dt float64) float64 {
	if math.IsNaN(dt) || dt < 0 {
		return 0
	}
	if limit := m.config.MaxFrameDelta.Seconds(); limit > 0 && dt > limit {
		return limit
	}
	return dt
}

func (m *Machine) rateFor(clip ClipName) float64 {
	switch clip {
	case ClipThinking:
		return m.config.ThinkingRate
	case ClipTalking:
		return m.config.TalkingRate
	default:
		return m.config.BreathingRate
	}
}

func (m *Machine) advanceBlink(dt float64) {
	interval := m.config.BlinkInterval.Seconds()
	duration := m.config.BlinkDuration.Seconds()
	if interval <= 0 || duration <= 0 {
		return
	}

	if m.blinkElapsed >= 0 {
		m.blinkElapsed += dt
		if m.blinkElapsed >= duration {
			m.blinkElapsed = -1
		}
	}

	m.blinkTimer += dt
	if m.blinkTimer >= interval {
		m.blinkTimer = math.Mod(m.blinkTimer, interval)
		m.blinkElapsed = 0
	}
}

// Pose returns the current animation pose
func (m *Machine) Pose() Pose {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.poseLocked()
}

func (m *Machine) poseLocked() Pose {
	w := float32(m.weight)
	p := Pose{State: m.state, Weight: w}
	if m.rig == nil || m.closed {
		return p
	}

	phase := m.phase[clipFor(m.state)]
	switch m.state {
	case StateIdle:
		p.Breathing = w * float32(0.5+0.5*math.Sin(2*math.Pi*phase))
		p.Blink = m.blinkAmount()
		u := m.swayTime / swayPeriod
		p.Head = mgl32.Vec3{
			0.02 * sway(u, 0),
			0.03 * sway(u, 1.7),
			0.01 * sway(u, 3.2),
		}.Mul(w)
		p.Gaze = mgl32.Vec2{0.05 * sway(u, 0.9), 0.03 * sway(u, 2.4)}.Mul(w)

	case StateThinking:
		g := float32(0.5 + 0.5*math.Sin(2*math.Pi*phase))
		p.Gesture = w * g
		p.Gaze = mgl32.Vec2{0.35, 0.45}.Add(mgl32.Vec2{0.05 * g, 0}).Mul(w)
		p.Head = mgl32.Vec3{-0.05, 0.1, 0.08}.Mul(w)

	case StateSpeaking:
		mouth := 0.7*math.Abs(math.Sin(2*math.Pi*phase)) + 0.3*math.Abs(math.Sin(6*math.Pi*phase))
		p.MouthOpen = w * mgl32.Clamp(float32(mouth), 0, 1)
		p.Head = mgl32.Vec3{float32(0.04 * math.Sin(2*math.Pi*phase)), 0, 0}.Mul(w)
	}
	return p
}

func (m *Machine) blinkAmount() float32 {
	if m.blinkElapsed < 0 {
		return 0
	}
	t := m.blinkElapsed / m.config.BlinkDuration.Seconds()
	// close then reopen
	return mgl32.Clamp(float32(1-math.Abs(2*t-1)), 0, 1)
}

// sway is a smooth pseudo-random signal with period 1 in u.
func sway(u, offset float64) float32 {
	a := 2 * math.Pi * u
	n1 := math.Sin(3*a + offset)
	n2 := math.Sin(7*a+offset*1.3) * 0.5
	n3 := math.Sin(13*a+offset*2.1) * 0.25
	return float32((n1 + n2 + n3) / 1.75)
}

// wrap maps x into [0,1)
func wrap(x float64) float64 {
	x = math.Mod(x, 1)
	if x < 0 {
		x++
	}
	return x
}
