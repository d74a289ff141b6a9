package mode

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/broadcomms/voicecapture/energy"
)

// InputMode selects how a capture session is started and stopped.
type InputMode int

const (
	// PushToTalk records only while an external trigger is held.
	PushToTalk InputMode = iota

	// VoiceActivation records from arm until a sustained silence period.
	VoiceActivation

	// AlwaysOn records from session start until explicit external stop.
	AlwaysOn
)

// String returns the config-file name of the mode.
func (m InputMode) String() string {
	switch m {
	case PushToTalk:
		return "push_to_talk"
	case VoiceActivation:
		return "voice_activation"
	case AlwaysOn:
		return "always_on"
	default:
		return fmt.Sprintf("unknown(%d)", int(m))
	}
}

// ParseInputMode converts a config-file name into an InputMode.
func ParseInputMode(s string) (InputMode, error) {
	switch s {
	case "push_to_talk":
		return PushToTalk, nil
	case "voice_activation":
		return VoiceActivation, nil
	case "always_on":
		return AlwaysOn, nil
	default:
		return 0, fmt.Errorf("unknown input mode '%s'", s)
	}
}

// Machine drives start/stop decisions for one capture session. Transitions
// are serialized under one mutex; the onStart/onStop callbacks run outside
// it. Trigger methods that do not apply to the configured mode are no-ops.
type Machine struct {
	mode           InputMode
	silenceTimeout time.Duration
	onStart        func()
	onStop         func()
	logger         *slog.Logger

	mu        sync.Mutex
	recording bool
	armed     bool

	// The silence timer is cancelled, not merely ignored, when voice
	// resumes: timerGen invalidates a timer that fires concurrently with
	// its cancellation.
	silenceTimer *time.Timer
	timerGen     uint64
}

// NewMachine creates a state machine for the given mode. silenceTimeout
// applies to voice-activation only.
func NewMachine(mode InputMode, silenceTimeout time.Duration, onStart, onStop func(), logger *slog.Logger) (*Machine, error) {
	if mode != PushToTalk && mode != VoiceActivation && mode != AlwaysOn {
		return nil, fmt.Errorf("invalid input mode: %d", int(mode))
	}

	if mode == VoiceActivation && silenceTimeout <= 0 {
		return nil, fmt.Errorf("silence timeout must be positive for voice activation, got %v", silenceTimeout)
	}

	if onStart == nil || onStop == nil {
		return nil, fmt.Errorf("onStart and onStop callbacks are required")
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Machine{
		mode:           mode,
		silenceTimeout: silenceTimeout,
		onStart:        onStart,
		onStop:         onStop,
		logger:         logger,
	}, nil
}

// Mode returns the configured input mode.
func (m *Machine) Mode() InputMode {
	return m.mode
}

// Recording reports whether the machine is in its recording state.
func (m *Machine) Recording() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.recording
}

// KeyDown handles the push-to-talk press trigger. Repeats while already
// recording have no effect.
func (m *Machine) KeyDown() {
	m.mu.Lock()

	if m.mode != PushToTalk {
		m.mu.Unlock()
		m.logger.Debug("key down ignored", slog.String("mode", m.mode.String()))
		return
	}

	if m.recording {
		m.mu.Unlock()
		return
	}

	m.recording = true
	m.mu.Unlock()

	m.onStart()
}

// KeyUp handles the push-to-talk release trigger. A release with no prior
// press is a no-op.
func (m *Machine) KeyUp() {
	m.mu.Lock()

	if m.mode != PushToTalk || !m.recording {
		m.mu.Unlock()
		return
	}

	m.recording = false
	m.mu.Unlock()

	m.onStop()
}

// Arm begins voice-activation monitoring. Recording starts immediately and
// is ended by silence rather than by the initial transition.
func (m *Machine) Arm() {
	m.mu.Lock()

	if m.mode != VoiceActivation {
		m.mu.Unlock()
		m.logger.Debug("arm ignored", slog.String("mode", m.mode.String()))
		return
	}

	if m.armed {
		m.mu.Unlock()
		return
	}

	m.armed = true
	m.recording = true
	m.mu.Unlock()

	m.onStart()
}

// Disarm explicitly ends voice-activation monitoring and stops recording.
func (m *Machine) Disarm() {
	m.mu.Lock()

	if m.mode != VoiceActivation || !m.armed {
		m.mu.Unlock()
		return
	}

	m.armed = false
	m.recording = false
	m.cancelTimerLocked()
	m.mu.Unlock()

	m.onStop()
}

// Begin starts recording for an always-on session. It stays recording until
// Reset or explicit external stop.
func (m *Machine) Begin() {
	m.mu.Lock()

	if m.mode != AlwaysOn {
		m.mu.Unlock()
		m.logger.Debug("begin ignored", slog.String("mode", m.mode.String()))
		return
	}

	if m.recording {
		m.mu.Unlock()
		return
	}

	m.recording = true
	m.mu.Unlock()

	m.onStart()
}

// Observe feeds one energy sample into the machine. Only voice-activation
// acts on it: a silent sample starts (or leaves running) the silence timer,
// an active sample cancels it. Other modes treat levels as telemetry only.
func (m *Machine) Observe(sample energy.Sample) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.mode != VoiceActivation || !m.armed || !m.recording {
		return
	}

	if sample.Active {
		m.cancelTimerLocked()
		return
	}

	if m.silenceTimer != nil {
		return // timer already running, let it ride
	}

	m.timerGen++
	gen := m.timerGen
	m.silenceTimer = time.AfterFunc(m.silenceTimeout, func() {
		m.silenceElapsed(gen)
	})

	m.logger.Debug("silence timer started",
		slog.Duration("timeout", m.silenceTimeout),
		slog.Float64("level", sample.Level),
	)
}

// silenceElapsed fires when a silence run completed its full timeout.
func (m *Machine) silenceElapsed(gen uint64) {
	m.mu.Lock()

	if gen != m.timerGen || !m.recording || !m.armed {
		// Cancelled or superseded after this timer was scheduled.
		m.mu.Unlock()
		return
	}

	m.silenceTimer = nil
	m.recording = false
	m.armed = false
	m.mu.Unlock()

	m.logger.Info("silence timeout elapsed, stopping recording",
		slog.Duration("timeout", m.silenceTimeout),
	)

	m.onStop()
}

// cancelTimerLocked stops and invalidates any pending silence timer.
// Callers must hold m.mu.
func (m *Machine) cancelTimerLocked() {
	if m.silenceTimer == nil {
		return
	}

	m.silenceTimer.Stop()
	m.silenceTimer = nil
	m.timerGen++
}

// Reset forces the machine to idle without firing callbacks and cancels any
// pending silence timer. Used during session teardown. Idempotent.
func (m *Machine) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.cancelTimerLocked()
	m.recording = false
	m.armed = false
}
