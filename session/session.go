package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/broadcomms/voicecapture/energy"
	"github.com/broadcomms/voicecapture/metrics"
	"github.com/broadcomms/voicecapture/mode"
	"github.com/broadcomms/voicecapture/record"
	"github.com/broadcomms/voicecapture/source"
	"github.com/broadcomms/voicecapture/transcription"
)

var (
	// ErrBusy is returned by Start while a previous recording is still
	// being dispatched. Starts are rejected, not queued.
	ErrBusy = errors.New("session is processing a previous recording")

	// ErrTornDown is returned by Start after Teardown.
	ErrTornDown = errors.New("session has been torn down")
)

// Dispatcher hands a finished artifact to the transcription collaborator.
// *transcription.Client satisfies it.
type Dispatcher interface {
	Dispatch(ctx context.Context, artifact *record.Artifact) (*transcription.Result, error)
}

// Config configures one capture session. Mode is fixed for the session's
// lifetime; changing it requires tearing down and opening a new session.
type Config struct {
	Mode           mode.InputMode
	Threshold      float64       // energy activity threshold in (0,1)
	SilenceTimeout time.Duration // voice-activation stop delay (default 2s)
	PollInterval   time.Duration // energy sampling cadence (default 16ms)
	FrameSize      int           // samples per analysis frame (default 1024)

	// OnTranscript receives the transcription text for each successfully
	// dispatched recording. Optional.
	OnTranscript func(string)
}

func (c *Config) applyDefaults() {
	if c.SilenceTimeout <= 0 {
		c.SilenceTimeout = 2000 * time.Millisecond
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 16 * time.Millisecond
	}
	if c.FrameSize <= 0 {
		c.FrameSize = 1024
	}
}

// Session is the aggregate owning audio acquisition, activity detection,
// recording, and dispatch for one capture lifetime.
type Session struct {
	cfg        Config
	src        source.Source
	dispatcher Dispatcher
	logger     *slog.Logger
	metrics    *metrics.Metrics

	recorder  *record.Recorder
	machine   *mode.Machine
	meter     *energy.Meter
	observers *registry

	// lifecycleMu serializes Start and Teardown against each other; mu
	// guards the observable state and is safe to take from callbacks.
	lifecycleMu sync.Mutex

	mu             sync.Mutex
	state          State
	lastErr        error
	level          float64
	durationSecs   int
	recordingStart time.Time
	handle         source.Handle
	loopCtx        context.Context
	loopCancel     context.CancelFunc
	started        bool
	tornDown       bool
	explicitStop   bool
	generation     uint64
	lastArtifact   *record.Artifact

	loopWG sync.WaitGroup
}

// New creates a session. The source is not acquired until Start.
func New(cfg Config, src source.Source, dispatcher Dispatcher, logger *slog.Logger, m *metrics.Metrics) (*Session, error) {
	cfg.applyDefaults()

	if src == nil {
		return nil, fmt.Errorf("audio source is required")
	}

	if dispatcher == nil {
		return nil, fmt.Errorf("transcription dispatcher is required")
	}

	if logger == nil {
		logger = slog.Default()
	}

	detector, err := energy.NewDetector(cfg.Threshold)
	if err != nil {
		return nil, fmt.Errorf("invalid session config: %w", err)
	}

	s := &Session{
		cfg:        cfg,
		src:        src,
		dispatcher: dispatcher,
		logger:     logger,
		metrics:    m,
		meter:      energy.NewMeter(detector, cfg.FrameSize, logger),
		observers:  newRegistry(),
	}

	s.recorder = record.NewRecorder(logger, s.handleFault)

	machine, err := mode.NewMachine(cfg.Mode, cfg.SilenceTimeout, s.beginRecording, s.finishRecording, logger)
	if err != nil {
		return nil, fmt.Errorf("invalid session config: %w", err)
	}
	s.machine = machine

	return s, nil
}

// Start acquires the microphone and begins the session's background loops.
// Start is idempotent while the session is healthy, rejected with ErrBusy
// while Processing, and allowed from Error, where it clears the prior error
// and reacquires the source.
func (s *Session) Start(ctx context.Context) error {
	s.lifecycleMu.Lock()
	defer s.lifecycleMu.Unlock()

	s.mu.Lock()
	switch {
	case s.tornDown:
		s.mu.Unlock()
		return ErrTornDown
	case s.state == StateProcessing:
		s.mu.Unlock()
		return ErrBusy
	case s.started && s.state != StateError:
		s.mu.Unlock()
		s.logger.Debug("session already started, start ignored")
		return nil
	}
	restarting := s.state == StateError
	s.mu.Unlock()

	if restarting {
		s.logger.Info("restarting session after error")
		s.releaseRuntime()
	}

	handle, err := s.src.Acquire(ctx)
	if err != nil {
		s.setError("acquisition", err)
		return err
	}

	loopCtx, cancel := context.WithCancel(context.Background())

	s.mu.Lock()
	s.handle = handle
	s.loopCtx = loopCtx
	s.loopCancel = cancel
	s.started = true
	s.state = StateIdle
	s.lastErr = nil
	s.level = 0
	s.durationSecs = 0
	s.generation++
	s.mu.Unlock()

	s.loopWG.Add(2)
	go s.meterLoop(loopCtx, handle)
	go s.durationLoop(loopCtx)

	s.metrics.RecordSessionStarted()

	s.logger.Info("capture session started",
		slog.String("mode", s.cfg.Mode.String()),
		slog.Float64("threshold", s.cfg.Threshold),
		slog.Duration("silence_timeout", s.cfg.SilenceTimeout),
	)

	// Always-on sessions record from start until explicit teardown.
	if s.cfg.Mode == mode.AlwaysOn {
		s.machine.Begin()
	}

	return nil
}

// meterLoop feeds energy samples into the level field and the mode machine.
func (s *Session) meterLoop(ctx context.Context, handle source.Handle) {
	defer s.loopWG.Done()

	for sample := range s.meter.Run(ctx, handle, s.cfg.PollInterval) {
		s.mu.Lock()
		s.level = sample.Level
		s.mu.Unlock()

		s.metrics.RecordEnergySample(sample.Active)
		s.machine.Observe(sample)
	}
}

// durationLoop ticks the recording duration at 1 Hz. The counter advances
// only while Recording and resets on each recording entry.
func (s *Session) durationLoop(ctx context.Context) {
	defer s.loopWG.Done()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.mu.Lock()
			if s.state == StateRecording {
				s.durationSecs = int(time.Since(s.recordingStart).Seconds())
			}
			s.mu.Unlock()
		}
	}
}

// Trigger forwarding. Triggers arriving while a dispatch is in flight are
// rejected so Recording can never overlap Processing.

// KeyDown forwards the push-to-talk press trigger.
func (s *Session) KeyDown() {
	if s.rejectTrigger("key_down") {
		return
	}
	s.machine.KeyDown()
}

// KeyUp forwards the push-to-talk release trigger.
func (s *Session) KeyUp() {
	s.machine.KeyUp()
}

// Arm begins voice-activation monitoring.
func (s *Session) Arm() {
	if s.rejectTrigger("arm") {
		return
	}
	s.machine.Arm()
}

// Disarm ends voice-activation monitoring.
func (s *Session) Disarm() {
	s.mu.Lock()
	s.explicitStop = true
	s.mu.Unlock()

	s.machine.Disarm()

	s.mu.Lock()
	s.explicitStop = false
	s.mu.Unlock()
}

func (s *Session) rejectTrigger(trigger string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.tornDown || !s.started {
		return true
	}

	if s.state == StateProcessing {
		s.logger.Warn("trigger rejected while processing", slog.String("trigger", trigger))
		return true
	}

	return false
}

// beginRecording is the machine's start callback.
func (s *Session) beginRecording() {
	s.mu.Lock()
	if s.tornDown || s.handle == nil {
		s.mu.Unlock()
		return
	}
	if s.state == StateProcessing {
		// A trigger slipped in as a dispatch started; undo the machine
		// transition rather than corrupt the chunk buffer.
		s.mu.Unlock()
		s.machine.Reset()
		return
	}
	handle := s.handle
	s.mu.Unlock()

	if err := s.recorder.Start(handle); err != nil {
		s.setError("recording", err)
		return
	}

	s.mu.Lock()
	s.state = StateRecording
	s.lastErr = nil
	s.recordingStart = time.Now()
	s.durationSecs = 0
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.metrics.RecordRecordingStarted()
	s.observers.notify(snap)
}

// finishRecording is the machine's stop callback: it finalizes the artifact
// and hands it off for dispatch.
func (s *Session) finishRecording() {
	artifact, err := s.recorder.Stop()
	if err != nil {
		s.setError("recording", err)
		return
	}

	s.mu.Lock()
	if s.state != StateRecording {
		s.mu.Unlock()
		return
	}

	elapsed := time.Since(s.recordingStart)

	// A voice-activation stop that was not an explicit disarm came from
	// the silence timer.
	if s.cfg.Mode == mode.VoiceActivation && !s.explicitStop {
		s.metrics.RecordSilenceStop()
	}

	if artifact.Empty() {
		s.state = StateIdle
		s.durationSecs = 0
		snap := s.snapshotLocked()
		s.mu.Unlock()

		s.metrics.RecordRecordingStopped(elapsed.Seconds())
		s.observers.notify(snap)
		return
	}

	s.state = StateProcessing
	s.lastArtifact = artifact
	gen := s.generation
	ctx := s.loopCtx
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.metrics.RecordRecordingStopped(elapsed.Seconds())
	s.metrics.RecordArtifact(len(artifact.Data))
	s.observers.notify(snap)

	go s.dispatch(ctx, artifact, gen)
}

// dispatch performs the single async transcription call for one artifact.
// Teardown cancels the context; results arriving after teardown or a
// session restart are dropped.
func (s *Session) dispatch(ctx context.Context, artifact *record.Artifact, gen uint64) {
	startTime := time.Now()

	result, err := s.dispatcher.Dispatch(ctx, artifact)

	s.metrics.RecordDispatch(err == nil, time.Since(startTime).Seconds())

	s.mu.Lock()
	if s.tornDown || gen != s.generation {
		s.mu.Unlock()
		s.logger.Info("dropping transcription result for stale session",
			slog.String("artifact_id", artifact.ID),
		)
		return
	}

	if err != nil {
		// The artifact stays on the session so the caller may retry the
		// dispatch without re-recording.
		s.state = StateError
		s.lastErr = err
		snap := s.snapshotLocked()
		s.mu.Unlock()

		s.metrics.RecordSessionError("dispatch")
		s.logger.Error("transcription dispatch failed",
			slog.String("artifact_id", artifact.ID),
			slog.String("error", err.Error()),
		)
		s.observers.notify(snap)
		return
	}

	s.state = StateIdle
	s.durationSecs = 0
	s.lastArtifact = nil
	onTranscript := s.cfg.OnTranscript
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.logger.Info("transcription completed",
		slog.String("artifact_id", artifact.ID),
		slog.Int("text_length", len(result.Text)),
	)

	s.observers.notify(snap)

	if onTranscript != nil {
		onTranscript(result.Text)
	}
}

// handleFault is the recorder's device fault callback.
func (s *Session) handleFault(err error) {
	s.machine.Reset()
	s.setError("recording", err)
}

// setError moves the session to Error, preserving which stage failed.
func (s *Session) setError(stage string, err error) {
	s.mu.Lock()
	if s.tornDown {
		s.mu.Unlock()
		return
	}
	s.state = StateError
	s.lastErr = fmt.Errorf("%s: %w", stage, err)
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.metrics.RecordSessionError(stage)
	s.logger.Error("session error",
		slog.String("stage", stage),
		slog.String("error", err.Error()),
	)
	s.observers.notify(snap)
}

// Snapshot returns the current consolidated session status.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() Snapshot {
	return Snapshot{
		State:           s.state,
		EnergyLevel:     s.level,
		DurationSeconds: s.durationSecs,
		LastError:       s.lastErr,
	}
}

// Subscribe registers an observer for state transitions and returns a
// detach handle.
func (s *Session) Subscribe(fn Observer) func() {
	return s.observers.subscribe(fn)
}

// LastArtifact returns the artifact whose dispatch failed, if any, so the
// caller can retry the dispatch without re-recording.
func (s *Session) LastArtifact() *record.Artifact {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastArtifact
}

// Mode returns the session's fixed input mode.
func (s *Session) Mode() mode.InputMode {
	return s.cfg.Mode
}

// releaseRuntime stops the background loops and releases the handle without
// marking the session torn down. Used for teardown and error restarts.
func (s *Session) releaseRuntime() {
	s.mu.Lock()
	cancel := s.loopCancel
	handle := s.handle
	s.loopCancel = nil
	s.handle = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.loopWG.Wait()

	s.machine.Reset()
	s.recorder.Discard()

	if handle != nil {
		if err := handle.Release(); err != nil {
			s.logger.Warn("handle release failed", slog.String("error", err.Error()))
		}
	}
}

// Teardown cancels the sampling and duration loops, cancels any pending
// silence timer, discards buffered audio, and releases the hardware stream,
// in that order. It is idempotent; the session cannot be restarted after it.
func (s *Session) Teardown() {
	s.lifecycleMu.Lock()
	defer s.lifecycleMu.Unlock()

	s.mu.Lock()
	if s.tornDown {
		s.mu.Unlock()
		return
	}
	s.tornDown = true
	s.generation++
	s.mu.Unlock()

	s.releaseRuntime()

	s.mu.Lock()
	s.state = StateIdle
	s.lastErr = nil
	s.level = 0
	s.durationSecs = 0
	s.lastArtifact = nil
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.metrics.RecordSessionTornDown()
	s.logger.Info("capture session torn down")
	s.observers.notify(snap)
}
