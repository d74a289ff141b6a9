package record

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/broadcomms/voicecapture/source"
)

// Artifact is the finalized audio payload produced when a recording stops.
type Artifact struct {
	ID         string        `json:"id"`
	Data       []byte        `json:"-"` // WAV-encoded audio
	SampleRate int           `json:"sample_rate"`
	Samples    int           `json:"samples"`
	Duration   time.Duration `json:"duration"`
	CapturedAt time.Time     `json:"captured_at"`
}

// Empty reports whether the artifact carries no audio. Stopping an idle
// recorder produces an empty artifact rather than an error.
func (a *Artifact) Empty() bool {
	return a == nil || len(a.Data) == 0
}

// Fault indicates the underlying device errored mid-capture. The buffered
// chunks are discarded when a fault occurs.
type Fault struct {
	Err error
}

func (f *Fault) Error() string {
	return fmt.Sprintf("recorder fault: %v", f.Err)
}

func (f *Fault) Unwrap() error {
	return f.Err
}

// RecorderStats represents recorder statistics for monitoring
type RecorderStats struct {
	Recording         bool   `json:"recording"`
	ChunksBuffered    int    `json:"chunks_buffered"`
	BytesBuffered     int    `json:"bytes_buffered"`
	ArtifactsProduced uint64 `json:"artifacts_produced"`
	Faults            uint64 `json:"faults"`
}

// Recorder buffers captured audio chunks while recording and finalizes them
// into one artifact on stop. All operations are serialized by one mutex;
// repeated Start while recording and Stop while idle are no-ops.
type Recorder struct {
	logger  *slog.Logger
	onFault func(error) // invoked outside the lock on device fault

	mu         sync.Mutex
	recording  bool
	chunks     [][]byte
	totalBytes int
	sampleRate int
	startedAt  time.Time
	stop       chan struct{}
	done       chan struct{}

	artifactsProduced uint64
	faults            uint64
}

// NewRecorder creates a recorder. onFault may be nil; when set it is called
// once per device fault after the buffer has been discarded.
func NewRecorder(logger *slog.Logger, onFault func(error)) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}

	return &Recorder{
		logger:  logger,
		onFault: onFault,
	}
}

// Start begins appending chunks from the handle. Calling Start while already
// recording is a no-op, not an error.
func (r *Recorder) Start(handle source.Handle) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.recording {
		r.logger.Debug("recorder already running, start ignored")
		return nil
	}

	r.recording = true
	r.chunks = r.chunks[:0]
	r.totalBytes = 0
	r.sampleRate = handle.SampleRate()
	r.startedAt = time.Now()
	r.stop = make(chan struct{})
	r.done = make(chan struct{})

	go r.pump(handle, r.stop, r.done)

	r.logger.Info("recording started", slog.Int("sample_rate", r.sampleRate))

	return nil
}

// pump consumes the handle's chunk stream until stopped or the stream ends.
func (r *Recorder) pump(handle source.Handle, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	// Chunks queued before this recording began are not part of it.
drain:
	for {
		select {
		case _, ok := <-handle.Chunks():
			if !ok {
				if err := handle.Err(); err != nil {
					r.fault(err)
				}
				return
			}
		default:
			break drain
		}
	}

	for {
		select {
		case <-stop:
			return
		case chunk, ok := <-handle.Chunks():
			if !ok {
				if err := handle.Err(); err != nil {
					r.fault(err)
				}
				return
			}
			r.append(chunk)
		}
	}
}

// append adds one chunk to the ordered buffer.
func (r *Recorder) append(chunk []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.recording {
		return
	}

	r.chunks = append(r.chunks, chunk)
	r.totalBytes += len(chunk)
}

// fault discards the in-flight buffer and reports the failure.
func (r *Recorder) fault(err error) {
	r.mu.Lock()
	if !r.recording {
		r.mu.Unlock()
		return
	}

	r.recording = false
	discarded := r.totalBytes
	r.chunks = nil
	r.totalBytes = 0
	r.faults++
	onFault := r.onFault
	r.mu.Unlock()

	r.logger.Error("device fault while recording, buffer discarded",
		slog.Int("discarded_bytes", discarded),
		slog.String("error", err.Error()),
	)

	if onFault != nil {
		onFault(&Fault{Err: err})
	}
}

// Stop finalizes the buffered chunks into a single WAV artifact and clears
// the buffer. Stopping an idle recorder returns an empty artifact, never an
// error.
func (r *Recorder) Stop() (*Artifact, error) {
	r.mu.Lock()

	if !r.recording {
		r.mu.Unlock()
		return &Artifact{}, nil
	}

	r.recording = false
	close(r.stop)
	done := r.done
	r.mu.Unlock()

	<-done

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.totalBytes == 0 {
		r.chunks = nil
		r.logger.Info("recording stopped with no captured audio")
		return &Artifact{}, nil
	}

	pcm := make([]byte, 0, r.totalBytes)
	for _, chunk := range r.chunks {
		pcm = append(pcm, chunk...)
	}
	r.chunks = nil
	r.totalBytes = 0

	data, err := EncodeWAV(pcm, r.sampleRate)
	if err != nil {
		return nil, fmt.Errorf("failed to finalize artifact: %w", err)
	}

	numSamples := len(pcm) / 2
	artifact := &Artifact{
		ID:         uuid.New().String(),
		Data:       data,
		SampleRate: r.sampleRate,
		Samples:    numSamples,
		Duration:   time.Duration(numSamples) * time.Second / time.Duration(r.sampleRate),
		CapturedAt: r.startedAt,
	}

	r.artifactsProduced++

	r.logger.Info("recording finalized",
		slog.String("artifact_id", artifact.ID),
		slog.Float64("duration", artifact.Duration.Seconds()),
		slog.Int("size_bytes", len(artifact.Data)),
	)

	return artifact, nil
}

// Discard stops the recorder and drops any buffered audio without producing
// an artifact. Used on teardown. Safe to call while idle.
func (r *Recorder) Discard() {
	r.mu.Lock()

	if !r.recording {
		r.mu.Unlock()
		return
	}

	r.recording = false
	close(r.stop)
	done := r.done
	discarded := r.totalBytes
	r.chunks = nil
	r.totalBytes = 0
	r.mu.Unlock()

	<-done

	r.logger.Info("recording discarded", slog.Int("discarded_bytes", discarded))
}

// Recording reports whether the recorder is currently buffering.
func (r *Recorder) Recording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.recording
}

// GetStats returns current recorder statistics
func (r *Recorder) GetStats() RecorderStats {
	r.mu.Lock()
	defer r.mu.Unlock()

	return RecorderStats{
		Recording:         r.recording,
		ChunksBuffered:    len(r.chunks),
		BytesBuffered:     r.totalBytes,
		ArtifactsProduced: r.artifactsProduced,
		Faults:            r.faults,
	}
}
