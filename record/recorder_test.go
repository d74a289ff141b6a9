package record

import (
	"errors"
	"sync"
	"testing"
	"time"
)

// fakeHandle is a scripted audio handle. Tests feed chunks directly into the
// channel; closing it with err set simulates a device fault.
type fakeHandle struct {
	chunks     chan []byte
	sampleRate int

	mu  sync.Mutex
	err error
}

func newFakeHandle(buffer int) *fakeHandle {
	return &fakeHandle{
		chunks:     make(chan []byte, buffer),
		sampleRate: 16000,
	}
}

func (h *fakeHandle) ReadFrame(dst []int16) (int, error) { return 0, nil }

func (h *fakeHandle) Chunks() <-chan []byte { return h.chunks }

func (h *fakeHandle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

func (h *fakeHandle) setErr(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.err = err
}

func (h *fakeHandle) SampleRate() int { return h.sampleRate }

func (h *fakeHandle) Release() error { return nil }

// waitForBytes polls the recorder until the buffered byte count reaches want.
func waitForBytes(t *testing.T, r *Recorder, want int) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if r.GetStats().BytesBuffered >= want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d buffered bytes, have %d", want, r.GetStats().BytesBuffered)
}

func TestStopIdleReturnsEmptyArtifact(t *testing.T) {
	r := NewRecorder(nil, nil)

	artifact, err := r.Stop()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !artifact.Empty() {
		t.Error("expected empty artifact from idle recorder")
	}
}

func TestRecordAndFinalize(t *testing.T) {
	r := NewRecorder(nil, nil)
	handle := newFakeHandle(0)

	if err := r.Start(handle); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	if !r.Recording() {
		t.Fatal("expected recorder to be recording")
	}

	chunk1 := pcmBytes([]int16{100, 200, 300})
	chunk2 := pcmBytes([]int16{-100, -200, -300})
	handle.chunks <- chunk1
	handle.chunks <- chunk2
	waitForBytes(t, r, len(chunk1)+len(chunk2))

	artifact, err := r.Stop()
	if err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	if artifact.Empty() {
		t.Fatal("expected non-empty artifact")
	}

	if artifact.ID == "" {
		t.Error("expected artifact ID")
	}

	if artifact.SampleRate != 16000 {
		t.Errorf("expected sample rate 16000, got %d", artifact.SampleRate)
	}

	if artifact.Samples != 6 {
		t.Errorf("expected 6 samples, got %d", artifact.Samples)
	}

	samples, rate, err := DecodeWAV(artifact.Data)
	if err != nil {
		t.Fatalf("artifact is not valid WAV: %v", err)
	}

	if rate != 16000 || len(samples) != 6 {
		t.Errorf("decoded %d samples at %d Hz, want 6 at 16000", len(samples), rate)
	}

	if samples[0] != 100 || samples[5] != -300 {
		t.Errorf("sample order corrupted: first=%d last=%d", samples[0], samples[5])
	}

	if r.Recording() {
		t.Error("expected recorder idle after Stop")
	}

	if got := r.GetStats().ArtifactsProduced; got != 1 {
		t.Errorf("expected 1 artifact produced, got %d", got)
	}
}

func TestStartWhileRecordingIsNoOp(t *testing.T) {
	r := NewRecorder(nil, nil)
	handle := newFakeHandle(0)

	if err := r.Start(handle); err != nil {
		t.Fatalf("first Start failed: %v", err)
	}

	if err := r.Start(handle); err != nil {
		t.Fatalf("second Start failed: %v", err)
	}

	chunk := pcmBytes([]int16{1, 2})
	handle.chunks <- chunk
	waitForBytes(t, r, len(chunk))

	artifact, err := r.Stop()
	if err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	// The repeated Start must not have reset the buffer or spawned a
	// second pump.
	if artifact.Samples != 2 {
		t.Errorf("expected 2 samples, got %d", artifact.Samples)
	}
}

func TestStaleChunksNotRecorded(t *testing.T) {
	r := NewRecorder(nil, nil)
	handle := newFakeHandle(8)

	// Chunks queued before the recording starts belong to no recording.
	handle.chunks <- pcmBytes([]int16{9, 9, 9, 9})
	handle.chunks <- pcmBytes([]int16{8, 8})

	if err := r.Start(handle); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	// Give the pump a moment to discard the backlog before the real audio.
	time.Sleep(20 * time.Millisecond)

	fresh := pcmBytes([]int16{1, 2, 3})
	handle.chunks <- fresh
	waitForBytes(t, r, len(fresh))

	artifact, err := r.Stop()
	if err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	if artifact.Samples != 3 {
		t.Errorf("expected 3 samples, got %d", artifact.Samples)
	}

	samples, _, err := DecodeWAV(artifact.Data)
	if err != nil {
		t.Fatalf("artifact is not valid WAV: %v", err)
	}

	if samples[0] != 1 {
		t.Errorf("stale chunk leaked into recording: first sample %d", samples[0])
	}
}

func TestDeviceFaultDiscardsBuffer(t *testing.T) {
	faults := make(chan error, 1)
	r := NewRecorder(nil, func(err error) { faults <- err })
	handle := newFakeHandle(0)

	if err := r.Start(handle); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	chunk := pcmBytes([]int16{1, 2, 3})
	handle.chunks <- chunk
	waitForBytes(t, r, len(chunk))

	handle.setErr(errors.New("device unplugged"))
	close(handle.chunks)

	select {
	case err := <-faults:
		var fault *Fault
		if !errors.As(err, &fault) {
			t.Errorf("expected *Fault, got %T", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("fault callback never invoked")
	}

	if r.Recording() {
		t.Error("expected recorder idle after fault")
	}

	stats := r.GetStats()
	if stats.BytesBuffered != 0 {
		t.Errorf("expected buffer discarded, have %d bytes", stats.BytesBuffered)
	}

	if stats.Faults != 1 {
		t.Errorf("expected 1 fault, got %d", stats.Faults)
	}

	artifact, err := r.Stop()
	if err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	if !artifact.Empty() {
		t.Error("expected empty artifact after fault")
	}
}

func TestCleanStreamEndWithoutFault(t *testing.T) {
	faults := make(chan error, 1)
	r := NewRecorder(nil, func(err error) { faults <- err })
	handle := newFakeHandle(0)

	if err := r.Start(handle); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	// Channel closed with no error means a clean release, not a fault.
	close(handle.chunks)

	select {
	case <-faults:
		t.Error("fault callback invoked for clean stream end")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestDiscard(t *testing.T) {
	r := NewRecorder(nil, nil)
	handle := newFakeHandle(0)

	if err := r.Start(handle); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	chunk := pcmBytes([]int16{1, 2, 3, 4})
	handle.chunks <- chunk
	waitForBytes(t, r, len(chunk))

	r.Discard()

	if r.Recording() {
		t.Error("expected recorder idle after Discard")
	}

	artifact, err := r.Stop()
	if err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	if !artifact.Empty() {
		t.Error("expected no artifact after Discard")
	}

	// Discard while idle must not panic.
	r.Discard()
}

func TestStopWithNoAudio(t *testing.T) {
	r := NewRecorder(nil, nil)
	handle := newFakeHandle(0)

	if err := r.Start(handle); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	artifact, err := r.Stop()
	if err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	if !artifact.Empty() {
		t.Error("expected empty artifact when nothing was captured")
	}
}

func TestArtifactEmpty(t *testing.T) {
	var nilArtifact *Artifact
	if !nilArtifact.Empty() {
		t.Error("nil artifact must be empty")
	}

	if !(&Artifact{}).Empty() {
		t.Error("zero artifact must be empty")
	}

	if (&Artifact{Data: []byte{1}}).Empty() {
		t.Error("artifact with data must not be empty")
	}
}
