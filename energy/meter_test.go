package energy

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// scriptedFrames serves a fixed frame per ReadFrame call, optionally failing
// for the first few calls.
type scriptedFrames struct {
	mu       sync.Mutex
	frame    []int16
	failures int
	calls    int
}

func (s *scriptedFrames) ReadFrame(dst []int16) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls++
	if s.failures > 0 {
		s.failures--
		return 0, errors.New("device not ready")
	}

	return copy(dst, s.frame), nil
}

func (s *scriptedFrames) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func collectSamples(t *testing.T, ch <-chan Sample, n int, timeout time.Duration) []Sample {
	t.Helper()

	var samples []Sample
	deadline := time.After(timeout)

	for len(samples) < n {
		select {
		case sample, ok := <-ch:
			if !ok {
				t.Fatalf("sample channel closed after %d of %d samples", len(samples), n)
			}
			samples = append(samples, sample)
		case <-deadline:
			t.Fatalf("timed out after %d of %d samples", len(samples), n)
		}
	}

	return samples
}

func TestMeterEmitsClassifiedSamples(t *testing.T) {
	detector, err := NewDetector(0.2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	frames := &scriptedFrames{frame: constantFrame(16384, 64)}
	meter := NewMeter(detector, 64, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := meter.Run(ctx, frames, time.Millisecond)
	samples := collectSamples(t, ch, 3, 2*time.Second)

	for i, sample := range samples {
		if !sample.Active {
			t.Errorf("sample %d: expected active at level %f", i, sample.Level)
		}
		if sample.Level < 0.49 || sample.Level > 0.51 {
			t.Errorf("sample %d: expected level ~0.5, got %f", i, sample.Level)
		}
		if sample.At.IsZero() {
			t.Errorf("sample %d: missing timestamp", i)
		}
	}
}

func TestMeterSkipsFailedReads(t *testing.T) {
	detector, err := NewDetector(0.2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	frames := &scriptedFrames{frame: constantFrame(1000, 64), failures: 3}
	meter := NewMeter(detector, 64, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := meter.Run(ctx, frames, time.Millisecond)
	samples := collectSamples(t, ch, 1, 2*time.Second)

	// The failed reads produced no samples; the first sample comes from a
	// successful read.
	if samples[0].Level <= 0 {
		t.Errorf("expected positive level after recovery, got %f", samples[0].Level)
	}

	if frames.callCount() < 4 {
		t.Errorf("expected at least 4 read attempts, got %d", frames.callCount())
	}
}

func TestMeterStopsOnCancel(t *testing.T) {
	detector, err := NewDetector(0.2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	frames := &scriptedFrames{frame: constantFrame(1000, 64)}
	meter := NewMeter(detector, 64, nil)

	ctx, cancel := context.WithCancel(context.Background())
	ch := meter.Run(ctx, frames, time.Millisecond)

	collectSamples(t, ch, 1, 2*time.Second)
	cancel()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return // closed as expected
			}
		case <-deadline:
			t.Fatal("sample channel not closed after cancel")
		}
	}
}

func TestMeterRestartable(t *testing.T) {
	detector, err := NewDetector(0.2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	frames := &scriptedFrames{frame: constantFrame(1000, 64)}
	meter := NewMeter(detector, 64, nil)

	for run := 0; run < 2; run++ {
		ctx, cancel := context.WithCancel(context.Background())
		ch := meter.Run(ctx, frames, time.Millisecond)
		collectSamples(t, ch, 2, 2*time.Second)
		cancel()
	}
}
