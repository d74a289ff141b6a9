package source

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel acquisition failures. Platform backends wrap these so callers can
// branch on errors.Is without knowing the backend.
var (
	// ErrPermissionDenied indicates the platform declined microphone access.
	ErrPermissionDenied = errors.New("microphone permission denied")

	// ErrDeviceUnavailable indicates no usable input device exists.
	ErrDeviceUnavailable = errors.New("no audio input device available")
)

// AcquisitionError wraps a backend failure with the sentinel it maps to.
type AcquisitionError struct {
	Kind error // ErrPermissionDenied or ErrDeviceUnavailable
	Err  error // underlying backend error
}

func (e *AcquisitionError) Error() string {
	return fmt.Sprintf("audio source acquisition failed: %v: %v", e.Kind, e.Err)
}

func (e *AcquisitionError) Unwrap() error {
	return e.Kind
}

// Source acquires exclusive access to an audio input device. Any platform
// audio API satisfying this contract is acceptable.
type Source interface {
	// Acquire requests microphone access and builds the analysis graph.
	// The returned handle owns the hardware stream until Release is called.
	Acquire(ctx context.Context) (Handle, error)
}

// Handle is an acquired audio input. It feeds two consumers: ReadFrame
// serves the energy meter with the most recent analysis window, and Chunks
// serves the recorder with the ordered raw capture stream.
type Handle interface {
	// ReadFrame copies the latest analysis window into dst and returns the
	// number of samples written. It never blocks on the device; before the
	// first buffer arrives it returns 0.
	ReadFrame(dst []int16) (int, error)

	// Chunks returns the ordered stream of raw little-endian PCM-16 chunks.
	// The channel is closed when the handle is released or the device
	// faults; Err distinguishes the two.
	Chunks() <-chan []byte

	// Err returns the device fault that closed the chunk channel, or nil
	// for a clean release.
	Err() error

	// SampleRate returns the capture sample rate in Hz.
	SampleRate() int

	// Release stops all hardware tracks and frees the device. It is
	// idempotent and is the only path that frees the microphone.
	Release() error
}
