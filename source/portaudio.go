package source

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/gordonklaus/portaudio"
)

// Device is a PortAudio-backed Source reading from the default input device.
type Device struct {
	sampleRate int
	frameSize  int
	logger     *slog.Logger
}

// NewDevice creates a PortAudio source capturing mono PCM-16 at sampleRate,
// delivering frameSize samples per buffer.
func NewDevice(sampleRate, frameSize int, logger *slog.Logger) (*Device, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", sampleRate)
	}

	if frameSize <= 0 {
		return nil, fmt.Errorf("frame size must be positive, got %d", frameSize)
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Device{
		sampleRate: sampleRate,
		frameSize:  frameSize,
		logger:     logger,
	}, nil
}

// Acquire opens the default input stream and starts the capture pump.
func (d *Device) Acquire(ctx context.Context) (Handle, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, classifyAcquireError(fmt.Errorf("portaudio init failed: %w", err))
	}

	h := &deviceHandle{
		sampleRate: d.sampleRate,
		buf:        make([]int16, d.frameSize),
		latest:     make([]int16, d.frameSize),
		chunks:     make(chan []byte, 16),
		done:       make(chan struct{}),
		logger:     d.logger,
	}

	stream, err := portaudio.OpenDefaultStream(1, 0, float64(d.sampleRate), d.frameSize, h.buf)
	if err != nil {
		portaudio.Terminate()
		return nil, classifyAcquireError(fmt.Errorf("open default stream failed: %w", err))
	}
	h.stream = stream

	if err := stream.Start(); err != nil {
		_ = stream.Close()
		portaudio.Terminate()
		return nil, classifyAcquireError(fmt.Errorf("start stream failed: %w", err))
	}

	pumpCtx, cancel := context.WithCancel(ctx)
	h.cancel = cancel

	go h.pump(pumpCtx)

	d.logger.Info("audio source acquired",
		slog.Int("sample_rate", d.sampleRate),
		slog.Int("frame_size", d.frameSize),
	)

	return h, nil
}

// classifyAcquireError maps a PortAudio failure onto the acquisition error
// taxonomy. PortAudio reports permission problems as host errors whose text
// mentions access; everything else means the device is unusable.
func classifyAcquireError(err error) *AcquisitionError {
	kind := ErrDeviceUnavailable

	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "access") || strings.Contains(msg, "permission") {
		kind = ErrPermissionDenied
	}

	return &AcquisitionError{Kind: kind, Err: err}
}

// deviceHandle owns a running PortAudio input stream.
type deviceHandle struct {
	stream     *portaudio.Stream
	sampleRate int
	buf        []int16 // stream read target, owned by the pump goroutine
	cancel     context.CancelFunc
	chunks     chan []byte
	done       chan struct{}
	logger     *slog.Logger

	mu       sync.Mutex
	latest   []int16 // most recent frame, copied out by ReadFrame
	latestN  int
	faultErr error
	released bool
}

// pump reads buffers from the stream until cancelled or the device faults.
func (h *deviceHandle) pump(ctx context.Context) {
	defer close(h.chunks)
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := h.stream.Read(); err != nil {
			select {
			case <-ctx.Done():
				// Read errors during release are expected; not a fault.
				return
			default:
			}

			h.mu.Lock()
			h.faultErr = fmt.Errorf("input stream read failed: %w", err)
			h.mu.Unlock()

			h.logger.Error("audio device fault", slog.String("error", err.Error()))
			return
		}

		h.mu.Lock()
		h.latestN = copy(h.latest, h.buf)
		h.mu.Unlock()

		chunk := make([]byte, len(h.buf)*2)
		for i, s := range h.buf {
			chunk[i*2] = byte(s)
			chunk[i*2+1] = byte(s >> 8)
		}

		// Drop the chunk when no consumer keeps up; between recordings
		// nothing drains the channel and the analysis path must stay live.
		select {
		case h.chunks <- chunk:
		default:
		}
	}
}

// ReadFrame copies the most recent capture buffer into dst.
func (h *deviceHandle) ReadFrame(dst []int16) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.faultErr != nil {
		return 0, h.faultErr
	}

	return copy(dst, h.latest[:h.latestN]), nil
}

// Chunks returns the raw capture stream.
func (h *deviceHandle) Chunks() <-chan []byte {
	return h.chunks
}

// Err returns the device fault that ended the capture stream, if any.
func (h *deviceHandle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.faultErr
}

// SampleRate returns the capture sample rate in Hz.
func (h *deviceHandle) SampleRate() int {
	return h.sampleRate
}

// Release stops the pump, then the hardware stream, then the backend.
// Safe to call multiple times.
func (h *deviceHandle) Release() error {
	h.mu.Lock()
	if h.released {
		h.mu.Unlock()
		return nil
	}
	h.released = true
	h.mu.Unlock()

	h.cancel()

	if err := h.stream.Abort(); err != nil {
		h.logger.Warn("stream abort failed", slog.String("error", err.Error()))
	}

	// The pump may be blocked inside stream.Read; aborting above unblocks it.
	<-h.done

	err := h.stream.Close()
	portaudio.Terminate()

	h.logger.Info("audio source released")

	if err != nil {
		return fmt.Errorf("failed to close input stream: %w", err)
	}
	return nil
}
