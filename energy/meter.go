package energy

import (
	"context"
	"log/slog"
	"time"
)

// FrameReader supplies the most recent analysis frame. source.Handle
// satisfies it; tests use scripted readers.
type FrameReader interface {
	ReadFrame(dst []int16) (int, error)
}

// Meter polls a frame reader at a fixed cadence and emits one classified
// energy sample per tick. Each Run call produces an independent, restartable
// sequence that ends when its context is cancelled.
type Meter struct {
	detector  *Detector
	frameSize int
	logger    *slog.Logger
}

// NewMeter creates a meter that reads frames of frameSize samples.
func NewMeter(detector *Detector, frameSize int, logger *slog.Logger) *Meter {
	if logger == nil {
		logger = slog.Default()
	}

	return &Meter{
		detector:  detector,
		frameSize: frameSize,
		logger:    logger,
	}
}

// Run starts the sampling loop and returns the sample channel. The channel
// is closed when ctx is cancelled. Frames that cannot be read (device not
// yet delivering, transient underruns) are skipped rather than surfaced; the
// frame itself is never retained past the tick that read it.
func (m *Meter) Run(ctx context.Context, frames FrameReader, interval time.Duration) <-chan Sample {
	out := make(chan Sample, 1)

	go func() {
		defer close(out)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		buf := make([]int16, m.frameSize)

		m.logger.Debug("energy meter started",
			slog.Duration("interval", interval),
			slog.Int("frame_size", m.frameSize),
			slog.Float64("threshold", m.detector.Threshold()),
		)

		for {
			select {
			case <-ctx.Done():
				m.logger.Debug("energy meter stopping")
				return
			case now := <-ticker.C:
				n, err := frames.ReadFrame(buf)
				if err != nil {
					m.logger.Debug("frame read failed", slog.String("error", err.Error()))
					continue
				}
				if n == 0 {
					continue
				}

				sample := m.detector.Classify(buf[:n], now)

				select {
				case out <- sample:
				case <-ctx.Done():
					return
				default:
					// Consumer is behind; drop the sample. Levels are
					// telemetry, the next tick supersedes this one.
				}
			}
		}
	}()

	return out
}
