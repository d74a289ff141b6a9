package energy

import (
	"fmt"
	"math"
	"time"
)

// maxSampleValue is the normalization divisor for PCM-16 samples.
const maxSampleValue = 32768.0

// Sample is a single energy measurement taken at one analysis tick.
type Sample struct {
	Level  float64   // normalized RMS energy in [0,1]
	Active bool      // Level >= threshold
	At     time.Time // when the measurement was taken
}

// Level computes the root-mean-square energy of a frame of PCM-16 samples,
// normalized to [0,1]. An empty frame has zero energy.
func Level(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}

	var sum float64
	for _, s := range samples {
		v := float64(s) / maxSampleValue
		sum += v * v
	}

	level := math.Sqrt(sum / float64(len(samples)))
	if level > 1 {
		level = 1
	}
	return level
}

// Detector classifies analysis frames as voice or silence against a fixed
// threshold. It holds no state beyond the threshold; the same frame always
// produces the same classification.
type Detector struct {
	threshold float64
}

// NewDetector creates a detector with the given activity threshold.
func NewDetector(threshold float64) (*Detector, error) {
	if threshold <= 0 || threshold >= 1 {
		return nil, fmt.Errorf("threshold must be between 0 and 1 (exclusive), got %f", threshold)
	}

	return &Detector{threshold: threshold}, nil
}

// Threshold returns the configured activity threshold.
func (d *Detector) Threshold() float64 {
	return d.threshold
}

// Classify computes the energy level of a frame and marks it active when the
// level meets the threshold.
func (d *Detector) Classify(samples []int16, at time.Time) Sample {
	level := Level(samples)
	return Sample{
		Level:  level,
		Active: level >= d.threshold,
		At:     at,
	}
}
