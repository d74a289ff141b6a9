// Package energy implements RMS-based voice activity estimation.
// It computes a normalized loudness level per analysis frame, classifies
// frames against a threshold, and provides a ticker-driven meter loop that
// turns an audio handle into a stream of level samples.
package energy
