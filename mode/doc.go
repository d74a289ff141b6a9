// Package mode implements the per-input-mode recording state machine.
// It decides when a recording starts and stops for push-to-talk,
// voice-activation, and always-on sessions, driven by external trigger
// events and energy samples. The mode is fixed for the machine's lifetime.
package mode
