// Package session implements the capture session aggregate. A Session owns
// the audio handle, recorder, mode state machine, and background sampling
// loops for one microphone capture, serializes every state transition, and
// guarantees that teardown is a single idempotent operation releasing every
// resource in a fixed order. A Manager enforces that at most one session is
// active against the microphone at a time.
package session
