// Package record implements the recording controller: it buffers raw audio
// chunks while a recording is active and finalizes them into a single WAV
// artifact on stop. Start and Stop are idempotent; a device fault discards
// the in-flight buffer.
package record
