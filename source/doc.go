// Package source handles microphone acquisition. It defines the
// capability-polymorphic Source/Handle contract used by the rest of the
// library and provides a PortAudio-backed implementation. A Handle owns the
// underlying hardware stream exclusively; Release is the only path that
// frees the device.
package source
