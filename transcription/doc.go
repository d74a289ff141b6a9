// Package transcription hands finished audio artifacts to the external
// transcription HTTP endpoint. It performs exactly one request per artifact;
// retrying a failed dispatch is the caller's responsibility.
package transcription
