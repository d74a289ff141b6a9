package session

import (
	"context"
	"testing"

	"github.com/broadcomms/voicecapture/mode"
)

func TestNewManagerValidation(t *testing.T) {
	src := &fakeSource{}
	dispatcher := &stubDispatcher{}

	if _, err := NewManager(nil, dispatcher, nil, nil); err == nil {
		t.Error("expected error for nil source")
	}

	if _, err := NewManager(src, nil, nil, nil); err == nil {
		t.Error("expected error for nil dispatcher")
	}

	if _, err := NewManager(src, dispatcher, nil, nil); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestManagerOpenReplacesSession(t *testing.T) {
	src := &fakeSource{}
	manager, err := NewManager(src, &stubDispatcher{}, nil, nil)
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}

	first, err := manager.Open(context.Background(), testConfig(mode.PushToTalk))
	if err != nil {
		t.Fatalf("first Open failed: %v", err)
	}

	if manager.Current() != first {
		t.Error("Current does not return the open session")
	}

	second, err := manager.Open(context.Background(), testConfig(mode.VoiceActivation))
	if err != nil {
		t.Fatalf("second Open failed: %v", err)
	}

	// Opening a second session implicitly tears down the first; the
	// microphone is never held twice.
	if !src.handle(0).isReleased() {
		t.Error("first session still holds the audio handle")
	}

	if err := first.Start(context.Background()); err == nil {
		t.Error("replaced session should be torn down")
	}

	if manager.Current() != second {
		t.Error("Current does not track the replacement session")
	}

	if second.Mode() != mode.VoiceActivation {
		t.Errorf("unexpected mode: %v", second.Mode())
	}

	manager.Close()

	if !src.handle(1).isReleased() {
		t.Error("Close did not release the active session")
	}

	if manager.Current() != nil {
		t.Error("Current non-nil after Close")
	}

	// Close with nothing open is a no-op.
	manager.Close()
}

func TestManagerOpenStartFailure(t *testing.T) {
	src := &fakeSource{}
	manager, err := NewManager(src, &stubDispatcher{}, nil, nil)
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}

	// Invalid threshold fails session construction before any acquisition.
	cfg := testConfig(mode.PushToTalk)
	cfg.Threshold = 2.0

	if _, err := manager.Open(context.Background(), cfg); err == nil {
		t.Error("expected error for invalid config")
	}

	if manager.Current() != nil {
		t.Error("failed Open left a session behind")
	}

	if src.acquireCount() != 0 {
		t.Errorf("failed Open acquired the source %d times", src.acquireCount())
	}
}
