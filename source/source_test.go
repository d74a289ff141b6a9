package source

import (
	"errors"
	"fmt"
	"testing"
)

func TestAcquisitionErrorUnwrap(t *testing.T) {
	inner := errors.New("host api failure")
	err := &AcquisitionError{Kind: ErrDeviceUnavailable, Err: inner}

	if !errors.Is(err, ErrDeviceUnavailable) {
		t.Error("expected errors.Is to match the sentinel kind")
	}

	if errors.Is(err, ErrPermissionDenied) {
		t.Error("matched the wrong sentinel")
	}
}

func TestClassifyAcquireError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"access denied", fmt.Errorf("Host error: Access denied by system"), ErrPermissionDenied},
		{"permission wording", fmt.Errorf("microphone permission not granted"), ErrPermissionDenied},
		{"no device", fmt.Errorf("Invalid device"), ErrDeviceUnavailable},
		{"generic failure", fmt.Errorf("Unanticipated host error"), ErrDeviceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classifyAcquireError(tt.err)
			if !errors.Is(got, tt.want) {
				t.Errorf("classified as %v, want %v", got.Kind, tt.want)
			}
		})
	}
}
