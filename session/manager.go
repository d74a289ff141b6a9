package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/broadcomms/voicecapture/metrics"
	"github.com/broadcomms/voicecapture/source"
)

// Manager enforces the single-session invariant: at most one capture
// session may be active against the microphone at a time. Opening a new
// session implicitly tears down the prior one.
type Manager struct {
	src        source.Source
	dispatcher Dispatcher
	logger     *slog.Logger
	metrics    *metrics.Metrics

	mu      sync.Mutex
	current *Session
}

// NewManager creates a session manager around one audio source.
func NewManager(src source.Source, dispatcher Dispatcher, logger *slog.Logger, m *metrics.Metrics) (*Manager, error) {
	if src == nil {
		return nil, fmt.Errorf("audio source is required")
	}

	if dispatcher == nil {
		return nil, fmt.Errorf("transcription dispatcher is required")
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Manager{
		src:        src,
		dispatcher: dispatcher,
		logger:     logger,
		metrics:    m,
	}, nil
}

// Open creates and starts a new capture session. A previously open session
// is torn down first; two sessions never run concurrently.
func (m *Manager) Open(ctx context.Context, cfg Config) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current != nil {
		m.logger.Info("implicitly stopping prior capture session",
			slog.String("prior_mode", m.current.Mode().String()),
		)
		m.current.Teardown()
		m.current = nil
	}

	sess, err := New(cfg, m.src, m.dispatcher, m.logger, m.metrics)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	if err := sess.Start(ctx); err != nil {
		sess.Teardown()
		return nil, fmt.Errorf("failed to start session: %w", err)
	}

	m.current = sess
	return sess, nil
}

// Current returns the active session, or nil.
func (m *Manager) Current() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Close tears down the active session, if any. Idempotent.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == nil {
		return
	}

	m.current.Teardown()
	m.current = nil
}
