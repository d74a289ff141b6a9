// Command capture-demo wires the capture library against the default
// microphone: it opens a session in the configured input mode, logs state
// transitions and transcripts, and exposes Prometheus metrics.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/broadcomms/voicecapture/config"
	"github.com/broadcomms/voicecapture/metrics"
	"github.com/broadcomms/voicecapture/mode"
	"github.com/broadcomms/voicecapture/session"
	"github.com/broadcomms/voicecapture/source"
	"github.com/broadcomms/voicecapture/transcription"
)

const (
	serviceName    = "capture-demo"
	serviceVersion = "1.0.0"
)

func main() {
	configPath := flag.String("config", "", "Path to configuration file (defaults apply when empty)")
	modeName := flag.String("mode", "voice_activation", "Input mode: push_to_talk, voice_activation, always_on")
	metricsAddr := flag.String("metrics", ":9090", "Prometheus metrics listen address (empty to disable)")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	logger := initLogger(cfg.Logging)

	logger.Info("Service starting",
		slog.String("service", serviceName),
		slog.String("version", serviceVersion),
		slog.String("config_path", *configPath),
	)

	inputMode, err := mode.ParseInputMode(*modeName)
	if err != nil {
		logger.Error("Invalid input mode", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("Configuration loaded",
		slog.Int("sample_rate", cfg.Capture.SampleRate),
		slog.Int("frame_size", cfg.Capture.FrameSize),
		slog.Float64("threshold", cfg.Detector.Threshold),
		slog.Int("silence_timeout_ms", cfg.Detector.SilenceTimeoutMs),
		slog.String("transcription_endpoint", cfg.Transcription.Endpoint),
		slog.String("mode", inputMode.String()),
	)

	appMetrics := metrics.NewMetrics()

	if *metricsAddr != "" {
		go serveMetrics(*metricsAddr, logger)
	}

	device, err := source.NewDevice(cfg.Capture.SampleRate, cfg.Capture.FrameSize, logger)
	if err != nil {
		logger.Error("Failed to create audio device", slog.String("error", err.Error()))
		os.Exit(1)
	}

	client, err := transcription.NewClient(transcription.Config{
		Endpoint:      cfg.Transcription.Endpoint,
		APIKey:        cfg.Transcription.APIKey,
		Timeout:       cfg.Transcription.GetTimeout(),
		MaxConcurrent: cfg.Transcription.MaxConcurrent,
	})
	if err != nil {
		logger.Error("Failed to create transcription client", slog.String("error", err.Error()))
		os.Exit(1)
	}

	manager, err := session.NewManager(device, client, logger, appMetrics)
	if err != nil {
		logger.Error("Failed to create session manager", slog.String("error", err.Error()))
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	sess, err := manager.Open(ctx, session.Config{
		Mode:           inputMode,
		Threshold:      cfg.Detector.Threshold,
		SilenceTimeout: cfg.Detector.GetSilenceTimeout(),
		PollInterval:   cfg.Capture.GetPollInterval(),
		FrameSize:      cfg.Capture.FrameSize,
		OnTranscript: func(text string) {
			fmt.Println(text)
		},
	})
	cancel()
	if err != nil {
		logger.Error("Failed to open capture session", slog.String("error", err.Error()))
		os.Exit(1)
	}

	detach := sess.Subscribe(func(snap session.Snapshot) {
		logger.Info("Session state changed",
			slog.String("state", snap.State.String()),
			slog.Int("duration_seconds", snap.DurationSeconds),
		)
	})
	defer detach()

	// Voice activation arms immediately; push-to-talk would be driven by a
	// hotkey source the UI layer owns.
	if inputMode == mode.VoiceActivation {
		sess.Arm()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	logger.Info("Capture running, waiting for signal...")

	sig := <-sigChan
	logger.Info("Received shutdown signal", slog.String("signal", sig.String()))

	manager.Close()

	if err := client.Close(); err != nil {
		logger.Warn("Error closing transcription client", slog.String("error", err.Error()))
	}

	stats := client.GetStats()
	logger.Info("Final dispatch statistics",
		slog.Uint64("total_requests", stats.TotalRequests),
		slog.Uint64("successful", stats.SuccessRequests),
		slog.Float64("success_rate", stats.SuccessRate),
	)

	logger.Info("Service stopped")
}

// serveMetrics exposes the Prometheus /metrics endpoint.
func serveMetrics(addr string, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	logger.Info("Metrics endpoint listening", slog.String("address", addr))

	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error("Metrics server failed", slog.String("error", err.Error()))
	}
}

// initLogger creates the structured logger based on configuration
func initLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	var output *os.File
	switch cfg.Output {
	case "stderr":
		output = os.Stderr
	case "stdout", "":
		output = os.Stdout
	default:
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file %s: %v, falling back to stdout\n", cfg.Output, err)
			output = os.Stdout
		} else {
			output = file
		}
	}

	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(output, opts)
	default:
		handler = slog.NewTextHandler(output, opts)
	}

	return slog.New(handler)
}
