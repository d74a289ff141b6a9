package metrics

import "testing"

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics

	// Embedding applications may opt out of metrics entirely; every helper
	// must tolerate the nil receiver.
	m.RecordSessionStarted()
	m.RecordSessionTornDown()
	m.RecordSessionError("acquisition")
	m.RecordRecordingStarted()
	m.RecordRecordingStopped(1.5)
	m.RecordEnergySample(true)
	m.RecordSilenceStop()
	m.RecordArtifact(4096)
	m.RecordDispatch(true, 0.25)
}

func TestRecordHelpers(t *testing.T) {
	// promauto registers against the default registry, so metrics are
	// created once for the whole test run.
	m := NewMetrics()

	m.RecordSessionStarted()
	m.RecordSessionError("dispatch")
	m.RecordRecordingStarted()
	m.RecordRecordingStopped(2.0)
	m.RecordEnergySample(true)
	m.RecordEnergySample(false)
	m.RecordSilenceStop()
	m.RecordArtifact(32768)
	m.RecordDispatch(true, 0.1)
	m.RecordDispatch(false, 5.0)
	m.RecordSessionTornDown()
}
