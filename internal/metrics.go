package internal

import "sync/atomic"

type Metrics struct {
	activeConns    atomic.Int64
	joins          atomic.Uint64
	envelopes      atomic.Uint64
	droppedSignals atomic.Uint64
	slowConsumers  atomic.Uint64
	uploads        atomic.Uint64
	uploadFailures atomic.Uint64
	uploadedBytes  atomic.Uint64
}

func NewMetrics() *Metrics {
	return &Metrics{}
}

func (m *Metrics) IncConn() {
	m.activeConns.Add(1)
}

func (m *Metrics) DecConn() {
	m.activeConns.Add(-1)
}

func (m *Metrics) IncJoin() {
	m.joins.Add(1)
}

func (m *Metrics) IncEnvelope() {
	m.envelopes.Add(1)
}

// IncDropped counts inbound signals the router ignored as malformed.
func (m *Metrics) IncDropped() {
	m.droppedSignals.Add(1)
}

func (m *Metrics) IncSlowConsumer() {
	m.slowConsumers.Add(1)
}

func (m *Metrics) IncUpload(size int64) {
	m.uploads.Add(1)
	if size > 0 {
		m.uploadedBytes.Add(uint64(size))
	}
}

func (m *Metrics) IncUploadFailure() {
	m.uploadFailures.Add(1)
}

// Snapshot returns the current counters keyed by their exported names.
func (m *Metrics) Snapshot() map[string]any {
	return map[string]any{
		"active_connections":    m.activeConns.Load(),
		"joins_total":           m.joins.Load(),
		"envelopes_total":       m.envelopes.Load(),
		"dropped_signals_total": m.droppedSignals.Load(),
		"slow_consumers_total":  m.slowConsumers.Load(),
		"uploads_total":         m.uploads.Load(),
		"upload_failures_total": m.uploadFailures.Load(),
		"uploaded_bytes_total":  m.uploadedBytes.Load(),
	}
}
