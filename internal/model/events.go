package model

// EventKind names a signal emitted by the ledger.
type EventKind string

const (
	EventMetricCollected     EventKind = "MetricCollected"
	EventCrashReported       EventKind = "CrashReported"
	EventDecryptionRequested EventKind = "DecryptionRequested"
	EventPerformanceAnalyzed EventKind = "PerformanceAnalyzed"
	EventAnomalyDetected     EventKind = "AnomalyDetected"
	EventCrashAnalyzed       EventKind = "CrashAnalyzed"
	EventMetricDecrypted     EventKind = "MetricDecrypted"
)

// Event is a ledger signal. ID is the domain id the event is about (metric,
// crash or analysis id depending on Kind).
type Event struct {
	Kind      EventKind `json:"kind"`
	ID        uint64    `json:"id"`
	RequestID RequestID `json:"requestId,omitempty"`
	Timestamp int64     `json:"ts"`
}
