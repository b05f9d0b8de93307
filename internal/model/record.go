package model

import (
	"fmt"
	"strings"

	"github.com/goccy/go-json"
)

const (
	// RecordSchema tags every metric record written to the key/value store.
	// Records without this tag are rejected on read.
	RecordSchema = "telemetry.record/v1"

	// KeyIndexKey is the reserved key holding the JSON list of record ids.
	KeyIndexKey = "metric_keys"

	// RecordKeyPrefix prefixes the storage key of a single record.
	RecordKeyPrefix = "metric_"
)

// Status is the lifecycle flag of a metric record.
type Status string

const (
	// StatusActive is the status of a freshly submitted record.
	StatusActive Status = "active"

	// StatusInactive marks a record its owner switched off.
	StatusInactive Status = "inactive"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	return s == StatusActive || s == StatusInactive
}

// Toggle returns the opposite status.
func (s Status) Toggle() Status {
	if s == StatusActive {
		return StatusInactive
	}
	return StatusActive
}

// SuggestedMetricTypes is the fixed suggestion set offered to users.
// Any non-empty label is accepted.
var SuggestedMetricTypes = []string{
	"CPU Usage",
	"Memory Usage",
	"Disk I/O",
	"Network Traffic",
	"Process Count",
	"Crash Report",
}

// MetricRecord is the dashboard view of a submitted metric.
//
// EncryptedData is opaque: it is a ciphertext of the user's input under the
// oracle key and cannot be turned back into the input by the dashboard.
//
// Example:
//
//	model.MetricRecord{
//		Schema:        model.RecordSchema,
//		ID:            "1700000000000-4f2a9c1e",
//		MetricType:    "CPU Usage",
//		EncryptedData: "q8v3...",
//		Timestamp:     1700000000,
//		Owner:         "0xabc",
//		Status:        model.StatusActive,
//	}
type MetricRecord struct {
	Schema        string  `json:"schema"`
	ID            string  `json:"id"`
	MetricType    string  `json:"metricType"`
	EncryptedData string  `json:"encryptedData"`
	Timestamp     int64   `json:"timestamp"`
	Owner         Address `json:"owner"`
	Status        Status  `json:"status"`
}

// RecordKey returns the storage key of the record with the given id.
func RecordKey(id string) string {
	return RecordKeyPrefix + id
}

// IsRecordKey reports whether key belongs to the record service: the key
// index or a single record. Those keys are only written through it.
func IsRecordKey(key string) bool {
	return strings.HasPrefix(key, RecordKeyPrefix)
}

// Validate checks the record against the v1 schema.
func (r MetricRecord) Validate() error {
	switch {
	case r.Schema != RecordSchema:
		return fmt.Errorf("%w: unexpected schema %q", ErrSerialization, r.Schema)
	case r.ID == "":
		return fmt.Errorf("%w: record id is empty", ErrSerialization)
	case r.MetricType == "":
		return fmt.Errorf("%w: record %s has no metric type", ErrSerialization, r.ID)
	case r.Owner == "":
		return fmt.Errorf("%w: record %s has no owner", ErrSerialization, r.ID)
	case r.Timestamp <= 0:
		return fmt.Errorf("%w: record %s has invalid timestamp %d", ErrSerialization, r.ID, r.Timestamp)
	case !r.Status.Valid():
		return fmt.Errorf("%w: record %s has invalid status %q", ErrSerialization, r.ID, r.Status)
	}
	return nil
}

// EncodeRecord validates r and marshals it for storage.
func EncodeRecord(r MetricRecord) ([]byte, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSerialization, err)
	}
	return data, nil
}

// DecodeRecord parses and validates a stored record.
func DecodeRecord(data []byte) (MetricRecord, error) {
	var r MetricRecord
	if err := json.Unmarshal(data, &r); err != nil {
		return MetricRecord{}, fmt.Errorf("%w: %v", ErrSerialization, err)
	}
	if err := r.Validate(); err != nil {
		return MetricRecord{}, err
	}
	return r, nil
}

// DecodeKeyIndex parses the key index. An empty blob is an empty index.
func DecodeKeyIndex(data []byte) ([]string, error) {
	if len(data) == 0 {
		return []string{}, nil
	}
	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return nil, fmt.Errorf("%w: key index: %v", ErrSerialization, err)
	}
	return ids, nil
}

// EncodeKeyIndex marshals the key index.
func EncodeKeyIndex(ids []string) ([]byte, error) {
	if ids == nil {
		ids = []string{}
	}
	data, err := json.Marshal(ids)
	if err != nil {
		return nil, fmt.Errorf("%w: key index: %v", ErrSerialization, err)
	}
	return data, nil
}
