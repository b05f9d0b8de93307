package model

import "strings"

// Address is a wallet address. Comparison is case-insensitive because wallets
// report checksummed and lower-case forms interchangeably.
type Address string

// Equal reports whether a and b name the same wallet.
func (a Address) Equal(b Address) bool {
	return strings.EqualFold(string(a), string(b))
}

// RequestID is the oracle-issued correlation token of a decryption request.
type RequestID string

// EncryptedValue is an opaque ciphertext handle. Only the oracle can turn it
// back into an integer. It is base64 encoded in JSON.
type EncryptedValue []byte

// SystemMetric is one encrypted host sample stored on the ledger.
type SystemMetric struct {
	ID        uint64         `json:"id"`
	CPU       EncryptedValue `json:"cpu"`
	Memory    EncryptedValue `json:"memory"`
	Disk      EncryptedValue `json:"disk"`
	Network   EncryptedValue `json:"network"`
	Timestamp int64          `json:"timestamp"`
	Submitter Address        `json:"submitter"`

	// DecryptedCPU is set by a fulfilled single-value decryption request.
	DecryptedCPU *uint64 `json:"decryptedCpu,omitempty"`
}

// CrashReport is an encrypted crash triple.
type CrashReport struct {
	ID          uint64         `json:"id"`
	ErrorCode   EncryptedValue `json:"errorCode"`
	MemDumpHash EncryptedValue `json:"memDumpHash"`
	ProcessID   EncryptedValue `json:"processId"`
	Timestamp   int64          `json:"timestamp"`
	Reporter    Address        `json:"reporter"`
	IsAnalyzed  bool           `json:"isAnalyzed"`

	Findings *CrashFindings `json:"findings,omitempty"`
}

// CrashFindings holds the plaintext delivered for a crash analysis.
type CrashFindings struct {
	ErrorCode   uint64 `json:"errorCode"`
	MemDumpHash uint64 `json:"memDumpHash"`
	ProcessID   uint64 `json:"processId"`
}

// PerformanceAnalysis is the aggregate computed over a batch of metrics.
type PerformanceAnalysis struct {
	ID           uint64    `json:"id"`
	MetricIDs    []uint64  `json:"metricIds"`
	AvgCPU       uint64    `json:"avgCpu"`
	PeakMemory   uint64    `json:"peakMemory"`
	AnomalyScore uint64    `json:"anomalyScore"`
	RequestID    RequestID `json:"requestId"`
	Timestamp    int64     `json:"timestamp"`
}
