package ledger

import (
	"context"
	"fmt"

	"github.com/idudko/fhe-telemetry/internal/model"
)

// MetricCount is the number of metrics ever submitted.
func (c *Contract) MetricCount() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.metricCount
}

// CrashCount is the number of crashes ever reported.
func (c *Contract) CrashCount() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.crashCount
}

// AnalysisCount is the number of completed performance analyses.
func (c *Contract) AnalysisCount() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.analysisCount
}

// CrashAnalysisStatus reports whether a crash has been analysed.
func (c *Contract) CrashAnalysisStatus(crashID uint64) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if crashID == 0 || crashID > c.crashCount {
		return false, fmt.Errorf("%w: crash %d", model.ErrNotFound, crashID)
	}
	return c.crashes[crashID].IsAnalyzed, nil
}

// Metric returns a copy of a stored metric.
func (c *Contract) Metric(id uint64) (model.SystemMetric, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	m, ok := c.metrics[id]
	if !ok {
		return model.SystemMetric{}, fmt.Errorf("%w: metric %d", model.ErrNotFound, id)
	}
	out := *m
	if m.DecryptedCPU != nil {
		cpu := *m.DecryptedCPU
		out.DecryptedCPU = &cpu
	}
	return out, nil
}

// Crash returns a copy of a stored crash report.
func (c *Contract) Crash(id uint64) (model.CrashReport, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cr, ok := c.crashes[id]
	if !ok {
		return model.CrashReport{}, fmt.Errorf("%w: crash %d", model.ErrNotFound, id)
	}
	out := *cr
	if cr.Findings != nil {
		f := *cr.Findings
		out.Findings = &f
	}
	return out, nil
}

// Analysis returns a copy of a stored performance analysis.
func (c *Contract) Analysis(id uint64) (model.PerformanceAnalysis, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	a, ok := c.analyses[id]
	if !ok {
		return model.PerformanceAnalysis{}, fmt.Errorf("%w: analysis %d", model.ErrNotFound, id)
	}
	out := *a
	out.MetricIDs = append([]uint64(nil), a.MetricIDs...)
	return out, nil
}

// Events returns up to limit of the most recent events, oldest first.
// A non-positive limit returns everything retained.
func (c *Contract) Events(limit int) []model.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	events := c.events
	if limit > 0 && limit < len(events) {
		events = events[len(events)-limit:]
	}
	return append([]model.Event(nil), events...)
}

// PendingRequests is the number of decryption requests still Issued.
func (c *Contract) PendingRequests() int {
	return c.correlator.Outstanding()
}

// Pause rejects new submissions and requests until Resume. Callbacks for
// requests already issued are still accepted.
func (c *Contract) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.paused = true
}

// Resume undoes Pause.
func (c *Contract) Resume() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.paused = false
}

// IsAvailable reports whether the contract accepts writes and its storage
// answers.
func (c *Contract) IsAvailable(ctx context.Context) bool {
	c.mu.Lock()
	paused := c.paused
	c.mu.Unlock()
	if paused {
		return false
	}
	return c.storage.Ping(ctx) == nil
}

// GetData returns the bytes stored under key, or an empty slice.
func (c *Contract) GetData(ctx context.Context, key string) ([]byte, error) {
	if key == "" {
		return nil, fmt.Errorf("%w: key is empty", model.ErrInvalidInput)
	}
	c.kvMu.Lock()
	defer c.kvMu.Unlock()
	data, err := c.storage.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("get %q: %w", key, err)
	}
	return data, nil
}

// SetData overwrites key with value. Any caller may write any key.
func (c *Contract) SetData(ctx context.Context, key string, value []byte) error {
	if key == "" {
		return fmt.Errorf("%w: key is empty", model.ErrInvalidInput)
	}
	c.mu.Lock()
	paused := c.paused
	c.mu.Unlock()
	if paused {
		return fmt.Errorf("%w: contract is paused", model.ErrUnavailable)
	}

	c.kvMu.Lock()
	defer c.kvMu.Unlock()
	if err := c.storage.Set(ctx, key, value); err != nil {
		return fmt.Errorf("set %q: %w", key, err)
	}
	return nil
}
