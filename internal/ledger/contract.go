// Package ledger is the ledger-resident store: encrypted metric and crash
// entities, performance analyses, the generic key/value surface and the
// decryption callback entry point.
//
// Every state-changing operation validates first and mutates last, under one
// mutex, so a call either applies completely or leaves no trace.
package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/idudko/fhe-telemetry/internal/model"
	"github.com/idudko/fhe-telemetry/internal/oracle"
	"github.com/idudko/fhe-telemetry/internal/repository"
)

const eventLogSize = 256

// EventSink receives every event after the emitting call has committed.
type EventSink interface {
	Publish(event model.Event)
}

// Contract owns all ledger state. Counters start at zero; the first entity
// of each kind gets id 1.
type Contract struct {
	mu         sync.Mutex
	correlator *oracle.Correlator
	sink       EventSink
	now        func() time.Time

	metrics       map[uint64]*model.SystemMetric
	crashes       map[uint64]*model.CrashReport
	analyses      map[uint64]*model.PerformanceAnalysis
	metricCount   uint64
	crashCount    uint64
	analysisCount uint64
	paused        bool
	events        []model.Event

	// kvMu serializes the key/value surface. It is independent of mu so that
	// slow storage round trips do not hold up callbacks.
	kvMu    sync.Mutex
	storage repository.Storage
}

// New creates an empty contract. sink may be nil.
func New(storage repository.Storage, correlator *oracle.Correlator, sink EventSink) *Contract {
	return &Contract{
		correlator: correlator,
		sink:       sink,
		now:        time.Now,
		metrics:    make(map[uint64]*model.SystemMetric),
		crashes:    make(map[uint64]*model.CrashReport),
		analyses:   make(map[uint64]*model.PerformanceAnalysis),
		storage:    storage,
	}
}

// SubmitSystemMetric stores four encrypted readings and emits
// MetricCollected.
func (c *Contract) SubmitSystemMetric(ctx context.Context, caller model.Address, cpu, memory, disk, network model.EncryptedValue) (uint64, error) {
	if err := requireCaller(caller); err != nil {
		return 0, err
	}
	if err := requireHandles(cpu, memory, disk, network); err != nil {
		return 0, err
	}

	c.mu.Lock()
	if c.paused {
		c.mu.Unlock()
		return 0, fmt.Errorf("%w: contract is paused", model.ErrUnavailable)
	}
	c.metricCount++
	id := c.metricCount
	c.metrics[id] = &model.SystemMetric{
		ID:        id,
		CPU:       cpu,
		Memory:    memory,
		Disk:      disk,
		Network:   network,
		Timestamp: c.now().Unix(),
		Submitter: caller,
	}
	ev := c.record(model.EventMetricCollected, id, "")
	c.mu.Unlock()

	c.publish(ev)
	return id, nil
}

// ReportCrash stores an encrypted crash triple and emits CrashReported.
func (c *Contract) ReportCrash(ctx context.Context, caller model.Address, errorCode, memDumpHash, processID model.EncryptedValue) (uint64, error) {
	if err := requireCaller(caller); err != nil {
		return 0, err
	}
	if err := requireHandles(errorCode, memDumpHash, processID); err != nil {
		return 0, err
	}

	c.mu.Lock()
	if c.paused {
		c.mu.Unlock()
		return 0, fmt.Errorf("%w: contract is paused", model.ErrUnavailable)
	}
	c.crashCount++
	id := c.crashCount
	c.crashes[id] = &model.CrashReport{
		ID:          id,
		ErrorCode:   errorCode,
		MemDumpHash: memDumpHash,
		ProcessID:   processID,
		Timestamp:   c.now().Unix(),
		Reporter:    caller,
	}
	ev := c.record(model.EventCrashReported, id, "")
	c.mu.Unlock()

	c.publish(ev)
	return id, nil
}

// AnalyzePerformance requests decryption of every reading of the listed
// metrics. The aggregate is stored when the oracle calls back.
func (c *Contract) AnalyzePerformance(ctx context.Context, caller model.Address, metricIDs []uint64) (model.RequestID, error) {
	if err := requireCaller(caller); err != nil {
		return "", err
	}
	if len(metricIDs) == 0 {
		return "", fmt.Errorf("%w: metric id list is empty", model.ErrInvalidInput)
	}

	c.mu.Lock()
	if c.paused {
		c.mu.Unlock()
		return "", fmt.Errorf("%w: contract is paused", model.ErrUnavailable)
	}
	handles := make([]model.EncryptedValue, 0, len(metricIDs)*valuesPerMetric)
	for _, id := range metricIDs {
		m, ok := c.metrics[id]
		if !ok {
			c.mu.Unlock()
			return "", fmt.Errorf("%w: metric %d", model.ErrNotFound, id)
		}
		handles = append(handles, m.CPU, m.Memory, m.Disk, m.Network)
	}

	reqID, err := c.correlator.Request(ctx, oracle.KindPerformance, metricIDs, handles)
	if err != nil {
		c.mu.Unlock()
		return "", err
	}
	ev := c.record(model.EventDecryptionRequested, metricIDs[0], reqID)
	c.mu.Unlock()

	c.publish(ev)
	return reqID, nil
}

// AnalyzeCrash requests decryption of a crash triple. The crash id must be
// in 1..CrashCount.
func (c *Contract) AnalyzeCrash(ctx context.Context, caller model.Address, crashID uint64) (model.RequestID, error) {
	if err := requireCaller(caller); err != nil {
		return "", err
	}

	c.mu.Lock()
	if c.paused {
		c.mu.Unlock()
		return "", fmt.Errorf("%w: contract is paused", model.ErrUnavailable)
	}
	if crashID == 0 || crashID > c.crashCount {
		c.mu.Unlock()
		return "", fmt.Errorf("%w: crash %d", model.ErrNotFound, crashID)
	}
	cr := c.crashes[crashID]

	reqID, err := c.correlator.Request(ctx, oracle.KindCrash, []uint64{crashID},
		[]model.EncryptedValue{cr.ErrorCode, cr.MemDumpHash, cr.ProcessID})
	if err != nil {
		c.mu.Unlock()
		return "", err
	}
	ev := c.record(model.EventDecryptionRequested, crashID, reqID)
	c.mu.Unlock()

	c.publish(ev)
	return reqID, nil
}

// RequestMetricDecryption requests the plaintext cpu reading of one metric.
func (c *Contract) RequestMetricDecryption(ctx context.Context, caller model.Address, metricID uint64) (model.RequestID, error) {
	if err := requireCaller(caller); err != nil {
		return "", err
	}

	c.mu.Lock()
	if c.paused {
		c.mu.Unlock()
		return "", fmt.Errorf("%w: contract is paused", model.ErrUnavailable)
	}
	m, ok := c.metrics[metricID]
	if !ok {
		c.mu.Unlock()
		return "", fmt.Errorf("%w: metric %d", model.ErrNotFound, metricID)
	}

	reqID, err := c.correlator.Request(ctx, oracle.KindMetricValue, []uint64{metricID}, []model.EncryptedValue{m.CPU})
	if err != nil {
		c.mu.Unlock()
		return "", err
	}
	ev := c.record(model.EventDecryptionRequested, metricID, reqID)
	c.mu.Unlock()

	c.publish(ev)
	return reqID, nil
}

// Deliver is the oracle callback. It is deliberately absent from the
// client-facing API; only the oracle holds a reference that can reach it.
//
// The request is consumed only after its update has been applied, so a
// rejected callback leaves the request Issued and a replay of an accepted
// one is an unknown request.
func (c *Contract) Deliver(ctx context.Context, caller model.Address, reqID model.RequestID, cleartexts, proof []byte) error {
	c.mu.Lock()

	p, values, err := c.correlator.Resolve(caller, reqID, cleartexts, proof)
	if err != nil {
		c.mu.Unlock()
		log.Warn().Err(err).Str("request_id", string(reqID)).Str("caller", string(caller)).Msg("decryption callback rejected")
		return err
	}

	var events []model.Event
	switch p.Kind {
	case oracle.KindPerformance:
		events, err = c.applyPerformance(p, reqID, values)
	case oracle.KindCrash:
		events, err = c.applyCrash(p, reqID, values)
	case oracle.KindMetricValue:
		events, err = c.applyMetricValue(p, reqID, values)
	default:
		err = fmt.Errorf("%w: request %s has unsupported kind %s", model.ErrInvalidInput, reqID, p.Kind)
	}
	if err != nil {
		c.mu.Unlock()
		return err
	}
	c.correlator.Consume(reqID)
	c.mu.Unlock()

	c.publish(events...)
	return nil
}

func (c *Contract) applyPerformance(p oracle.Pending, reqID model.RequestID, values []uint64) ([]model.Event, error) {
	agg, err := ComputeAggregate(values)
	if err != nil {
		return nil, err
	}

	c.analysisCount++
	id := c.analysisCount
	c.analyses[id] = &model.PerformanceAnalysis{
		ID:           id,
		MetricIDs:    append([]uint64(nil), p.DomainIDs...),
		AvgCPU:       agg.AvgCPU,
		PeakMemory:   agg.PeakMemory,
		AnomalyScore: agg.AnomalyScore,
		RequestID:    reqID,
		Timestamp:    c.now().Unix(),
	}

	events := []model.Event{c.record(model.EventPerformanceAnalyzed, id, reqID)}
	if agg.AnomalyScore > 0 {
		// Only the first metric of the batch is flagged, whichever samples
		// crossed the thresholds.
		events = append(events, c.record(model.EventAnomalyDetected, p.DomainIDs[0], reqID))
	}
	return events, nil
}

func (c *Contract) applyCrash(p oracle.Pending, reqID model.RequestID, values []uint64) ([]model.Event, error) {
	cr, ok := c.crashes[p.DomainIDs[0]]
	if !ok {
		return nil, fmt.Errorf("%w: crash %d", model.ErrNotFound, p.DomainIDs[0])
	}
	cr.IsAnalyzed = true
	cr.Findings = &model.CrashFindings{
		ErrorCode:   values[0],
		MemDumpHash: values[1],
		ProcessID:   values[2],
	}
	return []model.Event{c.record(model.EventCrashAnalyzed, cr.ID, reqID)}, nil
}

func (c *Contract) applyMetricValue(p oracle.Pending, reqID model.RequestID, values []uint64) ([]model.Event, error) {
	m, ok := c.metrics[p.DomainIDs[0]]
	if !ok {
		return nil, fmt.Errorf("%w: metric %d", model.ErrNotFound, p.DomainIDs[0])
	}
	cpu := values[0]
	m.DecryptedCPU = &cpu
	return []model.Event{c.record(model.EventMetricDecrypted, m.ID, reqID)}, nil
}

// record appends to the event ring. Callers hold mu.
func (c *Contract) record(kind model.EventKind, id uint64, reqID model.RequestID) model.Event {
	ev := model.Event{Kind: kind, ID: id, RequestID: reqID, Timestamp: c.now().Unix()}
	c.events = append(c.events, ev)
	if len(c.events) > eventLogSize {
		c.events = c.events[len(c.events)-eventLogSize:]
	}
	return ev
}

func (c *Contract) publish(events ...model.Event) {
	if c.sink == nil {
		return
	}
	for _, ev := range events {
		c.sink.Publish(ev)
	}
}

func requireCaller(caller model.Address) error {
	if caller == "" {
		return fmt.Errorf("%w: caller address is required", model.ErrInvalidInput)
	}
	return nil
}

func requireHandles(handles ...model.EncryptedValue) error {
	for i, h := range handles {
		if len(h) == 0 {
			return fmt.Errorf("%w: encrypted value %d is empty", model.ErrInvalidInput, i)
		}
	}
	return nil
}
