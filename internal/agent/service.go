package agent

import (
	"context"
	"crypto/rsa"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/idudko/fhe-telemetry/internal/auth"
	"github.com/idudko/fhe-telemetry/internal/model"
	"github.com/idudko/fhe-telemetry/internal/oracle"
	"github.com/idudko/fhe-telemetry/internal/workerpool"
)

type Config struct {
	// Wallet signs the session challenge; its address owns every sample.
	Wallet         *auth.Wallet
	PollInterval   time.Duration
	ReportInterval time.Duration
	// AnalyzeEvery triggers a performance analysis over the metrics submitted
	// since the previous one after that many reports. Zero disables it.
	AnalyzeEvery int
	RateLimit    int
	// Records also files each sample as dashboard records.
	Records bool
	// OracleKey skips fetching the key from the server when set.
	OracleKey *rsa.PublicKey
}

// Agent polls the host and reports encrypted samples.
type Agent struct {
	cfg       Config
	collector *Collector
	client    *Client
	pool      *workerpool.Pool

	mu      sync.Mutex
	pub     *rsa.PublicKey
	pending []uint64
	reports int
}

func New(cfg Config, collector *Collector, client *Client) *Agent {
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 1
	}
	return &Agent{
		cfg:       cfg,
		collector: collector,
		client:    client,
		pool:      workerpool.New("agent", cfg.RateLimit, 16),
		pub:       cfg.OracleKey,
	}
}

// Run logs in, then polls and reports until ctx is done. It returns ctx's
// error on shutdown.
func (a *Agent) Run(ctx context.Context) error {
	if err := a.client.Login(ctx, a.cfg.Wallet); err != nil {
		return fmt.Errorf("login: %w", err)
	}
	if a.pub == nil {
		pub, err := a.client.OracleKey(ctx)
		if err != nil {
			return fmt.Errorf("fetch oracle key: %w", err)
		}
		a.pub = pub
	}

	a.pool.Start(ctx)
	defer a.pool.Stop()

	poll := time.NewTicker(a.cfg.PollInterval)
	defer poll.Stop()
	report := time.NewTicker(a.cfg.ReportInterval)
	defer report.Stop()

	log.Info().
		Str("address", string(a.cfg.Wallet.Address())).
		Dur("poll", a.cfg.PollInterval).
		Dur("report", a.cfg.ReportInterval).
		Msg("agent started")

	for {
		select {
		case <-poll.C:
			if _, err := a.collector.Collect(ctx); err != nil {
				log.Warn().Err(err).Msg("collect failed")
			}
		case <-report.C:
			sample, ok := a.collector.Latest()
			if !ok {
				continue
			}
			if err := a.pool.Enqueue(ctx, func(ctx context.Context) error {
				return a.Report(ctx, sample)
			}); err != nil {
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Report submits one sample and, every AnalyzeEvery reports, asks for a
// performance analysis of the batch.
func (a *Agent) Report(ctx context.Context, s Sample) error {
	handles := make([]model.EncryptedValue, 4)
	for i, v := range []uint64{s.CPU, s.Memory, s.Disk, s.Network} {
		h, err := oracle.EncryptValue(a.pub, v)
		if err != nil {
			return fmt.Errorf("encrypt sample: %w", err)
		}
		handles[i] = h
	}

	id, err := a.client.SubmitMetric(ctx, handles[0], handles[1], handles[2], handles[3])
	if err != nil {
		return fmt.Errorf("submit metric: %w", err)
	}
	log.Debug().Uint64("metric_id", id).Msg("metric submitted")

	if a.cfg.Records {
		for _, r := range []struct {
			metricType string
			value      uint64
		}{
			{"CPU Usage", s.CPU},
			{"Memory Usage", s.Memory},
		} {
			if _, err := a.client.CreateRecord(ctx, r.metricType, strconv.FormatUint(r.value, 10)); err != nil {
				log.Warn().Str("type", r.metricType).Msg(Describe(err))
			}
		}
	}

	batch := a.track(id)
	if len(batch) == 0 {
		return nil
	}
	reqID, err := a.client.AnalyzePerformance(ctx, batch)
	if err != nil {
		return fmt.Errorf("analyze performance: %w", err)
	}
	log.Info().Str("request_id", string(reqID)).Int("metrics", len(batch)).Msg("performance analysis requested")
	return nil
}

// track records a submitted id and returns the batch to analyse when one is
// due.
func (a *Agent) track(id uint64) []uint64 {
	if a.cfg.AnalyzeEvery <= 0 {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.pending = append(a.pending, id)
	a.reports++
	if a.reports%a.cfg.AnalyzeEvery != 0 {
		return nil
	}
	batch := a.pending
	a.pending = nil
	return batch
}
