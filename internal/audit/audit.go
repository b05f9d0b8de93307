// Package audit fans ledger events out to observers.
package audit

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog/log"

	"github.com/idudko/fhe-telemetry/internal/model"
	"github.com/idudko/fhe-telemetry/internal/workerpool"
)

type Observer interface {
	Notify(event model.Event)
}

// FileObserver appends one JSON line per event.
type FileObserver struct {
	filePath string
	mu       sync.Mutex
}

func NewFileObserver(filePath string) *FileObserver {
	return &FileObserver{
		filePath: filePath,
	}
}

func (o *FileObserver) Notify(event model.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal audit event")
		return
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	file, err := os.OpenFile(o.filePath, os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0o644)
	if err != nil {
		log.Error().Err(err).Str("path", o.filePath).Msg("failed to open audit file")
		return
	}
	defer file.Close()

	if _, err := fmt.Fprintln(file, string(data)); err != nil {
		log.Error().Err(err).Str("path", o.filePath).Msg("failed to write audit file")
	}
}

const (
	httpTimeout   = 5 * time.Second
	httpQueueSize = 256
)

// HTTPObserver posts each event to a collector, retrying transient failures.
// Sending happens on a background worker: Notify only queues, and events
// that find the queue full are dropped with a warning.
type HTTPObserver struct {
	url    string
	client *retryablehttp.Client
	pool   *workerpool.Pool
	cancel context.CancelFunc
}

func NewHTTPObserver(url string) *HTTPObserver {
	client := retryablehttp.NewClient()
	client.RetryMax = 3
	client.RetryWaitMin = 10 * time.Millisecond
	client.RetryWaitMax = 500 * time.Millisecond
	client.Logger = nil
	client.HTTPClient.Timeout = httpTimeout

	ctx, cancel := context.WithCancel(context.Background())
	o := &HTTPObserver{
		url:    url,
		client: client,
		pool:   workerpool.New("audit", 1, httpQueueSize),
		cancel: cancel,
	}
	o.pool.Start(ctx)
	return o
}

func (o *HTTPObserver) Notify(event model.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal audit event")
		return
	}

	sent := o.pool.TryEnqueue(func(ctx context.Context) error {
		return o.send(ctx, data)
	})
	if !sent {
		log.Warn().Str("url", o.url).Str("event", string(event.Kind)).Msg("audit queue is full, dropping event")
	}
}

func (o *HTTPObserver) send(ctx context.Context, data []byte) error {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, o.url, data)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send audit event to %s: %w", o.url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Warn().Int("status", resp.StatusCode).Str("url", o.url).Msg("audit server returned non-OK status")
	}
	return nil
}

// Close sends the queued events. Whatever is still pending when ctx is done
// is abandoned.
func (o *HTTPObserver) Close(ctx context.Context) {
	drained := make(chan struct{})
	go func() {
		o.pool.Stop()
		close(drained)
	}()

	select {
	case <-drained:
	case <-ctx.Done():
		o.cancel()
		<-drained
	}
	o.cancel()
}

// LogObserver writes events to the structured log.
type LogObserver struct{}

func (LogObserver) Notify(event model.Event) {
	entry := log.Info()
	if event.Kind == model.EventAnomalyDetected {
		entry = log.Warn()
	}
	entry.Str("event", string(event.Kind)).
		Uint64("id", event.ID).
		Str("request_id", string(event.RequestID)).
		Msg("ledger event")
}

type Subject struct {
	mu        sync.RWMutex
	observers []Observer
}

func NewSubject() *Subject {
	return &Subject{
		observers: make([]Observer, 0),
	}
}

func (s *Subject) Attach(observer Observer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, observer)
}

func (s *Subject) Detach(observer Observer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, obs := range s.observers {
		if obs == observer {
			s.observers = append(s.observers[:i], s.observers[i+1:]...)
			break
		}
	}
}

// Publish notifies every attached observer in attach order.
func (s *Subject) Publish(event model.Event) {
	s.mu.RLock()
	observers := append([]Observer(nil), s.observers...)
	s.mu.RUnlock()

	for _, observer := range observers {
		observer.Notify(event)
	}
}
