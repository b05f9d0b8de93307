// Package service implements the dashboard's metric records on top of the
// ledger key/value surface.
//
// Records and the key index are separate keys and each client call is its
// own round trip, so two sessions that create records at the same time can
// both read the same index and one id is lost on write. Concurrent toggles of
// one record race the same way. Neither is guarded.
package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/idudko/fhe-telemetry/internal/model"
)

// Store is the key/value surface of the ledger.
type Store interface {
	GetData(ctx context.Context, key string) ([]byte, error)
	SetData(ctx context.Context, key string, value []byte) error
	IsAvailable(ctx context.Context) bool
}

// Filter narrows a listing. Zero values match everything.
type Filter struct {
	// Query matches case-insensitively against id, metric type and owner.
	Query      string
	MetricType string
	Status     model.Status
}

// Summary counts every readable record regardless of the filter.
type Summary struct {
	Total    int            `json:"total"`
	Active   int            `json:"active"`
	Inactive int            `json:"inactive"`
	ByType   map[string]int `json:"byType"`
}

// ListResult is a filtered listing, newest first.
type ListResult struct {
	Records []model.MetricRecord `json:"records"`
	Summary Summary              `json:"summary"`
}

type RecordService struct {
	store     Store
	encryptor Encryptor
	now       func() time.Time
}

func NewRecordService(store Store, encryptor Encryptor) *RecordService {
	return &RecordService{
		store:     store,
		encryptor: encryptor,
		now:       time.Now,
	}
}

// Create encrypts value, writes the record and appends its id to the key
// index.
func (s *RecordService) Create(ctx context.Context, owner model.Address, metricType, value string) (model.MetricRecord, error) {
	select {
	case <-ctx.Done():
		return model.MetricRecord{}, ctx.Err()
	default:
	}

	metricType = strings.TrimSpace(metricType)
	switch {
	case owner == "":
		return model.MetricRecord{}, fmt.Errorf("%w: owner is required", model.ErrInvalidInput)
	case metricType == "":
		return model.MetricRecord{}, fmt.Errorf("%w: metric type is required", model.ErrInvalidInput)
	case value == "":
		return model.MetricRecord{}, fmt.Errorf("%w: value is required", model.ErrInvalidInput)
	}
	if !s.store.IsAvailable(ctx) {
		return model.MetricRecord{}, fmt.Errorf("%w: ledger is not available", model.ErrUnavailable)
	}

	payload, err := s.encryptor.Encrypt(value)
	if err != nil {
		return model.MetricRecord{}, fmt.Errorf("encrypt value: %w", err)
	}

	now := s.now()
	record := model.MetricRecord{
		Schema:        model.RecordSchema,
		ID:            newRecordID(now),
		MetricType:    metricType,
		EncryptedData: payload,
		Timestamp:     now.Unix(),
		Owner:         owner,
		Status:        model.StatusActive,
	}
	if err := s.putRecord(ctx, record); err != nil {
		return model.MetricRecord{}, err
	}

	ids, err := s.loadIndex(ctx)
	if err != nil {
		return model.MetricRecord{}, err
	}
	if err := s.saveIndex(ctx, append(ids, record.ID)); err != nil {
		return model.MetricRecord{}, err
	}

	log.Info().Str("id", record.ID).Str("type", record.MetricType).Str("owner", string(owner)).Msg("metric record created")
	return record, nil
}

// Get reads one record. A corrupt blob is ErrSerialization.
func (s *RecordService) Get(ctx context.Context, id string) (model.MetricRecord, error) {
	if id == "" {
		return model.MetricRecord{}, fmt.Errorf("%w: record id is required", model.ErrInvalidInput)
	}
	return s.getRecord(ctx, id)
}

// List returns the records matching f. Unreadable records are logged and
// skipped.
func (s *RecordService) List(ctx context.Context, f Filter) (ListResult, error) {
	ids, err := s.loadIndex(ctx)
	if err != nil {
		return ListResult{}, err
	}

	result := ListResult{
		Records: make([]model.MetricRecord, 0, len(ids)),
		Summary: Summary{ByType: make(map[string]int)},
	}
	query := strings.ToLower(strings.TrimSpace(f.Query))

	for _, id := range ids {
		record, err := s.getRecord(ctx, id)
		if err != nil {
			log.Warn().Err(err).Str("id", id).Msg("skipping unreadable metric record")
			continue
		}

		result.Summary.Total++
		result.Summary.ByType[record.MetricType]++
		if record.Status == model.StatusActive {
			result.Summary.Active++
		} else {
			result.Summary.Inactive++
		}

		if matches(record, f, query) {
			result.Records = append(result.Records, record)
		}
	}

	sort.SliceStable(result.Records, func(i, j int) bool {
		return result.Records[i].Timestamp > result.Records[j].Timestamp
	})
	return result, nil
}

// ToggleStatus flips a record between active and inactive. Only the owner
// may do so.
func (s *RecordService) ToggleStatus(ctx context.Context, caller model.Address, id string) (model.MetricRecord, error) {
	if caller == "" {
		return model.MetricRecord{}, fmt.Errorf("%w: caller is required", model.ErrInvalidInput)
	}
	if !s.store.IsAvailable(ctx) {
		return model.MetricRecord{}, fmt.Errorf("%w: ledger is not available", model.ErrUnavailable)
	}

	record, err := s.Get(ctx, id)
	if err != nil {
		return model.MetricRecord{}, err
	}
	if !record.Owner.Equal(caller) {
		return model.MetricRecord{}, fmt.Errorf("%w: %s does not own record %s", model.ErrUnauthorized, caller, id)
	}

	record.Status = record.Status.Toggle()
	if err := s.putRecord(ctx, record); err != nil {
		return model.MetricRecord{}, err
	}

	log.Info().Str("id", id).Str("status", string(record.Status)).Msg("metric record status toggled")
	return record, nil
}

func matches(r model.MetricRecord, f Filter, query string) bool {
	if f.Status != "" && r.Status != f.Status {
		return false
	}
	if f.MetricType != "" && !strings.EqualFold(r.MetricType, f.MetricType) {
		return false
	}
	if query == "" {
		return true
	}
	return strings.Contains(strings.ToLower(r.ID), query) ||
		strings.Contains(strings.ToLower(r.MetricType), query) ||
		strings.Contains(strings.ToLower(string(r.Owner)), query)
}

func (s *RecordService) getRecord(ctx context.Context, id string) (model.MetricRecord, error) {
	data, err := s.store.GetData(ctx, model.RecordKey(id))
	if err != nil {
		return model.MetricRecord{}, err
	}
	if len(data) == 0 {
		return model.MetricRecord{}, fmt.Errorf("%w: record %s", model.ErrNotFound, id)
	}
	return model.DecodeRecord(data)
}

func (s *RecordService) putRecord(ctx context.Context, r model.MetricRecord) error {
	data, err := model.EncodeRecord(r)
	if err != nil {
		return err
	}
	return s.store.SetData(ctx, model.RecordKey(r.ID), data)
}

func (s *RecordService) loadIndex(ctx context.Context) ([]string, error) {
	data, err := s.store.GetData(ctx, model.KeyIndexKey)
	if err != nil {
		return nil, err
	}
	return model.DecodeKeyIndex(data)
}

func (s *RecordService) saveIndex(ctx context.Context, ids []string) error {
	data, err := model.EncodeKeyIndex(ids)
	if err != nil {
		return err
	}
	return s.store.SetData(ctx, model.KeyIndexKey, data)
}

func newRecordID(now time.Time) string {
	return fmt.Sprintf("%d-%s", now.UnixMilli(), uuid.NewString()[:8])
}
