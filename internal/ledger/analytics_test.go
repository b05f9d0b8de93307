package ledger

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/idudko/fhe-telemetry/internal/model"
)

func TestComputeAggregate(t *testing.T) {
	tests := []struct {
		name   string
		values []uint64
		want   Aggregate
	}{
		{
			name:   "single quiet sample",
			values: []uint64{40, 50, 10, 5},
			want:   Aggregate{AvgCPU: 40, PeakMemory: 50},
		},
		{
			name:   "average floors",
			values: []uint64{10, 20, 0, 0, 11, 30, 0, 0},
			want:   Aggregate{AvgCPU: 10, PeakMemory: 30},
		},
		{
			name:   "thresholds are strict",
			values: []uint64{90, 85, 0, 0},
			want:   Aggregate{AvgCPU: 90, PeakMemory: 85},
		},
		{
			name:   "cpu or memory over threshold counts once",
			values: []uint64{95, 50, 0, 0, 10, 90, 0, 0, 91, 86, 0, 0, 20, 30, 0, 0},
			want:   Aggregate{AvgCPU: 54, PeakMemory: 90, AnomalyScore: 3},
		},
		{
			name:   "cpu sum wider than 64 bits",
			values: []uint64{math.MaxUint64, 0, 0, 0, 2, 0, 0, 0},
			want:   Aggregate{AvgCPU: 1 << 63, AnomalyScore: 1},
		},
		{
			name:   "all samples at max",
			values: []uint64{math.MaxUint64, math.MaxUint64, 0, 0, math.MaxUint64, 1, 0, 0, math.MaxUint64, 2, 0, 0},
			want:   Aggregate{AvgCPU: math.MaxUint64, PeakMemory: math.MaxUint64, AnomalyScore: 3},
		},
		{
			name:   "disk and network are ignored",
			values: []uint64{1, 2, 999, 999},
			want:   Aggregate{AvgCPU: 1, PeakMemory: 2},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ComputeAggregate(tt.values)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestComputeAggregateRejectsPartialBatch(t *testing.T) {
	_, err := ComputeAggregate(nil)
	assert.ErrorIs(t, err, model.ErrInvalidInput)

	_, err = ComputeAggregate([]uint64{1, 2, 3})
	assert.ErrorIs(t, err, model.ErrInvalidInput)
}
