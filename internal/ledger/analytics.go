package ledger

import (
	"fmt"
	"math/bits"

	"github.com/idudko/fhe-telemetry/internal/model"
)

const (
	// valuesPerMetric is the word count one metric contributes to a batch:
	// cpu, memory, disk, network.
	valuesPerMetric = 4

	cpuAnomalyThreshold    = 90
	memoryAnomalyThreshold = 85
)

// Aggregate is the result of a performance analysis.
type Aggregate struct {
	AvgCPU       uint64
	PeakMemory   uint64
	AnomalyScore uint64
}

// ComputeAggregate folds a decrypted batch laid out as consecutive
// (cpu, memory, disk, network) tuples. AvgCPU uses floor division; a sample
// is anomalous when cpu > 90 or memory > 85.
//
// The cpu sum is kept in 128 bits: cleartexts are arbitrary words, and the
// high word stays below the sample count, so the division cannot overflow.
func ComputeAggregate(values []uint64) (Aggregate, error) {
	if len(values) == 0 || len(values)%valuesPerMetric != 0 {
		return Aggregate{}, fmt.Errorf("%w: batch of %d values is not a whole number of metrics", model.ErrInvalidInput, len(values))
	}

	var (
		agg          Aggregate
		sumHi, sumLo uint64
		carry        uint64
	)
	n := uint64(len(values) / valuesPerMetric)
	for i := 0; i < len(values); i += valuesPerMetric {
		cpu, memory := values[i], values[i+1]
		sumLo, carry = bits.Add64(sumLo, cpu, 0)
		sumHi += carry
		if memory > agg.PeakMemory {
			agg.PeakMemory = memory
		}
		if cpu > cpuAnomalyThreshold || memory > memoryAnomalyThreshold {
			agg.AnomalyScore++
		}
	}
	agg.AvgCPU, _ = bits.Div64(sumHi, sumLo, n)
	return agg, nil
}
