package pool

import (
	"bytes"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

type sampleBatch struct {
	ids    []uint64
	labels map[string]string
	body   bytes.Buffer
}

func newSampleBatch() *sampleBatch {
	return &sampleBatch{labels: make(map[string]string)}
}

func (b *sampleBatch) Reset() {
	b.ids = b.ids[:0]
	clear(b.labels)
	b.body.Reset()
}

func TestPutResets(t *testing.T) {
	p := New(newSampleBatch)

	b := p.Get()
	b.ids = append(b.ids, 1, 2, 3)
	b.labels["host"] = "node-1"
	b.body.WriteString(`{"cpu":42}`)

	p.Put(b)

	assert.Empty(t, b.ids)
	assert.Empty(t, b.labels)
	assert.Zero(t, b.body.Len())

	again := p.Get()
	assert.Empty(t, again.ids)
	assert.Empty(t, again.labels)
	assert.Zero(t, again.body.Len())
}

func TestGetOnEmptyPoolUsesConstructor(t *testing.T) {
	calls := 0
	p := New(func() *sampleBatch {
		calls++
		return newSampleBatch()
	})

	b := p.Get()
	assert.NotNil(t, b.labels)
	assert.Equal(t, 1, calls)
}

func TestConcurrentUse(t *testing.T) {
	p := New(newSampleBatch)

	var wg sync.WaitGroup
	for w := range 32 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 100 {
				b := p.Get()
				if len(b.ids) != 0 || len(b.labels) != 0 {
					t.Errorf("worker %d got a dirty batch", w)
					return
				}
				b.ids = append(b.ids, uint64(i))
				b.labels["worker"] = "x"
				p.Put(b)
			}
		}()
	}
	wg.Wait()
}

func BenchmarkGetPut(b *testing.B) {
	p := New(newSampleBatch)
	for b.Loop() {
		batch := p.Get()
		batch.ids = append(batch.ids, 1, 2, 3, 4)
		batch.body.WriteString("cpu,memory,disk,network")
		p.Put(batch)
	}
}
