package master

import (
	"fmt"
	"sort"
	"sync"
	"testing"

	"github.com/cuongbtq/rhythm/internal/master/domain"
	"github.com/cuongbtq/rhythm/internal/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeJobs(n int) []protocol.JobID {
	jobs := make([]protocol.JobID, n)
	for i := range jobs {
		jobs[i] = fmt.Sprintf("job-%03d", i)
	}
	return jobs
}

func drain(q BatchSource) [][]protocol.JobID {
	var batches [][]protocol.JobID
	for {
		batch, ok := q.Next()
		if !ok {
			return batches
		}
		batches = append(batches, batch)
	}
}

func TestBatchQueue_Chunking(t *testing.T) {
	tests := []struct {
		name        string
		jobs        int
		batchSize   int
		wantBatches int
		wantLast    int
	}{
		{name: "exact multiple", jobs: 10, batchSize: 5, wantBatches: 2, wantLast: 5},
		{name: "short tail", jobs: 12, batchSize: 5, wantBatches: 3, wantLast: 2},
		{name: "batch larger than queue", jobs: 3, batchSize: 5, wantBatches: 1, wantLast: 3},
		{name: "single job batches", jobs: 4, batchSize: 1, wantBatches: 4, wantLast: 1},
		{name: "empty queue", jobs: 0, batchSize: 5, wantBatches: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			jobs := makeJobs(tt.jobs)
			q, err := NewBatchQueue(jobs, tt.batchSize)
			require.NoError(t, err)

			batches := drain(q)
			require.Len(t, batches, tt.wantBatches)

			var flat []protocol.JobID
			for i, b := range batches {
				assert.NotEmpty(t, b)
				if i < len(batches)-1 {
					assert.Len(t, b, tt.batchSize)
				} else {
					assert.Len(t, b, tt.wantLast)
				}
				flat = append(flat, b...)
			}
			if tt.jobs > 0 {
				assert.Equal(t, jobs, flat)
			}
		})
	}
}

func TestBatchQueue_ExhaustionIsPermanent(t *testing.T) {
	q, err := NewBatchQueue(makeJobs(2), 5)
	require.NoError(t, err)

	_, ok := q.Next()
	require.True(t, ok)

	for i := 0; i < 3; i++ {
		batch, ok := q.Next()
		assert.False(t, ok)
		assert.Nil(t, batch)
	}

	stats := q.Stats()
	assert.True(t, stats.Exhausted)
	assert.Equal(t, 0, stats.Remaining)
	assert.Equal(t, 1, stats.BatchesDrawn)
}

func TestNewBatchQueue_InvalidBatchSize(t *testing.T) {
	for _, size := range []int{0, -1} {
		q, err := NewBatchQueue(makeJobs(3), size)
		assert.ErrorIs(t, err, domain.ErrInvalidBatchSize)
		assert.Nil(t, q)
	}
}

func TestBatchQueue_ConcurrentDrawsPartitionJobs(t *testing.T) {
	jobs := makeJobs(1000)
	q, err := NewBatchQueue(jobs, 7)
	require.NoError(t, err)

	const drawers = 16
	results := make([][][]protocol.JobID, drawers)

	var wg sync.WaitGroup
	for i := 0; i < drawers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = drain(q)
		}(i)
	}
	wg.Wait()

	var all []protocol.JobID
	batchCount := 0
	for _, batches := range results {
		for _, b := range batches {
			assert.NotEmpty(t, b)
			all = append(all, b...)
			batchCount++
		}
	}

	assert.Equal(t, 143, batchCount)
	sort.Strings(all)
	assert.Equal(t, jobs, all)
}

func TestFilterCompleted(t *testing.T) {
	tests := []struct {
		name      string
		raw       []protocol.JobID
		completed map[protocol.JobID]struct{}
		want      []protocol.JobID
	}{
		{
			name:      "drops completed ids in order",
			raw:       []protocol.JobID{"a", "b", "c", "d"},
			completed: map[protocol.JobID]struct{}{"b": {}, "d": {}},
			want:      []protocol.JobID{"a", "c"},
		},
		{
			name: "drops repeated ids",
			raw:  []protocol.JobID{"a", "b", "a", "c", "b"},
			want: []protocol.JobID{"a", "b", "c"},
		},
		{
			name:      "everything already done",
			raw:       []protocol.JobID{"a"},
			completed: map[protocol.JobID]struct{}{"a": {}},
			want:      []protocol.JobID{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FilterCompleted(tt.raw, tt.completed))
		})
	}
}
