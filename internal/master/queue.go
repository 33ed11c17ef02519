package master

import (
	"sync"

	"github.com/cuongbtq/rhythm/internal/master/domain"
	"github.com/cuongbtq/rhythm/internal/protocol"
)

// BatchSource hands out disjoint chunks of work.
type BatchSource interface {
	Next() ([]protocol.JobID, bool)
}

// QueueStats is a point-in-time view of a BatchQueue.
type QueueStats struct {
	Total        int  `json:"total"`
	BatchSize    int  `json:"batch_size"`
	BatchesDrawn int  `json:"batches_drawn"`
	JobsDrawn    int  `json:"jobs_drawn"`
	Remaining    int  `json:"remaining"`
	Exhausted    bool `json:"exhausted"`
}

// BatchQueue splits a fixed job list into consecutive chunks. Every draw is
// one critical section, so concurrent sessions receive disjoint batches and
// exhaustion is permanent.
type BatchQueue struct {
	mu        sync.Mutex
	jobs      []protocol.JobID
	batchSize int
	next      int
	drawn     int
}

// NewBatchQueue takes ownership of jobs for the lifetime of the run.
func NewBatchQueue(jobs []protocol.JobID, batchSize int) (*BatchQueue, error) {
	if batchSize <= 0 {
		return nil, domain.ErrInvalidBatchSize
	}
	return &BatchQueue{jobs: jobs, batchSize: batchSize}, nil
}

// Next returns the next chunk, or false once every job has been handed out.
func (q *BatchQueue) Next() ([]protocol.JobID, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.next >= len(q.jobs) {
		return nil, false
	}

	end := min(q.next+q.batchSize, len(q.jobs))
	batch := make([]protocol.JobID, end-q.next)
	copy(batch, q.jobs[q.next:end])
	q.next = end
	q.drawn++

	return batch, true
}

func (q *BatchQueue) Stats() QueueStats {
	q.mu.Lock()
	defer q.mu.Unlock()

	return QueueStats{
		Total:        len(q.jobs),
		BatchSize:    q.batchSize,
		BatchesDrawn: q.drawn,
		JobsDrawn:    q.next,
		Remaining:    len(q.jobs) - q.next,
		Exhausted:    q.next >= len(q.jobs),
	}
}

// FilterCompleted drops jobs already in completed and repeated ids, keeping order.
func FilterCompleted(raw []protocol.JobID, completed map[protocol.JobID]struct{}) []protocol.JobID {
	seen := make(map[protocol.JobID]struct{}, len(raw))
	out := make([]protocol.JobID, 0, len(raw))

	for _, id := range raw {
		if _, done := completed[id]; done {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
