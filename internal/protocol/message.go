package protocol

import "fmt"

// JobID is an opaque identifier of a unit of download work.
type JobID = string

// Kind is the tag of a protocol message.
type Kind string

const (
	KindGreeting      Kind = "greeting"
	KindLog           Kind = "log"
	KindBatchRequest  Kind = "batch_request"
	KindBatch         Kind = "batch"
	KindStatus        Kind = "status"
	KindDownloadStart Kind = "download_start"
	KindDownloadEnd   Kind = "download_end"
	KindEndRequest    Kind = "end_request"
)

// IsValid reports whether k is one of the known message kinds.
func (k Kind) IsValid() bool {
	switch k {
	case KindGreeting, KindLog, KindBatchRequest, KindBatch,
		KindStatus, KindDownloadStart, KindDownloadEnd, KindEndRequest:
		return true
	}
	return false
}

// FromWorker reports whether a worker may send messages of this kind.
func (k Kind) FromWorker() bool {
	switch k {
	case KindGreeting, KindLog, KindBatchRequest, KindStatus, KindDownloadStart, KindDownloadEnd:
		return true
	}
	return false
}

// FromMaster reports whether the master may send messages of this kind.
func (k Kind) FromMaster() bool {
	switch k {
	case KindGreeting, KindBatch, KindEndRequest:
		return true
	}
	return false
}

// Message is a single protocol message. Only the fields relevant to Kind are set.
type Message struct {
	Kind     Kind          `json:"kind" cbor:"kind"`
	WorkerID *int          `json:"worker_id,omitempty" cbor:"worker_id,omitempty"`
	Level    string        `json:"level,omitempty" cbor:"level,omitempty"`
	Target   string        `json:"target,omitempty" cbor:"target,omitempty"`
	Text     string        `json:"text,omitempty" cbor:"text,omitempty"`
	Jobs     []JobID       `json:"jobs,omitempty" cbor:"jobs,omitempty"`
	Status   *StatusReport `json:"status,omitempty" cbor:"status,omitempty"`
}

func Greeting(workerID int) *Message {
	return &Message{Kind: KindGreeting, WorkerID: &workerID}
}

func Log(workerID int, level, target, text string) *Message {
	return &Message{Kind: KindLog, WorkerID: &workerID, Level: level, Target: target, Text: text}
}

func BatchRequest() *Message {
	return &Message{Kind: KindBatchRequest}
}

// Batch carries a non-empty chunk of jobs. An empty chunk is never sent; exhaustion is EndRequest.
func Batch(jobs []JobID) *Message {
	return &Message{Kind: KindBatch, Jobs: jobs}
}

func Status(report *StatusReport) *Message {
	return &Message{Kind: KindStatus, Status: report}
}

func DownloadStart() *Message {
	return &Message{Kind: KindDownloadStart}
}

func DownloadEnd() *Message {
	return &Message{Kind: KindDownloadEnd}
}

func EndRequest() *Message {
	return &Message{Kind: KindEndRequest}
}

// ID returns the worker id carried by Greeting and Log messages.
func (m *Message) ID() int {
	if m.WorkerID == nil {
		return -1
	}
	return *m.WorkerID
}

// Validate checks that the kind is known and its required fields are present.
func (m *Message) Validate() error {
	if !m.Kind.IsValid() {
		return fmt.Errorf("%w: %q", ErrUnknownKind, m.Kind)
	}

	switch m.Kind {
	case KindGreeting, KindLog:
		if m.WorkerID == nil {
			return fmt.Errorf("%w: %s without worker_id", ErrInvalidMessage, m.Kind)
		}
		if *m.WorkerID < 0 {
			return fmt.Errorf("%w: negative worker_id %d", ErrInvalidMessage, *m.WorkerID)
		}
	case KindBatch:
		if len(m.Jobs) == 0 {
			return fmt.Errorf("%w: empty batch", ErrInvalidMessage)
		}
	case KindStatus:
		if m.Status == nil {
			return fmt.Errorf("%w: status without report", ErrInvalidMessage)
		}
	}

	return nil
}

func (m *Message) String() string {
	switch m.Kind {
	case KindGreeting:
		return fmt.Sprintf("Greeting(%d)", m.ID())
	case KindLog:
		return fmt.Sprintf("Log(%d, %s)", m.ID(), m.Level)
	case KindBatch:
		return fmt.Sprintf("Batch(%d jobs)", len(m.Jobs))
	default:
		return string(m.Kind)
	}
}
