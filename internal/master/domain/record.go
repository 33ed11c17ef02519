package domain

import "time"

// CompletionRecord is the persisted proof that a job finished
type CompletionRecord struct {
	UID         string `db:"uid" json:"uid"`
	Link        string `db:"link" json:"link"`
	Title       string `db:"title" json:"title"`
	Author      string `db:"author" json:"author"`
	Duration    int64  `db:"duration" json:"duration"`
	Description string `db:"description" json:"description"`
	Date        int64  `db:"date" json:"date"`
}

// SpawnRecord describes a worker process started by the supervisor
type SpawnRecord struct {
	WorkerID  int       `json:"worker_id"`
	PID       int       `json:"pid"`
	WorkDir   string    `json:"work_dir"`
	StartedAt time.Time `json:"started_at"`
}
