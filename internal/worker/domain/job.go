package domain

import "strings"

// WatchURLPrefix turns a bare video id into a retrievable link
const WatchURLPrefix = "https://www.youtube.com/watch?v="

// Job is one unit of work handed to the downloader
type Job struct {
	ID  string
	URL string
}

// NewJob builds a job from a batch entry, which is either a bare id or a full link
func NewJob(id string) Job {
	if strings.Contains(id, "://") {
		return Job{ID: id, URL: id}
	}
	return Job{ID: id, URL: WatchURLPrefix + id}
}
