package jobqueue

import (
	"context"
	"fmt"
	"strings"
)

// JobType selects the handler for a queued key.
type JobType string

const (
	JobTypeLaneOrder   JobType = "lanes"
	JobTypeTicketOrder JobType = "tickets"
)

// Job is one drained batch of rows for a key. Rows maps row id to the newest
// JSON encoded row that was enqueued for it.
type Job struct {
	Key        string
	Type       JobType
	PipelineID string
	Rows       map[string]string
	Attempt    int
}

// Handler persists a drained job. A returned error puts the rows back for a retry.
type Handler func(ctx context.Context, job *Job) error

// JobKey is the coalescing key for a job type and pipeline.
func JobKey(jobType JobType, pipelineID string) string {
	return string(jobType) + ":" + pipelineID
}

// ParseJobKey splits a key built by JobKey.
func ParseJobKey(key string) (JobType, string, error) {
	jobType, pipelineID, ok := strings.Cut(key, ":")
	if !ok || jobType == "" || pipelineID == "" {
		return "", "", fmt.Errorf("invalid job key %q", key)
	}
	return JobType(jobType), pipelineID, nil
}
