// Package tasks runs pipeline jobs outside the request that started them
package tasks

import (
	"context"
	"encoding/json"
	"fmt"
)

// TypeProcessAudio transcribes a new record and generates its quizzes
const TypeProcessAudio = "pipeline:process_audio"

// Job is a unit of background work addressed to one audio record
type Job struct {
	Type    string `json:"type"`
	AudioID string `json:"audioId"`
}

// HandlerFunc processes one job. A returned error is logged and recorded, never retried.
type HandlerFunc func(ctx context.Context, job Job) error

// Dispatcher hands jobs to a background runner
type Dispatcher interface {
	// Dispatch schedules a job and returns without waiting for it
	//
	// If the job cannot be accepted, the error will be returned.
	Dispatch(ctx context.Context, job Job) error
	// Shutdown stops accepting jobs and releases resources
	Shutdown(ctx context.Context) error
}

// encodePayload renders the queue payload of a job
func encodePayload(job Job) ([]byte, error) {
	payload, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("failed to encode job: %w", err)
	}
	return payload, nil
}

// DecodePayload parses a queue payload of the given type
func DecodePayload(jobType string, payload []byte) (Job, error) {
	var job Job
	if err := json.Unmarshal(payload, &job); err != nil {
		return Job{}, fmt.Errorf("failed to decode job: %w", err)
	}
	job.Type = jobType
	if job.AudioID == "" {
		return Job{}, fmt.Errorf("job %s has no audio id", jobType)
	}
	return job, nil
}
