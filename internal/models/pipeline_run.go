package models

import "time"

// PipelineRunKind names what a pipeline run did
type PipelineRunKind string

const (
	// PipelineRunAuto is the detached transcribe-and-generate run started after ingest
	PipelineRunAuto PipelineRunKind = "auto"
	// PipelineRunTranscribe is an on-demand transcription
	PipelineRunTranscribe PipelineRunKind = "transcribe"
	// PipelineRunRegenerate is an on-demand replacement of all quizzes
	PipelineRunRegenerate PipelineRunKind = "regenerate"
)

// PipelineRunStatus represents the lifecycle of a run
type PipelineRunStatus string

const (
	PipelineRunRunning   PipelineRunStatus = "running"
	PipelineRunCompleted PipelineRunStatus = "completed"
	PipelineRunFailed    PipelineRunStatus = "failed"
)

// PipelineRun records the outcome of one pipeline run against an audio record
type PipelineRun struct {
	ID               string            `json:"id"`
	AudioID          string            `json:"audioId"`
	Kind             PipelineRunKind   `json:"kind"`
	Status           PipelineRunStatus `json:"status"`
	Error            string            `json:"error,omitempty"`
	TranscriptSaved  bool              `json:"transcriptSaved"`
	QuizzesGenerated int               `json:"quizzesGenerated"`
	StartedAt        time.Time         `json:"startedAt"`
	FinishedAt       *time.Time        `json:"finishedAt,omitempty"`
}
