package entity

import "github.com/google/uuid"

// DatasetJobMessage is the inbound message from the dataset.jobs queue.
//
// Extract jobs name a Source reference, or a VideoKey to fetch from object
// storage first. Package jobs name the Directory to package; Classes, when
// present, replace the registry before the training config is derived.
// Directory is always relative to the worker's images directory. Extract
// jobs without one write to a directory named after the job.
type DatasetJobMessage struct {
	JobID       uuid.UUID `json:"job_id"`
	Kind        RunKind   `json:"kind"`
	Source      string    `json:"source,omitempty"`
	VideoKey    string    `json:"video_key,omitempty"`
	Interval    int       `json:"interval,omitempty"`
	MaxFrames   int       `json:"max_frames,omitempty"`
	Directory   string    `json:"directory,omitempty"`
	Classes     []string  `json:"classes,omitempty"`
	NotifyEmail string    `json:"notify_email,omitempty"`
}

// DatasetStatusMessage is the outbound message published under
// dataset.status.<status>.
type DatasetStatusMessage struct {
	JobID        uuid.UUID `json:"job_id"`
	Kind         RunKind   `json:"kind"`
	Status       RunStatus `json:"status"`
	Reference    string    `json:"reference"`
	Directory    string    `json:"directory,omitempty"`
	FrameCount   int       `json:"frame_count,omitempty"`
	PairCount    int       `json:"pair_count,omitempty"`
	ArchiveKey   string    `json:"archive_key,omitempty"`
	FailedStage  string    `json:"failed_stage,omitempty"`
	ErrorMessage string    `json:"error_message,omitempty"`
	Attempt      int       `json:"attempt"`
	MaxAttempts  int       `json:"max_attempts"`
}
