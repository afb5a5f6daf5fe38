package entity

import (
	"time"

	"github.com/google/uuid"
)

type RunStatus string

const (
	RunStatusPending    RunStatus = "PENDING"
	RunStatusProcessing RunStatus = "PROCESSING"
	RunStatusCompleted  RunStatus = "COMPLETED"
	RunStatusPartial    RunStatus = "PARTIAL"
	RunStatusFailed     RunStatus = "FAILED"
)

type RunKind string

const (
	RunKindExtract RunKind = "extract"
	RunKindPackage RunKind = "package"
)

// Run is one worker-driven pipeline execution.
type Run struct {
	ID           uuid.UUID
	Kind         RunKind
	Reference    string
	Directory    string
	Status       RunStatus
	FrameCount   int
	PairCount    int
	ArchiveKey   string
	Attempt      int
	MaxAttempts  int
	FailedStage  string
	ErrorMessage string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	CompletedAt  *time.Time
}

func NewRun(kind RunKind, reference string, maxAttempts int) *Run {
	now := time.Now().UTC()
	return &Run{
		ID:          uuid.New(),
		Kind:        kind,
		Reference:   reference,
		Status:      RunStatusPending,
		MaxAttempts: maxAttempts,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func (r *Run) MarkProcessing() {
	r.Status = RunStatusProcessing
	r.Attempt++
	r.UpdatedAt = time.Now().UTC()
}

func (r *Run) MarkExtracted(res *ExtractionResult) {
	r.FrameCount = res.FrameCount
	if res.Interrupted {
		r.finish(RunStatusPartial)
		return
	}
	r.finish(RunStatusCompleted)
}

func (r *Run) MarkPackaged(archiveKey string, pairs int) {
	r.ArchiveKey = archiveKey
	r.PairCount = pairs
	r.finish(RunStatusCompleted)
}

func (r *Run) MarkFailed(err error) {
	r.Status = RunStatusFailed
	r.ErrorMessage = err.Error()
	if stage, ok := StageOf(err); ok {
		r.FailedStage = string(stage)
	}
	r.UpdatedAt = time.Now().UTC()
}

func (r *Run) CanRetry() bool {
	return r.Attempt < r.MaxAttempts
}

func (r *Run) finish(status RunStatus) {
	now := time.Now().UTC()
	r.Status = status
	r.ErrorMessage = ""
	r.FailedStage = ""
	r.UpdatedAt = now
	r.CompletedAt = &now
}
