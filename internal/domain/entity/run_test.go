package entity

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunLifecycle(t *testing.T) {
	run := NewRun(RunKindExtract, "device:0", 2)
	assert.Equal(t, RunStatusPending, run.Status)
	assert.True(t, run.CanRetry())

	run.MarkProcessing()
	assert.Equal(t, RunStatusProcessing, run.Status)
	assert.Equal(t, 1, run.Attempt)

	run.MarkFailed(&SourceUnavailableError{Source: DeviceSource(0), Err: errors.New("busy")})
	assert.Equal(t, RunStatusFailed, run.Status)
	assert.Equal(t, "extract", run.FailedStage)
	assert.True(t, run.CanRetry())

	run.MarkProcessing()
	run.MarkExtracted(&ExtractionResult{FrameCount: 7, Interrupted: true})
	assert.Equal(t, RunStatusPartial, run.Status)
	assert.Equal(t, 7, run.FrameCount)
	assert.Empty(t, run.FailedStage)
	assert.Empty(t, run.ErrorMessage)
	require.NotNil(t, run.CompletedAt)
	assert.False(t, run.CanRetry())
}

func TestRunMarkPackaged(t *testing.T) {
	run := NewRun(RunKindPackage, "media/images", 3)
	run.MarkProcessing()
	run.MarkPackaged("id/obj.zip", 12)

	assert.Equal(t, RunStatusCompleted, run.Status)
	assert.Equal(t, "id/obj.zip", run.ArchiveKey)
	assert.Equal(t, 12, run.PairCount)
}

func TestRunMarkFailedUntyped(t *testing.T) {
	run := NewRun(RunKindPackage, "d", 1)
	run.MarkFailed(errors.New("boom"))
	assert.Empty(t, run.FailedStage)
	assert.Equal(t, "boom", run.ErrorMessage)
}
