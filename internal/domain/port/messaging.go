package port

import (
	"context"

	"github.com/fiapx/fiapx-dataset-service/internal/domain/entity"
)

// StatusPublisher announces every run transition so the job's requester can
// follow extraction and packaging progress.
type StatusPublisher interface {
	PublishStatus(ctx context.Context, msg entity.DatasetStatusMessage) error
}

// DLQPublisher parks a job body that will never succeed. stage is the
// pipeline stage that rejected it, empty when the body could not be read.
type DLQPublisher interface {
	PublishToDLQ(ctx context.Context, body []byte, stage, reason string) error
}
