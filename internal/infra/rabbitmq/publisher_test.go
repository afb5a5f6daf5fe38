package rabbitmq

import (
	"testing"

	"github.com/fiapx/fiapx-dataset-service/internal/domain/entity"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
)

func TestStatusRoutingKey(t *testing.T) {
	assert.Equal(t, "dataset.status.completed", statusRoutingKey(entity.RunStatusCompleted))
	assert.Equal(t, "dataset.status.partial", statusRoutingKey(entity.RunStatusPartial))
	assert.Equal(t, "dataset.status.failed", statusRoutingKey(entity.RunStatusFailed))
}

func TestStatusHeaders(t *testing.T) {
	id := uuid.New()

	h := statusHeaders(entity.DatasetStatusMessage{JobID: id, Kind: entity.RunKindExtract, Status: entity.RunStatusCompleted})
	assert.Equal(t, amqp.Table{"x-job-id": id.String(), "x-job-kind": "extract"}, h)

	h = statusHeaders(entity.DatasetStatusMessage{JobID: id, Kind: entity.RunKindPackage, FailedStage: "classes"})
	assert.Equal(t, "classes", h["x-failed-stage"])
}

func TestDLQHeaders(t *testing.T) {
	assert.Equal(t, amqp.Table{"x-dlq-reason": "unmarshal_error: eof"}, dlqHeaders("", "unmarshal_error: eof"))
	assert.Equal(t, amqp.Table{"x-dlq-reason": "dup", "x-dlq-stage": "classes"}, dlqHeaders("classes", "dup"))
}
