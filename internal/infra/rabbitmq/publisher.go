package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/fiapx/fiapx-dataset-service/internal/domain/entity"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Publisher owns the channel both outbound flows share.
type Publisher struct {
	channel  *amqp.Channel
	exchange string
}

func NewPublisher(conn *amqp.Connection, exchange string) (*Publisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open publisher channel: %w", err)
	}
	return &Publisher{channel: ch, exchange: exchange}, nil
}

func (p *Publisher) publish(ctx context.Context, exchange, key string, body []byte, headers amqp.Table) error {
	return p.channel.PublishWithContext(ctx, exchange, key, false, false, amqp.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Headers:      headers,
	})
}

// StatusPublisher sends run transitions to the dataset exchange. The routing
// key carries the status so a subscriber can bind dataset.status.failed alone.
type StatusPublisher struct {
	pub *Publisher
}

func NewStatusPublisher(pub *Publisher) *StatusPublisher {
	return &StatusPublisher{pub: pub}
}

func (sp *StatusPublisher) PublishStatus(ctx context.Context, msg entity.DatasetStatusMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode status: %w", err)
	}
	return sp.pub.publish(ctx, sp.pub.exchange, statusRoutingKey(msg.Status), body, statusHeaders(msg))
}

func statusRoutingKey(status entity.RunStatus) string {
	return StatusRoutingKey + "." + strings.ToLower(string(status))
}

func statusHeaders(msg entity.DatasetStatusMessage) amqp.Table {
	h := amqp.Table{
		"x-job-id":   msg.JobID.String(),
		"x-job-kind": string(msg.Kind),
	}
	if msg.FailedStage != "" {
		h["x-failed-stage"] = msg.FailedStage
	}
	return h
}

// DLQPublisher parks jobs that will never succeed on the dead-letter queue
// through the default exchange.
type DLQPublisher struct {
	pub   *Publisher
	queue string
}

func NewDLQPublisher(pub *Publisher, dlqQueue string) *DLQPublisher {
	return &DLQPublisher{pub: pub, queue: dlqQueue}
}

func (dp *DLQPublisher) PublishToDLQ(ctx context.Context, body []byte, stage, reason string) error {
	return dp.pub.publish(ctx, "", dp.queue, body, dlqHeaders(stage, reason))
}

func dlqHeaders(stage, reason string) amqp.Table {
	h := amqp.Table{"x-dlq-reason": reason}
	if stage != "" {
		h["x-dlq-stage"] = stage
	}
	return h
}
