package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// VideoJob is the queue message driving one pipeline run. The first four
// fields are fixed at enqueue time; Attempt counts completed tries and is
// bumped on each reschedule.
type VideoJob struct {
	ConversationID uint64 `json:"conversation_id"`
	BusinessID     uint64 `json:"business_id"`
	CustomerPhone  string `json:"customer_phone"`
	MessageText    string `json:"message_text"`
	Attempt        int    `json:"attempt"`
}

type Publisher struct {
	conn  *amqp.Connection
	ch    *amqp.Channel
	queue string
}

// NewPublisher declares the full topology:
//   - main queue, dead-lettering rejects to the DLQ
//   - retry queue, whose expired messages dead-letter back to the main queue
//     (per-message TTL gives us delayed redelivery for backoff)
//   - DLQ for poison messages
func NewPublisher(url, queue string) (*Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}

	if err := DeclareTopology(ch, queue); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}

	return &Publisher{conn: conn, ch: ch, queue: queue}, nil
}

// DeclareTopology sets up the main/retry/dlq queues. Publisher and worker
// both call it so either side can start first.
func DeclareTopology(ch *amqp.Channel, queue string) error {
	mainQ := queue
	retryQ := queue + ".retry"
	dlqQ := queue + ".dlq"

	if _, err := ch.QueueDeclare(dlqQ, true, false, false, false, nil); err != nil {
		return err
	}

	if _, err := ch.QueueDeclare(retryQ, true, false, false, false, amqp.Table{
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": mainQ,
	}); err != nil {
		return err
	}

	if _, err := ch.QueueDeclare(mainQ, true, false, false, false, amqp.Table{
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": dlqQ,
	}); err != nil {
		return err
	}
	return nil
}

func (p *Publisher) Close() error {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

// PublishJob enqueues a job for immediate processing.
func (p *Publisher) PublishJob(ctx context.Context, job VideoJob) error {
	return p.publish(ctx, p.queue, job, "")
}

// PublishRetry parks the job on the retry queue for delay, after which it
// dead-letters back onto the main queue.
func (p *Publisher) PublishRetry(ctx context.Context, job VideoJob, delay time.Duration) error {
	expiration := fmt.Sprintf("%d", delay.Milliseconds())
	return p.publish(ctx, p.queue+".retry", job, expiration)
}

func (p *Publisher) publish(ctx context.Context, routingKey string, job VideoJob, expiration string) error {
	body, err := json.Marshal(job)
	if err != nil {
		return err
	}

	cctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	return p.ch.PublishWithContext(cctx,
		"", // default exchange
		routingKey,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
			Timestamp:    time.Now(),
			Expiration:   expiration,
		},
	)
}
