package notify

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/tbourn/persona-rag-backend/internal/platform/rabbitmq"
)

// AMQPSender publishes events as persistent JSON messages on a durable queue.
type AMQPSender struct {
	conn      *amqp.Connection
	queueName string
}

func NewAMQPSender(conn *amqp.Connection, queueName string) *AMQPSender {
	return &AMQPSender{conn: conn, queueName: queueName}
}

func (s *AMQPSender) Send(ctx context.Context, ev Event) error {
	ch, err := s.conn.Channel()
	if err != nil {
		return fmt.Errorf("open rabbitmq channel failed: %w", err)
	}
	defer ch.Close()

	if _, err := rabbitmq.DeclareQueue(ch, s.queueName); err != nil {
		return err
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal notify payload failed: %w", err)
	}

	if err := ch.PublishWithContext(
		ctx,
		"",
		s.queueName,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         payload,
			DeliveryMode: amqp.Persistent,
		},
	); err != nil {
		return fmt.Errorf("publish notify failed: %w", err)
	}
	return nil
}
