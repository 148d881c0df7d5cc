package queue

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// NeedsSyncPayload hands a lead whose CRM sync exhausted its retries to the
// out-of-band reconciler. Identifiers are hashed; the reconciler reads the
// row by lead id.
type NeedsSyncPayload struct {
	LeadID         string `json:"lead_id"`
	EmailHash      string `json:"email_hash"`
	Attempts       int    `json:"attempts"`
	IdempotencyKey string `json:"idempotency_key"`
}

type RabbitMQProducer struct {
	Conn *amqp.Connection
	Ch   *amqp.Channel
}

func NewProducer(conn *amqp.Connection, ch *amqp.Channel) *RabbitMQProducer {
	return &RabbitMQProducer{
		Conn: conn,
		Ch:   ch,
	}
}

func (p *RabbitMQProducer) PublishNeedsSync(ctx context.Context, payload NeedsSyncPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal needs-sync payload: %w", err)
	}

	err = p.Ch.PublishWithContext(ctx,
		ExchangeName,
		RoutingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
		},
	)
	if err != nil {
		return fmt.Errorf("publish needs-sync: %w", err)
	}

	return nil
}
