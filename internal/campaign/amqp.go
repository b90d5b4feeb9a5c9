package campaign

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	// CampaignsExchange carries finished-job records for downstream
	// consumers (CRM sync, analytics).
	CampaignsExchange = "adforge.campaigns"

	routingKeyRecorded = "campaign.recorded"
)

// AMQPRecorder publishes campaign records to a RabbitMQ exchange.
type AMQPRecorder struct {
	conn *amqp.Connection
	ch   *amqp.Channel
}

// NewAMQPRecorder dials the broker and declares the campaigns exchange.
func NewAMQPRecorder(url string) (*AMQPRecorder, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("campaign: connect to broker: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("campaign: open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(CampaignsExchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("campaign: declare exchange: %w", err)
	}
	return &AMQPRecorder{conn: conn, ch: ch}, nil
}

// Record publishes one JSON document. Callers treat failures as
// best-effort: log and continue.
func (r *AMQPRecorder) Record(ctx context.Context, rec Record) error {
	body, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("campaign: encode record for %s: %w", rec.JobID, err)
	}
	err = r.ch.PublishWithContext(ctx,
		CampaignsExchange,
		routingKeyRecorded,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType: "application/json",
			Body:        body,
		})
	if err != nil {
		return fmt.Errorf("campaign: publish record for %s: %w", rec.JobID, err)
	}
	return nil
}

// Close releases the channel and connection.
func (r *AMQPRecorder) Close() {
	r.ch.Close()
	r.conn.Close()
}
