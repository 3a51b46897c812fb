package rabbitmq

import (
	"context"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"meetmate-worker/config"
	"sync"
	"time"
)

// Publisher sends JSON messages to the configured exchange over a single
// channel. amqp channels are not safe for concurrent publishes, so calls
// are serialized.
type Publisher struct {
	mu  sync.Mutex
	ch  *amqp.Channel
	cfg *config.RabbitMQ
}

func NewPublisher(conn *amqp.Connection, cfg *config.RabbitMQ) (*Publisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, err
	}
	if err := declareExchange(ch, cfg); err != nil {
		ch.Close()
		return nil, err
	}
	return &Publisher{
		ch:  ch,
		cfg: cfg,
	}, nil
}

func (p *Publisher) Publish(ctx context.Context, routingKey string, body []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.ch.PublishWithContext(ctx, p.cfg.ExchangeName, routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    uuid.NewString(),
		Timestamp:    time.Now().UTC(),
		Body:         body,
	})
}

func (p *Publisher) Close() error {
	return p.ch.Close()
}
