package events

import (
	"context"
	"encoding/json"
	"time"

	"sms-relay-server/pkg/logger"

	"github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// AMQPBridge republishes every broadcast event to a RabbitMQ topic exchange
// so out-of-process consumers can follow the relay. The event name doubles
// as the routing key. Delivery is best-effort: a publish failure is logged
// and the bridge moves on to the next event.
type AMQPBridge struct {
	conn     *amqp091.Connection
	exchange string
	sub      *Subscription
}

// NewAMQPBridge connects, declares the exchange, and subscribes to the
// broadcaster.
func NewAMQPBridge(url, exchange string, broadcaster *Broadcaster) (*AMQPBridge, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}
	defer ch.Close()

	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, err
	}

	return &AMQPBridge{
		conn:     conn,
		exchange: exchange,
		sub:      broadcaster.Subscribe(256),
	}, nil
}

// Run pumps broadcast events to the exchange until ctx is cancelled.
func (b *AMQPBridge) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-b.sub.C:
			if !ok {
				return
			}
			if err := b.publish(ctx, evt); err != nil {
				logger.Warn("AMQP publish failed",
					zap.String("event", evt.Name),
					zap.String("event_id", evt.ID),
					zap.Error(err))
			}
		}
	}
}

func (b *AMQPBridge) publish(ctx context.Context, evt Event) error {
	body, err := json.Marshal(evt)
	if err != nil {
		return err
	}

	ch, err := b.conn.Channel()
	if err != nil {
		return err
	}
	defer ch.Close()

	pubCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	return ch.PublishWithContext(pubCtx, b.exchange, evt.Name, false, false, amqp091.Publishing{
		ContentType: "application/json",
		MessageId:   evt.ID,
		Timestamp:   evt.OccurredAt,
		Body:        body,
	})
}

// Close detaches from the broadcaster and closes the connection.
func (b *AMQPBridge) Close() error {
	b.sub.Close()
	return b.conn.Close()
}
