package notify

import (
	"context"
	"encoding/json"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// DefaultExchange is the fanout exchange notifications are published on.
const DefaultExchange = "mes_notifications_fanout"

// AMQPNotifier publishes messages on a RabbitMQ fanout exchange so that chat and mail
// gateways can consume them.
type AMQPNotifier struct {
	channel  *amqp.Channel
	exchange string
}

type envelope struct {
	Channel string    `json:"channel"`
	Message Message   `json:"message"`
	SentAt  time.Time `json:"sent_at"`
}

func NewAMQPNotifier(conn *amqp.Connection, exchange string) (*AMQPNotifier, error) {
	if exchange == "" {
		exchange = DefaultExchange
	}
	ch, err := conn.Channel()
	if err != nil {
		return nil, err
	}
	err = ch.ExchangeDeclare(
		exchange,
		"fanout",
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		ch.Close()
		return nil, err
	}
	return &AMQPNotifier{channel: ch, exchange: exchange}, nil
}

func (n *AMQPNotifier) Notify(ctx context.Context, channel string, msg Message) error {
	body, err := json.Marshal(envelope{Channel: channel, Message: msg, SentAt: time.Now().UTC()})
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return n.channel.PublishWithContext(
		ctx,
		n.exchange,
		"",
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Type:         msg.Event,
			Body:         body,
		})
}

func (n *AMQPNotifier) Close() error {
	return n.channel.Close()
}
