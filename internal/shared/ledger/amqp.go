package ledger

import (
	"context"
	"encoding/json"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	DefaultExchange   = "accounting_topic"
	DefaultRoutingKey = "journal.mes.entry"
)

// AMQPPoster publishes validated entries to the accounting service over RabbitMQ.
type AMQPPoster struct {
	channel    *amqp.Channel
	exchange   string
	routingKey string
}

func NewAMQPPoster(conn *amqp.Connection, exchange, routingKey string) (*AMQPPoster, error) {
	if exchange == "" {
		exchange = DefaultExchange
	}
	if routingKey == "" {
		routingKey = DefaultRoutingKey
	}
	ch, err := conn.Channel()
	if err != nil {
		return nil, err
	}
	err = ch.ExchangeDeclare(
		exchange,
		"topic",
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
	return &AMQPPoster{channel: ch, exchange: exchange, routingKey: routingKey}, nil
}

func (p *AMQPPoster) Post(ctx context.Context, entry Entry) error {
	if err := entry.Validate(); err != nil {
		return err
	}
	body, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return p.channel.PublishWithContext(
		ctx,
		p.exchange,
		p.routingKey,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    entry.Reference,
			Timestamp:    entry.Date,
			Body:         body,
		})
}

func (p *AMQPPoster) Close() error {
	return p.channel.Close()
}
