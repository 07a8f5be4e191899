package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
)

// OperationMessage asks a consumer to dispatch one queued operation.
type OperationMessage struct {
	OperationID string `json:"operationId"`
}

var errEmptyOperationID = errors.New("message without operation id")

func decodeMessage(body []byte) (string, error) {
	var m OperationMessage
	if err := json.Unmarshal(body, &m); err != nil {
		return "", err
	}
	if m.OperationID == "" {
		return "", errEmptyOperationID
	}
	return m.OperationID, nil
}

// Publisher hands operation ids to the broker. It satisfies the use case
// Enqueuer port.
type Publisher struct {
	mu         sync.Mutex
	channel    *amqp.Channel
	exchange   string
	routingKey string
}

func NewPublisher(conn *amqp.Connection, exchange, routingKey string) (*Publisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, err
	}

	err = ch.ExchangeDeclare(
		exchange,
		"direct",
		true, // durable
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		_ = ch.Close()
		return nil, err
	}

	return &Publisher{
		channel:    ch,
		exchange:   exchange,
		routingKey: routingKey,
	}, nil
}

func (p *Publisher) Enqueue(ctx context.Context, operationID string) error {
	body, err := json.Marshal(OperationMessage{OperationID: operationID})
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.channel.PublishWithContext(ctx,
		p.exchange,
		p.routingKey,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    operationID,
			Body:         body,
		},
	)
}

func (p *Publisher) Close() error { return p.channel.Close() }
