package rabbitmq

import (
	"context"
	"errors"
	"sync"

	"weekly-snippets/internal/domain"
	"weekly-snippets/internal/infra/logging"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

type Dispatcher interface {
	Dispatch(ctx context.Context, operationID string) error
}

// Consumer dispatches operations announced on the queue. At most prefetch
// operations run concurrently.
type Consumer struct {
	channel    *amqp.Channel
	queue      string
	dispatcher Dispatcher
	prefetch   int
	log        *zerolog.Logger
}

func NewConsumer(conn *amqp.Connection, exchange, routingKey, queue string, prefetch int, dispatcher Dispatcher, logger *zerolog.Logger) (*Consumer, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, err
	}
	if prefetch <= 0 {
		prefetch = 1
	}
	l := logger.With().Str("component", "rabbitmq_consumer").Logger()
	c := &Consumer{
		channel:    ch,
		queue:      queue,
		dispatcher: dispatcher,
		prefetch:   prefetch,
		log:        &l,
	}

	if err := ch.ExchangeDeclare(exchange, "direct", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		return nil, err
	}
	if _, err := ch.QueueDeclare(
		queue,
		true,
		false,
		false,
		false,
		nil,
	); err != nil {
		_ = ch.Close()
		return nil, err
	}
	if err := ch.QueueBind(
		queue,
		routingKey,
		exchange,
		false,
		nil,
	); err != nil {
		_ = ch.Close()
		return nil, err
	}
	if err := ch.Qos(prefetch, 0, false); err != nil {
		_ = ch.Close()
		return nil, err
	}
	return c, nil
}

// Start consumes until ctx is done or the channel closes, then waits for
// in-flight dispatches.
func (c *Consumer) Start(ctx context.Context) error {
	msgs, err := c.channel.Consume(
		c.queue,
		"",
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return err
	}

	var wg sync.WaitGroup
	defer wg.Wait()
	sem := make(chan struct{}, c.prefetch)
	for {
		select {
		case <-ctx.Done():
			c.log.Info().Msg("consumer shutting down")
			return nil
		case msg, ok := <-msgs:
			if !ok {
				c.log.Warn().Msg("RabbitMQ channel closed")
				return nil
			}
			sem <- struct{}{}
			wg.Add(1)
			go func(msg amqp.Delivery) {
				defer func() { <-sem; wg.Done() }()
				c.handle(ctx, msg)
			}(msg)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, msg amqp.Delivery) {
	id, err := decodeMessage(msg.Body)
	if err != nil {
		c.log.Error().Err(err).Msg("dropping malformed message")
		_ = msg.Nack(false, false)
		return
	}
	err = c.dispatcher.Dispatch(logging.WithOperationID(ctx, id), id)
	switch {
	case err == nil:
		_ = msg.Ack(false)
	case errors.Is(err, domain.ErrNotFound):
		c.log.Warn().Str("operation_id", id).Msg("dropping message for unknown operation")
		_ = msg.Nack(false, false)
	default:
		c.log.Error().Err(err).Str("operation_id", id).Msg("dispatch failed, requeueing")
		_ = msg.Nack(false, true)
	}
}

func (c *Consumer) Close() error { return c.channel.Close() }
