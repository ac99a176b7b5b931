package amqp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog/log"

	"pair-trader/internal/execution"
)

const orderCommandsQueue = "Order_Commands"

// Publisher sends order commands to the broker. It satisfies
// execution.Submitter so the sequencer can hand it orders directly.
type Publisher struct {
	conn    *amqp091.Connection
	channel *amqp091.Channel
}

// NewPublisher connects to RabbitMQ and declares the order command queue.
func NewPublisher(amqpURI string) (*Publisher, error) {
	var conn *amqp091.Connection
	var err error
	for attempt := 1; attempt <= 10; attempt++ {
		conn, err = amqp091.Dial(amqpURI)
		if err == nil {
			break
		}
		log.Warn().Err(err).Int("attempt", attempt).Msg("publisher connect to rabbitmq failed, retrying")
		time.Sleep(2 * time.Second)
	}
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq after 10 attempts: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.Confirm(false); err != nil {
		log.Warn().Err(err).Msg("enable publisher confirms failed, continuing without")
	}

	if _, err := ch.QueueDeclare(orderCommandsQueue, true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare queue %s: %w", orderCommandsQueue, err)
	}

	log.Info().Str("queue", orderCommandsQueue).Msg("order command publisher connected")
	return &Publisher{conn: conn, channel: ch}, nil
}

// Submit publishes o as a SUBMIT_ORDER command. The error covers transport
// only; venue refusals come back on the execution event queue.
func (p *Publisher) Submit(o execution.Order) error {
	cmd := OrderCommand{
		Command:     CommandSubmitOrder,
		ClientID:    o.ClientID,
		Instrument:  o.Instrument,
		Side:        string(o.Side),
		Quantity:    o.Quantity,
		LimitPrice:  o.LimitPrice,
		TimeInForce: o.TimeInForce,
		ReduceOnly:  o.ReduceOnly,
	}
	body, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("marshal order command: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err = p.channel.PublishWithContext(ctx, "", orderCommandsQueue, false, false, amqp091.Publishing{
		ContentType: "application/json",
		Body:        body,
	})
	if err != nil {
		return fmt.Errorf("publish order command: %w", err)
	}

	log.Info().
		Str("clientId", o.ClientID).
		Str("instrument", o.Instrument).
		Str("side", string(o.Side)).
		Float64("quantity", o.Quantity).
		Float64("limitPrice", o.LimitPrice).
		Msg("order command published")
	return nil
}

// Close tears down the channel and connection.
func (p *Publisher) Close() {
	if p.channel != nil {
		p.channel.Close()
	}
	if p.conn != nil {
		p.conn.Close()
	}
}
