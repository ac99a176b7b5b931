package amqp

import (
	"fmt"
	"strings"
	"time"

	"github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog/log"

	"pair-trader/internal/market"
)

const (
	staleMessageThreshold = 3 * time.Second
	execEventsQueue       = "Execution_Events"
	accountInfoQueue      = "Account_Info"
	barQueuePrefix        = "Market_Data_Bars_"
)

// barQueues lists the per-series bar queue names in delivery priority order.
func barQueues() []string {
	series := market.AllSeries()
	queues := make([]string, 0, len(series))
	for _, s := range series {
		queues = append(queues, barQueuePrefix+string(s))
	}
	return queues
}

// Consumer receives bar, execution and account messages from RabbitMQ and
// feeds them into a MessageHandler.
type Consumer struct {
	conn    *amqp091.Connection
	handler *MessageHandler
}

// NewConsumer dials the broker with retries and binds the handler.
func NewConsumer(amqpURI string, handler *MessageHandler) (*Consumer, error) {
	var conn *amqp091.Connection
	var err error

	for i := 0; i < 10; i++ {
		conn, err = amqp091.Dial(amqpURI)
		if err == nil {
			break
		}
		log.Warn().Err(err).Int("attempt", i+1).Msg("rabbitmq connection failed")
		time.Sleep(2 * time.Second)
	}
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq after 10 attempts: %w", err)
	}

	return &Consumer{conn: conn, handler: handler}, nil
}

// StartConsumers registers a consumer per queue. Queues the producer has not
// declared yet are skipped rather than treated as fatal; they appear once
// the producer starts.
func (c *Consumer) StartConsumers() error {
	ch, err := c.conn.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}
	if err := ch.Qos(1, 0, false); err != nil {
		log.Warn().Err(err).Msg("failed to set channel qos")
	}

	consume := func(queueName string, enqueue func(amqp091.Delivery)) {
		var msgs <-chan amqp091.Delivery
		var err error

		for retry := 0; retry < 3; retry++ {
			msgs, err = ch.Consume(queueName, "", true, false, false, false, nil)
			if err == nil {
				break
			}
			if strings.Contains(err.Error(), "NOT_FOUND") {
				log.Warn().Str("queue", queueName).Msg("queue does not exist yet, skipping")
				return
			}
			if strings.Contains(err.Error(), "channel/connection is not open") {
				log.Warn().Str("queue", queueName).Int("attempt", retry+1).Msg("channel not ready, retrying")
				time.Sleep(time.Second)
				continue
			}
			log.Error().Err(err).Str("queue", queueName).Msg("failed to register consumer")
			return
		}
		if err != nil {
			log.Error().Err(err).Str("queue", queueName).Msg("failed to register consumer after retries")
			return
		}

		go func() {
			defer func() {
				if r := recover(); r != nil {
					log.Error().Interface("panic", r).Str("queue", queueName).Msg("consumer panicked")
				}
			}()
			for d := range msgs {
				enqueue(d)
			}
			log.Info().Str("queue", queueName).Msg("consumer shut down")
		}()
		log.Info().Str("queue", queueName).Msg("consumer started")
	}

	for _, queue := range barQueues() {
		consume(queue, c.handler.EnqueueBar)
	}
	consume(execEventsQueue, c.handler.EnqueueExec)
	consume(accountInfoQueue, c.handler.EnqueueAccount)
	return nil
}

// isStale reports whether a message's publish stamp is older than the
// threshold. producedAt is Unix milliseconds.
func isStale(producedAt int64) bool {
	return time.Now().UnixMilli()-producedAt > staleMessageThreshold.Milliseconds()
}

// DrainQueues consumes and discards every message currently sitting in the
// queues, clearing backlog from before this session started.
func (c *Consumer) DrainQueues(duration time.Duration) error {
	ch, err := c.conn.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}
	defer ch.Close()

	queues := append(barQueues(), execEventsQueue, accountInfoQueue)
	log.Info().Int("queues", len(queues)).Dur("limit", duration).Msg("draining queues")

	timeout := time.After(duration)
	total := 0
	for _, queueName := range queues {
		draining := true
		for draining {
			select {
			case <-timeout:
				log.Warn().Int("discarded", total).Msg("queue drain timed out")
				return nil
			default:
				_, ok, err := ch.Get(queueName, true)
				if err != nil {
					draining = false
					break
				}
				if !ok {
					draining = false
					break
				}
				total++
			}
		}
	}

	log.Info().Int("discarded", total).Msg("queues drained")
	return nil
}

// Close closes the consumer's connection.
func (c *Consumer) Close() {
	if c.conn != nil {
		c.conn.Close()
	}
}
