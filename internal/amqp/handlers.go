package amqp

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog/log"

	"pair-trader/internal/execution"
	"pair-trader/internal/market"
)

// Engine receives decoded events from the dispatch loop. Calls arrive one
// at a time from a single goroutine, so implementations never see
// concurrent events.
type Engine interface {
	OnBar(bar market.Bar)
	OnFill(f execution.Fill)
	OnReject(r execution.Reject)
	OnDeny(d execution.Deny)
	OnAccount(cash float64, positions map[string]float64)
}

// MessageHandler buffers raw deliveries per message class and funnels them
// through one dispatch goroutine. Queue consumers enqueue without blocking;
// the single dispatcher keeps the engine's one-event-at-a-time contract.
type MessageHandler struct {
	engine Engine

	barChannel     chan amqp091.Delivery
	execChannel    chan amqp091.Delivery
	accountChannel chan amqp091.Delivery
	stopChannel    chan struct{}
	wg             sync.WaitGroup
}

// NewMessageHandler creates a handler dispatching into engine.
func NewMessageHandler(engine Engine) *MessageHandler {
	return &MessageHandler{
		engine:         engine,
		barChannel:     make(chan amqp091.Delivery, 1000),
		execChannel:    make(chan amqp091.Delivery, 500),
		accountChannel: make(chan amqp091.Delivery, 10),
		stopChannel:    make(chan struct{}),
	}
}

// Start launches the dispatch goroutine.
func (mh *MessageHandler) Start() {
	mh.wg.Add(1)
	go mh.dispatcher()
	log.Info().Msg("message dispatcher started")
}

// Stop shuts the dispatcher down and waits for it to finish.
func (mh *MessageHandler) Stop() {
	close(mh.stopChannel)
	mh.wg.Wait()
	log.Info().Msg("message dispatcher stopped")
}

// EnqueueBar hands a bar delivery to the dispatcher. A full buffer drops
// the message; the engine rebuilds from the next bar rather than stalling
// the consumer.
func (mh *MessageHandler) EnqueueBar(delivery amqp091.Delivery) {
	select {
	case mh.barChannel <- delivery:
	case <-mh.stopChannel:
	default:
		log.Warn().Str("routingKey", delivery.RoutingKey).Msg("bar channel full, discarding message")
	}
}

// EnqueueExec hands an execution event delivery to the dispatcher.
func (mh *MessageHandler) EnqueueExec(delivery amqp091.Delivery) {
	select {
	case mh.execChannel <- delivery:
	case <-mh.stopChannel:
	default:
		log.Warn().Str("routingKey", delivery.RoutingKey).Msg("exec channel full, discarding message")
	}
}

// EnqueueAccount hands an account snapshot delivery to the dispatcher.
func (mh *MessageHandler) EnqueueAccount(delivery amqp091.Delivery) {
	select {
	case mh.accountChannel <- delivery:
	case <-mh.stopChannel:
	default:
		log.Warn().Str("routingKey", delivery.RoutingKey).Msg("account channel full, discarding message")
	}
}

// dispatcher drains all three buffers in one goroutine. Within a class
// messages keep queue order; execution events and account snapshots
// interleave with bars on arrival.
func (mh *MessageHandler) dispatcher() {
	defer mh.wg.Done()

	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	bars, execs, accounts := 0, 0, 0
	for {
		select {
		case <-mh.stopChannel:
			log.Info().Int("bars", bars).Int("execEvents", execs).Msg("dispatcher stopping")
			return

		case delivery := <-mh.barChannel:
			mh.processBar(delivery)
			bars++

		case delivery := <-mh.execChannel:
			mh.processExec(delivery)
			execs++

		case delivery := <-mh.accountChannel:
			mh.processAccount(delivery)
			accounts++

		case <-ticker.C:
			log.Debug().
				Int("bars", bars).
				Int("execEvents", execs).
				Int("accounts", accounts).
				Msg("dispatch stats for last 10s")
			bars, execs, accounts = 0, 0, 0
		}
	}
}

func (mh *MessageHandler) processBar(delivery amqp091.Delivery) {
	var msg BarMessage
	if err := json.Unmarshal(delivery.Body, &msg); err != nil {
		log.Error().Err(err).Msg("unmarshal bar message")
		return
	}
	if isStale(msg.ProducedAt) {
		return
	}
	series, err := market.ParseSeries(msg.Series)
	if err != nil {
		log.Error().Err(err).Str("series", msg.Series).Msg("bar message with unknown series")
		return
	}

	mh.engine.OnBar(market.Bar{
		Timestamp:  msg.Timestamp,
		Instrument: msg.Instrument,
		Series:     series,
		OHLC:       market.OHLC{O: msg.Open, H: msg.High, L: msg.Low, C: msg.Close},
		Volume:     msg.Volume,
	})
}

func (mh *MessageHandler) processExec(delivery amqp091.Delivery) {
	var msg ExecEventMessage
	if err := json.Unmarshal(delivery.Body, &msg); err != nil {
		log.Error().Err(err).Msg("unmarshal exec event")
		return
	}

	// Execution events are never dropped for staleness: a fill is a fact
	// about the account no matter how late it arrives.
	switch msg.Type {
	case ExecEventFill:
		mh.engine.OnFill(execution.Fill{
			Instrument: msg.Instrument,
			Side:       market.Side(msg.Side),
			Quantity:   msg.Quantity,
			Price:      msg.Price,
			Timestamp:  msg.Timestamp,
		})
	case ExecEventReject:
		mh.engine.OnReject(execution.Reject{ClientID: msg.ClientID, Instrument: msg.Instrument, Reason: msg.Reason})
	case ExecEventDeny:
		mh.engine.OnDeny(execution.Deny{ClientID: msg.ClientID, Instrument: msg.Instrument, Reason: msg.Reason})
	default:
		log.Warn().Str("type", msg.Type).Msg("unknown exec event type")
	}
}

func (mh *MessageHandler) processAccount(delivery amqp091.Delivery) {
	var msg AccountMessage
	if err := json.Unmarshal(delivery.Body, &msg); err != nil {
		log.Error().Err(err).Msg("unmarshal account message")
		return
	}
	if isStale(msg.ProducedAt) {
		return
	}
	mh.engine.OnAccount(msg.Cash, msg.Positions)
}
