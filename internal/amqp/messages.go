package amqp

// BarMessage is one completed bar as published by the data producer. The
// series tag names which of the six streams the bar belongs to; ProducedAt
// is the publish time in Unix milliseconds, used for staleness checks.
type BarMessage struct {
	Series     string  `json:"series"`
	Instrument string  `json:"instrument"`
	Timestamp  int64   `json:"timestamp"`
	Open       float64 `json:"open"`
	High       float64 `json:"high"`
	Low        float64 `json:"low"`
	Close      float64 `json:"close"`
	Volume     float64 `json:"volume"`
	ProducedAt int64   `json:"producedAt"`
}

// ExecEventMessage carries fill, reject and deny events back from the
// broker gateway. Only fills populate side, quantity and price.
type ExecEventMessage struct {
	Type       string  `json:"type"`
	ClientID   string  `json:"clientId,omitempty"`
	Instrument string  `json:"instrument"`
	Side       string  `json:"side,omitempty"`
	Quantity   float64 `json:"quantity,omitempty"`
	Price      float64 `json:"price,omitempty"`
	Timestamp  int64   `json:"timestamp,omitempty"`
	Reason     string  `json:"reason,omitempty"`
	ProducedAt int64   `json:"producedAt"`
}

// Exec event types.
const (
	ExecEventFill   = "FILL"
	ExecEventReject = "REJECT"
	ExecEventDeny   = "DENY"
)

// AccountMessage mirrors the broker's authoritative account snapshot.
type AccountMessage struct {
	Cash       float64            `json:"cash"`
	Positions  map[string]float64 `json:"positions"`
	ProducedAt int64              `json:"producedAt"`
}

// OrderCommand is the payload the broker gateway consumes from the order
// queue. It mirrors the engine's limit order plus a command discriminator.
type OrderCommand struct {
	Command     string  `json:"command"`
	ClientID    string  `json:"clientId"`
	Instrument  string  `json:"instrument"`
	Side        string  `json:"side"`
	Quantity    float64 `json:"quantity"`
	LimitPrice  float64 `json:"limitPrice"`
	TimeInForce string  `json:"timeInForce"`
	ReduceOnly  bool    `json:"reduceOnly"`
}

// CommandSubmitOrder asks the gateway to place a new limit order.
const CommandSubmitOrder = "SUBMIT_ORDER"
