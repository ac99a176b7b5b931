package execution

import "pair-trader/internal/market"

// TifGTC is the only time-in-force the engine submits: limit orders rest
// until filled or cancelled.
const TifGTC = "GTC"

// Intent is a desired order leg produced by the strategy. The sequencer
// turns intents into venue orders, assigning client ids and time in force.
type Intent struct {
	Instrument string
	Side       market.Side
	Quantity   float64
	LimitPrice float64
	ReduceOnly bool
}

// Order is a concrete limit order handed to a Submitter.
type Order struct {
	ClientID    string      `json:"clientId"`
	Instrument  string      `json:"instrument"`
	Side        market.Side `json:"side"`
	Quantity    float64     `json:"quantity"`
	LimitPrice  float64     `json:"limitPrice"`
	TimeInForce string      `json:"timeInForce"`
	ReduceOnly  bool        `json:"reduceOnly"`
}

// Fill reports a filled quantity at a price for one instrument.
// Timestamp is nanoseconds since the Unix epoch, UTC.
type Fill struct {
	Instrument string      `json:"instrument"`
	Side       market.Side `json:"side"`
	Quantity   float64     `json:"quantity"`
	Price      float64     `json:"price"`
	Timestamp  int64       `json:"timestamp"`
}

// Reject reports an order the venue refused after accepting the session.
type Reject struct {
	ClientID   string `json:"clientId"`
	Instrument string `json:"instrument"`
	Reason     string `json:"reason"`
}

// Deny reports an order refused outright, typically for an unknown
// instrument or malformed parameters.
type Deny struct {
	ClientID   string `json:"clientId"`
	Instrument string `json:"instrument"`
	Reason     string `json:"reason"`
}

// Submitter carries orders to an execution venue. Implementations return an
// error only for transport failures; business refusals come back as Reject
// or Deny events.
type Submitter interface {
	Submit(o Order) error
}
