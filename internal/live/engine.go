package live

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"pair-trader/internal/config"
	"pair-trader/internal/db"
	"pair-trader/internal/execution"
	"pair-trader/internal/indicator"
	"pair-trader/internal/ledger"
	"pair-trader/internal/market"
	"pair-trader/internal/portfolio"
	"pair-trader/internal/strategy"
	"pair-trader/internal/websocket"
)

const (
	// broadcastInterval is how often the full snapshot goes to clients.
	broadcastInterval = 1 * time.Second
	// statsInterval is how often the engine logs its own counters.
	statsInterval = 10 * time.Second
	// pivotHistoryLimit caps how many confirmed pivots each snapshot carries.
	pivotHistoryLimit = 50
	// defaultDecisionLimit bounds decision queries without an explicit limit.
	defaultDecisionLimit = 100
)

// Command types clients may send over the WebSocket.
const (
	cmdSnapshotRequest  = "SNAPSHOT_REQUEST"
	cmdDecisionsRequest = "DECISIONS_REQUEST"
)

// frame is the envelope for every outbound WebSocket message.
type frame struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// SequencerState is the order-cycle slice of a snapshot.
type SequencerState struct {
	State   execution.State       `json:"state"`
	Pending *execution.PendingBuy `json:"pending,omitempty"`
}

// Snapshot is the full dashboard state broadcast to WebSocket clients.
type Snapshot struct {
	AssetA     string                      `json:"assetA"`
	AssetB     string                      `json:"assetB"`
	Account    portfolio.Snapshot          `json:"account"`
	Sequencer  SequencerState              `json:"sequencer"`
	LatestRow  *ledger.Row                 `json:"latestRow,omitempty"`
	ShortHighs []indicator.PivotEvent      `json:"shortHighs"`
	ShortLows  []indicator.PivotEvent      `json:"shortLows"`
	LongHighs  []indicator.PivotEvent      `json:"longHighs"`
	LongLows   []indicator.PivotEvent      `json:"longLows"`
	DailyFills []execution.DailyFillRecord `json:"dailyFills"`
	BarsSeen   int64                       `json:"barsSeen"`
	LastBarTs  int64                       `json:"lastBarTs"`
	ProducedAt int64                       `json:"producedAt"`
}

// Engine runs a live trading session. It receives decoded broker events
// from the AMQP dispatcher, drives the same account, sequencer and strategy
// stack the backtest uses, and broadcasts dashboard snapshots.
//
// What: the live counterpart of the backtest runner.
// How: the dispatcher delivers events one at a time, so the strategy stack
// never sees concurrency; mu only serializes event handling against the
// snapshot broadcaster. The account mirrors broker truth via account sync
// messages, fills apply as they arrive, and bars flow straight into the
// strategy.
type Engine struct {
	cfg     config.Config
	account *portfolio.Account
	seq     *execution.Sequencer
	strat   *strategy.PairRatio
	hub     *websocket.Hub
	journal *db.Journal

	mu        sync.Mutex
	barsSeen  int64
	fillsSeen int64
	lastBarTs int64

	stopChannel chan struct{}
	wg          sync.WaitGroup
}

// NewEngine builds the live stack: a fresh account at the configured
// starting cash, the order sequencer submitting through sub, and the pair
// ratio strategy. journal may be nil.
func NewEngine(cfg config.Config, sub execution.Submitter, hub *websocket.Hub, journal *db.Journal) (*Engine, error) {
	account := portfolio.NewAccount(cfg.StartingCash)
	seq := execution.NewSequencer(sub, account, journal)
	strat, err := strategy.NewPairRatio(strategy.Config{
		AssetA:         cfg.AssetA,
		AssetB:         cfg.AssetB,
		SwingLeft:      cfg.SwingLeft,
		SwingRight:     cfg.SwingRight,
		SplitRatio:     cfg.SplitRatio,
		RatioThreshold: cfg.RatioThreshold,
	}, account, seq, journal)
	if err != nil {
		return nil, err
	}
	return &Engine{
		cfg:         cfg,
		account:     account,
		seq:         seq,
		strat:       strat,
		hub:         hub,
		journal:     journal,
		stopChannel: make(chan struct{}),
	}, nil
}

// Account exposes the engine's account, for wiring and tests.
func (e *Engine) Account() *portfolio.Account { return e.account }

// Start launches the broadcast loop.
func (e *Engine) Start() {
	e.wg.Add(1)
	go e.broadcastLoop()
	log.Info().
		Str("assetA", e.cfg.AssetA).
		Str("assetB", e.cfg.AssetB).
		Msg("live engine started")
}

// Stop shuts the broadcast loop down and waits for it.
func (e *Engine) Stop() {
	close(e.stopChannel)
	e.wg.Wait()
	log.Info().Msg("live engine stopped")
}

// OnBar marks the account on asset bars and hands every bar to the
// strategy. Ratio bars carry a synthetic instrument and never set marks.
func (e *Engine) OnBar(bar market.Bar) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !bar.Series.Ratio() {
		e.account.SetMark(bar.Instrument, bar.OHLC.C)
	}
	e.strat.HandleBar(bar)
	e.barsSeen++
	e.lastBarTs = bar.Timestamp
}

// OnFill applies the fill to the account before the sequencer sees it, the
// same contract the simulated venue follows.
func (e *Engine) OnFill(f execution.Fill) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.account.ApplyFill(f.Instrument, f.Side, f.Quantity, f.Price)
	e.seq.HandleFill(f)
	e.fillsSeen++
}

// OnReject forwards a venue rejection to the sequencer.
func (e *Engine) OnReject(r execution.Reject) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.seq.HandleReject(r)
}

// OnDeny forwards a venue denial to the sequencer.
func (e *Engine) OnDeny(d execution.Deny) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.seq.HandleDeny(d)
}

// OnAccount replaces the local balances with the broker's statement.
func (e *Engine) OnAccount(cash float64, positions map[string]float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.account.Sync(cash, positions)
}

// broadcastLoop pushes a snapshot every second, answers client commands and
// logs counters every ten seconds.
func (e *Engine) broadcastLoop() {
	defer e.wg.Done()

	broadcast := time.NewTicker(broadcastInterval)
	defer broadcast.Stop()
	stats := time.NewTicker(statsInterval)
	defer stats.Stop()

	for {
		select {
		case <-e.stopChannel:
			return

		case <-broadcast.C:
			e.broadcastSnapshot()

		case command := <-e.hub.Commands:
			e.processCommand(command)

		case <-stats.C:
			e.mu.Lock()
			bars, fills, lastTs := e.barsSeen, e.fillsSeen, e.lastBarTs
			e.mu.Unlock()
			log.Info().
				Int64("bars", bars).
				Int64("fills", fills).
				Int64("lastBarTs", lastTs).
				Float64("equity", e.account.TotalEquity()).
				Int("wsClients", e.hub.ClientCount()).
				Msg("live session stats")
		}
	}
}

func (e *Engine) broadcastSnapshot() {
	snap := e.buildSnapshot()
	body, err := json.Marshal(frame{Type: "SNAPSHOT", Data: snap})
	if err != nil {
		log.Error().Err(err).Msg("marshal snapshot")
		return
	}
	e.hub.Broadcast(body)
}

// buildSnapshot assembles the dashboard state. Pivot histories are trimmed
// to the newest entries so the frame stays small over long sessions.
func (e *Engine) buildSnapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	snap := Snapshot{
		AssetA:  e.cfg.AssetA,
		AssetB:  e.cfg.AssetB,
		Account: e.account.Snapshot(),
		Sequencer: SequencerState{
			State:   e.seq.State(),
			Pending: e.seq.Pending(),
		},
		ShortHighs: trimPivots(e.strat.SwingShort().HighHistory()),
		ShortLows:  trimPivots(e.strat.SwingShort().LowHistory()),
		LongHighs:  trimPivots(e.strat.SwingLong().HighHistory()),
		LongLows:   trimPivots(e.strat.SwingLong().LowHistory()),
		DailyFills: e.seq.DailyRecords(),
		BarsSeen:   e.barsSeen,
		LastBarTs:  e.lastBarTs,
		ProducedAt: time.Now().UnixMilli(),
	}
	if row, ok := e.strat.Ledger().Latest(); ok {
		snap.LatestRow = &row
	}
	return snap
}

func trimPivots(events []indicator.PivotEvent) []indicator.PivotEvent {
	if len(events) > pivotHistoryLimit {
		return events[len(events)-pivotHistoryLimit:]
	}
	return events
}

// processCommand interprets one client frame.
func (e *Engine) processCommand(command []byte) {
	var req struct {
		Type  string `json:"type"`
		Limit int    `json:"limit"`
	}
	if err := json.Unmarshal(command, &req); err != nil {
		log.Warn().Err(err).Msg("unparseable client command")
		return
	}

	switch req.Type {
	case cmdSnapshotRequest:
		e.broadcastSnapshot()

	case cmdDecisionsRequest:
		e.sendDecisions(req.Limit)

	default:
		log.Warn().Str("type", req.Type).Msg("unknown client command")
	}
}

// sendDecisions answers a decision history request from the journal.
func (e *Engine) sendDecisions(limit int) {
	if e.journal == nil {
		log.Warn().Msg("decision history requested but no journal is configured")
		return
	}
	if limit <= 0 {
		limit = defaultDecisionLimit
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	rows, err := e.journal.QueryDecisions(ctx, e.journal.RunID(), limit)
	if err != nil {
		log.Error().Err(err).Msg("query decisions")
		return
	}
	body, err := json.Marshal(frame{Type: "DECISIONS", Data: rows})
	if err != nil {
		log.Error().Err(err).Msg("marshal decisions")
		return
	}
	e.hub.Broadcast(body)
}
