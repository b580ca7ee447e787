package risk

import (
	"hash/fnv"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/quantera/riskguard/internal/config"
	"github.com/quantera/riskguard/internal/ledger"
	"github.com/quantera/riskguard/internal/logger"
)

const trackerShardCount = 16

var decimalOne = decimal.NewFromInt(1)

// trackerShard guards one slice of the trade-keyed state map. Mutations for
// a given trade always go through its shard lock, so updates to a single
// trade are serialized while unrelated trades progress in parallel.
type trackerShard struct {
	mu     sync.Mutex
	states map[string]*TrailingStopState
}

// TrailingStopTracker owns per-trade trailing-stop state and decides whether
// a price observation should tighten the protective stop.
//
// An accepted adjustment is applied to the in-memory state immediately and
// marked pending. The caller submits it to the exchange and reports back via
// Commit or Rollback; until Commit, the target stop stays recorded so the
// next cycle can retry it.
type TrailingStopTracker struct {
	shards         [trackerShardCount]trackerShard
	levels         []config.TrailingLevel
	initialStopPct decimal.Decimal
	log            *logger.Logger
}

// NewTrailingStopTracker creates a tracker over the given level table.
// Levels must be ascending by trigger; Config.Validate enforces that.
func NewTrailingStopTracker(cfg *config.Config, log *logger.Logger) *TrailingStopTracker {
	t := &TrailingStopTracker{
		levels:         cfg.Levels,
		initialStopPct: cfg.InitialStopPct,
		log:            log,
	}
	for i := range t.shards {
		t.shards[i].states = make(map[string]*TrailingStopState)
	}
	return t
}

func (t *TrailingStopTracker) shardFor(tradeID string) *trackerShard {
	h := fnv.New32a()
	h.Write([]byte(tradeID))
	return &t.shards[h.Sum32()%trackerShardCount]
}

// Initialize registers trailing-stop state for a newly opened trade. The
// initial stop sits initialStopPct below entry for BUY, above for SELL.
// Re-initializing an already tracked trade re-arms it from scratch.
func (t *TrailingStopTracker) Initialize(tradeID string, entryPrice decimal.Decimal, side ledger.Side) (TrailingStopState, error) {
	if !side.IsValid() {
		return TrailingStopState{}, ErrInvalidSide
	}

	var initialStop decimal.Decimal
	if side == ledger.SideBuy {
		initialStop = entryPrice.Mul(decimalOne.Sub(t.initialStopPct))
	} else {
		initialStop = entryPrice.Mul(decimalOne.Add(t.initialStopPct))
	}

	state := &TrailingStopState{
		TradeID:      tradeID,
		Side:         side,
		EntryPrice:   entryPrice,
		CurrentPrice: entryPrice,
		HighestPrice: entryPrice,
		LowestPrice:  entryPrice,
		CurrentStop:  initialStop,
		prevStop:     initialStop,
		LastUpdate:   time.Now().UTC(),
	}

	shard := t.shardFor(tradeID)
	shard.mu.Lock()
	_, rearmed := shard.states[tradeID]
	shard.states[tradeID] = state
	shard.mu.Unlock()

	if rearmed && t.log != nil {
		t.log.Warning("Trailing stop for trade %s re-armed, previous state discarded", tradeID)
	}

	return *state, nil
}

// Update applies a price observation to a trade's trailing-stop state and
// returns a StopAdjustment when the stop should tighten.
//
// The returned adjustment is already applied in memory but marked pending;
// the caller must Commit after the exchange accepts the new stop, or
// Rollback if submission fails. While a pending adjustment awaits
// confirmation, further updates only produce a new adjustment if they
// improve on the pending target, so repeating the same price is a no-op.
func (t *TrailingStopTracker) Update(tradeID string, currentPrice decimal.Decimal) (*StopAdjustment, error) {
	shard := t.shardFor(tradeID)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	state, ok := shard.states[tradeID]
	if !ok {
		return nil, ErrUnknownTrade
	}

	state.CurrentPrice = currentPrice
	state.LastUpdate = time.Now().UTC()
	if currentPrice.GreaterThan(state.HighestPrice) {
		state.HighestPrice = currentPrice
	}
	if currentPrice.LessThan(state.LowestPrice) {
		state.LowestPrice = currentPrice
	}

	pnlPct := currentPrice.Sub(state.EntryPrice).Div(state.EntryPrice)
	if state.Side == ledger.SideSell {
		pnlPct = pnlPct.Neg()
	}

	// Highest level whose trigger the current profit has crossed. Levels are
	// ascending, so binary search for the first trigger above pnlPct.
	idx := sort.Search(len(t.levels), func(i int) bool {
		return t.levels[i].Trigger.GreaterThan(pnlPct)
	})
	if idx == 0 {
		return nil, nil // below the first trigger
	}
	level := t.levels[idx-1]
	appliedLevel := idx

	if appliedLevel <= state.TrailingLevel {
		return nil, nil
	}

	var candidate decimal.Decimal
	if state.Side == ledger.SideBuy {
		candidate = state.EntryPrice.Mul(decimalOne.Add(level.Stop))
	} else {
		candidate = state.EntryPrice.Mul(decimalOne.Sub(level.Stop))
	}

	// The candidate must strictly tighten the stop. When an earlier
	// adjustment is still pending, it must also beat that target, otherwise
	// the pending one is simply retried by the sweep.
	if !improves(state.Side, candidate, state.CurrentStop) {
		return nil, nil
	}
	if state.StopPending && !improves(state.Side, candidate, state.PendingStop) {
		return nil, nil
	}

	adj := &StopAdjustment{
		TradeID:      tradeID,
		OldStop:      state.CurrentStop,
		NewStop:      candidate,
		PnLPercent:   pnlPct,
		CurrentPrice: currentPrice,
	}

	if !state.StopPending {
		state.prevStop = state.CurrentStop
		state.prevLevel = state.TrailingLevel
	}
	state.CurrentStop = candidate
	state.TrailingLevel = appliedLevel
	state.StopPending = true
	state.PendingStop = candidate
	state.PendingLevel = appliedLevel

	return adj, nil
}

// improves reports whether candidate strictly tightens the stop relative to
// current, in the favorable direction for the side.
func improves(side ledger.Side, candidate, current decimal.Decimal) bool {
	if side == ledger.SideBuy {
		return candidate.GreaterThan(current)
	}
	return candidate.LessThan(current)
}

// Commit records that the exchange accepted a submitted stop. Only the
// target that is still pending is promoted to the confirmed stop; when a
// newer target has since superseded the accepted one, the accepted stop
// becomes the confirmed baseline and the newer target stays pending for the
// next sweep.
func (t *TrailingStopTracker) Commit(tradeID string, stop decimal.Decimal) error {
	shard := t.shardFor(tradeID)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	state, ok := shard.states[tradeID]
	if !ok {
		return ErrUnknownTrade
	}
	if !state.StopPending {
		return nil
	}

	if state.PendingStop.Equal(stop) {
		state.CurrentStop = state.PendingStop
		state.TrailingLevel = state.PendingLevel
		state.prevStop = state.PendingStop
		state.prevLevel = state.PendingLevel
		state.StopPending = false
		state.PendingStop = decimal.Zero
		state.PendingLevel = 0
		markBreakeven(state)
		return nil
	}

	if improves(state.Side, stop, state.prevStop) {
		state.prevStop = stop
	}
	if improves(state.Side, stop, state.CurrentStop) {
		state.CurrentStop = stop
	}
	markBreakeven(state)
	return nil
}

// markBreakeven flips the breakeven flag once the confirmed stop has reached
// the entry price. Caller holds the shard lock.
func markBreakeven(state *TrailingStopState) {
	if state.BreakevenTriggered {
		return
	}
	if state.Side == ledger.SideBuy && state.CurrentStop.GreaterThanOrEqual(state.EntryPrice) {
		state.BreakevenTriggered = true
	}
	if state.Side == ledger.SideSell && state.CurrentStop.LessThanOrEqual(state.EntryPrice) {
		state.BreakevenTriggered = true
	}
}

// Rollback reverts the in-memory stop to the last confirmed value after a
// failed exchange submission. The desired target stays recorded as pending
// so the next cycle can retry it.
func (t *TrailingStopTracker) Rollback(tradeID string) error {
	shard := t.shardFor(tradeID)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	state, ok := shard.states[tradeID]
	if !ok {
		return ErrUnknownTrade
	}
	if !state.StopPending {
		return nil
	}

	state.CurrentStop = state.prevStop
	state.TrailingLevel = state.prevLevel
	return nil
}

// Remove drops the tracked state for a closed trade.
func (t *TrailingStopTracker) Remove(tradeID string) {
	shard := t.shardFor(tradeID)
	shard.mu.Lock()
	delete(shard.states, tradeID)
	shard.mu.Unlock()
}

// Get returns a copy of the tracked state for a trade, if any.
func (t *TrailingStopTracker) Get(tradeID string) (TrailingStopState, bool) {
	shard := t.shardFor(tradeID)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	state, ok := shard.states[tradeID]
	if !ok {
		return TrailingStopState{}, false
	}
	return *state, true
}

// All returns copies of every tracked state.
func (t *TrailingStopTracker) All() []TrailingStopState {
	var out []TrailingStopState
	for i := range t.shards {
		shard := &t.shards[i]
		shard.mu.Lock()
		for _, state := range shard.states {
			out = append(out, *state)
		}
		shard.mu.Unlock()
	}
	return out
}

// Len returns the number of trades currently tracked.
func (t *TrailingStopTracker) Len() int {
	n := 0
	for i := range t.shards {
		shard := &t.shards[i]
		shard.mu.Lock()
		n += len(shard.states)
		shard.mu.Unlock()
	}
	return n
}
