package risk

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/quantera/riskguard/internal/ledger"
)

var (
	// ErrUnknownTrade is returned when a price update arrives for a trade
	// with no tracked trailing-stop state. Recoverable: the trade may have
	// closed between the caller's read and the update.
	ErrUnknownTrade = errors.New("no trailing stop state for trade")

	// ErrInvalidSide is returned when a trailing stop is initialized with a
	// side other than BUY or SELL.
	ErrInvalidSide = errors.New("invalid trade side")
)

// TrailingStopState is the per-trade trailing-stop state machine. One entry
// exists per open trade, created on initialization and removed when the trade
// closes. CurrentStop only ever tightens: up for BUY, down for SELL.
type TrailingStopState struct {
	TradeID      string
	Side         ledger.Side
	EntryPrice   decimal.Decimal
	CurrentPrice decimal.Decimal

	// Extreme favorable/unfavorable prices observed since entry.
	HighestPrice decimal.Decimal
	LowestPrice  decimal.Decimal

	// CurrentStop is the protective stop currently claimed by the in-memory
	// view. It equals the exchange-side stop except for the window between
	// an accepted adjustment and its confirmed submission.
	CurrentStop decimal.Decimal

	// TrailingLevel counts applied rows of the level table, starting at 0
	// before any row has fired. It never decreases.
	TrailingLevel int

	// BreakevenTriggered is set once the stop first reaches the entry price.
	BreakevenTriggered bool

	// StopPending marks an adjustment whose exchange submission has not
	// succeeded yet. PendingStop/PendingLevel hold the desired target, kept
	// visible so an operator can see the unfulfilled stop.
	StopPending  bool
	PendingStop  decimal.Decimal
	PendingLevel int

	LastUpdate time.Time

	// Previous confirmed values, restored when a submission fails.
	prevStop  decimal.Decimal
	prevLevel int
}

// StopAdjustment is a stop-tightening request emitted by the tracker for the
// caller to submit to the order-execution collaborator.
type StopAdjustment struct {
	TradeID      string
	OldStop      decimal.Decimal
	NewStop      decimal.Decimal
	PnLPercent   decimal.Decimal
	CurrentPrice decimal.Decimal
}

// RiskMetrics is the portfolio-wide risk snapshot rebuilt each aggregation
// cycle. Instances are immutable once published; readers receive the whole
// struct by value.
type RiskMetrics struct {
	TotalExposure decimal.Decimal
	DailyPnL      decimal.Decimal
	MaxDrawdown   decimal.Decimal
	Equity        decimal.Decimal
	WinRate       float64
	ProfitFactor  float64
	ActiveTrades  int
	RiskScore     float64
	UpdatedAt     time.Time
}

// ProposedTrade is a prospective trade submitted to the risk gate by the
// signal pipeline.
type ProposedTrade struct {
	Symbol     string
	Side       ledger.Side
	EntryPrice decimal.Decimal
	Quantity   decimal.Decimal
}

// Value returns the notional value of the proposal.
func (p ProposedTrade) Value() decimal.Decimal {
	return p.EntryPrice.Mul(p.Quantity)
}
