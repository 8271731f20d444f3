// Package types defines shared data structures used across all packages.
//
// This package is the common vocabulary for the settlement engine — markets,
// prediction tickets, fee configuration, oracle readings, and the closed set
// of error kinds every operation can fail with. It has no dependencies on
// internal packages, so it can be imported by any layer.
package types

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// ————————————————————————————————————————————————————————————————————————
// Core enums
// ————————————————————————————————————————————————————————————————————————

// Outcome is the direction of a prediction relative to the market threshold.
// The wire encoding (one byte, 0 or 1) matches the hook payload format.
type Outcome uint8

const (
	Below Outcome = 0 // settlement price strictly under the threshold
	Above Outcome = 1 // settlement price at or over the threshold
)

// Valid reports whether o is one of the two defined outcomes.
func (o Outcome) Valid() bool {
	return o == Below || o == Above
}

func (o Outcome) String() string {
	switch o {
	case Below:
		return "BELOW"
	case Above:
		return "ABOVE"
	default:
		return "UNKNOWN"
	}
}

// MarketState is the lifecycle state of a market. Expired is derived at read
// time from the expiration timestamp; only Open and Resolved are stored.
type MarketState string

const (
	StateOpen     MarketState = "OPEN"     // accepting predictions
	StateExpired  MarketState = "EXPIRED"  // past expiration, awaiting resolution
	StateResolved MarketState = "RESOLVED" // settled, terminal
)

// ————————————————————————————————————————————————————————————————————————
// Market
// ————————————————————————————————————————————————————————————————————————

// Market is a single yes/no price prediction: will the feed price be at or
// above PriceThreshold when the market is resolved after ExpirationTime?
//
// Stake totals are maintained by the ledger and are monotonically
// non-decreasing until resolution. WinningOutcome and ResolutionPrice are
// written exactly once by the resolver.
type Market struct {
	ID             uint64          `json:"id"`
	Name           string          `json:"name"`
	Symbol         string          `json:"symbol"` // asset symbol, e.g. "ETH"
	PriceThreshold decimal.Decimal `json:"price_threshold"`
	ExpirationTime time.Time       `json:"expiration_time"`
	FeedID         string          `json:"feed_id"` // opaque handle to the oracle price series
	CreatedAt      time.Time       `json:"created_at"`

	TotalStakeBelow decimal.Decimal `json:"total_stake_below"`
	TotalStakeAbove decimal.Decimal `json:"total_stake_above"`

	Resolved        bool            `json:"resolved"`
	WinningOutcome  Outcome         `json:"winning_outcome"`
	ResolutionPrice decimal.Decimal `json:"resolution_price"`
	ResolvedAt      time.Time       `json:"resolved_at"`
}

// State derives the lifecycle state at the given instant.
// Open → Expired is a pure function of time; Resolved is sticky.
func (m *Market) State(now time.Time) MarketState {
	if m.Resolved {
		return StateResolved
	}
	// Expired from the expiration instant onward, matching when the
	// resolver will accept the market.
	if !now.Before(m.ExpirationTime) {
		return StateExpired
	}
	return StateOpen
}

// TotalPool returns the combined stake on both sides.
func (m *Market) TotalPool() decimal.Decimal {
	return m.TotalStakeBelow.Add(m.TotalStakeAbove)
}

// PoolFor returns the stake total on the given side.
func (m *Market) PoolFor(o Outcome) decimal.Decimal {
	if o == Above {
		return m.TotalStakeAbove
	}
	return m.TotalStakeBelow
}

// ————————————————————————————————————————————————————————————————————————
// Prediction tickets
// ————————————————————————————————————————————————————————————————————————

// Ticket is the record of one staker's conviction: an outcome choice and a
// stake amount against one market. Minted exactly once by the ledger;
// Claimed flips exactly once by the reward distributor.
type Ticket struct {
	ID       uint64          `json:"id"` // monotonic across the ledger
	MarketID uint64          `json:"market_id"`
	Owner    common.Address  `json:"owner"`
	Outcome  Outcome         `json:"outcome"`
	Amount   decimal.Decimal `json:"amount"` // conviction stake, > 0
	Claimed  bool            `json:"claimed"`
	MintedAt time.Time       `json:"minted_at"`
}

// ————————————————————————————————————————————————————————————————————————
// Fees & oracle
// ————————————————————————————————————————————————————————————————————————

// BpsDenominator is the basis-point scale: 10000 bps = 100%.
const BpsDenominator = 10000

// FeeConfig is the protocol fee setting read by the reward distributor and
// the swap hook. The fee applies to a winner's profit only, never principal.
// Mutated only through the engine's authorized admin path.
type FeeConfig struct {
	Treasury common.Address `json:"treasury"`
	FeeBps   uint32         `json:"fee_bps"` // 0–10000
}

// FeeOn returns the protocol fee for the given profit amount.
func (f FeeConfig) FeeOn(profit decimal.Decimal) decimal.Decimal {
	if f.FeeBps == 0 || profit.Sign() <= 0 {
		return decimal.Zero
	}
	return profit.Mul(decimal.NewFromInt(int64(f.FeeBps))).Div(decimal.NewFromInt(BpsDenominator))
}

// OracleReading is a single price observation fetched on demand. It is never
// persisted — only the derived resolution price and outcome survive into the
// market record. Price and Exponent follow the feed's fixed-point encoding:
// real price = Price × 10^Exponent.
type OracleReading struct {
	Price       int64     `json:"price"`
	Confidence  uint64    `json:"confidence"`
	Exponent    int32     `json:"exponent"`
	PublishTime time.Time `json:"publish_time"`
}

// Decimal converts the fixed-point reading into decimal units.
func (r OracleReading) Decimal() decimal.Decimal {
	return decimal.New(r.Price, r.Exponent)
}

// ————————————————————————————————————————————————————————————————————————
// Swaps
// ————————————————————————————————————————————————————————————————————————

// SwapResult describes a completed swap leg: what the trader paid and what
// they received. The hook adapter derives a conviction stake from AmountOut
// (the side the trader received).
type SwapResult struct {
	PoolID    string          `json:"pool_id"`
	Trader    common.Address  `json:"trader"`
	TokenIn   string          `json:"token_in"`
	TokenOut  string          `json:"token_out"`
	AmountIn  decimal.Decimal `json:"amount_in"`
	AmountOut decimal.Decimal `json:"amount_out"`
	At        time.Time       `json:"at"`
}
