package api

import (
	"time"

	"github.com/shopspring/decimal"

	"stakecast/internal/engine"
	"stakecast/pkg/types"
)

// Snapshot is the complete engine state served to clients, both on
// /api/snapshot and as the priming message of a WebSocket session.
type Snapshot struct {
	Timestamp time.Time       `json:"timestamp"`
	Markets   []MarketView    `json:"markets"`
	FeeConfig types.FeeConfig `json:"fee_config"`
	MinStake  decimal.Decimal `json:"min_stake"`
	Staleness string          `json:"max_price_staleness"`
	Escrow    decimal.Decimal `json:"escrow_balance"`
	Events    uint64          `json:"event_count"`
}

// BuildSnapshot aggregates current state from the core.
func BuildSnapshot(core Core) Snapshot {
	now := time.Now()
	markets := core.ListMarkets()
	views := make([]MarketView, 0, len(markets))
	for _, m := range markets {
		views = append(views, newMarketView(m, now))
	}

	all := core.Events().All()
	var lastSeq uint64
	if len(all) > 0 {
		lastSeq = all[len(all)-1].Seq
	}

	return Snapshot{
		Timestamp: now,
		Markets:   views,
		FeeConfig: core.FeeConfig(),
		MinStake:  core.MinStake(),
		Staleness: core.MaxPriceStaleness().String(),
		Escrow:    core.Balance(engine.EscrowAccount),
		Events:    lastSeq,
	}
}
