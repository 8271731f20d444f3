package api

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"stakecast/internal/engine"
	"stakecast/internal/events"
	"stakecast/internal/hook"
	"stakecast/internal/rewards"
	"stakecast/pkg/types"
)

// Core is the engine surface the API serves.
type Core interface {
	CreateMarket(caller common.Address, id uint64, name, symbol string, threshold decimal.Decimal, expiration time.Time, feedID string) error
	Deposit(account common.Address, amount decimal.Decimal) error
	Predict(staker common.Address, marketID uint64, outcome types.Outcome, amount decimal.Decimal) (uint64, error)
	ExecuteSwap(req engine.SwapRequest) (types.SwapResult, hook.Result, error)
	ResolveMarket(ctx context.Context, marketID uint64) error
	ClaimReward(caller common.Address, ticketID uint64) (rewards.Payout, error)
	SetFeeConfiguration(caller, treasury common.Address, feeBps uint32) error
	SetMinStakeAmount(caller common.Address, amount decimal.Decimal) error
	SetMaxPriceStaleness(caller common.Address, d time.Duration) error
	GetMarket(id uint64) (types.Market, bool)
	ListMarkets() []types.Market
	GetTicket(id uint64) (types.Ticket, bool)
	Balance(account common.Address) decimal.Decimal
	MinStake() decimal.Decimal
	MaxPriceStaleness() time.Duration
	FeeConfig() types.FeeConfig
	Events() *events.Log
}

// MarketView is the wire representation of a market.
type MarketView struct {
	ID              uint64          `json:"id"`
	Name            string          `json:"name"`
	Symbol          string          `json:"symbol"`
	State           string          `json:"state"`
	PriceThreshold  decimal.Decimal `json:"price_threshold"`
	ExpirationTime  time.Time       `json:"expiration_time"`
	FeedID          string          `json:"feed_id"`
	TotalStakeBelow decimal.Decimal `json:"total_stake_below"`
	TotalStakeAbove decimal.Decimal `json:"total_stake_above"`
	TotalPool       decimal.Decimal `json:"total_pool"`
	WinningOutcome  string          `json:"winning_outcome,omitempty"`
	ResolutionPrice decimal.Decimal `json:"resolution_price,omitempty"`
	ResolvedAt      *time.Time      `json:"resolved_at,omitempty"`
}

func newMarketView(m types.Market, now time.Time) MarketView {
	v := MarketView{
		ID:              m.ID,
		Name:            m.Name,
		Symbol:          m.Symbol,
		State:           string(m.State(now)),
		PriceThreshold:  m.PriceThreshold,
		ExpirationTime:  m.ExpirationTime,
		FeedID:          m.FeedID,
		TotalStakeBelow: m.TotalStakeBelow,
		TotalStakeAbove: m.TotalStakeAbove,
		TotalPool:       m.TotalPool(),
	}
	if m.Resolved {
		v.WinningOutcome = m.WinningOutcome.String()
		v.ResolutionPrice = m.ResolutionPrice
		at := m.ResolvedAt
		v.ResolvedAt = &at
	}
	return v
}

// TicketView is the wire representation of a claim ticket.
type TicketView struct {
	ID       uint64          `json:"id"`
	MarketID uint64          `json:"market_id"`
	Owner    string          `json:"owner"`
	Outcome  string          `json:"outcome"`
	Amount   decimal.Decimal `json:"amount"`
	Claimed  bool            `json:"claimed"`
	MintedAt time.Time       `json:"minted_at"`
}

func newTicketView(tk types.Ticket) TicketView {
	return TicketView{
		ID:       tk.ID,
		MarketID: tk.MarketID,
		Owner:    tk.Owner.Hex(),
		Outcome:  tk.Outcome.String(),
		Amount:   tk.Amount,
		Claimed:  tk.Claimed,
		MintedAt: tk.MintedAt,
	}
}

type createMarketRequest struct {
	Caller         string    `json:"caller"`
	ID             uint64    `json:"id"`
	Name           string    `json:"name"`
	Symbol         string    `json:"symbol"`
	PriceThreshold string    `json:"price_threshold"`
	ExpirationTime time.Time `json:"expiration_time"`
	FeedID         string    `json:"feed_id"`
}

type depositRequest struct {
	Account string `json:"account"`
	Amount  string `json:"amount"`
}

type predictRequest struct {
	Caller   string `json:"caller"`
	MarketID uint64 `json:"market_id"`
	Outcome  string `json:"outcome"`
	Amount   string `json:"amount"`
}

type swapRequest struct {
	PoolID    string `json:"pool_id"`
	Trader    string `json:"trader"`
	TokenIn   string `json:"token_in"`
	TokenOut  string `json:"token_out"`
	AmountIn  string `json:"amount_in"`
	AmountOut string `json:"amount_out"`
	HookData  string `json:"hook_data,omitempty"` // 0x-prefixed hex
}

type claimRequest struct {
	Caller   string `json:"caller"`
	TicketID uint64 `json:"ticket_id"`
}

type setFeesRequest struct {
	Caller   string `json:"caller"`
	Treasury string `json:"treasury"`
	FeeBps   uint32 `json:"fee_bps"`
}

type setMinStakeRequest struct {
	Caller string `json:"caller"`
	Amount string `json:"amount"`
}

type setStalenessRequest struct {
	Caller       string `json:"caller"`
	MaxStaleness string `json:"max_staleness"` // Go duration, e.g. "60s"
}

type predictResponse struct {
	TicketID uint64 `json:"ticket_id"`
}

type swapResponse struct {
	Swap     types.SwapResult `json:"swap"`
	Recorded bool             `json:"recorded"`
	TicketID uint64           `json:"ticket_id,omitempty"`
	Stake    decimal.Decimal  `json:"stake,omitempty"`
}

type claimResponse struct {
	Principal decimal.Decimal `json:"principal"`
	Profit    decimal.Decimal `json:"profit"`
	Fee       decimal.Decimal `json:"fee"`
	Net       decimal.Decimal `json:"net"`
}
