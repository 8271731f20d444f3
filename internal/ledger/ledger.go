// Package ledger records predictions against markets.
//
// The ledger is the only writer of market stake totals and the only minter
// of claim tickets. Side-effect ordering inside RecordPrediction is
// deliberate: the market totals are committed before the ticket-registry
// mint, which is the external call on this path that could re-enter. Value
// movement (staker → escrow) belongs to the engine, which wraps the ledger
// call in a bank journal so a downstream failure leaves no partial state.
package ledger

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"stakecast/internal/events"
	"stakecast/internal/registry"
	"stakecast/pkg/types"
)

// Meta carries swap-path context into the recorded event. Zero value for
// direct predictions.
type Meta struct {
	PoolID     string
	SwapAmount decimal.Decimal
}

// Ledger validates and records predictions.
type Ledger struct {
	registry *registry.Registry
	tickets  TicketRegistry
	log      *events.Log
	logger   *slog.Logger

	mu       sync.RWMutex
	minStake decimal.Decimal
}

// New creates a ledger with the given minimum stake floor.
func New(reg *registry.Registry, tickets TicketRegistry, minStake decimal.Decimal, log *events.Log, logger *slog.Logger) *Ledger {
	return &Ledger{
		registry: reg,
		tickets:  tickets,
		log:      log,
		logger:   logger.With("component", "ledger"),
		minStake: minStake,
	}
}

// MinStake returns the configured stake floor.
func (l *Ledger) MinStake() decimal.Decimal {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.minStake
}

// SetMinStake updates the stake floor. Called only from the engine's
// authorized admin path.
func (l *Ledger) SetMinStake(amount decimal.Decimal) error {
	if amount.Sign() <= 0 {
		return fmt.Errorf("min stake %s: %w", amount, types.ErrInvalidArgument)
	}
	l.mu.Lock()
	l.minStake = amount
	l.mu.Unlock()
	return nil
}

// RecordPrediction validates and records a direct prediction, returning the
// minted ticket id.
func (l *Ledger) RecordPrediction(marketID uint64, staker common.Address, outcome types.Outcome, amount decimal.Decimal) (uint64, error) {
	return l.record(marketID, staker, outcome, amount, Meta{})
}

// RecordSwapPrediction records a prediction derived from a swap, tagging the
// recorded event with the swap context.
func (l *Ledger) RecordSwapPrediction(marketID uint64, staker common.Address, outcome types.Outcome, amount decimal.Decimal, meta Meta) (uint64, error) {
	return l.record(marketID, staker, outcome, amount, meta)
}

func (l *Ledger) record(marketID uint64, staker common.Address, outcome types.Outcome, amount decimal.Decimal, meta Meta) (uint64, error) {
	if !outcome.Valid() {
		return 0, fmt.Errorf("outcome %d: %w", outcome, types.ErrInvalidArgument)
	}

	m, ok := l.registry.GetMarket(marketID)
	if !ok {
		return 0, fmt.Errorf("market %d: %w", marketID, types.ErrMarketDoesNotExist)
	}
	if m.Resolved {
		return 0, fmt.Errorf("market %d: %w", marketID, types.ErrMarketAlreadyResolved)
	}
	if amount.Sign() <= 0 {
		return 0, fmt.Errorf("market %d: %w", marketID, types.ErrAmountCannotBeZero)
	}
	if amount.LessThan(l.MinStake()) {
		return 0, fmt.Errorf("stake %s below floor %s: %w", amount, l.MinStake(), types.ErrStakeTooSmall)
	}

	// Totals first, then the mint: the ticket registry is the call on this
	// path that could re-enter, and it must observe committed totals.
	if err := l.registry.AddStake(marketID, outcome, amount); err != nil {
		return 0, err
	}
	ticketID := l.tickets.Mint(staker, marketID, outcome, amount)

	l.logger.Info("prediction recorded",
		"market", marketID,
		"ticket", ticketID,
		"staker", staker.Hex(),
		"outcome", outcome.String(),
		"amount", amount,
	)
	l.log.Append(events.TypePredictionRec, events.PredictionRecorded{
		User:       staker,
		PoolID:     meta.PoolID,
		MarketID:   marketID,
		TicketID:   ticketID,
		Outcome:    outcome.String(),
		Stake:      amount,
		SwapAmount: meta.SwapAmount,
	})
	return ticketID, nil
}
