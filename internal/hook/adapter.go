// Package hook turns completed swaps into predictions.
//
// The adapter runs inside the same atomic unit as the swap it observes: the
// engine opens a bank journal, executes the swap leg, hands the result and
// the attached payload to the adapter, and commits only if the adapter
// succeeds (or skips). Any downstream failure is reported through a
// prediction_failed event carrying the original error kind and then
// re-raised, so the engine rolls the whole composite — swap included — back.
package hook

import (
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"stakecast/internal/events"
	"stakecast/internal/ledger"
	"stakecast/pkg/types"
)

// swapFeeDivisor derives the conviction stake: 1% of the swap output.
var swapFeeDivisor = decimal.NewFromInt(100)

// Forwarder is the ledger surface the adapter forwards into.
type Forwarder interface {
	RecordSwapPrediction(marketID uint64, staker common.Address, outcome types.Outcome, amount decimal.Decimal, meta ledger.Meta) (uint64, error)
	MinStake() decimal.Decimal
}

// CollectFunc moves the stake from the trader into escrow. The engine backs
// it with the journal of the surrounding composite transaction.
type CollectFunc func(from common.Address, amount decimal.Decimal) error

// Result reports what the adapter did with a swap.
type Result struct {
	Recorded bool            // false when the payload was empty or skipped
	TicketID uint64          // set when Recorded
	Stake    decimal.Decimal // set when Recorded
}

// Adapter decodes swap payloads and forwards derived stakes to the ledger.
type Adapter struct {
	ledger  Forwarder
	hookMin decimal.Decimal // fixed fallback stake when 1% is under the floor
	strict  bool            // abort on malformed payloads instead of skipping
	log     *events.Log
	logger  *slog.Logger
}

// New creates an adapter. strict=false is the permissive default: malformed
// payloads are assumed to belong to another consumer of the swap path and
// are skipped.
func New(led Forwarder, hookMin decimal.Decimal, strict bool, log *events.Log, logger *slog.Logger) *Adapter {
	return &Adapter{
		ledger:  led,
		hookMin: hookMin,
		strict:  strict,
		log:     log,
		logger:  logger.With("component", "hook"),
	}
}

// DeriveStake computes the conviction stake from a swap output: 1% of the
// output if that clears the ledger floor, otherwise the fixed minimum stake,
// otherwise (zero output) ErrInsufficientSwapAmount.
func (a *Adapter) DeriveStake(outputAmount decimal.Decimal) (decimal.Decimal, error) {
	fee := outputAmount.Div(swapFeeDivisor)
	if fee.GreaterThanOrEqual(a.ledger.MinStake()) {
		return fee, nil
	}
	if fee.Sign() > 0 {
		return a.hookMin, nil
	}
	return decimal.Decimal{}, fmt.Errorf("swap output %s: %w", outputAmount, types.ErrInsufficientSwapAmount)
}

// AfterSwap processes the payload attached to a completed swap. A nil error
// with Recorded=false means no prediction was requested (or the payload was
// skipped); a non-nil error means the caller must roll the swap back.
func (a *Adapter) AfterSwap(swap types.SwapResult, hookData []byte, collect CollectFunc) (Result, error) {
	dec := Decode(hookData)
	switch dec.Status {
	case StatusEmpty:
		return Result{}, nil
	case StatusMalformed:
		if a.strict {
			return Result{}, fmt.Errorf("pool %s: %w", swap.PoolID, dec.Reason)
		}
		a.logger.Debug("skipping payload for another consumer",
			"pool", swap.PoolID,
			"reason", dec.Reason,
		)
		return Result{}, nil
	}
	p := dec.Payload

	stake, err := a.DeriveStake(swap.AmountOut)
	if err != nil {
		a.emitFailure(p, swap, decimal.Decimal{}, err)
		return Result{}, err
	}

	// Funds first: move the stake inside the composite journal, so a
	// ledger failure below unwinds it together with the swap.
	if collect != nil {
		if err := collect(p.User, stake); err != nil {
			a.emitFailure(p, swap, stake, err)
			return Result{}, fmt.Errorf("collect stake %s: %w", stake, err)
		}
	}

	// The full derived stake is forwarded; the protocol fee is charged on
	// profit at claim time, never on the stake itself.
	ticketID, err := a.ledger.RecordSwapPrediction(p.MarketID, p.User, p.Outcome, stake, ledger.Meta{
		PoolID:     swap.PoolID,
		SwapAmount: swap.AmountOut,
	})
	if err != nil {
		// Preserve the downstream kind through the adapter boundary.
		a.emitFailure(p, swap, stake, err)
		return Result{}, fmt.Errorf("forward prediction to ledger: %w", err)
	}

	return Result{Recorded: true, TicketID: ticketID, Stake: stake}, nil
}

func (a *Adapter) emitFailure(p Payload, swap types.SwapResult, stake decimal.Decimal, cause error) {
	a.logger.Warn("swap prediction rejected",
		"pool", swap.PoolID,
		"market", p.MarketID,
		"user", p.User.Hex(),
		"code", types.Code(cause),
		"error", cause,
	)
	a.log.Append(events.TypePredictionFailed, events.PredictionFailed{
		User:       p.User,
		PoolID:     swap.PoolID,
		MarketID:   p.MarketID,
		Outcome:    p.Outcome.String(),
		Stake:      stake,
		SwapAmount: swap.AmountOut,
		Code:       types.Code(cause),
		Reason:     cause.Error(),
	})
}
