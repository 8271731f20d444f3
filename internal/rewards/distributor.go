// Package rewards pays out winning tickets.
//
// Payout math: a winning ticket gets its principal back plus a pro-rata
// share of the losing pool, minus the protocol fee, which applies to profit
// only. The claimed flag is set before the payout transfer — the structural
// "effects before external interaction" rule — so a re-entrant or repeated
// claim fails on the already-claimed check instead of double-paying. If the
// transfer itself fails, the flag is restored and the ticket stays claimable.
package rewards

import (
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"stakecast/internal/events"
	"stakecast/internal/ledger"
	"stakecast/internal/registry"
	"stakecast/pkg/types"
)

// Transferer moves value between accounts. The engine backs it with the
// bank; tests stub it to exercise transfer failures.
type Transferer interface {
	Transfer(from, to common.Address, amount decimal.Decimal) error
}

// FeeProvider exposes the live fee configuration. Reads go through the
// provider so admin updates take effect without re-wiring the distributor.
type FeeProvider interface {
	FeeConfig() types.FeeConfig
}

// Distributor settles claims against resolved markets.
type Distributor struct {
	registry *registry.Registry
	tickets  ledger.TicketRegistry
	bank     Transferer
	escrow   common.Address
	fees     FeeProvider
	log      *events.Log
	logger   *slog.Logger
}

// New creates a distributor paying out of the given escrow account.
func New(reg *registry.Registry, tickets ledger.TicketRegistry, bank Transferer, escrow common.Address, fees FeeProvider, log *events.Log, logger *slog.Logger) *Distributor {
	return &Distributor{
		registry: reg,
		tickets:  tickets,
		bank:     bank,
		escrow:   escrow,
		fees:     fees,
		log:      log,
		logger:   logger.With("component", "rewards"),
	}
}

// Payout is the breakdown of a claim.
type Payout struct {
	Principal decimal.Decimal
	Profit    decimal.Decimal // gross share of the losing pool
	Fee       decimal.Decimal // protocol fee on profit
	Net       decimal.Decimal // principal + profit − fee
}

// payoutScale bounds the decimal places of a pro-rata share.
const payoutScale = 16

// Compute derives the payout for a winning ticket without side effects.
// The profit share is truncated at payoutScale, never rounded up: escrow
// holds exactly winPool + losePool, so the summed payouts must not exceed
// it or the last claim could never be paid. Truncation dust stays in escrow.
func Compute(amount, winPool, losePool decimal.Decimal, fees types.FeeConfig) (Payout, error) {
	if winPool.Sign() <= 0 {
		// Cannot happen for a winning ticket (its own stake is in the pool),
		// checked anyway so a corrupt pool never divides by zero.
		return Payout{}, fmt.Errorf("winning pool is empty: %w", types.ErrPayoutCalculation)
	}
	profit, _ := amount.Mul(losePool).QuoRem(winPool, payoutScale)
	fee := fees.FeeOn(profit)
	return Payout{
		Principal: amount,
		Profit:    profit,
		Fee:       fee,
		Net:       amount.Add(profit).Sub(fee),
	}, nil
}

// ClaimReward validates ownership and outcome, then pays the ticket out of
// escrow. Each ticket pays at most once.
func (d *Distributor) ClaimReward(caller common.Address, ticketID uint64) (Payout, error) {
	tk, ok := d.tickets.Get(ticketID)
	if !ok {
		return Payout{}, fmt.Errorf("ticket %d: %w", ticketID, types.ErrTicketDoesNotExist)
	}
	if tk.Owner != caller {
		return Payout{}, fmt.Errorf("ticket %d owned by %s: %w", ticketID, tk.Owner.Hex(), types.ErrCallerNotTicketOwner)
	}

	m, ok := d.registry.GetMarket(tk.MarketID)
	if !ok {
		return Payout{}, fmt.Errorf("market %d: %w", tk.MarketID, types.ErrMarketDoesNotExist)
	}
	if !m.Resolved {
		return Payout{}, fmt.Errorf("market %d: %w", tk.MarketID, types.ErrMarketNotYetResolved)
	}
	if tk.Claimed {
		return Payout{}, fmt.Errorf("ticket %d: %w", ticketID, types.ErrRewardAlreadyClaimed)
	}
	if tk.Outcome != m.WinningOutcome {
		return Payout{}, fmt.Errorf("ticket %d predicted %s, market resolved %s: %w",
			ticketID, tk.Outcome, m.WinningOutcome, types.ErrIncorrectPrediction)
	}

	payout, err := Compute(tk.Amount, m.PoolFor(m.WinningOutcome), m.PoolFor(losingSide(m.WinningOutcome)), d.fees.FeeConfig())
	if err != nil {
		return Payout{}, err
	}

	// Mark claimed before the external transfer.
	if err := d.tickets.SetClaimed(ticketID, true); err != nil {
		return Payout{}, err
	}

	if err := d.bank.Transfer(d.escrow, tk.Owner, payout.Net); err != nil {
		// Claimability must survive a failed payout.
		if restoreErr := d.tickets.SetClaimed(ticketID, false); restoreErr != nil {
			d.logger.Error("failed to restore claim flag", "ticket", ticketID, "error", restoreErr)
		}
		return Payout{}, fmt.Errorf("pay ticket %d: %v: %w", ticketID, err, types.ErrRewardTransferFailed)
	}

	if payout.Fee.Sign() > 0 {
		treasury := d.fees.FeeConfig().Treasury
		if err := d.bank.Transfer(d.escrow, treasury, payout.Fee); err != nil {
			// Unwind the payout so the claim can be retried whole. The refund
			// draws on the balance credited a moment ago and cannot fail.
			if refundErr := d.bank.Transfer(tk.Owner, d.escrow, payout.Net); refundErr != nil {
				d.logger.Error("failed to refund payout", "ticket", ticketID, "error", refundErr)
			}
			if restoreErr := d.tickets.SetClaimed(ticketID, false); restoreErr != nil {
				d.logger.Error("failed to restore claim flag", "ticket", ticketID, "error", restoreErr)
			}
			return Payout{}, fmt.Errorf("collect fee for ticket %d: %v: %w", ticketID, err, types.ErrRewardTransferFailed)
		}
	}

	d.logger.Info("reward claimed",
		"ticket", ticketID,
		"market", tk.MarketID,
		"user", tk.Owner.Hex(),
		"net", payout.Net,
		"fee", payout.Fee,
	)
	d.log.Append(events.TypeRewardClaimed, events.RewardClaimed{
		User:     tk.Owner,
		TicketID: ticketID,
		MarketID: tk.MarketID,
		Amount:   payout.Net,
		Fee:      payout.Fee,
	})
	return payout, nil
}

func losingSide(winning types.Outcome) types.Outcome {
	if winning == types.Above {
		return types.Below
	}
	return types.Above
}
