// Package engine wires the settlement components together and owns the
// transaction boundary.
//
// Every mutating call is serialized under one engine lock and composed out of
// the domain components plus a bank journal. The journal gives composite
// calls all-or-nothing semantics: ExecuteSwap performs the swap leg against
// the bank, hands the attached payload to the hook adapter, and commits only
// if both legs succeed. A failure anywhere rolls the whole composite back, so
// no later call ever observes partial state. Committed mutations are
// persisted to the store before the lock is released.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"

	"stakecast/internal/bank"
	"stakecast/internal/config"
	"stakecast/internal/events"
	"stakecast/internal/hook"
	"stakecast/internal/ledger"
	"stakecast/internal/oracle"
	"stakecast/internal/registry"
	"stakecast/internal/resolver"
	"stakecast/internal/rewards"
	"stakecast/internal/store"
	"stakecast/pkg/types"
)

// EscrowAccount holds every open stake and the prize pools of resolved
// markets until they are claimed. Derived, not configured, so it cannot
// collide with a participant address.
var EscrowAccount = deriveAccount("stakecast/escrow")

func deriveAccount(label string) common.Address {
	return common.BytesToAddress(crypto.Keccak256([]byte(label))[12:])
}

// PoolAccount is the bank account backing a swap pool.
func PoolAccount(poolID string) common.Address {
	return deriveAccount("stakecast/pool/" + poolID)
}

// SwapRequest describes one swap to execute, with an optional prediction
// payload attached.
type SwapRequest struct {
	PoolID    string
	Trader    common.Address
	TokenIn   string
	TokenOut  string
	AmountIn  decimal.Decimal
	AmountOut decimal.Decimal
	HookData  []byte
}

// Engine is the top-level settlement engine.
type Engine struct {
	mu sync.Mutex // serializes all mutating calls

	cfg    *config.Config
	logger *slog.Logger

	bank     *bank.Bank
	tickets  *ledger.Tickets
	registry *registry.Registry
	ledger   *ledger.Ledger
	gateway  *oracle.Gateway
	resolver *resolver.Resolver
	rewards  *rewards.Distributor
	adapter  *hook.Adapter
	store    *store.Store
	log      *events.Log

	admin common.Address

	feeMu sync.RWMutex
	fees  types.FeeConfig
}

// New builds an engine from config, restoring any persisted state from the
// store directory. The price source is injected so tests can stub it; main
// passes a Hermes source.
func New(cfg *config.Config, src oracle.PriceSource, logger *slog.Logger) (*Engine, error) {
	minStake, err := decimal.NewFromString(cfg.Stake.MinStakeAmount)
	if err != nil {
		return nil, fmt.Errorf("parse stake.min_stake_amount: %w", err)
	}
	hookMin, err := decimal.NewFromString(cfg.Stake.HookMinStake)
	if err != nil {
		return nil, fmt.Errorf("parse stake.hook_min_stake: %w", err)
	}

	st, err := store.Open(cfg.Store.DataDir)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	e := &Engine{
		cfg:    cfg,
		logger: logger.With("component", "engine"),
		admin:  common.HexToAddress(cfg.Admin.Address),
		fees: types.FeeConfig{
			Treasury: common.HexToAddress(cfg.Fees.Treasury),
			FeeBps:   cfg.Fees.FeeBps,
		},
		store: st,
		log:   events.NewLog(),
	}

	e.bank = bank.New()
	e.tickets = ledger.NewTickets()
	e.registry = registry.New(e.log, logger)
	e.ledger = ledger.New(e.registry, e.tickets, minStake, e.log, logger)
	e.gateway = oracle.NewGateway(src, cfg.Oracle.MaxStaleness, logger)
	e.resolver = resolver.New(e.registry, e.gateway, e.log, logger)
	e.rewards = rewards.New(e.registry, e.tickets, e.bank, EscrowAccount, e, e.log, logger)
	e.adapter = hook.New(e.ledger, hookMin, cfg.Hook.Strict, e.log, logger)

	if err := e.restore(); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *Engine) restore() error {
	st, err := e.store.Load()
	if err != nil {
		return fmt.Errorf("load state: %w", err)
	}
	if st == nil {
		e.logger.Info("no persisted state, starting fresh")
		return nil
	}

	e.registry.Restore(st.Markets)
	e.tickets.Restore(st.Tickets, st.NextTicketID)
	e.bank.Restore(st.BalancesByAddress())
	if st.FeeConfig.Treasury != (common.Address{}) || st.FeeConfig.FeeBps > 0 {
		e.fees = st.FeeConfig
	}
	if st.MinStake.Sign() > 0 {
		if err := e.ledger.SetMinStake(st.MinStake); err != nil {
			return fmt.Errorf("restore min stake: %w", err)
		}
	}
	e.logger.Info("state restored",
		"markets", len(st.Markets),
		"tickets", len(st.Tickets),
		"saved_at", st.SavedAt,
	)
	return nil
}

// persist snapshots the full state to disk. Called with e.mu held, after the
// mutation has committed; a save failure is logged but does not unwind the
// committed call.
func (e *Engine) persist() {
	tickets, nextID := e.tickets.Snapshot()
	st := &store.State{
		Markets:      e.registry.Snapshot(),
		Tickets:      tickets,
		NextTicketID: nextID,
		Balances:     store.EncodeBalances(e.bank.Snapshot()),
		FeeConfig:    e.FeeConfig(),
		MinStake:     e.ledger.MinStake(),
	}
	if err := e.store.Save(st); err != nil {
		e.logger.Error("failed to persist state", "error", err)
	}
}

// FeeConfig returns the live fee configuration. Satisfies rewards.FeeProvider.
func (e *Engine) FeeConfig() types.FeeConfig {
	e.feeMu.RLock()
	defer e.feeMu.RUnlock()
	return e.fees
}

func (e *Engine) requireAdmin(caller common.Address) error {
	if caller != e.admin {
		return fmt.Errorf("caller %s: %w", caller.Hex(), types.ErrNotAuthorized)
	}
	return nil
}

// CreateMarket registers a new market. Admin only.
func (e *Engine) CreateMarket(caller common.Address, id uint64, name, symbol string, threshold decimal.Decimal, expiration time.Time, feedID string) error {
	if err := e.requireAdmin(caller); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.registry.CreateMarket(id, name, symbol, threshold, expiration, feedID); err != nil {
		return err
	}
	e.persist()
	return nil
}

// Deposit credits an account with funds to stake or swap with.
func (e *Engine) Deposit(account common.Address, amount decimal.Decimal) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.bank.Deposit(account, amount); err != nil {
		return err
	}
	e.persist()
	return nil
}

// Predict places a direct prediction: the stake moves from the staker into
// escrow and a claim ticket is minted, atomically. Returns the ticket id.
func (e *Engine) Predict(staker common.Address, marketID uint64, outcome types.Outcome, amount decimal.Decimal) (uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	j := e.bank.Begin()
	if err := j.Transfer(staker, EscrowAccount, amount); err != nil {
		j.Rollback()
		return 0, fmt.Errorf("collect stake: %w", err)
	}
	ticketID, err := e.ledger.RecordPrediction(marketID, staker, outcome, amount)
	if err != nil {
		j.Rollback()
		return 0, err
	}
	j.Commit()
	e.persist()
	return ticketID, nil
}

// ExecuteSwap performs the swap leg against the bank and runs the hook
// adapter over the attached payload, as one atomic unit. An empty or (in
// permissive mode) malformed payload leaves the swap standing with no
// prediction; any real failure in either leg rolls everything back.
func (e *Engine) ExecuteSwap(req SwapRequest) (types.SwapResult, hook.Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	swap := types.SwapResult{
		PoolID:    req.PoolID,
		Trader:    req.Trader,
		TokenIn:   req.TokenIn,
		TokenOut:  req.TokenOut,
		AmountIn:  req.AmountIn,
		AmountOut: req.AmountOut,
		At:        time.Now(),
	}
	pool := PoolAccount(req.PoolID)

	j := e.bank.Begin()
	if err := j.Transfer(req.Trader, pool, req.AmountIn); err != nil {
		j.Rollback()
		return types.SwapResult{}, hook.Result{}, fmt.Errorf("swap input leg: %w", err)
	}
	if err := j.Transfer(pool, req.Trader, req.AmountOut); err != nil {
		j.Rollback()
		return types.SwapResult{}, hook.Result{}, fmt.Errorf("swap output leg: %w", err)
	}

	collect := func(from common.Address, amount decimal.Decimal) error {
		return j.Transfer(from, EscrowAccount, amount)
	}
	res, err := e.adapter.AfterSwap(swap, req.HookData, collect)
	if err != nil {
		j.Rollback()
		return types.SwapResult{}, hook.Result{}, err
	}

	j.Commit()
	e.persist()
	return swap, res, nil
}

// ResolveMarket settles an expired market against the oracle. Callable by
// anyone.
func (e *Engine) ResolveMarket(ctx context.Context, marketID uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.resolver.ResolveMarket(ctx, marketID); err != nil {
		return err
	}
	e.persist()
	return nil
}

// ClaimReward pays out a winning ticket to its owner.
func (e *Engine) ClaimReward(caller common.Address, ticketID uint64) (rewards.Payout, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	payout, err := e.rewards.ClaimReward(caller, ticketID)
	if err != nil {
		return rewards.Payout{}, err
	}
	e.persist()
	return payout, nil
}

// SetFeeConfiguration updates the treasury and fee rate. Admin only; the new
// rate applies to claims settled after the call.
func (e *Engine) SetFeeConfiguration(caller, treasury common.Address, feeBps uint32) error {
	if err := e.requireAdmin(caller); err != nil {
		return err
	}
	if treasury == (common.Address{}) {
		return fmt.Errorf("treasury must be non-zero: %w", types.ErrInvalidArgument)
	}
	if feeBps > types.BpsDenominator {
		return fmt.Errorf("fee %d bps exceeds %d: %w", feeBps, types.BpsDenominator, types.ErrInvalidArgument)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.feeMu.Lock()
	e.fees = types.FeeConfig{Treasury: treasury, FeeBps: feeBps}
	e.feeMu.Unlock()

	e.logger.Info("fee configuration updated", "treasury", treasury.Hex(), "fee_bps", feeBps)
	e.log.Append(events.TypeFeeConfigChanged, events.FeeConfigChanged{
		Treasury: treasury,
		FeeBps:   feeBps,
	})
	e.persist()
	return nil
}

// SetMinStakeAmount updates the minimum stake floor. Admin only.
func (e *Engine) SetMinStakeAmount(caller common.Address, amount decimal.Decimal) error {
	if err := e.requireAdmin(caller); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.ledger.SetMinStake(amount); err != nil {
		return err
	}
	e.logger.Info("min stake updated", "amount", amount)
	e.persist()
	return nil
}

// SetMaxPriceStaleness updates the oracle staleness window. Admin only.
func (e *Engine) SetMaxPriceStaleness(caller common.Address, d time.Duration) error {
	if err := e.requireAdmin(caller); err != nil {
		return err
	}
	if err := e.gateway.SetMaxStaleness(d); err != nil {
		return err
	}
	e.logger.Info("max price staleness updated", "window", d)
	return nil
}

// GetMarket returns a snapshot of the market and whether it exists.
func (e *Engine) GetMarket(id uint64) (types.Market, bool) {
	return e.registry.GetMarket(id)
}

// ListMarkets returns snapshots of all markets.
func (e *Engine) ListMarkets() []types.Market {
	return e.registry.List()
}

// GetTicket returns a snapshot of the ticket and whether it exists.
func (e *Engine) GetTicket(id uint64) (types.Ticket, bool) {
	return e.tickets.Get(id)
}

// TicketsForMarket returns all tickets minted against the market.
func (e *Engine) TicketsForMarket(marketID uint64) []types.Ticket {
	return e.tickets.ForMarket(marketID)
}

// Balance returns the bank balance for an account.
func (e *Engine) Balance(account common.Address) decimal.Decimal {
	return e.bank.Balance(account)
}

// MinStake returns the current minimum stake floor.
func (e *Engine) MinStake() decimal.Decimal {
	return e.ledger.MinStake()
}

// MaxPriceStaleness returns the current oracle staleness window.
func (e *Engine) MaxPriceStaleness() time.Duration {
	return e.gateway.MaxStaleness()
}

// Events exposes the engine's event log for streaming and inspection.
func (e *Engine) Events() *events.Log {
	return e.log
}
