// Package registry owns the market entities and their lifecycle.
//
// Markets are created once, mutated by the ledger (stake totals) and the
// resolver (resolution fields), and never deleted. The Open → Expired
// transition is derived from the clock at read time; only the Resolved
// transition is stored, and nothing leaves Resolved.
package registry

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"stakecast/internal/events"
	"stakecast/pkg/types"
)

// Registry is the single owner of all market records.
type Registry struct {
	mu      sync.RWMutex
	markets map[uint64]*types.Market
	log     *events.Log
	logger  *slog.Logger

	now func() time.Time // injectable clock for tests
}

// New creates an empty registry.
func New(log *events.Log, logger *slog.Logger) *Registry {
	return &Registry{
		markets: make(map[uint64]*types.Market),
		log:     log,
		logger:  logger.With("component", "registry"),
		now:     time.Now,
	}
}

// CreateMarket registers a new market. The id is caller-assigned and must be
// unused; threshold must be positive, expiration strictly in the future, and
// name/symbol non-empty.
func (r *Registry) CreateMarket(id uint64, name, symbol string, threshold decimal.Decimal, expiration time.Time, feedID string) error {
	if id == 0 {
		return fmt.Errorf("market id must be non-zero: %w", types.ErrInvalidArgument)
	}
	if name == "" || symbol == "" {
		return fmt.Errorf("name and symbol must be non-empty: %w", types.ErrInvalidArgument)
	}
	if threshold.Sign() <= 0 {
		return fmt.Errorf("threshold must be positive: %w", types.ErrInvalidArgument)
	}
	now := r.now()
	if !expiration.After(now) {
		return fmt.Errorf("expiration must be in the future: %w", types.ErrInvalidArgument)
	}

	r.mu.Lock()
	if _, exists := r.markets[id]; exists {
		r.mu.Unlock()
		return fmt.Errorf("market %d: %w", id, types.ErrMarketAlreadyExists)
	}
	r.markets[id] = &types.Market{
		ID:              id,
		Name:            name,
		Symbol:          symbol,
		PriceThreshold:  threshold,
		ExpirationTime:  expiration,
		FeedID:          feedID,
		CreatedAt:       now,
		TotalStakeBelow: decimal.Zero,
		TotalStakeAbove: decimal.Zero,
	}
	r.mu.Unlock()

	r.logger.Info("market created",
		"market", id,
		"name", name,
		"threshold", threshold,
		"expires", expiration,
	)
	r.log.Append(events.TypeMarketCreated, events.MarketCreated{
		MarketID:       id,
		Name:           name,
		AssetSymbol:    symbol,
		ExpirationTime: expiration,
		FeedID:         feedID,
		PriceThreshold: threshold,
	})
	return nil
}

// GetMarket returns a snapshot of the market and whether it exists.
// It never fails; absence is reported through the bool.
func (r *Registry) GetMarket(id uint64) (types.Market, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.markets[id]
	if !ok {
		return types.Market{}, false
	}
	return *m, true
}

// List returns snapshots of all markets, unordered.
func (r *Registry) List() []types.Market {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]types.Market, 0, len(r.markets))
	for _, m := range r.markets {
		out = append(out, *m)
	}
	return out
}

// AddStake adds amount to the market's pool for the given outcome. Called
// only by the ledger, which has already validated lifecycle and amount; the
// checks here are the registry's own integrity guards.
func (r *Registry) AddStake(id uint64, outcome types.Outcome, amount decimal.Decimal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.markets[id]
	if !ok {
		return fmt.Errorf("market %d: %w", id, types.ErrMarketDoesNotExist)
	}
	if m.Resolved {
		return fmt.Errorf("market %d: %w", id, types.ErrMarketAlreadyResolved)
	}
	if outcome == types.Above {
		m.TotalStakeAbove = m.TotalStakeAbove.Add(amount)
	} else {
		m.TotalStakeBelow = m.TotalStakeBelow.Add(amount)
	}
	return nil
}

// SetResolved writes the resolution fields and flips the market to its
// terminal state. Fails if the market is unknown or already resolved; the
// transition happens exactly once.
func (r *Registry) SetResolved(id uint64, outcome types.Outcome, price decimal.Decimal, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.markets[id]
	if !ok {
		return fmt.Errorf("market %d: %w", id, types.ErrMarketDoesNotExist)
	}
	if m.Resolved {
		return fmt.Errorf("market %d: %w", id, types.ErrMarketAlreadyResolved)
	}
	m.Resolved = true
	m.WinningOutcome = outcome
	m.ResolutionPrice = price
	m.ResolvedAt = at
	return nil
}

// Snapshot returns the market map for persistence.
func (r *Registry) Snapshot() map[uint64]*types.Market {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[uint64]*types.Market, len(r.markets))
	for id, m := range r.markets {
		cp := *m
		out[id] = &cp
	}
	return out
}

// Restore loads persisted markets, replacing current state.
func (r *Registry) Restore(markets map[uint64]*types.Market) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.markets = make(map[uint64]*types.Market, len(markets))
	for id, m := range markets {
		cp := *m
		r.markets[id] = &cp
	}
}
